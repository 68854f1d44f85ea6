package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/merge"
	"github.com/heimdex/clipmerge/internal/queue"
)

const (
	maxClipsPerMerge   = 100
	maxTitleLength     = 200
	clipBoundTolerance = 0.05 // seconds past a source's recorded duration
)

func createMergeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())

		var req MergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if msg := validateMergeRequest(req); msg != "" {
			WriteError(w, http.StatusBadRequest, msg, "BAD_REQUEST")
			return
		}
		if status, msg, code := checkClipSources(r.Context(), cfg.Catalog, owner, req.Clips); status != 0 {
			WriteError(w, status, msg, code)
			return
		}

		if req.Async {
			if cfg.Queue == nil {
				WriteError(w, http.StatusServiceUnavailable, "queue mode is not enabled", "QUEUE_UNAVAILABLE")
				return
			}
			jobID, err := cfg.Queue.Enqueue(r.Context(), queue.Request{
				Owner:       owner,
				Title:       req.Title,
				Description: req.Description,
				Clips:       req.Clips,
			})
			if err != nil {
				cfg.Logger.Error("failed to enqueue merge", "owner_id", owner.UserID, "error", err)
				WriteError(w, http.StatusServiceUnavailable, "failed to enqueue merge job", "QUEUE_UNAVAILABLE")
				return
			}
			WriteJSON(w, http.StatusAccepted, MergeAcceptedResponse{JobID: jobID, StatusURL: "/jobs/" + jobID})
			return
		}

		// A client that disconnects does not abort the job.
		ctx := context.WithoutCancel(r.Context())
		result, err := cfg.Merger.Run(ctx, req.Clips, owner, merge.JobOptions{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			writeJobError(w, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ResultToResponse(result))
	}
}

// validateMergeRequest checks request shape and returns a message describing
// the first problem, or "".
func validateMergeRequest(req MergeRequest) string {
	if len(req.Clips) == 0 {
		return "clips must not be empty"
	}
	if len(req.Clips) > maxClipsPerMerge {
		return fmt.Sprintf("at most %d clips can be merged", maxClipsPerMerge)
	}
	if len(req.Title) > maxTitleLength {
		return fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	for i, c := range req.Clips {
		if strings.TrimSpace(c.VideoID) == "" {
			return fmt.Sprintf("clips[%d]: video_id is required", i)
		}
		if c.StartTime < 0 {
			return fmt.Sprintf("clips[%d]: start_time must not be negative", i)
		}
		if c.EndTime <= c.StartTime {
			return fmt.Sprintf("clips[%d]: end_time must be greater than start_time", i)
		}
	}
	return ""
}

// checkClipSources verifies each referenced video belongs to owner and that
// the clip lies within the video. A zero status means every clip is valid.
func checkClipSources(ctx context.Context, videos catalog.CatalogService, owner merge.Owner, clips []merge.ClipRequest) (int, string, string) {
	seen := make(map[string]*catalog.SourceVideo, len(clips))
	for i, c := range clips {
		video, ok := seen[c.VideoID]
		if !ok {
			v, err := videos.GetVideo(ctx, c.VideoID)
			if err != nil {
				return http.StatusInternalServerError, "failed to load source video", "INTERNAL_ERROR"
			}
			video = v
			seen[c.VideoID] = v
		}
		if video == nil || video.OwnerUserID != owner.UserID {
			return http.StatusNotFound, fmt.Sprintf("source video %s not found", c.VideoID), "CLIP_NOT_FOUND"
		}
		if video.Duration > 0 && c.EndTime > video.Duration+clipBoundTolerance {
			return http.StatusBadRequest,
				fmt.Sprintf("clips[%d]: end_time %.2f exceeds video duration %.2f", i, c.EndTime, video.Duration),
				"BAD_REQUEST"
		}
	}
	return 0, "", ""
}

func listMergesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		results, err := cfg.Catalog.ListResults(r.Context(), owner.UserID, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list merges", "INTERNAL_ERROR")
			return
		}
		if results == nil {
			results = []*catalog.MergeResult{}
		}
		WriteJSON(w, http.StatusOK, MergeResultsResponse{Results: results})
	}
}

func getMergeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := ownedResult(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// mergeVideoHandler redirects to a short-lived signed URL for the merged
// video.
func mergeVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := ownedResult(w, r, cfg)
		if !ok {
			return
		}

		exists, err := cfg.Store.Exists(r.Context(), result.StorageKey)
		if err != nil {
			cfg.Logger.Error("storage lookup failed", "key", result.StorageKey, "error", err)
			WriteError(w, http.StatusBadGateway, "storage unavailable", "STORAGE_ERROR")
			return
		}
		if !exists {
			WriteError(w, http.StatusGone, "merged video is no longer stored", "VIDEO_MISSING")
			return
		}

		ttl := cfg.SignedURLTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		url, err := cfg.Store.SignedURL(r.Context(), result.StorageKey, ttl)
		if err != nil {
			cfg.Logger.Error("failed to sign url", "key", result.StorageKey, "error", err)
			WriteError(w, http.StatusBadGateway, "storage unavailable", "STORAGE_ERROR")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// ownedResult loads the result named in the URL, writing a 404 unless it
// belongs to the caller.
func ownedResult(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*catalog.MergeResult, bool) {
	owner, _ := OwnerFromContext(r.Context())
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		WriteError(w, http.StatusBadRequest, "merge id required", "BAD_REQUEST")
		return nil, false
	}

	result, err := cfg.Catalog.GetResult(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load merge", "INTERNAL_ERROR")
		return nil, false
	}
	if result == nil || result.OwnerUserID != owner.UserID {
		WriteError(w, http.StatusNotFound, "merge not found", "NOT_FOUND")
		return nil, false
	}
	return result, true
}
