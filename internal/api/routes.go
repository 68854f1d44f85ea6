package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/queue"
)

// queuePingTimeout bounds the Redis check made by /status.
const queuePingTimeout = 2 * time.Second

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware())

			r.Post("/videos", registerVideoHandler(cfg))
			r.Get("/videos", listVideosHandler(cfg))
			r.Post("/merges", createMergeHandler(cfg))
			r.Get("/merges", listMergesHandler(cfg))
			r.Get("/merges/{id}", getMergeHandler(cfg))
			r.Get("/merges/{id}/video", mergeVideoHandler(cfg))
			r.Get("/jobs/{id}", getJobHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{State: "ready"}

		if cfg.Doctor != nil {
			caps := cfg.Doctor.Peek()
			resp.Engine = caps
			if !caps.Ready() {
				resp.State = "degraded"
				resp.Missing = caps.Missing()
			}
		}

		if cfg.Queue != nil {
			resp.Queue.Enabled = true
			ctx, cancel := context.WithTimeout(r.Context(), queuePingTimeout)
			defer cancel()
			if err := cfg.Queue.Ping(ctx); err != nil {
				resp.Queue.Error = err.Error()
				resp.State = "degraded"
			} else {
				resp.Queue.Reachable = true
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func registerVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())

		var req RegisterVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		video, err := cfg.Catalog.RegisterVideo(r.Context(), catalog.RegisterVideoInput{
			OwnerUserID:  owner.UserID,
			Title:        req.Title,
			VideoURL:     req.VideoURL,
			ThumbnailURL: req.ThumbnailURL,
			Duration:     req.Duration,
		})
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidVideo) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to register video", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, VideoToResponse(video))
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())

		videos, err := cfg.Catalog.ListVideos(r.Context(), owner.UserID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// getJobHandler reports a job's queue status. Once the status hash has
// expired, or for jobs that ran synchronously, a persisted result for the
// job id is reported as completed.
func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := OwnerFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		var st *queue.JobStatus
		if cfg.Queue != nil {
			var err error
			st, err = cfg.Queue.Status(r.Context(), id)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to read job status", "INTERNAL_ERROR")
				return
			}
		}
		if st == nil {
			res, err := cfg.Repository.GetResultByJobID(r.Context(), id)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to read job result", "INTERNAL_ERROR")
				return
			}
			if res != nil {
				st = &queue.JobStatus{
					ID:          id,
					OwnerUserID: res.OwnerUserID,
					Status:      queue.StatusCompleted,
					Progress:    100,
					ResultID:    res.ID,
					CreatedAt:   res.CreatedAt,
					UpdatedAt:   res.CreatedAt,
				}
			}
		}
		if st == nil || st.OwnerUserID != owner.UserID {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobResponse{
			ID:        st.ID,
			Status:    string(st.Status),
			Progress:  st.Progress,
			ResultID:  st.ResultID,
			Error:     st.Error,
			ErrorCode: st.ErrorCode,
			CreatedAt: formatTime(st.CreatedAt),
			UpdatedAt: formatTime(st.UpdatedAt),
		})
	}
}
