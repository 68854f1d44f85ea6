package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/storage"
	"github.com/heimdex/clipmerge/internal/timeline"
)

// edlFrameRate matches the canvas rate the engine normalises to.
const edlFrameRate = 30

// Finisher turns a merged local file into a stored artifact and a persisted
// result record, then removes the job's local files.
type Finisher struct {
	engine  MediaEngine
	store   storage.ObjectStore
	results ResultStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewFinisher(eng MediaEngine, store storage.ObjectStore, results ResultStore, logger *slog.Logger) *Finisher {
	return &Finisher{engine: eng, store: store, results: results, logger: logging.OrDiscard(logger), now: time.Now}
}

// Finish runs the post-merge steps. Thumbnail and sidecar failures fall back
// and are logged; a failed video upload or result insert fails the job.
// Local artifacts are removed on every path.
func (f *Finisher) Finish(ctx context.Context, job *Job, outputPath string) (*catalog.MergeResult, error) {
	logger := logging.ForJob(f.logger, job.ID, job.Owner.UserID)
	defer func() {
		if err := f.Cleanup(job, outputPath); err != nil {
			logger.Warn("cleanup incomplete", "error", err)
		}
	}()

	thumbnailURL, thumbKey := f.thumbnail(ctx, logger, job, outputPath)

	videoKey := storage.VideoKey(job.Owner.UserID, job.ID)
	storageURL, err := f.store.Upload(ctx, outputPath, videoKey, storage.ContentTypeMP4)
	if err != nil {
		if thumbKey != "" {
			if delErr := f.store.Delete(ctx, thumbKey); delErr != nil {
				logger.Warn("failed to remove thumbnail after video upload failure", "key", thumbKey, "error", delErr)
			}
		}
		return nil, &UploadError{Key: videoKey, Err: err}
	}
	logger.Info("merged video uploaded", "key", videoKey)

	sourceClips := SourceClips(job.Clips)
	f.uploadEDL(ctx, logger, job)

	mergeDate := f.now().UTC()
	result := &catalog.MergeResult{
		ID:           catalog.NewID(),
		OwnerUserID:  job.Owner.UserID,
		JobID:        job.ID,
		Title:        job.Title,
		Description:  job.Description,
		Duration:     job.TotalDuration,
		StorageKey:   videoKey,
		StorageURL:   storageURL,
		ThumbnailURL: thumbnailURL,
		OwnerEmail:   job.Owner.Email,
		OwnerName:    job.Owner.Name,
		SourceClips:  sourceClips,
		Stats: catalog.MergeStats{
			TotalClips:       len(job.Clips),
			TotalDuration:    job.TotalDuration,
			ProcessingTimeMs: mergeDate.Sub(job.StartedAt).Milliseconds(),
			MergeDate:        mergeDate,
		},
		CreatedAt: mergeDate,
	}

	if err := f.results.CreateResult(ctx, result); err != nil {
		logger.Error("result not persisted; stored video is orphaned", "key", videoKey, "error", err)
		return nil, &PersistenceError{StorageKey: videoKey, Err: err}
	}

	logger.Info("merge result saved",
		"result_id", result.ID,
		"clips", result.Stats.TotalClips,
		"duration", result.Duration,
		"processing_ms", result.Stats.ProcessingTimeMs,
	)
	return result, nil
}

// thumbnail captures and uploads a frame at the midpoint of the merged video.
// On any failure it returns the first clip's existing thumbnail, or "".
func (f *Finisher) thumbnail(ctx context.Context, logger *slog.Logger, job *Job, outputPath string) (url, key string) {
	fallback := ""
	if len(job.Clips) > 0 {
		fallback = job.Clips[0].Thumbnail
	}

	thumbPath := filepath.Join(job.TempDir, "thumb_"+job.ID+".jpg")
	if err := f.engine.GenerateThumbnail(ctx, outputPath, thumbPath, job.TotalDuration/2); err != nil {
		logger.Warn("thumbnail generation failed, using fallback", "error", err, "fallback", fallback)
		return fallback, ""
	}

	key = storage.ThumbnailKey(job.Owner.UserID, job.ID)
	url, err := f.store.Upload(ctx, thumbPath, key, storage.ContentTypeJPEG)
	if err != nil {
		logger.Warn("thumbnail upload failed, using fallback", "error", err, "fallback", fallback)
		return fallback, ""
	}
	return url, key
}

// uploadEDL stores an edit decision list describing where each source range
// sits in the merged video.
func (f *Finisher) uploadEDL(ctx context.Context, logger *slog.Logger, job *Job) {
	segments := make([]timeline.Segment, len(job.Clips))
	for i, c := range job.Clips {
		segments[i] = timeline.Segment{
			Name:   c.Title,
			Source: filepath.Base(c.AbsolutePath),
			Start:  c.StartTime,
			End:    c.EndTime,
		}
	}

	path := filepath.Join(job.TempDir, "merged_"+job.ID+".edl")
	if err := os.WriteFile(path, []byte(timeline.GenerateEDL(job.Title, segments, edlFrameRate)), 0644); err != nil {
		logger.Warn("edl not written", "error", err)
		return
	}
	key := storage.EDLKey(job.Owner.UserID, job.ID)
	if _, err := f.store.Upload(ctx, path, key, storage.ContentTypeEDL); err != nil {
		logger.Warn("edl upload failed", "key", key, "error", err)
	}
}

// Cleanup removes the job's temp directory and local merged file. Paths that
// are already gone are not errors, so repeated calls are safe. Other
// failures come back joined as CleanupWarnings.
func (f *Finisher) Cleanup(job *Job, outputPath string) error {
	var warnings []error
	if job.TempDir != "" {
		if err := os.RemoveAll(job.TempDir); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, &CleanupWarning{Path: job.TempDir, Err: err})
		}
	}
	if outputPath != "" {
		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, &CleanupWarning{Path: outputPath, Err: err})
		}
	}
	return errors.Join(warnings...)
}

// SourceClips converts resolved clips to their persisted form, assigning
// each its offset in the merged output.
func SourceClips(clips []ResolvedClip) []catalog.SourceClip {
	segments := make([]timeline.Segment, len(clips))
	for i, c := range clips {
		segments[i] = timeline.Segment{Start: c.StartTime, End: c.EndTime}
	}
	offsets, _ := timeline.Offsets(segments)

	out := make([]catalog.SourceClip, len(clips))
	for i, c := range clips {
		out[i] = catalog.SourceClip{
			VideoID:            c.SourceVideoID,
			Title:              c.Title,
			OriginalVideoTitle: c.OriginalVideoTitle,
			StartTime:          c.StartTime,
			EndTime:            c.EndTime,
			Duration:           c.Duration,
			OutputOffset:       offsets[i],
			Thumbnail:          c.Thumbnail,
		}
	}
	return out
}

func defaultTitle(n int) string {
	if n == 1 {
		return "Merged video (1 clip)"
	}
	return fmt.Sprintf("Merged video (%d clips)", n)
}
