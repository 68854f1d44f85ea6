package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
)

// ClipResolver turns clip requests into resolved clips backed by files on disk.
type ClipResolver struct {
	videos  VideoStore
	locator Locator
	logger  *slog.Logger
}

func NewClipResolver(videos VideoStore, locator Locator, logger *slog.Logger) *ClipResolver {
	return &ClipResolver{videos: videos, locator: locator, logger: logger}
}

// Resolve looks up every request concurrently and returns the clips in
// request order with their summed duration. The first unresolvable clip
// cancels the remaining lookups and is returned as a ClipNotFoundError or
// SourceFileMissingError. Files are only stat'ed, never opened.
func (r *ClipResolver) Resolve(ctx context.Context, reqs []ClipRequest) ([]ResolvedClip, float64, error) {
	clips := make([]ResolvedClip, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			clip, err := r.resolveOne(gctx, req)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total float64
	for _, c := range clips {
		total += c.Duration
	}
	return clips, total, nil
}

func (r *ClipResolver) resolveOne(ctx context.Context, req ClipRequest) (ResolvedClip, error) {
	if err := ctx.Err(); err != nil {
		return ResolvedClip{}, err
	}

	video, err := r.videos.GetVideo(ctx, req.VideoID)
	if err != nil {
		return ResolvedClip{}, fmt.Errorf("load video %s: %w", req.VideoID, err)
	}
	if video == nil {
		return ResolvedClip{}, &ClipNotFoundError{VideoID: req.VideoID}
	}

	path, err := r.locator.Resolve(video.VideoURL)
	if err != nil {
		return ResolvedClip{}, &SourceFileMissingError{VideoID: req.VideoID, Path: video.VideoURL, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return ResolvedClip{}, &SourceFileMissingError{VideoID: req.VideoID, Path: path, Err: err}
	}
	if info.Size() == 0 {
		return ResolvedClip{}, &SourceFileMissingError{VideoID: req.VideoID, Path: path, Err: fmt.Errorf("file is empty")}
	}

	title := req.Title
	if title == "" {
		title = video.Title
	}

	if r.logger != nil {
		r.logger.Debug("clip resolved", "video_id", req.VideoID, "path", path)
	}

	return ResolvedClip{
		AbsolutePath:       path,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Duration:           req.EndTime - req.StartTime,
		SourceVideoID:      video.ID,
		Title:              title,
		Thumbnail:          video.ThumbnailURL,
		OriginalVideoTitle: video.Title,
	}, nil
}
