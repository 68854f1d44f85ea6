package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heimdex/clipmerge/internal/logging"
)

// ErrInvalidVideo is returned by RegisterVideo for malformed input.
var ErrInvalidVideo = errors.New("invalid video")

// Locator finds a stored file reference on local disk.
type Locator interface {
	Resolve(ref string) (string, error)
}

type CatalogService interface {
	RegisterVideo(ctx context.Context, in RegisterVideoInput) (*SourceVideo, error)
	GetVideo(ctx context.Context, id string) (*SourceVideo, error)
	ListVideos(ctx context.Context, ownerUserID string) ([]*SourceVideo, error)
	GetResult(ctx context.Context, id string) (*MergeResult, error)
	ListResults(ctx context.Context, ownerUserID string, limit int) ([]*MergeResult, error)
}

type RegisterVideoInput struct {
	OwnerUserID  string
	Title        string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
}

// Service records source videos produced by the upload pipeline and serves
// merge results back to their owners.
type Service struct {
	repo    Repository
	locator Locator
	logger  *slog.Logger
}

// NewService creates a catalog service. locator may be nil, in which case
// registered references are not checked against the filesystem.
func NewService(repo Repository, locator Locator, logger *slog.Logger) *Service {
	return &Service{repo: repo, locator: locator, logger: logging.OrDiscard(logger)}
}

func (s *Service) RegisterVideo(ctx context.Context, in RegisterVideoInput) (*SourceVideo, error) {
	ref := strings.TrimSpace(in.VideoURL)
	if in.OwnerUserID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidVideo)
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: video_url is required", ErrInvalidVideo)
	}
	if !IsVideoFile(ref) {
		return nil, fmt.Errorf("%w: unsupported container %q", ErrInvalidVideo, ref)
	}
	if in.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidVideo)
	}

	if s.locator != nil {
		if _, err := s.locator.Resolve(ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
		}
	}

	video := &SourceVideo{
		ID:           NewID(),
		OwnerUserID:  in.OwnerUserID,
		Title:        strings.TrimSpace(in.Title),
		VideoURL:     ref,
		ThumbnailURL: in.ThumbnailURL,
		Duration:     in.Duration,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, err
	}

	logging.WithOwnerID(s.logger, video.OwnerUserID).Info("video registered", "video_id", video.ID)
	return video, nil
}

func (s *Service) GetVideo(ctx context.Context, id string) (*SourceVideo, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) ListVideos(ctx context.Context, ownerUserID string) ([]*SourceVideo, error) {
	return s.repo.ListVideosByOwner(ctx, ownerUserID)
}

func (s *Service) GetResult(ctx context.Context, id string) (*MergeResult, error) {
	return s.repo.GetResult(ctx, id)
}

func (s *Service) ListResults(ctx context.Context, ownerUserID string, limit int) ([]*MergeResult, error) {
	return s.repo.ListResultsByOwner(ctx, ownerUserID, limit)
}
