// Package merge runs clip-merge jobs: it resolves the requested clips to
// files on disk, has the media engine trim and concatenate them, uploads the
// result with a thumbnail and records it.
package merge

import (
	"context"
	"path/filepath"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/engine"
)

// ClipRequest is one caller-supplied clip. Bounds are validated upstream.
type ClipRequest struct {
	VideoID   string  `json:"video_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title,omitempty"`
}

// Owner is the authenticated user a job runs for.
type Owner struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// JobOptions carries per-job metadata and hooks.
type JobOptions struct {
	JobID       string // pre-assigned by a queue; empty = generate
	Title       string
	Description string
	OnProgress  engine.ProgressFunc
}

// ResolvedClip is a clip whose source file exists on disk.
type ResolvedClip struct {
	AbsolutePath       string
	StartTime          float64
	EndTime            float64
	Duration           float64
	SourceVideoID      string
	Title              string
	Thumbnail          string
	OriginalVideoTitle string
}

// Job is the in-memory state of one merge invocation.
type Job struct {
	ID            string
	TempDir       string
	OutputDir     string
	Clips         []ResolvedClip
	TotalDuration float64
	StartedAt     time.Time
	Owner         Owner
	Title         string
	Description   string
}

// OutputPath is the merged file this job writes. Names are unique per job so
// jobs sharing the output directory never collide.
func (j *Job) OutputPath() string {
	return filepath.Join(j.OutputDir, "merged_"+j.ID+".mp4")
}

// VideoStore loads source video records.
type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*catalog.SourceVideo, error)
}

// ResultStore persists merge results.
type ResultStore interface {
	CreateResult(ctx context.Context, result *catalog.MergeResult) error
}

// Locator finds stored file references on disk.
type Locator interface {
	Resolve(ref string) (string, error)
}

// MediaEngine is the subset of the engine the pipeline drives.
type MediaEngine interface {
	Merge(ctx context.Context, req engine.MergeRequest) error
	GenerateThumbnail(ctx context.Context, videoPath, outputPath string, at float64) error
}

// Readiness gates job start on engine capabilities.
type Readiness interface {
	Ready(ctx context.Context) error
}

// Workspace provisions job directories.
type Workspace interface {
	SafeTempDir(override, jobID string) (string, error)
	SafeOutputDir(override string) string
	EnsureExists(path string) bool
	Anchor(path string) string
}
