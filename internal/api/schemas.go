package api

import (
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/merge"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State   string               `json:"state"`
	Missing []string             `json:"missing,omitempty"`
	Engine  *engine.Capabilities `json:"engine,omitempty"`
	Queue   QueueStatusResponse  `json:"queue"`
}

type QueueStatusResponse struct {
	Enabled   bool   `json:"enabled"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

type MergeRequest struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Clips       []merge.ClipRequest `json:"clips"`
	Async       bool                `json:"async,omitempty"`
}

type MergeResponse struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	StorageURL   string  `json:"storage_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Duration     float64 `json:"duration"`
}

type MergeAcceptedResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

type MergeResultsResponse struct {
	Results []*catalog.MergeResult `json:"results"`
}

type RegisterVideoRequest struct {
	Title        string  `json:"title"`
	VideoURL     string  `json:"video_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Duration     float64 `json:"duration"`
}

type VideoResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	VideoURL     string  `json:"video_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Duration     float64 `json:"duration"`
	CreatedAt    string  `json:"created_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int64  `json:"progress"`
	ResultID  string `json:"result_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

func ResultToResponse(m *catalog.MergeResult) MergeResponse {
	return MergeResponse{
		ID:           m.ID,
		JobID:        m.JobID,
		StorageURL:   m.StorageURL,
		ThumbnailURL: m.ThumbnailURL,
		Duration:     m.Duration,
	}
}

func VideoToResponse(v *catalog.SourceVideo) VideoResponse {
	return VideoResponse{
		ID:           v.ID,
		Title:        v.Title,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Duration:     v.Duration,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
