package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceVideo is an uploaded video a merge can draw clips from. VideoURL is
// the stored file reference as written by the upload pipeline; its layout
// varies across deployments and is resolved on disk at merge time.
type SourceVideo struct {
	ID           string    `json:"id"`
	OwnerUserID  string    `json:"owner_user_id"`
	Title        string    `json:"title"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Duration     float64   `json:"duration"`
	CreatedAt    time.Time `json:"created_at"`
}

// SourceClip is the persisted description of one input clip of a merge.
type SourceClip struct {
	VideoID            string  `json:"video_id"`
	Title              string  `json:"title,omitempty"`
	OriginalVideoTitle string  `json:"original_video_title,omitempty"`
	StartTime          float64 `json:"start_time"`
	EndTime            float64 `json:"end_time"`
	Duration           float64 `json:"duration"`
	OutputOffset       float64 `json:"output_offset"`
	Thumbnail          string  `json:"thumbnail,omitempty"`
}

type MergeStats struct {
	TotalClips       int       `json:"total_clips"`
	TotalDuration    float64   `json:"total_duration"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	MergeDate        time.Time `json:"merge_date"`
}

// MergeResult is the immutable record written once per successful merge job.
type MergeResult struct {
	ID           string       `json:"id"`
	OwnerUserID  string       `json:"owner_user_id"`
	JobID        string       `json:"job_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Duration     float64      `json:"duration"`
	StorageKey   string       `json:"storage_key"`
	StorageURL   string       `json:"storage_url"`
	ThumbnailURL string       `json:"thumbnail_url"`
	OwnerEmail   string       `json:"owner_email,omitempty"`
	OwnerName    string       `json:"owner_name,omitempty"`
	SourceClips  []SourceClip `json:"source_clips"`
	Stats        MergeStats   `json:"stats"`
	CreatedAt    time.Time    `json:"created_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

func NewID() string {
	return uuid.NewString()
}

// IsVideoFile reports whether filename carries a container extension the
// merge engine accepts as input.
func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
