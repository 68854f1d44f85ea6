// Package engine drives the external ffmpeg/ffprobe binaries: multi-input
// trim and concat merges with progress and a hard timeout, single-frame
// thumbnails, media probing and a capability probe run at startup.
package engine

import (
	"context"
	"time"
)

// Engine is the media engine contract used by the merge pipeline.
type Engine interface {
	// Merge trims each input and concatenates them, in order, into one
	// H.264/AAC MP4 at req.OutputPath. It blocks until the process exits.
	Merge(ctx context.Context, req MergeRequest) error

	// GenerateThumbnail writes a single downscaled JPEG frame captured at
	// the given offset in seconds.
	GenerateThumbnail(ctx context.Context, videoPath, outputPath string, at float64) error

	// Probe reads container and stream metadata.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// RunDoctor reports what the installed binaries can do.
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// Input is one trimmed segment of a source file.
type Input struct {
	Path     string
	Start    float64 // seconds
	Duration float64 // seconds
}

// Canvas is the frame geometry every input is normalised to.
type Canvas struct {
	Width  int
	Height int
	FPS    int
}

// IsZero reports whether no canvas was requested.
func (c Canvas) IsZero() bool {
	return c.Width == 0 && c.Height == 0
}

// ProgressFunc receives whole-percent progress updates in [0, 100].
type ProgressFunc func(percent int)

// MergeRequest describes one merge invocation.
type MergeRequest struct {
	JobID      string
	Inputs     []Input
	OutputPath string
	Canvas     Canvas // zero means derive from the first input
	OnProgress ProgressFunc
}

// TotalDuration is the sum of input durations.
func (r MergeRequest) TotalDuration() float64 {
	var total float64
	for _, in := range r.Inputs {
		total += in.Duration
	}
	return total
}

// ProbeResult holds the subset of ffprobe output the service uses.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	FrameRate  float64
	HasAudio   bool
}

// Capabilities is the outcome of a doctor probe.
type Capabilities struct {
	FFmpegPath      string    `json:"ffmpeg_path"`
	FFmpegVersion   string    `json:"ffmpeg_version"`
	FFprobeVersion  string    `json:"ffprobe_version"`
	HasFFmpeg       bool      `json:"has_ffmpeg"`
	HasFFprobe      bool      `json:"has_ffprobe"`
	HasH264         bool      `json:"has_h264"`
	HasAAC          bool      `json:"has_aac"`
	FreeTempBytes   uint64    `json:"free_temp_bytes"`
	FreeOutputBytes uint64    `json:"free_output_bytes"`
	CPUCount        int       `json:"cpu_count"`
	ProbedAt        time.Time `json:"probed_at"`
}

// Ready reports whether merges can run: ffmpeg is present with the H.264 and
// AAC encoders the output policy requires.
func (c *Capabilities) Ready() bool {
	return c != nil && c.HasFFmpeg && c.HasH264 && c.HasAAC
}

// Missing lists the unmet requirements checked by Ready.
func (c *Capabilities) Missing() []string {
	if c == nil {
		return []string{"ffmpeg"}
	}
	var missing []string
	if !c.HasFFmpeg {
		missing = append(missing, "ffmpeg")
	}
	if !c.HasH264 {
		missing = append(missing, "libx264")
	}
	if !c.HasAAC {
		missing = append(missing, "aac")
	}
	return missing
}

// RunResult captures the outcome of a short-lived engine command.
type RunResult struct {
	ExitCode   int
	Stdout     string
	StderrTail string
	Duration   time.Duration
}

// IsSuccess reports whether the command exited cleanly.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}
