package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/clipmerge/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024  // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 64 * 1024 // probe JSON and doctor listings
)

var errMergeDeadline = errors.New("merge deadline exceeded")

// Config holds the engine's configuration.
type Config struct {
	FFmpegPath    string        // explicit binary; empty = first usable candidate
	FFprobePath   string        // explicit binary; empty = first usable candidate
	Candidates    []string      // ffmpeg lookup order when FFmpegPath is empty
	ProbeNames    []string      // ffprobe lookup order when FFprobePath is empty
	MergeTimeout  time.Duration // hard limit for one merge process
	ThumbTimeout  time.Duration
	ProbeTimeout  time.Duration
	DoctorTimeout time.Duration
	WorkDirs      WorkDirs // directories whose free space the doctor reports
	Logger        *slog.Logger
}

// WorkDirs names the temp and output directories the doctor inspects.
type WorkDirs struct {
	Temp   string
	Output string
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		Candidates:    []string{"ffmpeg"},
		ProbeNames:    []string{"ffprobe"},
		MergeTimeout:  30 * time.Minute,
		ThumbTimeout:  2 * time.Minute,
		ProbeTimeout:  30 * time.Second,
		DoctorTimeout: 15 * time.Second,
		Logger:        logger,
	}
}

// FFmpeg is the production Engine backed by the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// New creates an FFmpeg engine. Binaries that cannot be located are left
// unresolved; the doctor reports them as missing and merges refuse to start.
func New(cfg Config) *FFmpeg {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.MergeTimeout <= 0 {
		cfg.MergeTimeout = 30 * time.Minute
	}
	if cfg.ThumbTimeout <= 0 {
		cfg.ThumbTimeout = 2 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.DoctorTimeout <= 0 {
		cfg.DoctorTimeout = 15 * time.Second
	}

	ffmpeg, err := resolveBinary(cfg.FFmpegPath, cfg.Candidates, "ffmpeg")
	if err != nil {
		cfg.Logger.Warn("ffmpeg not found", "error", err)
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, cfg.ProbeNames, "ffprobe")
	if err != nil {
		cfg.Logger.Warn("ffprobe not found", "error", err)
	}

	cfg.Logger.Info("media engine initialised",
		"ffmpeg", ffmpeg,
		"ffprobe", ffprobe,
		"merge_timeout", cfg.MergeTimeout.String(),
	)
	return &FFmpeg{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}
}

// Merge runs one ffmpeg process for req. A timer armed once the process has
// started kills it after MergeTimeout; progress lines are parsed from stdout
// while stderr is kept as a bounded tail for the error.
func (f *FFmpeg) Merge(ctx context.Context, req MergeRequest) error {
	if len(req.Inputs) == 0 {
		return &MergeError{Err: ErrNoInputs}
	}
	if f.ffmpeg == "" {
		return &MergeError{Err: ErrEngineUnavailable}
	}

	logger := logging.WithJobID(f.cfg.Logger, req.JobID)

	canvas := req.Canvas
	if canvas.IsZero() {
		canvas = f.canvasFor(ctx, req.Inputs[0].Path)
	}
	if canvas.FPS <= 0 {
		canvas.FPS = DefaultCanvas.FPS
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return &MergeError{Err: fmt.Errorf("create output dir: %w", err)}
	}

	args := BuildMergeArgs(req, canvas)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cmd := exec.CommandContext(runCtx, f.ffmpeg, args...)
	cmd.WaitDelay = 5 * time.Second

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &MergeError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	total := req.TotalDuration()
	logger.Info("merge starting",
		"inputs", len(req.Inputs),
		"total_duration", total,
		"canvas", fmt.Sprintf("%dx%d@%d", canvas.Width, canvas.Height, canvas.FPS),
		"output", filepath.Base(req.OutputPath),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &MergeError{Err: fmt.Errorf("start ffmpeg: %w", err)}
	}
	timer := time.AfterFunc(f.cfg.MergeTimeout, func() { cancel(errMergeDeadline) })

	parser := newProgressParser(total, func(pct int) {
		logger.Info("merge progress", "percent", pct)
		if req.OnProgress != nil {
			req.OnProgress(pct)
		}
	})
	parser.consume(stdout)

	waitErr := cmd.Wait()
	timer.Stop()
	elapsed := time.Since(start)

	if waitErr != nil {
		tail := stderrBuf.String()
		if errors.Is(context.Cause(runCtx), errMergeDeadline) {
			logger.Error("merge timed out", "timeout", f.cfg.MergeTimeout.String(), "stderr_tail", truncate(tail, 512))
			return &MergeTimeoutError{Timeout: f.cfg.MergeTimeout, StderrTail: tail}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("merge cancelled", "duration_ms", elapsed.Milliseconds())
			return &MergeError{ExitCode: exitCode(waitErr), StderrTail: tail, Err: ctxErr}
		}
		logger.Error("merge failed",
			"exit_code", exitCode(waitErr),
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(tail, 512),
		)
		return &MergeError{ExitCode: exitCode(waitErr), StderrTail: tail, Err: waitErr}
	}

	if info, err := os.Stat(req.OutputPath); err != nil || info.Size() == 0 {
		return &MergeError{StderrTail: stderrBuf.String(), Err: ErrEmptyOutput}
	}

	logger.Info("merge complete", "duration_ms", elapsed.Milliseconds())
	return nil
}

// GenerateThumbnail captures one frame of videoPath at the given offset.
func (f *FFmpeg) GenerateThumbnail(ctx context.Context, videoPath, outputPath string, at float64) error {
	if f.ffmpeg == "" {
		return ErrEngineUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ThumbTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}

	result := f.exec(ctx, f.ffmpeg, BuildThumbnailArgs(videoPath, outputPath, at)...)
	if !result.IsSuccess() {
		return fmt.Errorf("thumbnail exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("thumbnail not written: %s", filepath.Base(outputPath))
	}
	return nil
}

// Probe reads metadata for path with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if f.ffprobe == "" {
		return nil, fmt.Errorf("ffprobe: %w", ErrEngineUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	result := f.exec(ctx, f.ffprobe, BuildProbeArgs(path)...)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return parseProbeOutput([]byte(result.Stdout))
}

func (f *FFmpeg) canvasFor(ctx context.Context, path string) Canvas {
	probe, err := f.Probe(ctx, path)
	if err != nil || probe.Width <= 0 || probe.Height <= 0 {
		f.cfg.Logger.Debug("canvas probe failed, using default", "error", err)
		return DefaultCanvas
	}
	return Canvas{Width: probe.Width, Height: probe.Height, FPS: DefaultCanvas.FPS}
}

// exec runs a short-lived command with bounded stdout and stderr capture.
func (f *FFmpeg) exec(ctx context.Context, bin string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxStdoutBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	err := cmd.Run()
	elapsed := time.Since(start)

	code := 0
	if err != nil {
		code = exitCode(err)
		f.cfg.Logger.Debug("engine command failed",
			"bin", filepath.Base(bin),
			"exit_code", code,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	stderr := stderrBuf.String()
	if err != nil && stderr == "" {
		stderr = err.Error()
	}
	return RunResult{
		ExitCode:   code,
		Stdout:     stdoutBuf.String(),
		StderrTail: stderr,
		Duration:   elapsed,
	}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{}
	if out.Format.Duration != "" {
		res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.VideoCodec != "" {
				continue
			}
			res.VideoCodec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
		case "audio":
			if res.HasAudio {
				continue
			}
			res.HasAudio = true
			res.AudioCodec = s.CodecName
		}
	}
	if res.VideoCodec == "" {
		return res, errors.New("no video stream")
	}
	return res, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// resolveBinary finds a usable engine binary.
func resolveBinary(preferred string, candidates []string, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if len(candidates) == 0 {
		candidates = []string{name}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no %s binary found (tried %s)", name, strings.Join(candidates, ", "))
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
