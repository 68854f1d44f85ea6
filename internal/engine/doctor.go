package engine

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/heimdex/clipmerge/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// RunDoctor probes the installed binaries and host resources.
func (f *FFmpeg) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{FFmpegPath: f.ffmpeg, ProbedAt: time.Now()}

	if f.ffmpeg != "" {
		if res := f.exec(ctx, f.ffmpeg, "-hide_banner", "-version"); res.IsSuccess() {
			caps.HasFFmpeg = true
			caps.FFmpegVersion = parseVersion(res.Stdout, "ffmpeg")
		}
	}
	if caps.HasFFmpeg {
		if res := f.exec(ctx, f.ffmpeg, "-hide_banner", "-encoders"); res.IsSuccess() {
			encoders := parseEncoders(res.Stdout)
			caps.HasH264 = encoders[videoCodec]
			caps.HasAAC = encoders[audioCodec]
		}
	}
	if f.ffprobe != "" {
		if res := f.exec(ctx, f.ffprobe, "-hide_banner", "-version"); res.IsSuccess() {
			caps.HasFFprobe = true
			caps.FFprobeVersion = parseVersion(res.Stdout, "ffprobe")
		}
	}

	caps.FreeTempBytes = freeBytes(ctx, f.cfg.WorkDirs.Temp)
	caps.FreeOutputBytes = freeBytes(ctx, f.cfg.WorkDirs.Output)
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		caps.CPUCount = n
	}

	f.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.HasFFmpeg,
		"ffmpeg_version", caps.FFmpegVersion,
		"ffprobe", caps.HasFFprobe,
		"h264", caps.HasH264,
		"aac", caps.HasAAC,
		"free_temp_bytes", caps.FreeTempBytes,
		"cpus", caps.CPUCount,
	)

	if !caps.HasFFmpeg {
		return caps, fmt.Errorf("ffmpeg: %w", ErrEngineUnavailable)
	}
	return caps, nil
}

// freeBytes reports free space on the filesystem holding dir, walking up to
// the nearest existing ancestor since workspace dirs are created lazily.
func freeBytes(ctx context.Context, dir string) uint64 {
	for dir != "" {
		if usage, err := disk.UsageWithContext(ctx, dir); err == nil {
			return usage.Free
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return 0
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out, name string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[0] == name && fields[1] == "version" {
		return fields[2]
	}
	return ""
}

// parseEncoders reads "ffmpeg -encoders" output. Entry lines look like
// " V....D libx264              libx264 H.264 ..."; the header ends at "------".
func parseEncoders(out string) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(out))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

// Prober runs a capability probe.
type Prober interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor caches probe results with a TTL so readiness checks on every
// job do not spawn processes.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around doctor probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logging.OrDiscard(logger),
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe. A failed probe returns the previous result
// when one exists.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		if caps != nil {
			d.cached = caps
		}
		return caps, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// Ready returns nil when merges can run, or an error wrapping
// ErrEngineUnavailable naming what is missing.
func (d *CachedDoctor) Ready(ctx context.Context) error {
	caps, err := d.current(ctx)
	if err == nil && caps.Ready() {
		return nil
	}
	if caps == nil || len(caps.Missing()) == 0 {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%w: missing %s", ErrEngineUnavailable, strings.Join(caps.Missing(), ", "))
}

// current returns the cached capabilities while fresh, otherwise runs the doctor again.
// Unlike Refresh, a failed run is returned as an error rather than
// answered from the stale cache; the stale entry stays for Peek.
func (d *CachedDoctor) current(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	caps, err := d.prober.RunDoctor(ctx)
	if caps != nil {
		d.cached = caps
	}
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
	}
	return caps, err
}
