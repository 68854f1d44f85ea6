package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/pathresolve"
	"github.com/heimdex/clipmerge/internal/workspace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVideos struct {
	videos map[string]*catalog.SourceVideo
	delay  map[string]time.Duration
	err    error
	calls  atomic.Int32
}

func (f *fakeVideos) GetVideo(ctx context.Context, id string) (*catalog.SourceVideo, error) {
	f.calls.Add(1)
	if d := f.delay[id]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.videos[id], nil
}

type fakeEngine struct {
	mergeFn func(ctx context.Context, req engine.MergeRequest) error
	thumbFn func(ctx context.Context, videoPath, outputPath string, at float64) error

	mu       sync.Mutex
	requests []engine.MergeRequest
	thumbAt  []float64

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *fakeEngine) Merge(ctx context.Context, req engine.MergeRequest) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.maxRunning.Load()
		if n <= peak || f.maxRunning.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.mergeFn != nil {
		if err := f.mergeFn(ctx, req); err != nil {
			return err
		}
	}
	if req.OnProgress != nil {
		req.OnProgress(100)
	}
	return os.WriteFile(req.OutputPath, []byte("merged"), 0644)
}

func (f *fakeEngine) GenerateThumbnail(ctx context.Context, videoPath, outputPath string, at float64) error {
	f.mu.Lock()
	f.thumbAt = append(f.thumbAt, at)
	f.mu.Unlock()
	if f.thumbFn != nil {
		return f.thumbFn(ctx, videoPath, outputPath, at)
	}
	return os.WriteFile(outputPath, []byte("jpg"), 0644)
}

func (f *fakeEngine) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeStore struct {
	mu      sync.Mutex
	fail    map[string]error // keyed by content type
	uploads map[string]string
	deletes []string
}

func (f *fakeStore) Upload(ctx context.Context, path, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[contentType]; err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[key] = contentType
	return "https://storage.test/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	delete(f.uploads, key)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.uploads[key]
	return ok, nil
}

func (f *fakeStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.test/" + key + "?signed", nil
}

func (f *fakeStore) countByType(contentType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ct := range f.uploads {
		if ct == contentType {
			n++
		}
	}
	return n
}

type fakeResults struct {
	mu      sync.Mutex
	err     error
	created []*catalog.MergeResult
}

func (f *fakeResults) CreateResult(ctx context.Context, r *catalog.MergeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, r)
	return nil
}

type fakeReady struct {
	err error
}

func (f fakeReady) Ready(ctx context.Context) error {
	return f.err
}

type harness struct {
	root     string
	uploads  string
	videos   *fakeVideos
	engine   *fakeEngine
	store    *fakeStore
	results  *fakeResults
	finisher *Finisher
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		root:    t.TempDir(),
		uploads: t.TempDir(),
		videos:  &fakeVideos{videos: map[string]*catalog.SourceVideo{}, delay: map[string]time.Duration{}},
		engine:  &fakeEngine{},
		store:   &fakeStore{},
		results: &fakeResults{},
	}
	h.build(t, Config{MaxConcurrent: 2}, nil)
	return h
}

func (h *harness) build(t *testing.T, cfg Config, ready Readiness) {
	t.Helper()
	ws, err := workspace.New(h.root, discardLogger())
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}
	cfg.Logger = discardLogger()
	resolver := NewClipResolver(h.videos, pathresolve.New([]string{h.uploads}), discardLogger())
	h.finisher = NewFinisher(h.engine, h.store, h.results, discardLogger())
	h.svc = NewService(cfg, ws, resolver, h.engine, h.finisher, ready)
}

// addVideo registers a source video whose file exists under the uploads dir.
func (h *harness) addVideo(t *testing.T, id, thumbnail string) {
	t.Helper()
	name := id + ".mp4"
	if err := os.WriteFile(filepath.Join(h.uploads, name), []byte("source-"+id), 0644); err != nil {
		t.Fatal(err)
	}
	h.videos.videos[id] = &catalog.SourceVideo{
		ID:           id,
		OwnerUserID:  "owner-1",
		Title:        "Video " + id,
		VideoURL:     "/app/uploads/videos/" + name,
		ThumbnailURL: thumbnail,
		Duration:     30,
	}
}

func (h *harness) tempEntries(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(h.root, "tmp"))
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func (h *harness) outputEntries(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(h.root, "output"))
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

var testOwner = Owner{UserID: "owner-1", Email: "owner@example.com", Name: "Owner"}
