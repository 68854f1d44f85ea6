package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/pathresolve"
)

func TestClipResolver_TitleFallback(t *testing.T) {
	h := newHarness(t)
	h.addVideo(t, "A", "https://thumbs/A.jpg")
	r := NewClipResolver(h.videos, pathresolve.New([]string{h.uploads}), nil)

	clips, total, err := r.Resolve(context.Background(), []ClipRequest{
		{VideoID: "A", StartTime: 2, EndTime: 4},
		{VideoID: "A", StartTime: 10, EndTime: 11, Title: "Punchline"},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %v, want 3", total)
	}
	if clips[0].Title != "Video A" || clips[1].Title != "Punchline" {
		t.Errorf("titles = %q, %q", clips[0].Title, clips[1].Title)
	}
	if clips[0].OriginalVideoTitle != "Video A" || clips[0].Thumbnail != "https://thumbs/A.jpg" {
		t.Errorf("clip metadata = %+v", clips[0])
	}
	if clips[0].AbsolutePath != filepath.Join(h.uploads, "A.mp4") {
		t.Errorf("AbsolutePath = %q", clips[0].AbsolutePath)
	}
}

func TestClipResolver_EmptyFile(t *testing.T) {
	h := newHarness(t)
	h.addVideo(t, "A", "")
	if err := os.Truncate(filepath.Join(h.uploads, "A.mp4"), 0); err != nil {
		t.Fatal(err)
	}
	r := NewClipResolver(h.videos, pathresolve.New([]string{h.uploads}), nil)

	_, _, err := r.Resolve(context.Background(), []ClipRequest{{VideoID: "A", EndTime: 1}})

	var missing *SourceFileMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Resolve() error = %v, want *SourceFileMissingError", err)
	}
}

func TestClipResolver_LookupError(t *testing.T) {
	h := newHarness(t)
	h.videos.err = errors.New("database is locked")
	r := NewClipResolver(h.videos, pathresolve.New([]string{h.uploads}), nil)

	_, _, err := r.Resolve(context.Background(), []ClipRequest{{VideoID: "A", EndTime: 1}})
	if err == nil {
		t.Fatal("Resolve() error = nil")
	}
	var notFound *ClipNotFoundError
	if errors.As(err, &notFound) {
		t.Error("lookup failure reported as not found")
	}
}

func TestClipResolver_CancelledContext(t *testing.T) {
	h := newHarness(t)
	h.addVideo(t, "A", "")
	r := NewClipResolver(h.videos, pathresolve.New([]string{h.uploads}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Resolve(ctx, []ClipRequest{{VideoID: "A", EndTime: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

// gatedVideos blocks every lookup until release is closed.
type gatedVideos struct {
	inner   VideoStore
	arrived chan string
	release chan struct{}
}

func (g *gatedVideos) GetVideo(ctx context.Context, id string) (*catalog.SourceVideo, error) {
	g.arrived <- id
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.GetVideo(ctx, id)
}

func TestClipResolver_AllLookupsStartTogether(t *testing.T) {
	h := newHarness(t)
	const n = 20
	reqs := make([]ClipRequest, n)
	for i := range reqs {
		id := fmt.Sprintf("V%02d", i)
		h.addVideo(t, id, "")
		reqs[i] = ClipRequest{VideoID: id, EndTime: 1}
	}
	videos := &gatedVideos{inner: h.videos, arrived: make(chan string, n), release: make(chan struct{})}
	r := NewClipResolver(videos, pathresolve.New([]string{h.uploads}), nil)

	done := make(chan error, 1)
	go func() {
		_, _, err := r.Resolve(context.Background(), reqs)
		done <- err
	}()

	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-videos.arrived:
		case <-timeout:
			close(videos.release)
			t.Fatalf("only %d of %d lookups started while the others were blocked", i, n)
		}
	}
	close(videos.release)

	if err := <-done; err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}
