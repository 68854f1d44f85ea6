package pathresolve

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolve_AbsoluteReferenceFirst(t *testing.T) {
	dir := t.TempDir()
	direct := filepath.Join(dir, "direct", "clip.mp4")
	writeFile(t, direct)

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "clip.mp4"))

	r := New([]string{base})
	got, err := r.Resolve(direct)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != direct {
		t.Errorf("Resolve() = %q, want %q", got, direct)
	}
}

func TestResolve_FirstBaseWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "clip.mp4"))
	writeFile(t, filepath.Join(second, "clip.mp4"))

	r := New([]string{first, second})
	for i := 0; i < 5; i++ {
		got, err := r.Resolve("/app/uploads/clip.mp4")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != filepath.Join(first, "clip.mp4") {
			t.Fatalf("Resolve() = %q, want file under first base", got)
		}
	}
}

func TestResolve_ParentSegmentCandidate(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "videos", "clip.mp4")
	writeFile(t, want)

	r := New([]string{base})
	got, err := r.Resolve("uploads/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_URLReference(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "clip.mp4")
	writeFile(t, want)

	r := New([]string{base})
	got, err := r.Resolve("https://cdn.example.com/uploads/clip.mp4?v=2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_BackslashReference(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "clip.mp4")
	writeFile(t, want)

	r := New([]string{base})
	got, err := r.Resolve(`C:\legacy\uploads\clip.mp4`)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_SkipsDirectories(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "clip.mp4"), 0755); err != nil {
		t.Fatal(err)
	}

	r := New([]string{base})
	if _, err := r.Resolve("clip.mp4"); err == nil {
		t.Fatal("Resolve() should not match a directory")
	}
}

func TestResolve_NotFoundListsCandidates(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	r := New([]string{a, b, a})
	_, err := r.Resolve("/old/host/videos/missing.mp4")

	var fre *FileResolutionError
	if !errors.As(err, &fre) {
		t.Fatalf("Resolve() error = %v, want *FileResolutionError", err)
	}
	want := []string{
		"/old/host/videos/missing.mp4",
		filepath.Join(a, "missing.mp4"),
		filepath.Join(a, "videos", "missing.mp4"),
		filepath.Join(b, "missing.mp4"),
		filepath.Join(b, "videos", "missing.mp4"),
	}
	if len(fre.Tried) != len(want) {
		t.Fatalf("Tried = %v, want %v", fre.Tried, want)
	}
	for i := range want {
		if fre.Tried[i] != want[i] {
			t.Errorf("Tried[%d] = %q, want %q", i, fre.Tried[i], want[i])
		}
	}
	if !strings.Contains(err.Error(), filepath.Join(b, "missing.mp4")) {
		t.Errorf("error message %q does not enumerate candidates", err.Error())
	}
}

func TestCandidates_Empty(t *testing.T) {
	r := New([]string{"", "  "})
	if got := r.Candidates("   "); len(got) != 0 {
		t.Errorf("Candidates() = %v, want none", got)
	}
	if len(r.BaseDirs()) != 0 {
		t.Errorf("BaseDirs() = %v, want blank entries dropped", r.BaseDirs())
	}
}
