package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/clipmerge/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

type fakeLocator struct {
	err   error
	calls []string
}

func (f *fakeLocator) Resolve(ref string) (string, error) {
	f.calls = append(f.calls, ref)
	if f.err != nil {
		return "", f.err
	}
	return "/resolved/" + filepath.Base(ref), nil
}

func TestService_RegisterVideo(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	locator := &fakeLocator{}
	svc := NewService(repo, locator, nil)

	video, err := svc.RegisterVideo(context.Background(), RegisterVideoInput{
		OwnerUserID: "user-1",
		Title:       "  Keynote  ",
		VideoURL:    "/uploads/videos/keynote.mp4",
		Duration:    30,
	})
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}

	if video.ID == "" {
		t.Error("video.ID is empty")
	}
	if video.Title != "Keynote" {
		t.Errorf("video.Title = %q, want Keynote", video.Title)
	}
	if len(locator.calls) != 1 {
		t.Errorf("locator called %d times, want 1", len(locator.calls))
	}

	got, err := svc.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo() error = %v", err)
	}
	if got == nil || got.VideoURL != "/uploads/videos/keynote.mp4" {
		t.Errorf("GetVideo() = %+v, want stored reference", got)
	}
}

func TestService_RegisterVideo_Invalid(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)

	tests := []struct {
		name string
		in   RegisterVideoInput
	}{
		{"missing owner", RegisterVideoInput{VideoURL: "a.mp4", Duration: 1}},
		{"missing url", RegisterVideoInput{OwnerUserID: "u", Duration: 1}},
		{"not a video", RegisterVideoInput{OwnerUserID: "u", VideoURL: "notes.txt", Duration: 1}},
		{"zero duration", RegisterVideoInput{OwnerUserID: "u", VideoURL: "a.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterVideo(context.Background(), tt.in)
			if !errors.Is(err, ErrInvalidVideo) {
				t.Errorf("RegisterVideo() error = %v, want ErrInvalidVideo", err)
			}
		})
	}
}

func TestService_RegisterVideo_Unresolvable(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, &fakeLocator{err: errors.New("no candidate exists")}, nil)

	_, err := svc.RegisterVideo(context.Background(), RegisterVideoInput{
		OwnerUserID: "u", VideoURL: "ghost.mp4", Duration: 5,
	})
	if !errors.Is(err, ErrInvalidVideo) {
		t.Fatalf("RegisterVideo() error = %v, want ErrInvalidVideo", err)
	}

	videos, _ := svc.ListVideos(context.Background(), "u")
	if len(videos) != 0 {
		t.Errorf("ListVideos() = %d videos, want 0", len(videos))
	}
}

func TestRepository_ResultRoundTrip(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	mergeDate := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &MergeResult{
		ID:           NewID(),
		OwnerUserID:  "user-1",
		JobID:        "job-1",
		Title:        "Highlights",
		Duration:     13,
		StorageKey:   "merged-videos/user-1/merged_job-1.mp4",
		StorageURL:   "http://storage/merged_job-1.mp4",
		ThumbnailURL: "",
		OwnerEmail:   "a@example.com",
		SourceClips: []SourceClip{
			{VideoID: "A", StartTime: 10, EndTime: 15, Duration: 5},
			{VideoID: "B", StartTime: 0, EndTime: 8, Duration: 8, OutputOffset: 5},
		},
		Stats:     MergeStats{TotalClips: 2, TotalDuration: 13, ProcessingTimeMs: 4200, MergeDate: mergeDate},
		CreatedAt: mergeDate,
	}
	if err := repo.CreateResult(ctx, in); err != nil {
		t.Fatalf("CreateResult() error = %v", err)
	}

	got, err := repo.GetResult(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetResult() = nil")
	}
	if len(got.SourceClips) != 2 || got.SourceClips[1].VideoID != "B" || got.SourceClips[1].OutputOffset != 5 {
		t.Errorf("SourceClips = %+v, want order A,B with offsets", got.SourceClips)
	}
	if got.Stats.ProcessingTimeMs != 4200 || !got.Stats.MergeDate.Equal(mergeDate) {
		t.Errorf("Stats = %+v", got.Stats)
	}
	if got.OwnerEmail != "a@example.com" || got.OwnerName != "" {
		t.Errorf("owner fields = %q/%q", got.OwnerEmail, got.OwnerName)
	}

	byJob, err := repo.GetResultByJobID(ctx, "job-1")
	if err != nil || byJob == nil || byJob.ID != in.ID {
		t.Errorf("GetResultByJobID() = %v, %v", byJob, err)
	}

	list, err := repo.ListResultsByOwner(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListResultsByOwner() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListResultsByOwner() = %d results, want 1", len(list))
	}
}

func TestRepository_MissingRecords(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	v, err := repo.GetVideo(ctx, "nope")
	if err != nil || v != nil {
		t.Errorf("GetVideo() = %v, %v, want nil, nil", v, err)
	}
	m, err := repo.GetResult(ctx, "nope")
	if err != nil || m != nil {
		t.Errorf("GetResult() = %v, %v, want nil, nil", m, err)
	}
}

func TestRepository_Config(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	if err := repo.SetConfig(ctx, "auth_token", "first"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "second"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	v, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || v != "second" {
		t.Errorf("GetConfig() = %q, %v, want second", v, err)
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"clip.mp4", true},
		{"CLIP.MOV", true},
		{"clip.mkv", true},
		{"clip.webm", true},
		{"clip.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.name); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
