package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/db"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/merge"
	"github.com/heimdex/clipmerge/internal/queue"
)

const testToken = "test-token-0123456789"

type mergeCall struct {
	ctx   context.Context
	clips []merge.ClipRequest
	owner merge.Owner
	opts  merge.JobOptions
}

type fakeMerger struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, clips []merge.ClipRequest, owner merge.Owner, opts merge.JobOptions) (*catalog.MergeResult, error)
	calls []mergeCall
}

func (f *fakeMerger) Run(ctx context.Context, clips []merge.ClipRequest, owner merge.Owner, opts merge.JobOptions) (*catalog.MergeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mergeCall{ctx: ctx, clips: clips, owner: owner, opts: opts})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, clips, owner, opts)
	}
	return &catalog.MergeResult{
		ID:           "result-1",
		JobID:        "job-1",
		OwnerUserID:  owner.UserID,
		StorageURL:   "https://storage.test/merged_job-1.mp4",
		ThumbnailURL: "https://storage.test/thumb_job-1.jpg",
		Duration:     13,
	}, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []queue.Request
	statuses map[string]*queue.JobStatus
	err      error
	pingErr  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, req queue.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, req)
	return "queued-1", nil
}

func (f *fakeQueue) Status(ctx context.Context, jobID string) (*queue.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[jobID], nil
}

func (f *fakeQueue) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakeStore struct {
	objects map[string]bool
	signErr error
}

func (f *fakeStore) Upload(ctx context.Context, path, key, contentType string) (string, error) {
	return "https://storage.test/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	return f.objects[key], nil
}

func (f *fakeStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://storage.test/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

type fakeCaps struct {
	caps *engine.Capabilities
}

func (f fakeCaps) Peek() *engine.Capabilities {
	return f.caps
}

type testEnv struct {
	repo    catalog.Repository
	catalog *catalog.Service
	merger  *fakeMerger
	queue   *fakeQueue
	store   *fakeStore
	cfg     ServerConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	logger := logging.Discard()
	repo := catalog.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		repo:    repo,
		catalog: catalog.NewService(repo, nil, logger),
		merger:  &fakeMerger{},
		queue:   &fakeQueue{statuses: map[string]*queue.JobStatus{}},
		store:   &fakeStore{objects: map[string]bool{}},
	}
	env.cfg = ServerConfig{
		Catalog:      env.catalog,
		Repository:   repo,
		Merger:       env.merger,
		Queue:        env.queue,
		Store:        env.store,
		Doctor:       fakeCaps{caps: &engine.Capabilities{HasFFmpeg: true, HasH264: true, HasAAC: true}},
		SignedURLTTL: 15 * time.Minute,
		Logger:       logger,
		StartTime:    time.Now().Add(-10 * time.Second),
		Version:      "test",
	}
	return env
}

// do sends an authenticated request as userID through the full router.
func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWithContext(t, context.Background(), method, path, userID, body)
}

func (e *testEnv) doWithContext(t *testing.T, ctx context.Context, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
		req.Header.Set(HeaderUserEmail, userID+"@example.com")
	}
	rr := httptest.NewRecorder()
	NewRouter(e.cfg).ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) addVideo(t *testing.T, owner string, duration float64) string {
	t.Helper()
	v, err := e.catalog.RegisterVideo(context.Background(), catalog.RegisterVideoInput{
		OwnerUserID: owner,
		Title:       "source",
		VideoURL:    "/app/uploads/videos/source.mp4",
		Duration:    duration,
	})
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}
	return v.ID
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	if got := decodeJSONBody(t, rr)["code"]; got != code {
		t.Errorf("code = %v, want %s", got, code)
	}
}

