package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/queue"
)

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	NewRouter(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if up, _ := body["uptime_s"].(float64); up < 10 {
		t.Errorf("uptime_s = %v, want >= 10", body["uptime_s"])
	}
}

func TestStatus_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	NewRouter(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	assertError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestStatus_Ready(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/status", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["state"] != "ready" {
		t.Errorf("state = %v, want ready", body["state"])
	}
	q, _ := body["queue"].(map[string]interface{})
	if q["enabled"] != true || q["reachable"] != true {
		t.Errorf("queue = %v", q)
	}
}

func TestStatus_DegradedWithoutEngine(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Doctor = fakeCaps{caps: &engine.Capabilities{HasFFmpeg: true, HasAAC: true}}

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", "", nil))

	if body["state"] != "degraded" {
		t.Errorf("state = %v, want degraded", body["state"])
	}
	missing, _ := body["missing"].([]interface{})
	if len(missing) != 1 || missing[0] != "libx264" {
		t.Errorf("missing = %v, want [libx264]", body["missing"])
	}
}

func TestStatus_QueueUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.queue.pingErr = errors.New("dial tcp: connection refused")

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", "", nil))

	if body["state"] != "degraded" {
		t.Errorf("state = %v, want degraded", body["state"])
	}
	q, _ := body["queue"].(map[string]interface{})
	if q["reachable"] != false || q["error"] == nil {
		t.Errorf("queue = %v", q)
	}
}

func TestVideos_RegisterAndList(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/videos", "user-1", RegisterVideoRequest{
		Title:    "Keynote",
		VideoURL: "/uploads/videos/keynote.mp4",
		Duration: 42,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}

	env.addVideo(t, "user-2", 10)

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/videos", "user-1", nil))
	videos, _ := body["videos"].([]interface{})
	if len(videos) != 1 {
		t.Fatalf("videos = %d, want 1 (owner scoped)", len(videos))
	}
	if v := videos[0].(map[string]interface{}); v["title"] != "Keynote" {
		t.Errorf("video = %v", v)
	}
}

func TestVideos_RegisterInvalid(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/videos", "user-1", RegisterVideoRequest{VideoURL: "notes.txt", Duration: 1})

	assertError(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}

func TestVideos_RequireIdentity(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/videos", "", nil)

	assertError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestJobs_OwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.queue.statuses["job-9"] = &queue.JobStatus{
		ID:          "job-9",
		OwnerUserID: "user-1",
		Status:      queue.StatusProcessing,
		Progress:    40,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	rr := env.do(t, http.MethodGet, "/jobs/job-9", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "processing" || body["progress"] != float64(40) {
		t.Errorf("body = %v", body)
	}

	assertError(t, env.do(t, http.MethodGet, "/jobs/job-9", "user-2", nil), http.StatusNotFound, "NOT_FOUND")
	assertError(t, env.do(t, http.MethodGet, "/jobs/unknown", "user-1", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestJobs_QueueDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Queue = nil

	assertError(t, env.do(t, http.MethodGet, "/jobs/job-9", "user-1", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestJobs_FallsBackToPersistedResult(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Queue = nil
	res := env.addResult(t, "user-1", "r-sync")

	rr := env.do(t, http.MethodGet, "/jobs/"+res.JobID, "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "completed" || body["result_id"] != "r-sync" || body["progress"] != float64(100) {
		t.Errorf("body = %v", body)
	}

	assertError(t, env.do(t, http.MethodGet, "/jobs/"+res.JobID, "user-2", nil), http.StatusNotFound, "NOT_FOUND")
}
