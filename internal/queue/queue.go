// Package queue runs merge jobs out of a Redis list. Enqueue stores the
// request and a status hash; a Pool of workers pops requests and hands them
// to the merge orchestrator, recording progress and the outcome in the hash.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/merge"
)

// Status is the lifecycle state recorded in a job's status hash.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// statusTTL bounds how long finished job hashes stay readable.
const statusTTL = 7 * 24 * time.Hour

// maxErrorLen caps the error text stored in a status hash.
const maxErrorLen = 1024

// CodeQueueUnavailable marks a job whose payload never reached the queue.
const CodeQueueUnavailable = "QUEUE_UNAVAILABLE"

// Client is the subset of *redis.Client the queue uses.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Request is the payload pushed onto the queue.
type Request struct {
	JobID       string              `json:"job_id"`
	Owner       merge.Owner         `json:"owner"`
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Clips       []merge.ClipRequest `json:"clips"`
	EnqueuedAt  time.Time           `json:"enqueued_at"`
}

// JobStatus is the decoded status hash of one job.
type JobStatus struct {
	ID          string    `json:"job_id"`
	OwnerUserID string    `json:"-"`
	Status      Status    `json:"status"`
	Progress    int64     `json:"progress"`
	ResultID    string    `json:"result_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Queue enqueues merge requests and tracks their status.
type Queue struct {
	client Client
	key    string
	logger *slog.Logger
	now    func() time.Time
}

func New(client Client, key string, logger *slog.Logger) *Queue {
	return &Queue{client: client, key: key, logger: logging.OrDiscard(logger), now: time.Now}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Ping reports whether Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue assigns the job id when req has none, records the job as queued
// and pushes it. The returned id is the one the orchestrator will use.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	if len(req.Clips) == 0 {
		return "", errors.New("request has no clips")
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	req.EnqueuedAt = q.now().UTC()

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	if err := q.markStatus(ctx, req.JobID, StatusQueued, 0, map[string]interface{}{
		"owner_user_id": req.Owner.UserID,
		"created_at":    req.EnqueuedAt.Format(time.RFC3339Nano),
		"error":         "",
		"error_code":    "",
		"result_id":     "",
	}); err != nil {
		return "", fmt.Errorf("record job status: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		q.markFailure(ctx, req.JobID, 0, merge.Failure{Code: CodeQueueUnavailable, Message: "job could not be queued"})
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	logging.ForJob(q.logger, req.JobID, req.Owner.UserID).Info("merge job queued", "clips", len(req.Clips))
	return req.JobID, nil
}

// Status returns the job's status hash, or nil, nil if it is unknown or
// expired.
func (q *Queue) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	st := &JobStatus{
		ID:          jobID,
		OwnerUserID: fields["owner_user_id"],
		Status:      Status(fields["status"]),
		ResultID:    fields["result_id"],
		Error:       fields["error"],
		ErrorCode:   fields["error_code"],
	}
	st.Progress, _ = strconv.ParseInt(fields["progress"], 10, 64)
	st.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return st, nil
}

// pop blocks up to timeout for the next request. It returns nil, nil when
// the wait times out.
func (q *Queue) pop(ctx context.Context, timeout time.Duration) (*Request, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	var req Request
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return nil, &PayloadError{Payload: res[1], Err: err}
	}
	return &req, nil
}

func (q *Queue) markStatus(ctx context.Context, jobID string, status Status, progress int64, extra map[string]interface{}) error {
	fields := map[string]interface{}{
		"status":     string(status),
		"progress":   progress,
		"updated_at": q.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		fields[k] = v
	}
	key := jobKey(jobID)
	if err := q.client.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	return q.client.Expire(ctx, key, statusTTL).Err()
}

// markFailure records the caller-facing description of a failure. The full
// cause is logged by the caller, not stored.
func (q *Queue) markFailure(ctx context.Context, jobID string, progress int64, f merge.Failure) {
	msg := f.Message
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if err := q.markStatus(ctx, jobID, StatusFailed, progress, map[string]interface{}{
		"error":      msg,
		"error_code": f.Code,
	}); err != nil {
		logging.WithJobID(q.logger, jobID).Error("failed to mark job failure", "error", err)
	}
}

// PayloadError is returned for a queue entry that is not a valid Request.
type PayloadError struct {
	Payload string
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid job payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}
