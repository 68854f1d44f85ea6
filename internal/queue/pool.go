package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/merge"
)

const (
	DefaultPollTimeout = 5 * time.Second
	progressInterval   = time.Second
	popErrorBackoff    = time.Second
)

// Runner executes one merge job.
type Runner interface {
	Run(ctx context.Context, clips []merge.ClipRequest, owner merge.Owner, opts merge.JobOptions) (*catalog.MergeResult, error)
}

// Pool is a fixed set of workers draining the queue. Jobs are never retried:
// a failed job stays failed with its error recorded.
type Pool struct {
	queue       *Queue
	runner      Runner
	workers     int
	pollTimeout time.Duration
	logger      *slog.Logger

	wg     sync.WaitGroup
	active atomic.Int32
}

func NewPool(q *Queue, runner Runner, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = q.logger
	}
	return &Pool{
		queue:       q,
		runner:      runner,
		workers:     workers,
		pollTimeout: DefaultPollTimeout,
		logger:      logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled; cancelling
// also cancels any job a worker is running.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting queue workers", "workers", p.workers, "queue", p.queue.key)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Active is the number of jobs currently being processed.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}

		req, err := p.queue.pop(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var payloadErr *PayloadError
			if errors.As(err, &payloadErr) {
				logger.Error("dropping invalid queue entry", "error", err)
				continue
			}
			logger.Error("failed to pop from queue", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popErrorBackoff):
			}
			continue
		}
		if req == nil {
			continue
		}

		p.process(ctx, logger, req)
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, req *Request) {
	p.active.Add(1)
	defer p.active.Add(-1)

	logger = logging.ForJob(logger, req.JobID, req.Owner.UserID)
	logger.Info("received job", "clips", len(req.Clips))

	// Status writes outlive cancellation so a job interrupted by shutdown is
	// still recorded as failed.
	statusCtx := context.WithoutCancel(ctx)

	if err := p.queue.markStatus(statusCtx, req.JobID, StatusProcessing, 0, nil); err != nil {
		logger.Error("failed to mark job processing", "error", err)
	}

	progress := &progressRecorder{
		write: func(percent int64) {
			if err := p.queue.markStatus(statusCtx, req.JobID, StatusProcessing, percent, nil); err != nil {
				logger.Warn("failed to record progress", "error", err)
			}
		},
	}

	result, err := p.runner.Run(ctx, req.Clips, req.Owner, merge.JobOptions{
		JobID:       req.JobID,
		Title:       req.Title,
		Description: req.Description,
		OnProgress:  progress.record,
	})
	if err != nil {
		p.queue.markFailure(statusCtx, req.JobID, progress.current(), merge.Describe(err))
		logger.Error("job failed", "error", err)
		return
	}

	if err := p.queue.markStatus(statusCtx, req.JobID, StatusCompleted, 100, map[string]interface{}{
		"result_id":  result.ID,
		"error":      "",
		"error_code": "",
	}); err != nil {
		logger.Error("failed to mark job completed", "error", err)
	}
	logger.Info("job completed", "result_id", result.ID)
}

// progressRecorder writes progress to the status hash at most once per
// progressInterval, always writing 100.
type progressRecorder struct {
	mu        sync.Mutex
	last      int64
	lastWrite time.Time
	write     func(percent int64)
}

func (r *progressRecorder) record(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := int64(percent)
	if p == r.last || (p < 100 && time.Since(r.lastWrite) < progressInterval) {
		return
	}
	r.last = p
	r.lastWrite = time.Now()
	r.write(p)
}

func (r *progressRecorder) current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
