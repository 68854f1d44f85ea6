package merge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/workspace"
)

// Config holds orchestrator settings resolved at startup.
type Config struct {
	TempDirOverride   string
	OutputDirOverride string
	MaxConcurrent     int64 // engine processes allowed at once
	Logger            *slog.Logger
}

// Service is the job orchestrator and the only entry point for running a
// merge.
type Service struct {
	cfg       Config
	workspace Workspace
	resolver  *ClipResolver
	engine    MediaEngine
	finisher  *Finisher
	ready     Readiness
	slots     *semaphore.Weighted
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. ready may be nil to skip the engine
// capability check.
func NewService(cfg Config, ws Workspace, resolver *ClipResolver, eng MediaEngine, finisher *Finisher, ready Readiness) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Service{
		cfg:       cfg,
		workspace: ws,
		resolver:  resolver,
		engine:    eng,
		finisher:  finisher,
		ready:     ready,
		slots:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logging.OrDiscard(cfg.Logger),
		now:       time.Now,
	}
}

// Run executes one merge job: provision directories, resolve clips, merge,
// finish. The first failing stage stops the job and is returned as a
// *JobError carrying the job id. No result is persisted for a failed job and
// no stage is retried.
func (s *Service) Run(ctx context.Context, clips []ClipRequest, owner Owner, opts JobOptions) (*catalog.MergeResult, error) {
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	logger := logging.ForJob(s.logger, jobID, owner.UserID)
	fail := func(stage Stage, err error) (*catalog.MergeResult, error) {
		logger.Error("merge job failed", logging.KeyStage, string(stage), "error", err)
		return nil, &JobError{JobID: jobID, Stage: stage, Err: err}
	}

	job := &Job{
		ID:          jobID,
		StartedAt:   s.now(),
		Owner:       owner,
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
	}
	if job.Title == "" {
		job.Title = defaultTitle(len(clips))
	}
	logger.Info("merge job started", "clips", len(clips))

	if s.ready != nil {
		if err := s.ready.Ready(ctx); err != nil {
			return fail(StagePrecheck, err)
		}
	}

	// Registered before provisioning so a temp dir created by a partly
	// failed provision is still removed. outputPath stays empty until the
	// output dir exists.
	var outputPath string
	defer func() {
		if err := s.finisher.Cleanup(job, outputPath); err != nil {
			logger.Warn("cleanup incomplete", "error", err)
		}
	}()

	if err := s.provision(job); err != nil {
		return fail(StageProvision, err)
	}
	outputPath = job.OutputPath()

	resolved, total, err := s.resolver.Resolve(ctx, clips)
	if err != nil {
		return fail(StageResolve, err)
	}
	job.Clips = resolved
	job.TotalDuration = total

	if err := s.merge(ctx, logger, job, outputPath, opts.OnProgress); err != nil {
		return fail(StageMerge, err)
	}

	result, err := s.finisher.Finish(ctx, job, outputPath)
	if err != nil {
		return fail(StageFinish, err)
	}

	logger.Info("merge job completed", "result_id", result.ID, "duration", result.Duration)
	return result, nil
}

func (s *Service) provision(job *Job) error {
	tempDir, err := s.workspace.SafeTempDir(s.cfg.TempDirOverride, job.ID)
	if err != nil {
		return err
	}
	outputDir := s.workspace.SafeOutputDir(s.cfg.OutputDirOverride)

	job.TempDir = s.workspace.Anchor(tempDir)
	job.OutputDir = s.workspace.Anchor(outputDir)

	for _, dir := range []string{job.TempDir, job.OutputDir} {
		if !s.workspace.EnsureExists(dir) {
			return &workspace.ConfigurationError{Path: dir, Reason: "directory could not be created"}
		}
	}
	return nil
}

// merge holds an engine slot for the duration of the engine process.
func (s *Service) merge(ctx context.Context, logger *slog.Logger, job *Job, outputPath string, onProgress engine.ProgressFunc) error {
	waitStart := s.now()
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.slots.Release(1)
	if waited := s.now().Sub(waitStart); waited > time.Second {
		logger.Info("engine slot acquired", "waited_ms", waited.Milliseconds())
	}

	inputs := make([]engine.Input, len(job.Clips))
	for i, c := range job.Clips {
		inputs[i] = engine.Input{Path: c.AbsolutePath, Start: c.StartTime, Duration: c.Duration}
	}

	return s.engine.Merge(ctx, engine.MergeRequest{
		JobID:      job.ID,
		Inputs:     inputs,
		OutputPath: outputPath,
		OnProgress: onProgress,
	})
}
