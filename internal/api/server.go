package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/merge"
	"github.com/heimdex/clipmerge/internal/queue"
	"github.com/heimdex/clipmerge/internal/storage"
)

// MergeRunner runs a merge job to completion.
type MergeRunner interface {
	Run(ctx context.Context, clips []merge.ClipRequest, owner merge.Owner, opts merge.JobOptions) (*catalog.MergeResult, error)
}

// JobQueue accepts merge jobs for background processing.
type JobQueue interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
	Status(ctx context.Context, jobID string) (*queue.JobStatus, error)
	Ping(ctx context.Context) error
}

// CapabilityReporter exposes the last engine probe without re-running it.
type CapabilityReporter interface {
	Peek() *engine.Capabilities
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port         int
	Catalog      catalog.CatalogService
	Repository   catalog.Repository
	Merger       MergeRunner
	Queue        JobQueue // nil when queue mode is disabled
	Store        storage.ObjectStore
	Doctor       CapabilityReporter
	SignedURLTTL time.Duration
	Logger       *slog.Logger
	StartTime    time.Time
	Version      string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Synchronous merges hold the response open for the whole job.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
