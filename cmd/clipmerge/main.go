package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heimdex/clipmerge/internal/api"
	"github.com/heimdex/clipmerge/internal/catalog"
	"github.com/heimdex/clipmerge/internal/config"
	"github.com/heimdex/clipmerge/internal/db"
	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/merge"
	"github.com/heimdex/clipmerge/internal/pathresolve"
	"github.com/heimdex/clipmerge/internal/queue"
	"github.com/heimdex/clipmerge/internal/storage"
	"github.com/heimdex/clipmerge/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipmerge",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"production", cfg.Production(),
	)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	if applied, err := database.Applied(context.Background()); err == nil && len(applied) > 0 {
		logger.Info("database ready", "path", logging.SanitizePath(cfg.DBPath()), "schema", applied[len(applied)-1])
	}

	repo := catalog.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("api auth token ready", "token", logging.SanitizeToken(authToken))

	settings := cfg.Settings()

	ws, err := workspace.New(settings.ProjectRoot, logging.WithComponent(logger, "workspace"))
	if err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	resolver := pathresolve.New(settings.UploadsBaseDirs)
	logger.Info("upload directories", "candidates", len(resolver.BaseDirs()))

	engCfg := engine.DefaultConfig(logging.WithComponent(logger, "engine"))
	engCfg.FFmpegPath = settings.EnginePath
	engCfg.FFprobePath = settings.ProbePath
	engCfg.Candidates = config.EngineCandidates("ffmpeg", settings.Production)
	engCfg.ProbeNames = config.EngineCandidates("ffprobe", settings.Production)
	engCfg.MergeTimeout = cfg.MergeTimeout()
	engCfg.WorkDirs = engine.WorkDirs{
		Temp:   ws.SafeTempBase(settings.TempDir),
		Output: ws.SafeOutputDir(settings.OutputDir),
	}
	ffmpeg := engine.New(engCfg)

	doctor := engine.NewCachedDoctor(ffmpeg, logging.WithComponent(logger, "doctor"))
	probeDoctor(doctor, engCfg.DoctorTimeout, logger)

	store, err := newObjectStore(cfg.Storage(), logger)
	if err != nil {
		return err
	}

	catalogSvc := catalog.NewService(repo, resolver, logging.WithComponent(logger, "catalog"))

	finisher := merge.NewFinisher(ffmpeg, store, repo, logging.WithComponent(logger, "finisher"))
	merger := merge.NewService(merge.Config{
		TempDirOverride:   settings.TempDir,
		OutputDirOverride: settings.OutputDir,
		MaxConcurrent:     int64(cfg.MaxJobs()),
		Logger:            logging.WithComponent(logger, "merge"),
	}, ws, merge.NewClipResolver(repo, resolver, logger), ffmpeg, finisher, doctor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jobQueue api.JobQueue
	var pool *queue.Pool
	if cfg.QueueEnabled() {
		rc := cfg.Redis()
		redisClient, err := queue.NewRedisClient(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		q := queue.New(redisClient, rc.QueueKey, logging.WithComponent(logger, "queue"))
		pool = queue.NewPool(q, merger, cfg.QueueWorkers(), logging.WithComponent(logger, "worker"))
		pool.Start(ctx)
		jobQueue = q
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Catalog:      catalogSvc,
		Repository:   repo,
		Merger:       merger,
		Queue:        jobQueue,
		Store:        store,
		Doctor:       doctor,
		SignedURLTTL: cfg.SignedURLTTL(),
		Logger:       logging.WithComponent(logger, "api"),
		StartTime:    startTime,
		Version:      config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	cancel()
	if pool != nil {
		if n := pool.Active(); n > 0 {
			logger.Warn("interrupting in-flight queue jobs", "active", n)
		}
		pool.Wait()
	}

	logger.Info("shutdown complete")
	return nil
}

// probeDoctor runs the startup capability probe. A failed probe is logged;
// jobs are refused until a later probe succeeds.
func probeDoctor(doctor *engine.CachedDoctor, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	caps, err := doctor.Refresh(ctx)
	if err != nil {
		logger.Warn("initial engine probe failed", "error", err)
		return
	}
	if !caps.Ready() {
		logger.Warn("media engine not ready, merges will be refused", "missing", caps.Missing())
		return
	}
	logger.Info("media engine capabilities detected",
		"ffmpeg_version", caps.FFmpegVersion,
		"cpus", caps.CPUCount,
		"free_temp_mb", caps.FreeTempBytes>>20,
	)
}

func newObjectStore(sc config.StorageConfig, logger *slog.Logger) (*storage.MinioStore, error) {
	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		UseSSL:    sc.UseSSL,
		Region:    sc.Region,
		Bucket:    sc.Bucket,
		PublicURL: sc.PublicURL,
	}, logging.WithComponent(logger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", sc.Bucket, err)
	}
	return store, nil
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
