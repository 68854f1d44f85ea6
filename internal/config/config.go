// Package config provides configuration management for the clip merge service.
// Configuration is loaded from environment variables once at startup; components
// receive the resolved Settings instead of reading the environment themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipmerge"
	DefaultEnv      = "development"

	// Environment variable names
	EnvPort        = "CLIPMERGE_PORT"
	EnvLogLevel    = "CLIPMERGE_LOG_LEVEL"
	EnvDataDir     = "CLIPMERGE_DATA_DIR"
	EnvMode        = "CLIPMERGE_ENV"
	EnvProjectRoot = "CLIPMERGE_PROJECT_ROOT"

	// Workspace and engine overrides
	EnvUploadsDir  = "CLIPMERGE_UPLOADS_DIR"
	EnvTempDir     = "CLIPMERGE_TEMP_DIR"
	EnvOutputDir   = "CLIPMERGE_OUTPUT_DIR"
	EnvFFmpegPath  = "CLIPMERGE_FFMPEG_PATH"
	EnvFFprobePath = "CLIPMERGE_FFPROBE_PATH"

	// Job control
	EnvMergeTimeout  = "CLIPMERGE_MERGE_TIMEOUT"
	EnvMaxJobs       = "CLIPMERGE_MAX_JOBS"
	EnvQueueEnabled  = "CLIPMERGE_QUEUE_ENABLED"
	EnvQueueWorkers  = "CLIPMERGE_QUEUE_WORKERS"
	EnvSignedURLTTL  = "CLIPMERGE_SIGNED_URL_TTL"
	EnvStoragePublic = "CLIPMERGE_STORAGE_PUBLIC_URL"

	// Object storage
	EnvMinioEndpoint  = "MINIO_ENDPOINT"
	EnvMinioAccessKey = "MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "MINIO_SECRET_KEY"
	EnvMinioUseSSL    = "MINIO_USE_SSL"
	EnvMinioRegion    = "MINIO_REGION"
	EnvMinioBucket    = "MINIO_BUCKET"

	// Queue
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvRedisQueueKey = "REDIS_QUEUE_KEY"

	// Database filename
	DBFilename = "clipmerge.db"

	DefaultMergeTimeout  = 30 * time.Minute
	DefaultMaxJobs       = 2
	DefaultQueueWorkers  = 2
	DefaultSignedURLTTL  = time.Hour
	DefaultDoctorTimeout = 15 * time.Second
	DefaultThumbTimeout  = 2 * time.Minute

	DefaultMinioEndpoint = "localhost:9000"
	DefaultMinioBucket   = "clipmerge"
	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisQueueKey = "clipmerge:jobs:queue"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Production() bool
	MergeTimeout() time.Duration
	MaxJobs() int
	QueueEnabled() bool
	QueueWorkers() int
	SignedURLTTL() time.Duration
	Storage() StorageConfig
	Redis() RedisConfig
	Settings() Settings
}

// StorageConfig holds the MinIO / S3 connection parameters.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	PublicURL string
}

// RedisConfig holds the job queue connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QueueKey string
}

// Settings is the environment-derived state the pipeline components consume.
// It is resolved once in New and handed to each component explicitly.
type Settings struct {
	EnginePath      string
	ProbePath       string
	UploadsBaseDirs []string
	TempDir         string // raw override, vetted by the workspace provisioner
	OutputDir       string // raw override, vetted by the workspace provisioner
	ProjectRoot     string
	Production      bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	mode         string
	mergeTimeout time.Duration
	maxJobs      int
	queueEnabled bool
	queueWorkers int
	signedURLTTL time.Duration

	storage  StorageConfig
	redis    RedisConfig
	settings Settings
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		mode:         DefaultEnv,
		mergeTimeout: DefaultMergeTimeout,
		maxJobs:      DefaultMaxJobs,
		queueWorkers: DefaultQueueWorkers,
		signedURLTTL: DefaultSignedURLTTL,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if m := strings.ToLower(strings.TrimSpace(os.Getenv(EnvMode))); m != "" {
		if m != "production" && m != "development" {
			return nil, fmt.Errorf("invalid %s: must be production or development", EnvMode)
		}
		cfg.mode = m
	}

	var err error
	if cfg.mergeTimeout, err = durationEnv(EnvMergeTimeout, cfg.mergeTimeout); err != nil {
		return nil, err
	}
	if cfg.signedURLTTL, err = durationEnv(EnvSignedURLTTL, cfg.signedURLTTL); err != nil {
		return nil, err
	}
	if cfg.maxJobs, err = positiveIntEnv(EnvMaxJobs, cfg.maxJobs); err != nil {
		return nil, err
	}
	if cfg.queueWorkers, err = positiveIntEnv(EnvQueueWorkers, cfg.queueWorkers); err != nil {
		return nil, err
	}
	cfg.queueEnabled = strings.EqualFold(os.Getenv(EnvQueueEnabled), "true")

	cfg.storage = StorageConfig{
		Endpoint:  valueOrDefault(os.Getenv(EnvMinioEndpoint), DefaultMinioEndpoint),
		AccessKey: os.Getenv(EnvMinioAccessKey),
		SecretKey: os.Getenv(EnvMinioSecretKey),
		UseSSL:    strings.EqualFold(os.Getenv(EnvMinioUseSSL), "true"),
		Region:    os.Getenv(EnvMinioRegion),
		Bucket:    valueOrDefault(os.Getenv(EnvMinioBucket), DefaultMinioBucket),
		PublicURL: strings.TrimRight(os.Getenv(EnvStoragePublic), "/"),
	}

	redisDB := 0
	if v := os.Getenv(EnvRedisDB); v != "" {
		redisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRedisDB, err)
		}
	}
	cfg.redis = RedisConfig{
		Addr:     valueOrDefault(os.Getenv(EnvRedisAddr), DefaultRedisAddr),
		Password: os.Getenv(EnvRedisPassword),
		DB:       redisDB,
		QueueKey: valueOrDefault(os.Getenv(EnvRedisQueueKey), DefaultRedisQueueKey),
	}

	cfg.settings = cfg.resolveSettings()
	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Production reports whether CLIPMERGE_ENV selects production defaults.
func (c *EnvConfig) Production() bool {
	return c.mode == "production"
}

func (c *EnvConfig) MergeTimeout() time.Duration {
	return c.mergeTimeout
}

func (c *EnvConfig) MaxJobs() int {
	return c.maxJobs
}

func (c *EnvConfig) QueueEnabled() bool {
	return c.queueEnabled
}

func (c *EnvConfig) QueueWorkers() int {
	return c.queueWorkers
}

func (c *EnvConfig) SignedURLTTL() time.Duration {
	return c.signedURLTTL
}

func (c *EnvConfig) Storage() StorageConfig {
	return c.storage
}

func (c *EnvConfig) Redis() RedisConfig {
	return c.redis
}

// Settings returns the resolved pipeline settings.
func (c *EnvConfig) Settings() Settings {
	s := c.settings
	s.UploadsBaseDirs = append([]string(nil), c.settings.UploadsBaseDirs...)
	return s
}

func (c *EnvConfig) resolveSettings() Settings {
	root := os.Getenv(EnvProjectRoot)
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = "."
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	production := c.Production()
	return Settings{
		EnginePath:      os.Getenv(EnvFFmpegPath),
		ProbePath:       os.Getenv(EnvFFprobePath),
		UploadsBaseDirs: UploadsBaseDirs(os.Getenv(EnvUploadsDir), production, root, exeDir),
		TempDir:         os.Getenv(EnvTempDir),
		OutputDir:       os.Getenv(EnvOutputDir),
		ProjectRoot:     root,
		Production:      production,
	}
}

// UploadsBaseDirs returns the ordered candidate directories stored video
// references are probed against. Order is significant: the resolver returns
// the first existing match.
func UploadsBaseDirs(override string, production bool, cwd, exeDir string) []string {
	var dirs []string
	if override != "" {
		dirs = append(dirs, override)
	}

	if production {
		dirs = append(dirs, "/app/uploads", "/app/public/uploads", "/app/uploads/videos")
	} else {
		dirs = append(dirs,
			filepath.Join(cwd, "..", "uploads"),
			filepath.Join(cwd, "..", "public", "uploads"),
		)
	}

	if cwd != "" {
		dirs = append(dirs,
			filepath.Join(cwd, "uploads"),
			filepath.Join(cwd, "uploads", "videos"),
			filepath.Join(cwd, "public", "uploads"),
			filepath.Join(cwd, "public", "uploads", "videos"),
		)
	}

	if exeDir != "" {
		dirs = append(dirs,
			filepath.Join(exeDir, "uploads"),
			filepath.Join(exeDir, "..", "uploads"),
		)
	}
	return dirs
}

// EngineCandidates lists the binaries tried, in order, when no explicit
// engine path is configured.
func EngineCandidates(name string, production bool) []string {
	if production {
		return []string{"/usr/bin/" + name, "/usr/local/bin/" + name, name}
	}
	return []string{name, "/usr/local/bin/" + name, "/opt/homebrew/bin/" + name, "/usr/bin/" + name}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1", key)
	}
	return n, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
