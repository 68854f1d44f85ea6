// Package logging builds the slog loggers shared by the merge service.
// Records are JSON; each component narrows its logger with the helpers
// below so job, owner and request ids use the same attribute names
// everywhere.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys attached by the With* helpers.
const (
	KeyRequestID = "request_id"
	KeyComponent = "component"
	KeyJobID     = "job_id"
	KeyOwnerID   = "owner_id"
	KeyStage     = "stage"
)

// NewLogger creates a JSON logger on stdout.
// Supported levels: debug, info, warn, error
func NewLogger(level string) *slog.Logger {
	return New(os.Stdout, level)
}

// New writes JSON records at or above level to w. Debug level also
// records the source location of each call.
func New(w io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// Discard returns a logger that drops every record. Constructors use it
// when the caller passes a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(KeyRequestID, requestID)
}

func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(KeyComponent, component)
}

func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With(KeyJobID, jobID)
}

func WithOwnerID(logger *slog.Logger, ownerID string) *slog.Logger {
	return logger.With(KeyOwnerID, ownerID)
}

// ForJob tags logger with the job id and, when known, the owning user.
func ForJob(logger *slog.Logger, jobID, ownerID string) *slog.Logger {
	logger = WithJobID(logger, jobID)
	if ownerID != "" {
		logger = WithOwnerID(logger, ownerID)
	}
	return logger
}

// SanitizeToken masks a token for safe logging, keeping the first and
// last four characters. Tokens of eight characters or fewer become "****".
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizePath replaces the user's home directory prefix with ~.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home || strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}
