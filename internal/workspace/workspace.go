// Package workspace computes and creates the per-job temp directory and the
// shared output directory, refusing to hand out operating-system paths.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultTempDir   = "tmp"
	DefaultOutputDir = "output"
)

// deniedPaths are never acceptable as a workspace, whatever the override.
var deniedPaths = map[string]bool{
	"/":        true,
	"/tmp":     true,
	"/output":  true,
	"/etc":     true,
	"/var":     true,
	"/var/tmp": true,
	"/usr":     true,
	"/bin":     true,
	"/sbin":    true,
	"/lib":     true,
	"/boot":    true,
	"/dev":     true,
	"/proc":    true,
	"/sys":     true,
	"/root":    true,
	"/home":    true,
	"/opt":     true,
	"/private": true,
}

// ConfigurationError reports a workspace path that could not be made safe.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unsafe workspace path %q: %s", e.Path, e.Reason)
}

// Provisioner resolves workspace directories relative to a project root.
type Provisioner struct {
	root   string
	logger *slog.Logger
}

// New creates a provisioner anchored at projectRoot.
func New(projectRoot string, logger *slog.Logger) (*Provisioner, error) {
	if projectRoot == "" {
		projectRoot = "."
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, &ConfigurationError{Path: projectRoot, Reason: err.Error()}
	}
	if IsDenied(abs) {
		return nil, &ConfigurationError{Path: abs, Reason: "project root is a system directory"}
	}
	return &Provisioner{root: abs, logger: logger}, nil
}

// Root returns the absolute project root.
func (p *Provisioner) Root() string {
	return p.root
}

// SafeTempDir returns the temp workspace for jobID: <base>/<jobID>, where
// base is the vetted override or <root>/tmp.
func (p *Provisioner) SafeTempDir(override, jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", &ConfigurationError{Path: jobID, Reason: "job id is not a single path segment"}
	}
	return filepath.Join(p.SafeTempBase(override), jobID), nil
}

// SafeTempBase returns the directory job temp workspaces are created under.
func (p *Provisioner) SafeTempBase(override string) string {
	return p.vet(override, DefaultTempDir)
}

// SafeOutputDir returns the vetted output override or <root>/output.
func (p *Provisioner) SafeOutputDir(override string) string {
	return p.vet(override, DefaultOutputDir)
}

// EnsureExists creates path and its parents. It reports failure instead of
// returning an error so callers can choose a fallback.
func (p *Provisioner) EnsureExists(path string) bool {
	if IsDenied(path) {
		p.warn("refusing to create system directory", "path", path)
		return false
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		p.warn("failed to create directory", "path", path, "error", err)
		return false
	}
	return true
}

// Anchor re-checks a computed path just before use. Paths outside the
// project root are replaced with a path relative to the working directory.
func (p *Provisioner) Anchor(path string) string {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) || p.within(clean) {
		return clean
	}
	rel := filepath.Join(".", filepath.Base(clean))
	p.warn("path outside project root, forcing cwd-relative", "path", clean, "anchored", rel)
	return rel
}

func (p *Provisioner) vet(override, fallback string) string {
	def := filepath.Join(p.root, fallback)
	override = strings.TrimSpace(override)
	if override == "" {
		return def
	}

	if IsDenied(override) {
		p.warn("workspace override is a system directory, using default", "override", override, "default", def)
		return def
	}

	var resolved string
	if filepath.IsAbs(override) {
		resolved = filepath.Clean(override)
		if !p.within(resolved) {
			p.warn("workspace override outside project root, using default", "override", override, "default", def)
			return def
		}
	} else {
		resolved = filepath.Join(p.root, override)
		if !p.within(resolved) {
			p.warn("workspace override escapes project root, using default", "override", override, "default", def)
			return def
		}
	}

	if IsDenied(resolved) || resolved == p.root {
		p.warn("resolved workspace override is not usable, using default", "override", override, "resolved", resolved)
		return def
	}
	return resolved
}

func (p *Provisioner) within(path string) bool {
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (p *Provisioner) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

// IsDenied reports whether path is one of the protected system directories.
func IsDenied(path string) bool {
	if path == "" {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	return deniedPaths[clean]
}
