// Package pathresolve locates stored video references on the local
// filesystem. Stored references have used absolute container paths, relative
// paths and bare filenames over time; the resolver probes a fixed, ordered
// list of candidate locations and returns the first regular file found.
package pathresolve

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileResolutionError lists every candidate probed for a reference that
// could not be located.
type FileResolutionError struct {
	Reference string
	Tried     []string
}

func (e *FileResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q; tried %d paths: %s",
		e.Reference, len(e.Tried), strings.Join(e.Tried, ", "))
}

// Resolver maps stored references to absolute file paths.
type Resolver struct {
	baseDirs []string
	stat     func(string) (os.FileInfo, error)
}

// New creates a resolver probing baseDirs in the given order.
func New(baseDirs []string) *Resolver {
	dirs := make([]string, 0, len(baseDirs))
	for _, d := range baseDirs {
		if strings.TrimSpace(d) != "" {
			dirs = append(dirs, d)
		}
	}
	return &Resolver{baseDirs: dirs, stat: os.Stat}
}

// BaseDirs returns the configured candidate base directories.
func (r *Resolver) BaseDirs() []string {
	return append([]string(nil), r.baseDirs...)
}

// Resolve returns the absolute path of the first existing candidate for ref.
// For the same ref and the same files on disk the result is always the same.
func (r *Resolver) Resolve(ref string) (string, error) {
	candidates := r.Candidates(ref)
	for _, c := range candidates {
		info, err := r.stat(c)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if abs, err := filepath.Abs(c); err == nil {
			return abs, nil
		}
		return c, nil
	}
	return "", &FileResolutionError{Reference: ref, Tried: candidates}
}

// Candidates returns the de-duplicated, ordered probe list for ref.
func (r *Resolver) Candidates(ref string) []string {
	p := normalizeReference(ref)
	if p == "" {
		return nil
	}

	segments := splitSegments(p)
	filename := segments[len(segments)-1]
	parent := ""
	if len(segments) > 1 {
		parent = segments[len(segments)-2]
	}

	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		c = filepath.Clean(c)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	if filepath.IsAbs(p) {
		add(p)
	}
	for _, base := range r.baseDirs {
		add(filepath.Join(base, filename))
		if parent != "" && parent != "." && parent != ".." {
			add(filepath.Join(base, parent, filename))
		}
	}
	return out
}

// normalizeReference strips URL scheme and host from references stored as
// URLs and converts backslash separators written by older Windows hosts.
func normalizeReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.Contains(ref, "://") {
		if u, err := url.Parse(ref); err == nil && u.Path != "" {
			ref = u.Path
		}
	}
	if filepath.Separator == '/' {
		ref = strings.ReplaceAll(ref, `\`, "/")
	}
	return ref
}

func splitSegments(p string) []string {
	var segs []string
	for _, s := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return []string{p}
	}
	return segs
}
