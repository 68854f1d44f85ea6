package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEngineUnavailable is returned when the capability probe says
	// merges cannot run on this host.
	ErrEngineUnavailable = errors.New("media engine unavailable")

	// ErrNoInputs is wrapped in a MergeError when a merge has no inputs.
	ErrNoInputs = errors.New("no inputs to merge")

	// ErrEmptyOutput is wrapped in a MergeError when the engine exits
	// cleanly without writing the output file.
	ErrEmptyOutput = errors.New("engine produced no output")
)

// MergeError is a failed merge. StderrTail holds the last bytes of the
// engine's diagnostics.
type MergeError struct {
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *MergeError) Error() string {
	var b strings.Builder
	b.WriteString("merge failed")
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		b.WriteString(": ")
		b.WriteString(truncate(tail, 512))
	}
	return b.String()
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// MergeTimeoutError is a merge killed after exceeding its time budget.
type MergeTimeoutError struct {
	Timeout    time.Duration
	StderrTail string
}

func (e *MergeTimeoutError) Error() string {
	return fmt.Sprintf("merge exceeded %s and was terminated", e.Timeout)
}
