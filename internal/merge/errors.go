package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/heimdex/clipmerge/internal/engine"
	"github.com/heimdex/clipmerge/internal/workspace"
)

// Stage names the pipeline step a job failed in.
type Stage string

const (
	StagePrecheck  Stage = "precheck"
	StageProvision Stage = "provision"
	StageResolve   Stage = "resolve"
	StageMerge     Stage = "merge"
	StageFinish    Stage = "finish"
)

// JobError is the single error a failed job returns. Unwrap exposes the
// typed cause.
type JobError struct {
	JobID string
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("merge job %s failed during %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// ClipNotFoundError means a requested video has no record.
type ClipNotFoundError struct {
	VideoID string
}

func (e *ClipNotFoundError) Error() string {
	return fmt.Sprintf("source video %s not found", e.VideoID)
}

// SourceFileMissingError means a video record exists but its file could not
// be located or is empty.
type SourceFileMissingError struct {
	VideoID string
	Path    string
	Err     error
}

func (e *SourceFileMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source file for video %s missing (%s): %v", e.VideoID, e.Path, e.Err)
	}
	return fmt.Sprintf("source file for video %s missing (%s)", e.VideoID, e.Path)
}

func (e *SourceFileMissingError) Unwrap() error {
	return e.Err
}

// UploadError means the merged video could not be stored.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// PersistenceError means the result record could not be saved. The merged
// video is already in storage under StorageKey and is unreferenced.
type PersistenceError struct {
	StorageKey string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist result (orphaned object %s): %v", e.StorageKey, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CleanupWarning reports a local artifact that could not be removed. It is
// logged and never fails a job.
type CleanupWarning struct {
	Path string
	Err  error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err)
}

func (e *CleanupWarning) Unwrap() error {
	return e.Err
}

// Stable failure codes reported to callers.
const (
	CodeClipNotFound      = "CLIP_NOT_FOUND"
	CodeSourceFileMissing = "SOURCE_FILE_MISSING"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeMergeTimeout      = "MERGE_TIMEOUT"
	CodeCancelled         = "JOB_CANCELLED"
	CodeMergeFailed       = "MERGE_FAILED"
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodePersistence       = "PERSISTENCE_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Failure is the caller-facing form of a job error. Message never carries
// resolved host paths or engine output; those stay in the logs.
type Failure struct {
	Code    string
	Message string
}

// Describe classifies err by its typed cause.
func Describe(err error) Failure {
	var (
		notFound   *ClipNotFoundError
		missing    *SourceFileMissingError
		timeout    *engine.MergeTimeoutError
		mergeErr   *engine.MergeError
		cfgErr     *workspace.ConfigurationError
		uploadErr  *UploadError
		persistErr *PersistenceError
	)

	switch {
	case errors.As(err, &notFound):
		return Failure{CodeClipNotFound, fmt.Sprintf("source video %s not found", notFound.VideoID)}
	case errors.As(err, &missing):
		return Failure{CodeSourceFileMissing, fmt.Sprintf("source file for video %s is missing", missing.VideoID)}
	case errors.Is(err, engine.ErrEngineUnavailable):
		return Failure{CodeEngineUnavailable, "media engine unavailable"}
	case errors.As(err, &timeout):
		return Failure{CodeMergeTimeout, fmt.Sprintf("merge exceeded %s and was terminated", timeout.Timeout)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Failure{CodeCancelled, "merge job was cancelled"}
	case errors.As(err, &mergeErr):
		return Failure{CodeMergeFailed, "media engine could not merge the clips"}
	case errors.As(err, &cfgErr):
		return Failure{CodeConfiguration, "job workspace could not be provisioned"}
	case errors.As(err, &uploadErr):
		return Failure{CodeUploadFailed, "merged video upload failed"}
	case errors.As(err, &persistErr):
		return Failure{CodePersistence, "merge result could not be saved"}
	default:
		return Failure{CodeInternal, "merge job failed"}
	}
}
