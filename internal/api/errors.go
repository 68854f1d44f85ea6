package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/heimdex/clipmerge/internal/logging"
	"github.com/heimdex/clipmerge/internal/merge"
)

var failureStatus = map[string]int{
	merge.CodeClipNotFound:      http.StatusNotFound,
	merge.CodeSourceFileMissing: http.StatusUnprocessableEntity,
	merge.CodeEngineUnavailable: http.StatusServiceUnavailable,
	merge.CodeMergeTimeout:      http.StatusGatewayTimeout,
	merge.CodeCancelled:         http.StatusServiceUnavailable,
	merge.CodeMergeFailed:       http.StatusBadGateway,
	merge.CodeConfiguration:     http.StatusInternalServerError,
	merge.CodeUploadFailed:      http.StatusBadGateway,
	merge.CodePersistence:       http.StatusInternalServerError,
}

// errorStatus maps a failed job's cause to an HTTP status and a stable error
// code.
func errorStatus(err error) (int, string) {
	f := merge.Describe(err)
	if status, ok := failureStatus[f.Code]; ok {
		return status, f.Code
	}
	return http.StatusInternalServerError, merge.CodeInternal
}

// writeJobError logs the full cause and answers with the short description
// only.
func writeJobError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: merge.Describe(err).Message, Code: code}

	var jobErr *merge.JobError
	if errors.As(err, &jobErr) {
		resp.JobID = jobErr.JobID
	}
	logging.WithJobID(logging.OrDiscard(logger), resp.JobID).Error("merge job failed", "code", code, "error", err)
	WriteJSON(w, status, resp)
}
