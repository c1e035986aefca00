package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/internal/store"
)

// writeError maps service errors to the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *jobs.ValidationError
		qerr *jobs.QuotaExceededError
	)
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", verr.Fields)
	case errors.Is(err, jobs.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication required", nil)
	case errors.As(err, &qerr):
		w.Header().Set("Retry-After", strconv.Itoa(int(qerr.RetryAfter.Seconds())))
		response.Error(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
			"Generation quota exceeded, try again in "+qerr.Hint, map[string]any{
				"limit":      qerr.Limit,
				"used":       qerr.Used,
				"retryAfter": qerr.Hint,
			})
	case errors.Is(err, jobs.ErrNotConfigured):
		response.Error(w, http.StatusServiceUnavailable, "SERVICE_NOT_CONFIGURED",
			"Content generation is not configured", nil)
	case errors.Is(err, jobs.ErrSchedulingFailed):
		slog.Error("job scheduling failed", "error", err, "path", r.URL.Path)
		response.Error(w, http.StatusInternalServerError, "SCHEDULING_FAILED",
			"The job could not be scheduled, please retry", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	default:
		slog.Error("request failed", "error", err, "path", r.URL.Path)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
