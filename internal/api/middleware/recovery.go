package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope carrying the request id,
// and logs the panic with whatever the request had resolved by then: the
// authenticated principal and the matched route and job.
// http.ErrAbortHandler is re-panicked so net/http can abort the response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := &requestTrace{}
		r = r.WithContext(withRequestTrace(r.Context(), trace))

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			requestID := GetRequestID(r.Context())
			attrs := []any{
				"error", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID,
			}
			attrs = append(attrs, routeAttrs(r.Context())...)
			if id, ok := trace.principal(); ok {
				attrs = append(attrs, "principal_id", id)
			}
			slog.Error("panic recovered", attrs...)

			var details any
			if requestID != "" {
				details = map[string]string{"request_id": requestID}
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}

// routeAttrs reads the chi route context, which routing fills in after the
// router-level middleware has started.
func routeAttrs(ctx context.Context) []any {
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		return nil
	}
	var attrs []any
	if pattern := rctx.RoutePattern(); pattern != "" {
		attrs = append(attrs, "route", pattern)
	}
	if jobID := rctx.URLParam("jobID"); jobID != "" {
		attrs = append(attrs, "job_id", jobID)
	}
	return attrs
}
