package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/creatorgen/internal/api/middleware"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
)

// UsageReader reports quota usage.
type UsageReader interface {
	Usage(ctx context.Context, principal uuid.UUID) (jobs.Decision, error)
}

// UsageResult is the body of GET /api/v1/usage.
type UsageResult struct {
	Action        string     `json:"action"`
	Used          int        `json:"used"`
	Limit         int        `json:"limit"`
	Remaining     int        `json:"remaining"`
	WindowSeconds int        `json:"windowSeconds"`
	ResetsAt      *time.Time `json:"resetsAt,omitempty"`
}

// NewUsageHandler returns an http.HandlerFunc for GET /api/v1/usage.
func NewUsageHandler(ur UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		d, err := ur.Usage(r.Context(), principal.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		remaining := d.Limit - d.Used
		if remaining < 0 {
			remaining = 0
		}
		response.JSON(w, UsageResult{
			Action:        jobs.ActionGenerateSocialPosts,
			Used:          d.Used,
			Limit:         d.Limit,
			Remaining:     remaining,
			WindowSeconds: int(d.Window.Seconds()),
			ResetsAt:      d.ResetsAt,
		})
	}
}
