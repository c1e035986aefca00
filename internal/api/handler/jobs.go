package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/creatorgen/internal/api/middleware"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

const maxSubmitBodyBytes = 1 << 20

// Submitter defines the interface the submit handler depends on.
type Submitter interface {
	Submit(ctx context.Context, principal *models.Principal, in jobs.SubmitInput) (*models.Job, error)
}

// JobReader reads jobs owned by a principal.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// SubmitResult is the 202 body of POST /api/v1/jobs.
type SubmitResult struct {
	JobID  uuid.UUID `json:"jobId"`
	Status string    `json:"status"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The 202 body reports status "pending", not "processing": the job is stored
// pending and only a worker's claim moves it to processing. Clients must
// accept either before polling.
func NewSubmitJobHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		var in jobs.SubmitInput
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, &jobs.ValidationError{Fields: map[string][]string{
				"body": {"must be a valid JSON object"},
			}})
			return
		}

		job, err := svc.Submit(r.Context(), principal, in)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Location", "/api/v1/jobs/"+job.ID.String())
		response.Accepted(w, SubmitResult{JobID: job.ID, Status: job.Status})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Jobs of other principals are reported as not found.
func NewGetJobHandler(jr JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID", nil)
			return
		}

		job, err := jr.GetJob(r.Context(), jobID, principal.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(jr JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		q := r.URL.Query()
		status := q.Get("status")
		if status != "" && !models.ValidJobStatus(status) {
			writeError(w, r, &jobs.ValidationError{Fields: map[string][]string{
				"status": {"must be one of pending, processing, completed, failed"},
			}})
			return
		}
		page := queryInt(q.Get("page"), 1, 1, 1<<20)
		limit := queryInt(q.Get("limit"), 20, 1, 100)

		list, total, err := jr.ListJobs(r.Context(), store.JobFilter{
			OwnerID: principal.ID,
			Status:  status,
			Page:    page,
			Limit:   limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.Job{}
		}
		response.Collection(w, list, response.NewPaginationMeta(page, limit, total))
	}
}

// queryInt parses v, falling back to def when it is missing or out of range.
func queryInt(v string, def, lo, hi int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}
