package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrTransitionConflict is returned when a conditional status update finds the
// job in a state other than the one it expected.
var ErrTransitionConflict = errors.New("job status transition conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, principalID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, principalID uuid.UUID) error

	// CreateJobWithUsage inserts a pending job and its usage event atomically.
	CreateJobWithUsage(ctx context.Context, job *models.Job, action string) error
	// DeletePendingJob removes a job that never left pending, together with
	// its usage event. It is only used to undo a submission whose work item
	// could not be enqueued.
	DeletePendingJob(ctx context.Context, id uuid.UUID) error
	GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	// ClaimJob moves a job from pending to processing. Only one caller can win;
	// the others get ErrTransitionConflict.
	ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// FinishJob moves a processing job to completed or failed.
	FinishJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	ListStaleJobs(ctx context.Context, status string, updatedBefore time.Time, limit int) ([]*models.Job, error)

	CountUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (int, error)
	OldestUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (*time.Time, error)
}

type JobFilter struct {
	OwnerID uuid.UUID
	Status  string
	Page    int
	Limit   int
}

type jobUpdateParams struct {
	ErrorMessage *string
	Result       json.RawMessage
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithResult(result json.RawMessage) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = result
	}
}

// ResolveJobUpdate applies opts and returns the result and error message they
// set. Store implementations use it to read the payload of a FinishJob call.
func ResolveJobUpdate(opts ...JobUpdateOption) (json.RawMessage, *string) {
	p := &jobUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p.Result, p.ErrorMessage
}
