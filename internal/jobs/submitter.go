package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/internal/queue"
	"github.com/kiranshivaraju/creatorgen/internal/safety"
	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

const (
	// snapshotMaxRunes bounds each text field stored in a job's input snapshot.
	snapshotMaxRunes = 2000

	// StatusTTL is how long mirrored job statuses live in the cache.
	StatusTTL = 24 * time.Hour
)

// JobStore is the persistence the job pipeline needs.
type JobStore interface {
	UsageStore
	CreateJobWithUsage(ctx context.Context, job *models.Job, action string) error
	DeletePendingJob(ctx context.Context, id uuid.UUID) error
	ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FinishJob(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error
	ListStaleJobs(ctx context.Context, status string, updatedBefore time.Time, limit int) ([]*models.Job, error)
}

// StatusCache mirrors job statuses for watchers. It is optional.
type StatusCache interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// SubmitInput is the caller-supplied payload of a generation request.
type SubmitInput struct {
	Title     string `json:"title"     validate:"omitempty,max=200"`
	Content   string `json:"content"   validate:"required,notblank,max=10000"`
	ProjectID string `json:"projectId" validate:"omitempty,uuid"`
}

// Submitter accepts generation requests and hands them to the worker pool.
type Submitter struct {
	store    JobStore
	queue    queue.Queue
	gen      models.Generator
	quota    *Quota
	cache    StatusCache
	validate *validator.Validate
	now      func() time.Time
}

// NewSubmitter creates a Submitter. gen may be nil when no generation provider
// is configured; every submission is then refused with ErrNotConfigured.
func NewSubmitter(st JobStore, q queue.Queue, gen models.Generator, c StatusCache) *Submitter {
	return &Submitter{
		store:    st,
		queue:    q,
		gen:      gen,
		quota:    NewQuota(st),
		cache:    c,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Quota exposes the usage quota the submitter enforces.
func (s *Submitter) Quota() *Quota {
	return s.quota
}

// Submit validates and records a generation request and enqueues it. The
// returned job is pending; the caller polls it for the outcome.
func (s *Submitter) Submit(ctx context.Context, principal *models.Principal, in SubmitInput) (*models.Job, error) {
	if principal == nil || principal.ID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	if s.gen == nil {
		return nil, ErrNotConfigured
	}

	decision, err := s.quota.Check(ctx, principal.ID, ActionGenerateSocialPosts)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if !decision.Allowed {
		return nil, decision.Exceeded(ActionGenerateSocialPosts)
	}

	// Flagged input is accepted here and rejected by the worker before any
	// provider call.
	if sc := safety.ScreenAll(in.Title, in.Content); sc.Flagged {
		slog.Warn("submission matched screening rules",
			"principal_id", principal.ID,
			"rules", sc.Matches,
		)
	}

	input := models.JobInput{Title: in.Title, Content: in.Content}
	if in.ProjectID != "" {
		pid, err := uuid.Parse(in.ProjectID)
		if err == nil {
			input.ProjectID = &pid
		}
	}

	snapshot, err := json.Marshal(models.JobInput{
		Title:     safety.Truncate(input.Title, snapshotMaxRunes),
		Content:   safety.Truncate(input.Content, snapshotMaxRunes),
		ProjectID: input.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %v", ErrSchedulingFailed, err)
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		OwnerID:       principal.ID,
		Kind:          models.JobKindSocialPosts,
		Status:        models.JobStatusPending,
		InputSnapshot: snapshot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateJobWithUsage(ctx, job, ActionGenerateSocialPosts); err != nil {
		return nil, fmt.Errorf("%w: persist job: %v", ErrSchedulingFailed, err)
	}

	// Mirrored before enqueueing so a fast worker's status is never overwritten.
	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, job.ID, job.Status, StatusTTL); err != nil {
			slog.Warn("failed to mirror job status", "job_id", job.ID, "error", err)
		}
	}

	item := queue.WorkItem{JobID: job.ID, Input: input, EnqueuedAt: now}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		// The request must leave nothing behind, including its usage row.
		if delErr := s.store.DeletePendingJob(context.WithoutCancel(ctx), job.ID); delErr != nil {
			slog.Error("failed to remove unscheduled job",
				"job_id", job.ID,
				"error", delErr,
			)
		}
		return nil, fmt.Errorf("%w: enqueue: %v", ErrSchedulingFailed, err)
	}

	slog.Info("job submitted",
		"job_id", job.ID,
		"principal_id", principal.ID,
		"used", decision.Used+1,
		"limit", decision.Limit,
	)
	return job, nil
}

func (s *Submitter) validateInput(in SubmitInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string][]string{"body": {err.Error()}}}
	}
	fields := make(map[string][]string)
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}
