package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	abandonedProcessingMessage = "job abandoned: worker did not finish"
	abandonedPendingMessage    = "job abandoned: never picked up by a worker"

	sweepBatchSize = 100
)

// Sweeper fails jobs that stopped making progress, so every job eventually
// reaches a terminal state.
type Sweeper struct {
	store      JobStore
	cache      StatusCache
	staleAfter time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(st JobStore, c StatusCache, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		store:      st,
		cache:      c,
		staleAfter: staleAfter,
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Start runs Sweep on schedule, a standard cron expression or a descriptor
// such as "@every 1m".
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1m"
	}
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("job sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("job sweeper started", "schedule", schedule, "stale_after", s.staleAfter.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep fails stale processing and pending jobs and returns how many it failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)
	failed := 0

	processing, err := s.store.ListStaleJobs(ctx, models.JobStatusProcessing, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range processing {
		if s.fail(ctx, job, abandonedProcessingMessage) {
			failed++
		}
	}

	pending, err := s.store.ListStaleJobs(ctx, models.JobStatusPending, cutoff, sweepBatchSize)
	if err != nil {
		return failed, err
	}
	for _, job := range pending {
		// Claim first so a late worker cannot pick it up concurrently.
		if _, err := s.store.ClaimJob(ctx, job.ID); err != nil {
			if !errors.Is(err, store.ErrTransitionConflict) && !errors.Is(err, store.ErrNotFound) {
				slog.Error("failed to claim stale job", "job_id", job.ID, "error", err)
			}
			continue
		}
		if s.fail(ctx, job, abandonedPendingMessage) {
			failed++
		}
	}

	if failed > 0 {
		slog.Warn("failed abandoned jobs", "count", failed)
	}
	return failed, nil
}

func (s *Sweeper) fail(ctx context.Context, job *models.Job, msg string) bool {
	err := s.store.FinishJob(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(msg))
	if errors.Is(err, store.ErrTransitionConflict) {
		// The worker finished it in the meantime.
		return false
	}
	if err != nil {
		slog.Error("failed to fail stale job", "job_id", job.ID, "error", err)
		return false
	}
	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, job.ID, models.JobStatusFailed, StatusTTL); err != nil {
			slog.Warn("failed to mirror job status", "job_id", job.ID, "error", err)
		}
	}
	return true
}
