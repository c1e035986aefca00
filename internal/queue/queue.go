// Package queue carries work items from the submitter to the worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

var (
	ErrQueueFull = errors.New("work queue is full")
	ErrClosed    = errors.New("work queue is closed")
)

// WorkItem asks a worker to process one job. It carries the submitted input
// so the worker does not depend on the bounded snapshot stored with the job.
type WorkItem struct {
	JobID      uuid.UUID       `json:"job_id"`
	Input      models.JobInput `json:"input"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue accepts work items.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
}

// Handler processes one work item. A returned error means the item could not
// be handled at all; job-level failures are recorded on the job and are not
// returned here.
type Handler func(ctx context.Context, item WorkItem) error

// Consumer delivers work items to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
