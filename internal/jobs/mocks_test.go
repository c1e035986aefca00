package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/internal/queue"
	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// --- memStore: in-memory JobStore with the same transition rules as Postgres ---

type usageRow struct {
	principal uuid.UUID
	action    string
	jobID     uuid.UUID
	at        time.Time
}

type memStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*models.Job
	usage []usageRow

	createErr error
	claimErr  error
	finishErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *memStore) CreateJobWithUsage(_ context.Context, job *models.Job, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *job
	m.jobs[job.ID] = &cp
	m.usage = append(m.usage, usageRow{principal: job.OwnerID, action: action, jobID: job.ID, at: job.CreatedAt})
	return nil
}

func (m *memStore) DeletePendingJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return store.ErrNotFound
	}
	delete(m.jobs, id)
	kept := m.usage[:0]
	for _, u := range m.usage {
		if u.jobID != id {
			kept = append(kept, u)
		}
	}
	m.usage = kept
	return nil
}

func (m *memStore) ClaimJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusPending {
		return nil, store.ErrTransitionConflict
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (m *memStore) FinishJob(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishErr != nil {
		return m.finishErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !models.CanTransition(j.Status, status) || status == models.JobStatusProcessing {
		return store.ErrTransitionConflict
	}

	result, errMsg := store.ResolveJobUpdate(opts...)
	switch status {
	case models.JobStatusCompleted:
		if len(result) == 0 {
			return errors.New("complete job: result is required")
		}
		j.Result = result
	case models.JobStatusFailed:
		if errMsg == nil || *errMsg == "" {
			return errors.New("fail job: error message is required")
		}
		j.ErrorMessage = errMsg
	}
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *memStore) ListStaleJobs(_ context.Context, status string, updatedBefore time.Time, limit int) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.Status == status && j.UpdatedAt.Before(updatedBefore) {
			cp := *j
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CountUsageSince(_ context.Context, principal uuid.UUID, action string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.usage {
		if u.principal == principal && u.action == action && !u.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) OldestUsageSince(_ context.Context, principal uuid.UUID, action string, since time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *time.Time
	for _, u := range m.usage {
		if u.principal == principal && u.action == action && !u.at.Before(since) {
			if oldest == nil || u.at.Before(*oldest) {
				at := u.at
				oldest = &at
			}
		}
	}
	return oldest, nil
}

func (m *memStore) job(id uuid.UUID) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (m *memStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memStore) usageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usage)
}

// put stores a job directly, bypassing usage accounting.
func (m *memStore) put(j *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
}

// --- recordingQueue ---

type recordingQueue struct {
	mu    sync.Mutex
	items []queue.WorkItem
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, item queue.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) enqueued() []queue.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.WorkItem(nil), q.items...)
}

// --- statusRecorder ---

type statusRecorder struct {
	mu       sync.Mutex
	statuses map[uuid.UUID][]string
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{statuses: make(map[uuid.UUID][]string)}
}

func (c *statusRecorder) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = append(c.statuses[jobID], status)
	return nil
}

func (c *statusRecorder) history(jobID uuid.UUID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statuses[jobID]...)
}
