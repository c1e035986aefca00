package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, principal_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.PrincipalID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, principal_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.PrincipalID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, principalID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE principal_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, principalID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND principal_id = $2 AND deleted_at IS NULL`, id, principalID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, owner_id, kind, status, input_snapshot, result, error_message,
	started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.Kind, &j.Status, &j.InputSnapshot, &j.Result,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CreateJobWithUsage(ctx context.Context, job *models.Job, action string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, owner_id, kind, status, input_snapshot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.OwnerID, job.Kind, job.Status, job.InputSnapshot, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO usage_events (id, principal_id, action, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), job.OwnerID, action, job.ID, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePendingJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	where := "owner_id = $1"
	args := []any{filter.OwnerID}
	argIdx := 2

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT `+jobColumns+` FROM jobs WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	now := time.Now().UTC()
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'processing', started_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+jobColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.conflictOrNotFound(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	resultPayload, errorMessage := ResolveJobUpdate(opts...)

	switch status {
	case models.JobStatusCompleted:
		if len(resultPayload) == 0 {
			return fmt.Errorf("complete job: result is required")
		}
	case models.JobStatusFailed:
		if errorMessage == nil || *errorMessage == "" {
			return fmt.Errorf("fail job: error message is required")
		}
	default:
		return fmt.Errorf("invalid job status transition: processing -> %s", status)
	}

	now := time.Now().UTC()
	var result any
	if status == models.JobStatusCompleted {
		result = resultPayload
	}
	var errMsg *string
	if status == models.JobStatusFailed {
		errMsg = errorMessage
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, error_message = $4, completed_at = $5, updated_at = $5
		 WHERE id = $1 AND status = 'processing'`,
		id, status, result, errMsg, now)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ListStaleJobs(ctx context.Context, status string, updatedBefore time.Time, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		status, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return scanJobs(rows)
}

// conflictOrNotFound distinguishes a lost conditional update from a missing row.
func (s *PostgresStore) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrTransitionConflict
}

// --- Usage ---

func (s *PostgresStore) CountUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE principal_id = $1 AND action = $2 AND created_at >= $3`,
		principalID, action, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) OldestUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (*time.Time, error) {
	var oldest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(created_at) FROM usage_events WHERE principal_id = $1 AND action = $2 AND created_at >= $3`,
		principalID, action, since).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("oldest usage: %w", err)
	}
	return oldest, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
