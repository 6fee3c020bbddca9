package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-jobs/internal/models"
)

// ErrJobNotFound is returned when a job id or token resolves to no row.
var ErrJobNotFound = errors.New("job not found")

// Store wraps pgxpool for Postgres persistence. The jobs table doubles as the
// coordination substrate: row locks taken here are the only mutual exclusion
// between worker processes.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Token                string
	Type                 string
	Payload              map[string]any
	MaxAttempts          int
	UUIDIdempotencyToken string
}

// CreateJob inserts a pending job row. If the idempotency token was already
// used, the existing job is returned instead and the boolean is true.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, bool, error) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}

	if existing, found, err := s.findByIdempotencyToken(ctx, p.UUIDIdempotencyToken); err != nil {
		return models.Job{}, false, err
	} else if found {
		return existing, true, nil
	}

	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("marshal payload: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO jobs (token, job_type, payload, status, attempt_count, max_attempts, uuid_idempotency_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, NOW(), NOW())
		ON CONFLICT (uuid_idempotency_token) DO NOTHING
		RETURNING id
	`, p.Token, p.Type, payloadJSON, models.StatusPending, p.MaxAttempts, p.UUIDIdempotencyToken).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another enqueuer claimed the idempotency token after our check.
		existing, found, err := s.findByIdempotencyToken(ctx, p.UUIDIdempotencyToken)
		if err != nil {
			return models.Job{}, false, err
		}
		if !found {
			return models.Job{}, false, errors.New("idempotency conflict but no existing job found")
		}
		return existing, true, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("insert job: %w", err)
	}

	// Re-read the row so returned timestamps are DB-authoritative.
	job, err := s.getJobWhere(ctx, "id = $1", id)
	if err != nil {
		return models.Job{}, false, err
	}
	return job, false, nil
}

func (s *Store) findByIdempotencyToken(ctx context.Context, token string) (models.Job, bool, error) {
	job, err := s.getJobWhere(ctx, "uuid_idempotency_token = $1", token)
	if errors.Is(err, ErrJobNotFound) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

const jobColumns = `
	id, token, job_type, payload, status, attempt_count, max_attempts,
	assigned_worker, assigned_cluster, retry_at, first_started_at,
	failure_reason, uuid_idempotency_token, created_at, updated_at`

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (models.Job, bool, error) {
	job, err := s.getJobWhere(ctx, "id = $1", id)
	if errors.Is(err, ErrJobNotFound) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

// GetJobByToken fetches a job by its client-facing token.
func (s *Store) GetJobByToken(ctx context.Context, token string) (models.Job, bool, error) {
	job, err := s.getJobWhere(ctx, "token = $1", token)
	if errors.Is(err, ErrJobNotFound) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

func (s *Store) getJobWhere(ctx context.Context, where string, arg any) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where, arg)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var payloadJSON []byte
	var worker, cluster, reason pgtype.Text
	var retryAt, firstStartedAt pgtype.Timestamptz

	err := row.Scan(
		&job.ID, &job.Token, &job.Type, &payloadJSON, &job.Status,
		&job.AttemptCount, &job.MaxAttempts, &worker, &cluster,
		&retryAt, &firstStartedAt, &reason, &job.UUIDIdempotencyToken,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return models.Job{}, err
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	job.AssignedWorker = textPtr(worker)
	job.AssignedCluster = textPtr(cluster)
	job.RetryAt = timePtr(retryAt)
	job.FirstStartedAt = timePtr(firstStartedAt)
	job.FailureReason = textPtr(reason)
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
