package store

import (
	"context"
	"fmt"
	"time"

	"media-jobs/internal/models"
)

// LeaseOutcome is the result of a lease attempt. A NotAvailable outcome is
// not an error: it means another worker holds the job or the job is terminal.
type LeaseOutcome int

const (
	Leased LeaseOutcome = iota
	NotAvailable
)

// Outcome classifies how a processed job finished.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	PermanentFailure
)

// TryLease attempts to take the exclusive lease on a job.
//
// Workers run as independent processes with no shared memory, so the row lock
// taken by SELECT ... FOR UPDATE inside this transaction is the mutual
// exclusion primitive: a concurrent attempt on the same id blocks until this
// transaction commits, then observes status started and backs off.
//
// A grant increments attempt_count, records the holder's identity, stamps
// first_started_at on the first attempt, and sets retry_at to now plus the
// lease duration. There is no heartbeat: if the holder crashes, the job
// becomes leasable again once retry_at passes.
//
// Database errors are returned as errors, never as NotAvailable — mapping
// them to "skip" would silently starve jobs.
func (s *Store) TryLease(ctx context.Context, jobID int64, worker, cluster string, leaseDuration time.Duration) (LeaseOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NotAvailable, fmt.Errorf("begin lease tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	var status string
	var expired bool
	err = tx.QueryRow(ctx, `
		SELECT status, retry_at IS NOT NULL AND retry_at < NOW()
		FROM jobs WHERE id = $1 FOR UPDATE
	`, jobID).Scan(&status, &expired)
	if err != nil {
		return NotAvailable, fmt.Errorf("lock job %d: %w", jobID, err)
	}

	// A started row whose retry_at has passed is a crashed worker's leftover:
	// the lease expired without an outcome report, so it may be retaken.
	abandoned := status == models.StatusStarted && expired

	if !models.Leasable(status) && !abandoned {
		if err := tx.Rollback(ctx); err != nil {
			return NotAvailable, fmt.Errorf("rollback lease tx: %w", err)
		}
		return NotAvailable, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    assigned_worker = $3,
		    assigned_cluster = $4,
		    first_started_at = COALESCE(first_started_at, NOW()),
		    retry_at = NOW() + $5,
		    updated_at = NOW()
		WHERE id = $1
	`, jobID, models.StatusStarted, worker, cluster, leaseDuration)
	if err != nil {
		return NotAvailable, fmt.Errorf("grant lease on job %d: %w", jobID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return NotAvailable, fmt.Errorf("commit lease tx: %w", err)
	}
	return Leased, nil
}

// ReportOutcome records how a leased job finished and returns the status the
// job ended up in. It runs outside the lease transaction: by the time a
// worker reports, it is the sole holder, so a plain UPDATE suffices.
//
// RetryableFailure becomes attempt_failed while the attempt budget holds and
// dead once it is exhausted. The failure reason is persisted even on retries
// so operators can see why earlier attempts failed.
func (s *Store) ReportOutcome(ctx context.Context, jobID int64, outcome Outcome, failureReason string) (string, error) {
	switch outcome {
	case Success:
		_, err := s.pool.Exec(ctx, `
			UPDATE jobs
			SET status = $2, failure_reason = NULL, retry_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, jobID, models.StatusCompleteSuccess)
		if err != nil {
			return "", fmt.Errorf("mark job %d success: %w", jobID, err)
		}
		return models.StatusCompleteSuccess, nil

	case PermanentFailure:
		_, err := s.pool.Exec(ctx, `
			UPDATE jobs
			SET status = $2, failure_reason = $3, retry_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, jobID, models.StatusCompleteFailure, failureReason)
		if err != nil {
			return "", fmt.Errorf("mark job %d permanent failure: %w", jobID, err)
		}
		return models.StatusCompleteFailure, nil

	case RetryableFailure:
		// attempt_count was already incremented by the lease grant.
		var status string
		err := s.pool.QueryRow(ctx, `
			UPDATE jobs
			SET status = CASE WHEN attempt_count >= max_attempts THEN $2 ELSE $3 END,
			    failure_reason = $4,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING status
		`, jobID, models.StatusDead, models.StatusAttemptFailed, failureReason).Scan(&status)
		if err != nil {
			return "", fmt.Errorf("mark job %d attempt failure: %w", jobID, err)
		}
		return status, nil
	}
	return "", fmt.Errorf("unknown outcome %d for job %d", outcome, jobID)
}

// ExtendLease pushes retry_at forward for a job this worker still holds.
// Handlers that legitimately outlive the lease window call this instead of
// racing a re-lease by another worker.
func (s *Store) ExtendLease(ctx context.Context, jobID int64, d time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET retry_at = NOW() + $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, d, models.StatusStarted)
	if err != nil {
		return fmt.Errorf("extend lease on job %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("extend lease on job %d: %w", jobID, ErrJobNotFound)
	}
	return nil
}

// ListLeasable returns up to limit candidate jobs in id order: pending or
// attempt_failed rows whose retry_at is unset or already passed, plus started
// rows whose lease expired without an outcome report. Optionally restricted
// to the worker's job types. Candidates are not locked; each must still be
// leased individually.
func (s *Store) ListLeasable(ctx context.Context, limit int, jobTypes []string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE (
		    (status IN ($1, $2) AND (retry_at IS NULL OR retry_at < NOW()))
		    OR (status = $3 AND retry_at < NOW())
		)`
	args := []any{models.StatusPending, models.StatusAttemptFailed, models.StatusStarted}
	if len(jobTypes) > 0 {
		query += ` AND job_type = ANY($4)`
		args = append(args, jobTypes)
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leasable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leasable job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leasable jobs: %w", err)
	}
	return jobs, nil
}

// CountLeasable returns the number of jobs currently leasable; it feeds the
// depth gauge.
func (s *Store) CountLeasable(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE (status IN ($1, $2) AND (retry_at IS NULL OR retry_at < NOW()))
		   OR (status = $3 AND retry_at < NOW())
	`, models.StatusPending, models.StatusAttemptFailed, models.StatusStarted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leasable jobs: %w", err)
	}
	return n, nil
}
