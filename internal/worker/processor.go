package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"media-jobs/internal/config"
	"media-jobs/internal/firehose"
	"media-jobs/internal/models"
	"media-jobs/internal/store"
	"media-jobs/internal/telemetry"
)

// ErrUnhealthy means a required resource (e.g. the GPU) is gone. The caller
// is expected to exit non-zero and let the orchestrator reschedule; spinning
// in place would keep leasing jobs the process cannot complete.
var ErrUnhealthy = errors.New("worker failed its health check")

// Handler executes one leased job. Returning a *JobError controls retry
// classification; any other error is treated as retryable.
type Handler func(ctx context.Context, job models.Job) error

// Processor drives the worker dequeue loop. One processor runs per process;
// within it jobs are strictly sequential, and concurrency comes from running
// more processes.
type Processor struct {
	cfg      config.Config
	store    *store.Store
	firehose *firehose.Publisher
	health   *HealthStatus
	logger   *zap.Logger
	handlers map[string]Handler
	sleep    func(time.Duration)
}

func NewProcessor(cfg config.Config, st *store.Store, fh *firehose.Publisher, health *HealthStatus, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		store:    st,
		firehose: fh,
		health:   health,
		logger:   logger,
		handlers: make(map[string]Handler),
		sleep:    time.Sleep,
	}
}

// RegisterHandler binds a handler to a job type.
func (p *Processor) RegisterHandler(jobType string, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	p.handlers[jobType] = handler
}

// Run executes the dequeue loop until the context is cancelled or the health
// check fails. Each iteration: health gate, list a bounded batch of leasable
// candidates, lease and process each, then sleep.
//
// Listing errors never drop jobs; the loop sleeps an additively growing
// timeout (base + n*increment, capped) and tries again, resetting to the base
// after the next successful listing.
func (p *Processor) Run(ctx context.Context) error {
	errorTimeout := p.cfg.ErrorBackoffBase
	idle := newIdleLogger(p.logger, p.cfg.IdleLogInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !p.health.Healthy() {
			p.logger.Error("health check failed, terminating worker")
			return ErrUnhealthy
		}

		jobs, err := p.store.ListLeasable(ctx, p.cfg.BatchSize, p.cfg.JobTypes)
		if err != nil {
			telemetry.ListErrors.Inc()
			p.logger.Warn("error listing leasable jobs",
				zap.Error(err),
				zap.Duration("sleep", errorTimeout))
			p.sleep(errorTimeout)
			errorTimeout = nextErrorTimeout(errorTimeout, p.cfg.ErrorBackoffIncrement, p.cfg.ErrorBackoffCap)
			continue
		}
		errorTimeout = p.cfg.ErrorBackoffBase // reset

		if depth, err := p.store.CountLeasable(ctx); err == nil {
			telemetry.LeasableDepth.Set(float64(depth))
		}

		if len(jobs) == 0 {
			idle.Log("no leasable jobs")
			p.sleep(p.cfg.PollInterval)
			continue
		}

		for _, job := range jobs {
			p.processOne(ctx, job)
		}

		p.sleep(p.cfg.PollInterval)
	}
}

// processOne leases and runs a single candidate. A failure here never aborts
// the rest of the batch.
func (p *Processor) processOne(ctx context.Context, job models.Job) {
	outcome, err := p.store.TryLease(ctx, job.ID, p.cfg.WorkerName, p.cfg.ClusterName, p.cfg.LeaseDuration)
	if err != nil {
		// Infrastructure error, not contention: surface it and move on; the
		// job stays leasable for the next pass.
		p.logger.Warn("lease attempt failed", zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}
	if outcome != store.Leased {
		// Normal contention: another worker got there first.
		return
	}

	telemetry.JobsLeased.Inc()
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	p.firehose.Publish(ctx, firehose.Event{
		Kind:     firehose.JobStarted,
		JobToken: job.Token,
		JobType:  job.Type,
		Worker:   p.cfg.WorkerName,
	})

	handler, ok := p.handlers[job.Type]
	if !ok {
		p.report(ctx, job, store.PermanentFailure, "no handler registered for job type "+job.Type)
		return
	}

	p.logger.Info("processing job",
		zap.Int64("job_id", job.ID),
		zap.String("job_token", job.Token),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.AttemptCount+1))

	if err := handler(ctx, job); err != nil {
		reason, permanent := classify(err)
		outcome := store.RetryableFailure
		if permanent {
			outcome = store.PermanentFailure
		}
		p.report(ctx, job, outcome, reason)
		return
	}

	p.report(ctx, job, store.Success, "")
}

func (p *Processor) report(ctx context.Context, job models.Job, outcome store.Outcome, reason string) {
	status, err := p.store.ReportOutcome(ctx, job.ID, outcome, reason)
	if err != nil {
		// The lease will expire and the job will be retried; losing the
		// report is safe, just noisy.
		p.logger.Error("failed to report job outcome", zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}

	switch status {
	case models.StatusCompleteSuccess:
		telemetry.JobsSucceeded.Inc()
		p.firehose.Publish(ctx, firehose.Event{Kind: firehose.JobSucceeded, JobToken: job.Token, JobType: job.Type, Worker: p.cfg.WorkerName})
		p.logger.Info("job complete", zap.Int64("job_id", job.ID), zap.String("job_token", job.Token))
	case models.StatusAttemptFailed:
		telemetry.JobsRetried.Inc()
		p.firehose.Publish(ctx, firehose.Event{Kind: firehose.JobFailed, JobToken: job.Token, JobType: job.Type, Worker: p.cfg.WorkerName, Detail: reason})
		p.logger.Warn("job attempt failed", zap.Int64("job_id", job.ID), zap.String("reason", reason))
	case models.StatusDead, models.StatusCompleteFailure:
		telemetry.JobsDead.Inc()
		p.firehose.Publish(ctx, firehose.Event{Kind: firehose.JobDead, JobToken: job.Token, JobType: job.Type, Worker: p.cfg.WorkerName, Detail: reason})
		p.logger.Error("job permanently failed",
			zap.Int64("job_id", job.ID),
			zap.String("status", status),
			zap.String("reason", reason))
	}
}

func nextErrorTimeout(current, increment, cap time.Duration) time.Duration {
	next := current + increment
	if cap > 0 && next > cap {
		return cap
	}
	return next
}
