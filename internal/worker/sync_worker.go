package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billscan/internal/amqp"
	"billscan/internal/core"
	"billscan/internal/services"
	"billscan/internal/storage"
)

// JobStore is the job persistence the worker reads.
type JobStore interface {
	GetSyncJobByID(ctx context.Context, id string) (core.SyncJob, error)
	FailStaleSyncJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// JobRunner executes a queued sync job.
type JobRunner interface {
	Run(ctx context.Context, job core.SyncJob) error
}

// SyncWorker consumes sync requests from the broker and runs the jobs.
type SyncWorker struct {
	jobs       JobStore
	runner     JobRunner
	staleAfter time.Duration
}

func NewSyncWorker(jobs JobStore, runner JobRunner, staleAfter time.Duration) *SyncWorker {
	return &SyncWorker{
		jobs:       jobs,
		runner:     runner,
		staleAfter: staleAfter,
	}
}

// HandleSyncRequest runs the job named by msg. Only a failure to load the
// job is returned, so the broker retries it; pipeline failures are already
// recorded on the job and acknowledged.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequest) error {
	job, err := w.jobs.GetSyncJobByID(ctx, msg.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Sync request for unknown job, dropping", "job_id", msg.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if job.UserID != msg.UserID {
		slog.WarnContext(ctx, "Sync request user does not own job, dropping",
			"job_id", msg.JobID,
			"msg_user_id", msg.UserID,
			"job_user_id", job.UserID)
		return nil
	}

	if job.Status != core.JobQueued {
		slog.InfoContext(ctx, "Job is not queued, skipping", "job_id", job.ID, "status", job.Status)
		return nil
	}

	err = w.runner.Run(ctx, job)
	switch {
	case errors.Is(err, services.ErrJobNotQueued):
		slog.InfoContext(ctx, "Job taken by another runner", "job_id", job.ID)
	case err != nil:
		slog.ErrorContext(ctx, "Sync job failed", "job_id", job.ID, "error", err)
	}
	return nil
}

// RecoverStale fails jobs left queued or running longer than the stale
// threshold, typically by a worker that died mid-run.
func (w *SyncWorker) RecoverStale(ctx context.Context) (int64, error) {
	n, err := w.jobs.FailStaleSyncJobs(ctx, w.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Recovered stale sync jobs", "count", n, "older_than", w.staleAfter)
	}
	return n, nil
}
