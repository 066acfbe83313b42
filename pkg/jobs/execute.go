package jobs

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// finalizeTimeout bounds recording the outcome once the caller's context is detached
const finalizeTimeout = 10 * time.Second

// execute is the shared tail of both run paths. job must already be running.
func (m *Manager) execute(ctx context.Context, caller Caller, job *models.Job, integration *models.Integration) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.execute")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"provider":       job.Provider,
		"job_type":       job.Type,
	})

	m.recordAudit(ctx, caller, models.AuditActionJobStarted, job, map[string]any{
		"attempts": job.Attempts,
	})
	m.publish(ctx, caller, kafka.EventJobStarted, job, nil, 0)
	log.Info("Running integration job")

	metrics.JobsInFlight.Inc()
	result := m.dispatcher.Dispatch(ctx, integration, job.Type)
	metrics.JobsInFlight.Dec()

	// a job that was dispatched is always finalized, even when the caller has gone away
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	finished, durationMs, err := m.finalize(finalCtx, job, result)
	if err != nil {
		tracing.RecordError(span, err, "failed to finalize job")
		log.WithError(err).Error("Failed to finalize integration job")
		return nil, err
	}

	m.recordAudit(finalCtx, caller, models.AuditActionJobFinished, finished, map[string]any{
		"status":      finished.Status,
		"ok":          result.OK,
		"message":     result.Message,
		"duration_ms": durationMs,
	})
	m.publish(finalCtx, caller, kafka.EventJobFinished, finished, &result, durationMs)
	metrics.RecordJob(string(job.Provider), string(job.Type), string(finished.Status), float64(durationMs)/1000)

	log.WithFields(map[string]any{
		"status":      finished.Status,
		"duration_ms": durationMs,
	}).Info("Integration job finished")

	return &Outcome{
		OK:      result.OK,
		Message: result.Message,
		JobID:   finished.ID,
	}, nil
}

// finalize writes the job outcome and the integration fields the job type may change.
// Only a test job changes the integration status; a sync only stamps lastSyncedAt on success.
func (m *Manager) finalize(ctx context.Context, job *models.Job, result providers.Result) (*models.Job, int64, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.finalize")
	defer span.End()

	finishedAt := m.now()
	startedAt := finishedAt
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}

	completion := repositories.JobCompletion{
		JobID:      job.ID,
		Status:     models.JobStatusSuccess,
		FinishedAt: finishedAt,
	}
	if !result.OK {
		message := result.Message
		completion.Status = models.JobStatusFailed
		completion.LastError = &message
	}

	switch job.Type {
	case models.JobTypeTest:
		status := models.IntegrationStatusConnected
		if !result.OK {
			status = models.IntegrationStatusError
		}
		completion.Integration = &repositories.IntegrationChange{
			IntegrationID: job.IntegrationID,
			Status:        &status,
			SetLastError:  true,
			LastError:     completion.LastError,
			LastTestedAt:  &finishedAt,
		}
	case models.JobTypeSync:
		if result.OK {
			completion.Integration = &repositories.IntegrationChange{
				IntegrationID: job.IntegrationID,
				LastSyncedAt:  &finishedAt,
			}
		}
	}

	finished, err := m.jobs.Complete(ctx, completion)
	if err != nil {
		return nil, 0, err
	}

	return finished, durationMillis(startedAt, finishedAt), nil
}

func durationMillis(start, end time.Time) int64 {
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Milliseconds()
}
