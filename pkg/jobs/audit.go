package jobs

import (
	"context"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

// recordAudit appends an audit entry. A failed write is logged and counted, never returned.
func (m *Manager) recordAudit(ctx context.Context, caller Caller, action string, job *models.Job, extra map[string]any) {
	if m.audit == nil {
		return
	}

	details := map[string]any{
		"integration_id": job.IntegrationID,
		"provider":       job.Provider,
		"type":           job.Type,
	}
	for k, v := range extra {
		details[k] = v
	}

	entry := &models.AuditLogEntry{
		OwnerScope:   job.OwnerScope,
		OwnerID:      job.OwnerID,
		Actor:        caller.Actor(),
		Action:       action,
		ResourceType: models.AuditResourceIntegrationJob,
		ResourceID:   job.ID,
		Details:      database.NewJSONB(details),
		RequestMeta:  database.NewJSONB(requestMeta(ctx)),
	}

	if err := m.audit.Record(ctx, entry); err != nil {
		metrics.RecordAuditFailure(action)
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id": job.ID,
			"action": action,
		}).Warn("Failed to record audit entry")
	}
}

func requestMeta(ctx context.Context) map[string]any {
	meta := map[string]any{}
	if v := appctx.GetRequestID(ctx); v != "" {
		meta["request_id"] = v
	}
	if v := appctx.GetRemoteIP(ctx); v != "" {
		meta["remote_ip"] = v
	}
	if v := appctx.GetUserAgent(ctx); v != "" {
		meta["user_agent"] = v
	}
	return meta
}

// publish sends a lifecycle event when a publisher is configured. Failures are logged by the producer.
func (m *Manager) publish(ctx context.Context, caller Caller, eventType string, job *models.Job, result *providers.Result, durationMs int64) {
	if m.events == nil {
		return
	}

	evt := &kafka.JobEvent{
		Type:          eventType,
		JobID:         job.ID.String(),
		IntegrationID: job.IntegrationID.String(),
		OwnerScope:    string(job.OwnerScope),
		OwnerID:       job.OwnerID.String(),
		Provider:      string(job.Provider),
		JobType:       string(job.Type),
		Status:        string(job.Status),
		Attempts:      job.Attempts,
		DurationMs:    durationMs,
		Actor:         caller.Actor(),
		Timestamp:     m.now(),
	}
	if result != nil {
		ok := result.OK
		evt.OK = &ok
		evt.Message = result.Message
	}

	if err := m.events.PublishJobEvent(ctx, evt); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Warn("Failed to publish job event")
	}
}
