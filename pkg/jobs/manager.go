// Package jobs is the integration job lifecycle: create, run, finalize and audit.
package jobs

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Dispatcher runs a provider operation. It reports every failure as a failed result.
type Dispatcher interface {
	Dispatch(ctx context.Context, integration *models.Integration, jobType models.JobType) providers.Result
}

// AuditSink appends audit entries
type AuditSink interface {
	Record(ctx context.Context, entry *models.AuditLogEntry) error
}

// EventPublisher publishes job lifecycle events
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, evt *kafka.JobEvent) error
}

// Outcome is the result of running a job
type Outcome struct {
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	JobID   uuid.UUID `json:"job_id"`
}

// Manager creates and runs integration jobs
type Manager struct {
	integrations repositories.IntegrationRepo
	jobs         repositories.JobRepo
	dispatcher   Dispatcher
	audit        AuditSink
	events       EventPublisher
	tenants      TenantResolver
	now          func() time.Time
	logger       ectologger.Logger
}

// NewManager creates a new job manager. events may be nil.
func NewManager(
	integrations repositories.IntegrationRepo,
	jobs repositories.JobRepo,
	dispatcher Dispatcher,
	audit AuditSink,
	events EventPublisher,
	tenants TenantResolver,
	logger ectologger.Logger,
) *Manager {
	if tenants == nil {
		tenants = CallerTenantResolver{}
	}
	return &Manager{
		integrations: integrations,
		jobs:         jobs,
		dispatcher:   dispatcher,
		audit:        audit,
		events:       events,
		tenants:      tenants,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// CreateJob queues a pending job for the integration
func (m *Manager) CreateJob(ctx context.Context, caller Caller, integrationID uuid.UUID, jobType models.JobType, meta map[string]any) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.CreateJob")
	defer span.End()

	if !jobType.IsValid() {
		return nil, repositories.BadRequest("invalid job type")
	}

	integration, err := m.getIntegration(ctx, caller, integrationID)
	if err != nil {
		return nil, err
	}

	if meta == nil {
		meta = map[string]any{}
	}
	job := &models.Job{
		IntegrationID: integration.ID,
		OwnerScope:    integration.OwnerScope,
		OwnerID:       integration.OwnerID,
		Provider:      integration.Provider,
		Type:          jobType,
		Status:        models.JobStatusPending,
		MaxAttempts:   models.DefaultMaxAttempts,
		Meta:          database.NewJSONB(meta),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		tracing.RecordError(span, err, "failed to create job")
		return nil, err
	}

	m.recordAudit(ctx, caller, models.AuditActionJobCreated, job, nil)
	m.publish(ctx, caller, kafka.EventJobCreated, job, nil, 0)

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"job_type":       job.Type,
	}).Info("Created integration job")
	return job, nil
}

// RunJobNow runs a pending job synchronously
func (m *Manager) RunJobNow(ctx context.Context, caller Caller, jobID uuid.UUID) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.RunJobNow")
	defer span.End()

	job, err := m.jobs.GetByID(ctx, jobID)
	if repositories.IsStatus(err, http.StatusNotFound) {
		return nil, repositories.NotFound("job not found")
	}
	if err != nil {
		return nil, err
	}

	if err := m.authorize(ctx, caller, job.OwnerScope, job.OwnerID, repositories.NotFound("job not found")); err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusPending {
		return nil, repositories.Conflict("job has already been started")
	}

	if err := m.checkNotRunning(ctx, job.IntegrationID, job.ID, job.Provider); err != nil {
		return nil, err
	}

	integration, err := m.integrations.GetByID(ctx, job.IntegrationID)
	if repositories.IsStatus(err, http.StatusNotFound) {
		return nil, repositories.NotFound("integration not found")
	}
	if err != nil {
		return nil, err
	}

	started, err := m.jobs.MarkRunning(ctx, job.ID, m.now())
	if err != nil {
		if repositories.IsStatus(err, http.StatusConflict) {
			metrics.RecordJobConflict(string(job.Provider))
		}
		tracing.RecordError(span, err, "failed to start job")
		return nil, err
	}

	return m.execute(ctx, caller, started, integration)
}

// RunIntegrationAction creates a job that is already running and executes it. Only test and sync are actions.
func (m *Manager) RunIntegrationAction(ctx context.Context, caller Caller, integrationID uuid.UUID, action models.JobType) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.RunIntegrationAction")
	defer span.End()

	if action != models.JobTypeTest && action != models.JobTypeSync {
		return nil, repositories.BadRequest("action must be test or sync")
	}

	integration, err := m.getIntegration(ctx, caller, integrationID)
	if err != nil {
		return nil, err
	}

	if err := m.checkNotRunning(ctx, integration.ID, uuid.Nil, integration.Provider); err != nil {
		return nil, err
	}

	startedAt := m.now()
	job := &models.Job{
		IntegrationID: integration.ID,
		OwnerScope:    integration.OwnerScope,
		OwnerID:       integration.OwnerID,
		Provider:      integration.Provider,
		Type:          action,
		Status:        models.JobStatusRunning,
		Attempts:      1,
		MaxAttempts:   models.DefaultMaxAttempts,
		Meta:          database.NewJSONB(map[string]any{"trigger": "action"}),
		StartedAt:     &startedAt,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		if repositories.IsStatus(err, http.StatusConflict) {
			metrics.RecordJobConflict(string(integration.Provider))
		}
		tracing.RecordError(span, err, "failed to create running job")
		return nil, err
	}

	m.recordAudit(ctx, caller, models.AuditActionJobCreated, job, nil)
	m.publish(ctx, caller, kafka.EventJobCreated, job, nil, 0)

	return m.execute(ctx, caller, job, integration)
}

// GetJob returns a job visible to the caller
func (m *Manager) GetJob(ctx context.Context, caller Caller, jobID uuid.UUID) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.GetJob")
	defer span.End()

	job, err := m.jobs.GetByID(ctx, jobID)
	if repositories.IsStatus(err, http.StatusNotFound) {
		return nil, repositories.NotFound("job not found")
	}
	if err != nil {
		return nil, err
	}

	if err := m.authorize(ctx, caller, job.OwnerScope, job.OwnerID, repositories.NotFound("job not found")); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the caller's jobs newest first. Platform callers see every tenant.
func (m *Manager) ListJobs(ctx context.Context, caller Caller, filter repositories.JobFilter) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobManager.ListJobs")
	defer span.End()

	if err := m.tenantFilter(ctx, caller, &filter); err != nil {
		return nil, err
	}
	return m.jobs.List(ctx, filter)
}

func (m *Manager) getIntegration(ctx context.Context, caller Caller, integrationID uuid.UUID) (*models.Integration, error) {
	integration, err := m.integrations.GetByID(ctx, integrationID)
	if repositories.IsStatus(err, http.StatusNotFound) {
		return nil, repositories.NotFound("integration not found")
	}
	if err != nil {
		return nil, err
	}

	if err := m.authorize(ctx, caller, integration.OwnerScope, integration.OwnerID, repositories.NotFound("integration not found")); err != nil {
		return nil, err
	}
	return integration, nil
}

// checkNotRunning rejects early when another job of the integration is running.
// The store enforces the same rule atomically when the job is marked running.
func (m *Manager) checkNotRunning(ctx context.Context, integrationID, jobID uuid.UUID, provider models.Provider) error {
	running, err := m.jobs.GetRunningByIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	if running != nil && running.ID != jobID {
		metrics.RecordJobConflict(string(provider))
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"integration_id": integrationID,
			"running_job_id": running.ID,
		}).Info("Rejected job run, another job is running")
		return repositories.Conflict(repositories.ErrJobAlreadyRunning)
	}
	return nil
}
