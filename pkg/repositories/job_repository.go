package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	jobsTable = "integration_jobs"

	// unique partial index enforcing one running job per integration
	runningJobIndex = "uq_integration_jobs_running"

	DefaultJobListLimit = 50
	MaxJobListLimit     = 200
)

var jobStruct = database.NewStruct(new(models.Job))

// ErrJobAlreadyRunning is the message returned when the single-running guard rejects a job
const ErrJobAlreadyRunning = "a job is already running for this integration"

// JobRepository is the job record store
type JobRepository struct {
	*Repository
	integrations *IntegrationRepository
}

// NewJobRepository creates a new job repository
func NewJobRepository(db database.DB, logger ectologger.Logger) *JobRepository {
	return &JobRepository{
		Repository:   NewRepository(db, logger),
		integrations: NewIntegrationRepository(db, logger),
	}
}

func jobReturning() string {
	return strings.Join(jobStruct.Columns(), ", ")
}

// Create inserts a job. A job inserted as running is subject to the single-running index.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.Create")
	defer span.End()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.Meta.Data == nil {
		job.Meta = database.NewJSONB(map[string]any{})
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(jobsTable).
		Cols("id", "integration_id", "owner_scope", "owner_id", "provider", "type", "status", "attempts",
			"max_attempts", "meta", "started_at", "created_at", "updated_at").
		Values(job.ID, job.IntegrationID, job.OwnerScope, job.OwnerID, job.Provider, job.Type, job.Status, job.Attempts,
			job.MaxAttempts, job.Meta, job.StartedAt, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Queryer(ctx).QueryRowxContext(ctx, query, args...).Scan(&job.CreatedAt, &job.UpdatedAt)
	if database.IsUniqueViolation(err, runningJobIndex) {
		return Conflict(ErrJobAlreadyRunning)
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to create job")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id":         job.ID,
			"integration_id": job.IntegrationID,
		}).Error("failed to create job")
		return Internal("failed to create job")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"status":         job.Status,
	}).Debugf("Created %s", jobsTable)
	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.GetByID")
	defer span.End()

	sb := jobStruct.SelectFrom(jobsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.Job
	err := r.Queryer(ctx).GetContext(ctx, &job, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("job %s does not exist", id)
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to get job")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id": id,
		}).Error("failed to get job by ID")
		return nil, Internal("failed to get job")
	}

	return &job, nil
}

// GetRunningByIntegration returns the running job of an integration or nil when there is none
func (r *JobRepository) GetRunningByIntegration(ctx context.Context, integrationID uuid.UUID) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.GetRunningByIntegration")
	defer span.End()

	sb := jobStruct.SelectFrom(jobsTable)
	sb.Where(sb.Equal("integration_id", integrationID), sb.Equal("status", models.JobStatusRunning))
	sb.Limit(1)

	query, args := sb.Build()
	var job models.Job
	err := r.Queryer(ctx).GetContext(ctx, &job, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to get running job")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Error("failed to get running job")
		return nil, Internal("failed to get running job")
	}

	return &job, nil
}

// MarkRunning moves a pending job to running in a single conditional update
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.MarkRunning")
	defer span.End()

	query := fmt.Sprintf(`UPDATE %[1]s AS j
SET status = $2, attempts = j.attempts + 1, started_at = $3, updated_at = NOW()
WHERE j.id = $1
  AND j.status = $4
  AND NOT EXISTS (
    SELECT 1 FROM %[1]s AS r
    WHERE r.integration_id = j.integration_id AND r.status = $2 AND r.id <> j.id
  )
RETURNING %[2]s`, jobsTable, jobReturning())

	var job models.Job
	err := r.Queryer(ctx).GetContext(ctx, &job, query, id, models.JobStatusRunning, startedAt, models.JobStatusPending)
	if database.IsUniqueViolation(err, runningJobIndex) {
		return nil, Conflict(ErrJobAlreadyRunning)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainNotStarted(ctx, id)
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to start job")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"job_id": id,
		}).Error("failed to mark job running")
		return nil, Internal("failed to start job")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"attempts":       job.Attempts,
	}).Debug("Marked job running")
	return &job, nil
}

// explainNotStarted turns a zero-row MarkRunning into the matching API error
func (r *JobRepository) explainNotStarted(ctx context.Context, id uuid.UUID) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return Conflict("job has already been started")
	}
	return Conflict(ErrJobAlreadyRunning)
}

// Complete finishes a running job and applies the integration change in the same transaction
func (r *JobRepository) Complete(ctx context.Context, completion JobCompletion) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.Complete")
	defer span.End()

	if !completion.Status.IsTerminal() {
		return nil, BadRequest(fmt.Sprintf("job cannot be completed with status %s", completion.Status))
	}

	query := fmt.Sprintf(`UPDATE %s
SET status = $2, finished_at = GREATEST($3::timestamptz, started_at), last_error = $4, updated_at = NOW()
WHERE id = $1 AND status = $5
RETURNING %s`, jobsTable, jobReturning())

	var job models.Job
	err := database.WithTx(ctx, r.DB(), func(ctx context.Context, tx database.Tx) error {
		err := tx.GetContext(ctx, &job, query, completion.JobID, completion.Status, completion.FinishedAt,
			completion.LastError, models.JobStatusRunning)
		if errors.Is(err, sql.ErrNoRows) {
			return Conflict("job %s is not running", completion.JobID)
		}
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"job_id": completion.JobID,
			}).Error("failed to complete job")
			return Internal("failed to complete job")
		}

		if completion.Integration == nil {
			return nil
		}
		return r.integrations.applyChange(ctx, tx, completion.Integration)
	})
	if err != nil {
		tracing.RecordError(span, err, "failed to complete job")
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":         job.ID,
		"integration_id": job.IntegrationID,
		"status":         job.Status,
	}).Debug("Completed job")
	return &job, nil
}

// List returns jobs newest first
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobRepository.List")
	defer span.End()

	sb := jobStruct.SelectFrom(jobsTable)
	var conditions []string
	if filter.OwnerScope != nil {
		conditions = append(conditions, sb.Equal("owner_scope", *filter.OwnerScope))
	}
	if filter.OwnerID != nil {
		conditions = append(conditions, sb.Equal("owner_id", *filter.OwnerID))
	}
	if filter.IntegrationID != nil {
		conditions = append(conditions, sb.Equal("integration_id", *filter.IntegrationID))
	}
	if filter.Status != nil {
		conditions = append(conditions, sb.Equal("status", *filter.Status))
	}
	if filter.Type != nil {
		conditions = append(conditions, sb.Equal("type", *filter.Type))
	}
	if len(conditions) > 0 {
		sb.Where(conditions...)
	}
	sb.OrderBy("created_at").Desc()
	sb.Limit(clampLimit(filter.Limit))

	query, args := sb.Build()
	jobs := []models.Job{}
	err := r.Queryer(ctx).SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		tracing.RecordError(span, err, "failed to list jobs")
		r.logger.WithContext(ctx).WithError(err).Error("failed to list jobs")
		return nil, Internal("failed to list jobs")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"job_count": len(jobs),
	}).Debugf("Listed %s", jobsTable)
	return jobs, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultJobListLimit
	}
	if limit > MaxJobListLimit {
		return MaxJobListLimit
	}
	return limit
}
