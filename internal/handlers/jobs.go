package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// JobService is the job lifecycle used by the HTTP API
type JobService interface {
	CreateJob(ctx context.Context, caller jobs.Caller, integrationID uuid.UUID, jobType models.JobType, meta map[string]any) (*models.Job, error)
	RunJobNow(ctx context.Context, caller jobs.Caller, jobID uuid.UUID) (*jobs.Outcome, error)
	RunIntegrationAction(ctx context.Context, caller jobs.Caller, integrationID uuid.UUID, action models.JobType) (*jobs.Outcome, error)
	GetJob(ctx context.Context, caller jobs.Caller, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, caller jobs.Caller, filter repositories.JobFilter) ([]models.Job, error)
}

// JobHandler handles integration job API requests
type JobHandler struct {
	service JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(service JobService) *JobHandler {
	return &JobHandler{
		service: service,
	}
}

// CreateJobRequest is the request body for queueing a job
type CreateJobRequest struct {
	Type models.JobType `json:"type" validate:"required,oneof=test sync health_check custom"`
	Meta map[string]any `json:"meta,omitempty"`
}

// CreateJobResponse is returned when a job is queued
type CreateJobResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

// RegisterRoutes registers the job routes
func (h *JobHandler) RegisterRoutes(g *echo.Group) {
	integrations := g.Group("/integrations")
	integrations.POST("/:id/jobs", h.Create)
	integrations.POST("/:id/test", h.Test)
	integrations.POST("/:id/sync", h.Sync)

	jobsGroup := g.Group("/jobs")
	jobsGroup.GET("", h.List)
	jobsGroup.GET("/:id", h.Get)
	jobsGroup.POST("/:id/run", h.Run)
}

// Create handles POST /integrations/:id/jobs
func (h *JobHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Create")
	defer span.End()

	integrationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req CreateJobRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	job, err := h.service.CreateJob(ctx, jobs.CallerFromContext(ctx), integrationID, req.Type, req.Meta)
	if err != nil {
		return err
	}

	return CreatedResponse(c, CreateJobResponse{JobID: job.ID})
}

// Run handles POST /jobs/:id/run
func (h *JobHandler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Run")
	defer span.End()

	jobID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	outcome, err := h.service.RunJobNow(ctx, jobs.CallerFromContext(ctx), jobID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outcome)
}

// Test handles POST /integrations/:id/test
func (h *JobHandler) Test(c echo.Context) error {
	return h.action(c, models.JobTypeTest)
}

// Sync handles POST /integrations/:id/sync
func (h *JobHandler) Sync(c echo.Context) error {
	return h.action(c, models.JobTypeSync)
}

func (h *JobHandler) action(c echo.Context, action models.JobType) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.action")
	defer span.End()

	integrationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	outcome, err := h.service.RunIntegrationAction(ctx, jobs.CallerFromContext(ctx), integrationID, action)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outcome)
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.Get")
	defer span.End()

	jobID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	job, err := h.service.GetJob(ctx, jobs.CallerFromContext(ctx), jobID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, job)
}

// List handles GET /jobs?integration_id=&status=&type=&limit=
func (h *JobHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "JobHandler.List")
	defer span.End()

	var filter repositories.JobFilter
	var err error

	if filter.IntegrationID, err = ParseOptionalUUID(c, "integration_id"); err != nil {
		return err
	}
	if filter.Limit, err = ParseOptionalInt(c, "limit"); err != nil {
		return err
	}
	if value := c.QueryParam("status"); value != "" {
		status := models.JobStatus(value)
		if !status.IsValid() {
			return BadRequest("status must be one of: pending running success failed")
		}
		filter.Status = &status
	}
	if value := c.QueryParam("type"); value != "" {
		jobType := models.JobType(value)
		if !jobType.IsValid() {
			return BadRequest("type must be one of: test sync health_check custom")
		}
		filter.Type = &jobType
	}

	list, err := h.service.ListJobs(ctx, jobs.CallerFromContext(ctx), filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, list)
}
