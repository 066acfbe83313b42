package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

type fakeService struct {
	caller  jobs.Caller
	created struct {
		integrationID uuid.UUID
		jobType       models.JobType
		meta          map[string]any
	}
	action  models.JobType
	filter  repositories.JobFilter
	outcome *jobs.Outcome
	err     error
}

func (f *fakeService) CreateJob(_ context.Context, caller jobs.Caller, integrationID uuid.UUID, jobType models.JobType, meta map[string]any) (*models.Job, error) {
	f.caller = caller
	f.created.integrationID = integrationID
	f.created.jobType = jobType
	f.created.meta = meta
	if f.err != nil {
		return nil, f.err
	}
	return &models.Job{ID: f.outcome.JobID, IntegrationID: integrationID, Type: jobType, Status: models.JobStatusPending}, nil
}

func (f *fakeService) RunJobNow(_ context.Context, caller jobs.Caller, _ uuid.UUID) (*jobs.Outcome, error) {
	f.caller = caller
	return f.outcome, f.err
}

func (f *fakeService) RunIntegrationAction(_ context.Context, caller jobs.Caller, _ uuid.UUID, action models.JobType) (*jobs.Outcome, error) {
	f.caller = caller
	f.action = action
	return f.outcome, f.err
}

func (f *fakeService) GetJob(_ context.Context, caller jobs.Caller, jobID uuid.UUID) (*models.Job, error) {
	f.caller = caller
	if f.err != nil {
		return nil, f.err
	}
	return &models.Job{ID: jobID, Status: models.JobStatusSuccess}, nil
}

func (f *fakeService) ListJobs(_ context.Context, caller jobs.Caller, filter repositories.JobFilter) ([]models.Job, error) {
	f.caller = caller
	f.filter = filter
	return []models.Job{{ID: f.outcome.JobID}}, f.err
}

func newTestServer(service JobService) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	e.Use(middleware.Context(true))
	NewJobHandler(service).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(middleware.HeaderUserID, "user-1")
	req.Header.Set(middleware.HeaderTenantID, "tenant-1")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJobHandler_Create(t *testing.T) {
	service := &fakeService{outcome: &jobs.Outcome{JobID: uuid.New()}}
	e := newTestServer(service)
	integrationID := uuid.New()

	rec := do(e, http.MethodPost, "/api/v1/integrations/"+integrationID.String()+"/jobs", `{"type":"sync","meta":{"source":"cron"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.outcome.JobID, resp.JobID)
	assert.Equal(t, integrationID, service.created.integrationID)
	assert.Equal(t, models.JobTypeSync, service.created.jobType)
	assert.Equal(t, "cron", service.created.meta["source"])
	assert.Equal(t, jobs.Caller{UserID: "user-1", TenantID: "tenant-1"}, service.caller)
}

func TestJobHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "bad integration id", path: "/api/v1/integrations/nope/jobs", body: `{"type":"sync"}`},
		{name: "missing type", path: "/api/v1/integrations/" + uuid.NewString() + "/jobs", body: `{}`},
		{name: "unknown type", path: "/api/v1/integrations/" + uuid.NewString() + "/jobs", body: `{"type":"reindex"}`},
		{name: "malformed body", path: "/api/v1/integrations/" + uuid.NewString() + "/jobs", body: `{"type":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeService{outcome: &jobs.Outcome{}}
			rec := do(newTestServer(service), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, service.created.jobType)
		})
	}
}

func TestJobHandler_Actions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		action models.JobType
	}{
		{name: "test", path: "/test", action: models.JobTypeTest},
		{name: "sync", path: "/sync", action: models.JobTypeSync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeService{outcome: &jobs.Outcome{OK: false, Message: "Stripe rejected the API key", JobID: uuid.New()}}
			rec := do(newTestServer(service), http.MethodPost, "/api/v1/integrations/"+uuid.NewString()+tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var got jobs.Outcome
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, *service.outcome, got)
			assert.Equal(t, tt.action, service.action)
		})
	}
}

func TestJobHandler_RunConflict(t *testing.T) {
	service := &fakeService{err: httperror.NewHTTPError(http.StatusConflict, "a job is already running for this integration")}
	rec := do(newTestServer(service), http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/run", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "already running")
}

func TestJobHandler_Get(t *testing.T) {
	service := &fakeService{}
	jobID := uuid.New()
	rec := do(newTestServer(service), http.MethodGet, "/api/v1/jobs/"+jobID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, jobID, got.ID)
}

func TestJobHandler_List(t *testing.T) {
	service := &fakeService{outcome: &jobs.Outcome{JobID: uuid.New()}}
	e := newTestServer(service)
	integrationID := uuid.New()

	rec := do(e, http.MethodGet, "/api/v1/jobs?integration_id="+integrationID.String()+"&status=failed&type=test&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, service.filter.IntegrationID)
	assert.Equal(t, integrationID, *service.filter.IntegrationID)
	require.NotNil(t, service.filter.Status)
	assert.Equal(t, models.JobStatusFailed, *service.filter.Status)
	require.NotNil(t, service.filter.Type)
	assert.Equal(t, models.JobTypeTest, *service.filter.Type)
	assert.Equal(t, 5, service.filter.Limit)

	for _, query := range []string{"status=done", "type=reindex", "limit=-1", "integration_id=abc"} {
		rec := do(e, http.MethodGet, "/api/v1/jobs?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
