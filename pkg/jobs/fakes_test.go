package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

// memoryStore keeps integrations and jobs in memory with the same guarantees as the postgres store
type memoryStore struct {
	mu           sync.Mutex
	integrations map[uuid.UUID]models.Integration
	jobs         map[uuid.UUID]models.Job
	seq          int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		integrations: map[uuid.UUID]models.Integration{},
		jobs:         map[uuid.UUID]models.Job{},
	}
}

func (s *memoryStore) Create(_ context.Context, integration *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	s.integrations[integration.ID] = *integration
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return nil, repositories.NotFound("integration %s does not exist", id)
	}
	return &integration, nil
}

func (s *memoryStore) integration(id uuid.UUID) models.Integration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integrations[id]
}

func (s *memoryStore) job(id uuid.UUID) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *memoryStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// jobStore adapts memoryStore to repositories.JobRepo
type jobStore struct {
	*memoryStore
}

func (s *memoryStore) Jobs() *jobStore {
	return &jobStore{memoryStore: s}
}

func (s *memoryStore) runningLocked(integrationID, except uuid.UUID) bool {
	for _, j := range s.jobs {
		if j.IntegrationID == integrationID && j.Status == models.JobStatusRunning && j.ID != except {
			return true
		}
	}
	return false
}

func (s *jobStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == models.JobStatusRunning && s.runningLocked(job.IntegrationID, job.ID) {
		return repositories.Conflict(repositories.ErrJobAlreadyRunning)
	}
	s.seq++
	job.CreatedAt = time.Unix(int64(s.seq), 0).UTC()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = *job
	return nil
}

func (s *jobStore) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repositories.NotFound("job %s does not exist", id)
	}
	return &job, nil
}

func (s *jobStore) GetRunningByIntegration(_ context.Context, integrationID uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.IntegrationID == integrationID && j.Status == models.JobStatusRunning {
			job := j
			return &job, nil
		}
	}
	return nil, nil
}

func (s *jobStore) MarkRunning(_ context.Context, id uuid.UUID, startedAt time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repositories.NotFound("job %s does not exist", id)
	}
	if job.Status != models.JobStatusPending {
		return nil, repositories.Conflict("job has already been started")
	}
	if s.runningLocked(job.IntegrationID, job.ID) {
		return nil, repositories.Conflict(repositories.ErrJobAlreadyRunning)
	}
	job.Status = models.JobStatusRunning
	job.Attempts++
	job.StartedAt = &startedAt
	s.jobs[id] = job
	return &job, nil
}

// Complete fails on a done context the way a sqlx transaction does
func (s *jobStore) Complete(ctx context.Context, c repositories.JobCompletion) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, repositories.Internal("failed to complete job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[c.JobID]
	if !ok || job.Status != models.JobStatusRunning {
		return nil, repositories.Conflict("job %s is not running", c.JobID)
	}
	finishedAt := c.FinishedAt
	if job.StartedAt != nil && finishedAt.Before(*job.StartedAt) {
		finishedAt = *job.StartedAt
	}
	job.Status = c.Status
	job.FinishedAt = &finishedAt
	job.LastError = c.LastError
	s.jobs[c.JobID] = job

	if change := c.Integration; change != nil {
		integration := s.integrations[change.IntegrationID]
		if change.Status != nil {
			integration.Status = *change.Status
		}
		if change.SetLastError {
			integration.LastError = change.LastError
		}
		if change.LastTestedAt != nil {
			integration.LastTestedAt = change.LastTestedAt
		}
		if change.LastSyncedAt != nil {
			integration.LastSyncedAt = change.LastSyncedAt
		}
		s.integrations[change.IntegrationID] = integration
	}
	return &job, nil
}

func (s *jobStore) List(_ context.Context, f repositories.JobFilter) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Job{}
	for _, j := range s.jobs {
		if f.OwnerScope != nil && j.OwnerScope != *f.OwnerScope {
			continue
		}
		if f.OwnerID != nil && j.OwnerID != *f.OwnerID {
			continue
		}
		if f.IntegrationID != nil && j.IntegrationID != *f.IntegrationID {
			continue
		}
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		if f.Type != nil && j.Type != *f.Type {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
	err     error
}

func (a *memoryAudit) Record(ctx context.Context, entry *models.AuditLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *memoryAudit) actions(resourceID uuid.UUID) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.ResourceID == resourceID {
			out = append(out, e.Action)
		}
	}
	return out
}

// failingEvents records every event and then reports a broker failure
type failingEvents struct {
	mu     sync.Mutex
	events []kafka.JobEvent
}

func (e *failingEvents) PublishJobEvent(_ context.Context, evt *kafka.JobEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, *evt)
	return errors.New("broker unavailable")
}

type dispatchFunc func(ctx context.Context, integration *models.Integration, jobType models.JobType) providers.Result

func (f dispatchFunc) Dispatch(ctx context.Context, integration *models.Integration, jobType models.JobType) providers.Result {
	return f(ctx, integration, jobType)
}

func staticDispatch(result providers.Result) Dispatcher {
	return dispatchFunc(func(context.Context, *models.Integration, models.JobType) providers.Result {
		return result
	})
}

// stepClock advances one second on every read
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
