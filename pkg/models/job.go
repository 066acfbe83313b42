package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

// JobType is the operation a job performs against its integration
type JobType string

const (
	JobTypeTest        JobType = "test"
	JobTypeSync        JobType = "sync"
	JobTypeHealthCheck JobType = "health_check"
	JobTypeCustom      JobType = "custom"
)

func (t JobType) IsValid() bool {
	switch t {
	case JobTypeTest, JobTypeSync, JobTypeHealthCheck, JobTypeCustom:
		return true
	}
	return false
}

// JobStatus moves pending -> running -> success|failed and never back
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSuccess, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job has finished
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// DefaultMaxAttempts is stored on every job. Nothing schedules retries from it.
const DefaultMaxAttempts = 3

// Job is one execution attempt of an operation against an integration
type Job struct {
	ID            uuid.UUID                      `db:"id" json:"id"`
	IntegrationID uuid.UUID                      `db:"integration_id" json:"integration_id"`
	OwnerScope    OwnerScope                     `db:"owner_scope" json:"owner_scope"`
	OwnerID       uuid.UUID                      `db:"owner_id" json:"owner_id"`
	Provider      Provider                       `db:"provider" json:"provider"`
	Type          JobType                        `db:"type" json:"type"`
	Status        JobStatus                      `db:"status" json:"status"`
	Attempts      int                            `db:"attempts" json:"attempts"`
	MaxAttempts   int                            `db:"max_attempts" json:"max_attempts"`
	LastError     *string                        `db:"last_error" json:"last_error,omitempty"`
	Meta          database.JSONB[map[string]any] `db:"meta" json:"meta"`
	StartedAt     *time.Time                     `db:"started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time                     `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt     time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Job) TableName() string {
	return "integration_jobs"
}
