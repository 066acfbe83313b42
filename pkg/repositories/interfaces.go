package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IntegrationRepo defines the interface for integration repository operations
type IntegrationRepo interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error)
}

// JobRepo is the job record store used by the lifecycle manager
type JobRepo interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// GetRunningByIntegration returns nil, nil when no job is running
	GetRunningByIntegration(ctx context.Context, integrationID uuid.UUID) (*models.Job, error)
	// MarkRunning atomically moves a pending job to running. It fails with a 409 when the job is not
	// pending or another job of the same integration is running.
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Job, error)
	// Complete writes the job outcome and the optional integration change in one transaction
	Complete(ctx context.Context, completion JobCompletion) (*models.Job, error)
	List(ctx context.Context, filter JobFilter) ([]models.Job, error)
}

// SecretRepo defines the interface for secret repository operations
type SecretRepo interface {
	Create(ctx context.Context, secret *models.Secret) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Secret, error)
}

// AuditRepo is the append-only audit sink
type AuditRepo interface {
	Record(ctx context.Context, entry *models.AuditLogEntry) error
	ListByResource(ctx context.Context, resourceType string, resourceID uuid.UUID) ([]models.AuditLogEntry, error)
}

// AdRepo stores mirrored ad accounts and campaigns
type AdRepo interface {
	UpsertAccount(ctx context.Context, account *models.AdAccount) error
	UpsertCampaign(ctx context.Context, campaign *models.AdCampaign) error
	ListCampaigns(ctx context.Context, ownerScope models.OwnerScope, ownerID uuid.UUID, provider models.Provider, externalAccountID string) ([]models.AdCampaign, error)
}

// JobCompletion is the terminal write of a job
type JobCompletion struct {
	JobID      uuid.UUID
	Status     models.JobStatus
	FinishedAt time.Time
	LastError  *string
	// Integration is nil when the parent integration must not change
	Integration *IntegrationChange
}

// IntegrationChange lists the integration columns a finished job may touch. Nil fields are left as is.
type IntegrationChange struct {
	IntegrationID uuid.UUID
	Status        *models.IntegrationStatus
	// SetLastError writes LastError even when it is nil, clearing the column
	SetLastError bool
	LastError    *string
	LastTestedAt *time.Time
	LastSyncedAt *time.Time
}

// JobFilter narrows job listings. Nil fields are not filtered on.
type JobFilter struct {
	OwnerScope    *models.OwnerScope
	OwnerID       *uuid.UUID
	IntegrationID *uuid.UUID
	Status        *models.JobStatus
	Type          *models.JobType
	Limit         int
}
