package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

const (
	AuditActionJobCreated  = "integration_job.created"
	AuditActionJobStarted  = "integration_job.started"
	AuditActionJobFinished = "integration_job.finished"

	AuditResourceIntegrationJob = "integration_job"

	// AuditActorSystem is recorded when no user is attached to the request
	AuditActorSystem = "system"
)

// AuditLogEntry is an append-only action record
type AuditLogEntry struct {
	ID           uuid.UUID                      `db:"id" json:"id"`
	OwnerScope   OwnerScope                     `db:"owner_scope" json:"owner_scope"`
	OwnerID      uuid.UUID                      `db:"owner_id" json:"owner_id"`
	Actor        string                         `db:"actor" json:"actor"`
	Action       string                         `db:"action" json:"action"`
	ResourceType string                         `db:"resource_type" json:"resource_type"`
	ResourceID   uuid.UUID                      `db:"resource_id" json:"resource_id"`
	Details      database.JSONB[map[string]any] `db:"details" json:"details"`
	RequestMeta  database.JSONB[map[string]any] `db:"request_meta" json:"request_meta"`
	CreatedAt    time.Time                      `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
