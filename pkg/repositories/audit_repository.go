package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const auditLogsTable = "audit_logs"

var auditStruct = database.NewStruct(new(models.AuditLogEntry))

// AuditRepository appends audit entries. Entries are never updated or deleted.
type AuditRepository struct {
	*Repository
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db database.DB, logger ectologger.Logger) *AuditRepository {
	return &AuditRepository{
		Repository: NewRepository(db, logger),
	}
}

// Record appends an entry
func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, span := tracing.StartSpan(ctx, "AuditRepository.Record")
	defer span.End()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Details.Data == nil {
		entry.Details = database.NewJSONB(map[string]any{})
	}
	if entry.RequestMeta.Data == nil {
		entry.RequestMeta = database.NewJSONB(map[string]any{})
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(auditLogsTable).
		Cols("id", "owner_scope", "owner_id", "actor", "action", "resource_type", "resource_id", "details", "request_meta", "created_at").
		Values(entry.ID, entry.OwnerScope, entry.OwnerID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID,
			entry.Details, entry.RequestMeta, database.Now()).
		Returning("created_at")

	query, args := ib.Build()
	// audit rows are written outside any job transaction so a rollback never erases them
	err := r.DB().QueryRowxContext(ctx, query, args...).Scan(&entry.CreatedAt)
	if err != nil {
		tracing.RecordError(span, err, "failed to record audit entry")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":      entry.Action,
			"resource_id": entry.ResourceID,
		}).Error("failed to record audit entry")
		return Internal("failed to record audit entry")
	}

	return nil
}

// ListByResource returns the entries of one resource, oldest first
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType string, resourceID uuid.UUID) ([]models.AuditLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "AuditRepository.ListByResource")
	defer span.End()

	sb := auditStruct.SelectFrom(auditLogsTable)
	sb.Where(sb.Equal("resource_type", resourceType), sb.Equal("resource_id", resourceID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	entries := []models.AuditLogEntry{}
	if err := r.DB().SelectContext(ctx, &entries, query, args...); err != nil {
		tracing.RecordError(span, err, "failed to list audit entries")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"resource_id": resourceID,
		}).Error("failed to list audit entries")
		return nil, Internal("failed to list audit entries")
	}

	return entries, nil
}
