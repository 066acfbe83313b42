package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const integrationsTable = "integrations"

var integrationStruct = database.NewStruct(new(models.Integration))

// IntegrationRepository handles database operations for integrations.
// Rows are not tenant filtered here; the job manager authorizes ownership.
type IntegrationRepository struct {
	*Repository
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db database.DB, logger ectologger.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts an integration. Connect flows own this in production; fern uses it for fixtures.
func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Create")
	defer span.End()

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusDisconnected
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(integrationsTable).
		Cols("id", "owner_scope", "owner_id", "provider", "status", "secret_id", "external_account_id", "account_label", "created_at", "updated_at").
		Values(integration.ID, integration.OwnerScope, integration.OwnerID, integration.Provider, integration.Status,
			integration.SecretID, integration.ExternalAccountID, integration.AccountLabel, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Queryer(ctx).QueryRowxContext(ctx, query, args...).Scan(&integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		tracing.RecordError(span, err, "failed to create integration")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integration.ID,
			"provider":       integration.Provider,
		}).Error("failed to create integration")
		return Internal("failed to create integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
	}).Debugf("Created %s", integrationsTable)
	return nil
}

// GetByID retrieves an integration by ID
func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.GetByID")
	defer span.End()

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var integration models.Integration
	err := r.Queryer(ctx).GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("integration %s does not exist", id)
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to get integration")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": id,
		}).Error("failed to get integration by ID")
		return nil, Internal("failed to get integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": id,
	}).Debugf("Retrieved %s by ID: %s", integrationsTable, id)
	return &integration, nil
}

// applyChange writes the columns a finished job is allowed to touch. Must run inside the caller's transaction.
func (r *IntegrationRepository) applyChange(ctx context.Context, q database.Queryer, change *IntegrationChange) error {
	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable)

	assignments := []string{ub.Assign("updated_at", database.Now())}
	if change.Status != nil {
		assignments = append(assignments, ub.Assign("status", *change.Status))
	}
	if change.SetLastError {
		assignments = append(assignments, ub.Assign("last_error", change.LastError))
	}
	if change.LastTestedAt != nil {
		assignments = append(assignments, ub.Assign("last_tested_at", *change.LastTestedAt))
	}
	if change.LastSyncedAt != nil {
		assignments = append(assignments, ub.Assign("last_synced_at", *change.LastSyncedAt))
	}

	ub.Set(assignments...).Where(ub.Equal("id", change.IntegrationID))

	query, args := ub.Build()
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": change.IntegrationID,
		}).Error("failed to update integration after job")
		return Internal("failed to update integration")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return NotFound("integration %s does not exist", change.IntegrationID)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": change.IntegrationID,
	}).Debugf("Updated %s after job", integrationsTable)
	return nil
}
