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

const secretsTable = "secrets"

var secretStruct = database.NewStruct(new(models.Secret))

// SecretRepository reads encrypted credential payloads. Ciphertext is never logged.
type SecretRepository struct {
	*Repository
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db database.DB, logger ectologger.Logger) *SecretRepository {
	return &SecretRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create stores an already encrypted secret
func (r *SecretRepository) Create(ctx context.Context, secret *models.Secret) error {
	ctx, span := tracing.StartSpan(ctx, "SecretRepository.Create")
	defer span.End()

	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(secretsTable).
		Cols("id", "owner_scope", "owner_id", "provider", "ciphertext", "created_at", "updated_at").
		Values(secret.ID, secret.OwnerScope, secret.OwnerID, secret.Provider, secret.Ciphertext, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Queryer(ctx).QueryRowxContext(ctx, query, args...).Scan(&secret.CreatedAt, &secret.UpdatedAt)
	if err != nil {
		tracing.RecordError(span, err, "failed to create secret")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"secret_id": secret.ID,
		}).Error("failed to create secret")
		return Internal("failed to create secret")
	}

	return nil
}

// GetByID retrieves a secret by ID
func (r *SecretRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Secret, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretRepository.GetByID")
	defer span.End()

	sb := secretStruct.SelectFrom(secretsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var secret models.Secret
	err := r.Queryer(ctx).GetContext(ctx, &secret, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("secret %s does not exist", id)
	}
	if err != nil {
		tracing.RecordError(span, err, "failed to get secret")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"secret_id": id,
		}).Error("failed to get secret by ID")
		return nil, Internal("failed to get secret")
	}

	return &secret, nil
}
