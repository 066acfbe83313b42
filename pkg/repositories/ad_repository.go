package repositories

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	adAccountsTable  = "ad_accounts"
	adCampaignsTable = "ad_campaigns"
)

var adCampaignStruct = database.NewStruct(new(models.AdCampaign))

// AdRepository upserts mirrored ad accounts and campaigns by their natural keys
type AdRepository struct {
	*Repository
}

// NewAdRepository creates a new ad repository
func NewAdRepository(db database.DB, logger ectologger.Logger) *AdRepository {
	return &AdRepository{
		Repository: NewRepository(db, logger),
	}
}

// UpsertAccount inserts or refreshes an account. The row id of an existing account is kept.
func (r *AdRepository) UpsertAccount(ctx context.Context, account *models.AdAccount) error {
	ctx, span := tracing.StartSpan(ctx, "AdRepository.UpsertAccount")
	defer span.End()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, owner_scope, owner_id, provider, external_account_id, name, currency_code, time_zone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (owner_scope, owner_id, provider, external_account_id) DO UPDATE
SET name = EXCLUDED.name,
    currency_code = EXCLUDED.currency_code,
    time_zone = EXCLUDED.time_zone,
    updated_at = NOW()
RETURNING id, created_at, updated_at`, adAccountsTable)

	err := r.Queryer(ctx).QueryRowxContext(ctx, query,
		account.ID, account.OwnerScope, account.OwnerID, account.Provider, account.ExternalAccountID,
		account.Name, account.CurrencyCode, account.TimeZone,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		tracing.RecordError(span, err, "failed to upsert ad account")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_account_id": account.ExternalAccountID,
			"provider":            account.Provider,
		}).Error("failed to upsert ad account")
		return Internal("failed to save ad account")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"ad_account_id":       account.ID,
		"external_account_id": account.ExternalAccountID,
	}).Debugf("Upserted %s", adAccountsTable)
	return nil
}

// UpsertCampaign inserts or refreshes a campaign
func (r *AdRepository) UpsertCampaign(ctx context.Context, campaign *models.AdCampaign) error {
	ctx, span := tracing.StartSpan(ctx, "AdRepository.UpsertCampaign")
	defer span.End()

	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, owner_scope, owner_id, provider, external_account_id, campaign_id, name, status, channel, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
ON CONFLICT (owner_scope, owner_id, provider, external_account_id, campaign_id) DO UPDATE
SET name = EXCLUDED.name,
    status = EXCLUDED.status,
    channel = EXCLUDED.channel,
    updated_at = NOW()
RETURNING id, created_at, updated_at`, adCampaignsTable)

	err := r.Queryer(ctx).QueryRowxContext(ctx, query,
		campaign.ID, campaign.OwnerScope, campaign.OwnerID, campaign.Provider, campaign.ExternalAccountID,
		campaign.CampaignID, campaign.Name, campaign.Status, campaign.Channel,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		tracing.RecordError(span, err, "failed to upsert ad campaign")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_account_id": campaign.ExternalAccountID,
			"campaign_id":         campaign.CampaignID,
		}).Error("failed to upsert ad campaign")
		return Internal("failed to save ad campaign")
	}

	return nil
}

// ListCampaigns returns the mirrored campaigns of one account
func (r *AdRepository) ListCampaigns(ctx context.Context, ownerScope models.OwnerScope, ownerID uuid.UUID, provider models.Provider, externalAccountID string) ([]models.AdCampaign, error) {
	ctx, span := tracing.StartSpan(ctx, "AdRepository.ListCampaigns")
	defer span.End()

	sb := adCampaignStruct.SelectFrom(adCampaignsTable)
	sb.Where(
		sb.Equal("owner_scope", ownerScope),
		sb.Equal("owner_id", ownerID),
		sb.Equal("provider", provider),
		sb.Equal("external_account_id", externalAccountID),
	)
	sb.OrderBy("campaign_id")

	query, args := sb.Build()
	campaigns := []models.AdCampaign{}
	if err := r.Queryer(ctx).SelectContext(ctx, &campaigns, query, args...); err != nil {
		tracing.RecordError(span, err, "failed to list ad campaigns")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_account_id": externalAccountID,
		}).Error("failed to list ad campaigns")
		return nil, Internal("failed to list ad campaigns")
	}

	return campaigns, nil
}
