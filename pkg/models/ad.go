package models

import (
	"time"

	"github.com/google/uuid"
)

// AdAccount mirrors a remote advertising account.
// Unique on (owner_scope, owner_id, provider, external_account_id).
type AdAccount struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	OwnerScope        OwnerScope `db:"owner_scope" json:"owner_scope"`
	OwnerID           uuid.UUID  `db:"owner_id" json:"owner_id"`
	Provider          Provider   `db:"provider" json:"provider"`
	ExternalAccountID string     `db:"external_account_id" json:"external_account_id"`
	Name              string     `db:"name" json:"name"`
	CurrencyCode      *string    `db:"currency_code" json:"currency_code,omitempty"`
	TimeZone          *string    `db:"time_zone" json:"time_zone,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (AdAccount) TableName() string {
	return "ad_accounts"
}

// AdCampaign mirrors a remote campaign.
// Unique on (owner_scope, owner_id, provider, external_account_id, campaign_id).
type AdCampaign struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	OwnerScope        OwnerScope `db:"owner_scope" json:"owner_scope"`
	OwnerID           uuid.UUID  `db:"owner_id" json:"owner_id"`
	Provider          Provider   `db:"provider" json:"provider"`
	ExternalAccountID string     `db:"external_account_id" json:"external_account_id"`
	CampaignID        string     `db:"campaign_id" json:"campaign_id"`
	Name              string     `db:"name" json:"name"`
	Status            string     `db:"status" json:"status"`
	Channel           *string    `db:"channel" json:"channel,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (AdCampaign) TableName() string {
	return "ad_campaigns"
}
