package models

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationStatus is derived from the outcome of the latest test job
type IntegrationStatus string

const (
	IntegrationStatusConnected    IntegrationStatus = "connected"
	IntegrationStatusError        IntegrationStatus = "error"
	IntegrationStatusExpired      IntegrationStatus = "expired"
	IntegrationStatusRevoked      IntegrationStatus = "revoked"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
)

// Integration is a tenant's configured connection to a provider
type Integration struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	OwnerScope        OwnerScope        `db:"owner_scope" json:"owner_scope"`
	OwnerID           uuid.UUID         `db:"owner_id" json:"owner_id"`
	Provider          Provider          `db:"provider" json:"provider"`
	Status            IntegrationStatus `db:"status" json:"status"`
	SecretID          *uuid.UUID        `db:"secret_id" json:"-"`
	ExternalAccountID *string           `db:"external_account_id" json:"external_account_id,omitempty"`
	AccountLabel      *string           `db:"account_label" json:"account_label,omitempty"`
	LastTestedAt      *time.Time        `db:"last_tested_at" json:"last_tested_at,omitempty"`
	LastSyncedAt      *time.Time        `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastError         *string           `db:"last_error" json:"last_error,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}

// HasExternalAccount reports whether a sub-account has been selected
func (i *Integration) HasExternalAccount() bool {
	return i.ExternalAccountID != nil && *i.ExternalAccountID != ""
}
