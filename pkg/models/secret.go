package models

import (
	"time"

	"github.com/google/uuid"
)

// Secret is an encrypted credential payload. Ciphertext is never decrypted outside a provider call.
type Secret struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OwnerScope OwnerScope `db:"owner_scope" json:"owner_scope"`
	OwnerID    uuid.UUID  `db:"owner_id" json:"owner_id"`
	Provider   Provider   `db:"provider" json:"provider"`
	Ciphertext string     `db:"ciphertext" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Secret) TableName() string {
	return "secrets"
}
