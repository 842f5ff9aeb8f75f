package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a registered point-of-sale or gate terminal. The enrollment
// secret is stored as an Argon2id hash and exchanged for a JWT on login.
type Device struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index"`
	StoreID    uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`
	Name       string     `gorm:"column:name;not null"`
	SecretHash string     `gorm:"column:secret_hash;not null"`
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
