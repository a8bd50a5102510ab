package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminCredential holds the argon2id hash an admin re-enters for step-up
// confirmation. Primary authentication lives outside this service.
type AdminCredential struct {
	AccountID    uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
