package models

import (
	"time"

	"github.com/google/uuid"
)

// WalletBalance is the materialized per-account projection of the ledger.
// It is written only inside the same transaction as the entries it reflects;
// the signed sum over ledger entries remains the authoritative value.
type WalletBalance struct {
	AccountID        uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey"`
	AvailableCents   int64     `gorm:"column:available_cents;type:bigint;not null;default:0"`
	PendingCents     int64     `gorm:"column:pending_cents;type:bigint;not null;default:0"`
	FrozenCents      int64     `gorm:"column:frozen_cents;type:bigint;not null;default:0"`
	EscrowHeldCents  int64     `gorm:"column:escrow_held_cents;type:bigint;not null;default:0"`
	PlatformFeeCents int64     `gorm:"column:platform_fee_cents;type:bigint;not null;default:0"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
