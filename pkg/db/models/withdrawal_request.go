package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

// WithdrawalRequest tracks a payout from available funds. The requested
// amount moves available -> frozen when the request is created and leaves the
// ledger exactly once, on approval.
type WithdrawalRequest struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID       uuid.UUID              `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	AmountCents     int64                  `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	PaymentMethod   string                 `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	PaymentDetails  types.JSONMap          `gorm:"column:payment_details;type:jsonb;serializer:json" json:"payment_details,omitempty"`
	Status          enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'" json:"status"`
	RejectionReason *string                `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	AdminNotes      *string                `gorm:"column:admin_notes" json:"admin_notes,omitempty"`
	ProcessedBy     *uuid.UUID             `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at" json:"processed_at,omitempty"`
	LedgerEntryID   *uuid.UUID             `gorm:"column:ledger_entry_id;type:uuid" json:"ledger_entry_id,omitempty"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
