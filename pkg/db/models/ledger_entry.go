package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// LedgerEntry is one immutable money movement on a wallet bucket. Rows are
// append-only: never updated, never deleted. Corrections append a reversing
// entry that references the original via ReversesEntryID.
type LedgerEntry struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID       uuid.UUID          `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	AmountCents     int64              `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	Bucket          enums.LedgerBucket `gorm:"column:bucket;type:ledger_bucket;not null" json:"bucket"`
	Reason          enums.LedgerReason `gorm:"column:reason;type:ledger_reason;not null" json:"reason"`
	RelatedOrderID  *uuid.UUID         `gorm:"column:related_order_id;type:uuid" json:"related_order_id,omitempty"`
	OperationKey    string             `gorm:"column:operation_key;not null;index" json:"operation_key"`
	IdempotencyKey  string             `gorm:"column:idempotency_key;not null;uniqueIndex:ux_ledger_entries_idempotency_key" json:"idempotency_key"`
	ReversesEntryID *uuid.UUID         `gorm:"column:reverses_entry_id;type:uuid" json:"reverses_entry_id,omitempty"`
	Memo            *string            `gorm:"column:memo" json:"memo,omitempty"`
	ActorID         *uuid.UUID         `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
