package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// GiftCard is an admin-issued stored-value code redeemable into available
// funds. Redemption is single-use.
type GiftCard struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code        string               `gorm:"column:code;not null;uniqueIndex:ux_gift_cards_code" json:"code"`
	AmountCents int64                `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	Status      enums.GiftCardStatus `gorm:"column:status;type:gift_card_status;not null;default:'active'" json:"status"`
	ExpiresAt   *time.Time           `gorm:"column:expires_at" json:"expires_at,omitempty"`
	RedeemedBy  *uuid.UUID           `gorm:"column:redeemed_by;type:uuid" json:"redeemed_by,omitempty"`
	RedeemedAt  *time.Time           `gorm:"column:redeemed_at" json:"redeemed_at,omitempty"`
	CreatedBy   uuid.UUID            `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
