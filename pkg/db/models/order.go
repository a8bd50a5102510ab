package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// Order tracks an escrow purchase through its settlement lifecycle. Status
// and the timestamp columns are mutated only through named transitions.
type Order struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber         string             `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number" json:"order_number"`
	BuyerID             uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID            uuid.UUID          `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	ListingID           uuid.UUID          `gorm:"column:listing_id;type:uuid;not null" json:"listing_id"`
	AmountCents         int64              `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	PlatformFeeCents    int64              `gorm:"column:platform_fee_cents;type:bigint;not null;default:0" json:"platform_fee_cents"`
	SellerEarningsCents int64              `gorm:"column:seller_earnings_cents;type:bigint;not null;default:0" json:"seller_earnings_cents"`
	FeePercent          string             `gorm:"column:fee_percent;type:text;not null" json:"fee_percent"`
	Status              enums.OrderStatus  `gorm:"column:status;type:order_status;not null;default:'created'" json:"status"`
	DeliveryNote        *string            `gorm:"column:delivery_note" json:"delivery_note,omitempty"`
	PaidAt              *time.Time         `gorm:"column:paid_at" json:"paid_at,omitempty"`
	DeliveredAt         *time.Time         `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	DisputeOpenedAt     *time.Time         `gorm:"column:dispute_opened_at" json:"dispute_opened_at,omitempty"`
	DisputeDeadline     *time.Time         `gorm:"column:dispute_deadline" json:"dispute_deadline,omitempty"`
	ProtectionReleaseAt *time.Time         `gorm:"column:protection_release_at" json:"protection_release_at,omitempty"`
	CompletedAt         *time.Time         `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CompletedBy         *enums.CompletedBy `gorm:"column:completed_by;type:completed_by" json:"completed_by,omitempty"`
	EarningsReleasedAt  *time.Time         `gorm:"column:earnings_released_at" json:"earnings_released_at,omitempty"`
	RefundedAt          *time.Time         `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CancelledAt         *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
