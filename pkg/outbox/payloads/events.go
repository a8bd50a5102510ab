package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// OrderPaidEvent is emitted when escrow funding succeeds and the order
// becomes paid.
type OrderPaidEvent struct {
	OrderID             uuid.UUID `json:"order_id"`
	OrderNumber         string    `json:"order_number"`
	BuyerID             uuid.UUID `json:"buyer_id"`
	SellerID            uuid.UUID `json:"seller_id"`
	ListingID           uuid.UUID `json:"listing_id"`
	AmountCents         int64     `json:"amount_cents"`
	PlatformFeeCents    int64     `json:"platform_fee_cents"`
	SellerEarningsCents int64     `json:"seller_earnings_cents"`
	PaidAt              time.Time `json:"paid_at"`
}

// OrderDeliveredEvent signals the seller marked the order delivered and the
// dispute window opened.
type OrderDeliveredEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	DeliveredAt     time.Time `json:"delivered_at"`
	DisputeDeadline time.Time `json:"dispute_deadline"`
}

// OrderCompletedEvent is emitted when escrow settles to the seller.
type OrderCompletedEvent struct {
	OrderID             uuid.UUID         `json:"order_id"`
	BuyerID             uuid.UUID         `json:"buyer_id"`
	SellerID            uuid.UUID         `json:"seller_id"`
	CompletedBy         enums.CompletedBy `json:"completed_by"`
	PlatformFeeCents    int64             `json:"platform_fee_cents"`
	SellerEarningsCents int64             `json:"seller_earnings_cents"`
	ProtectionReleaseAt time.Time         `json:"protection_release_at"`
	CompletedAt         time.Time         `json:"completed_at"`
}

// OrderDisputedEvent is emitted when a party opens a dispute inside the
// window.
type OrderDisputedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	DisputeID uuid.UUID `json:"dispute_id"`
	OpenedBy  uuid.UUID `json:"opened_by"`
	Reason    string    `json:"reason"`
	OpenedAt  time.Time `json:"opened_at"`
}

// OrderRefundedEvent is emitted when escrow returns to the buyer, fully or
// as the buyer share of a split.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID                `json:"order_id"`
	BuyerID     uuid.UUID                `json:"buyer_id"`
	RefundCents int64                    `json:"refund_cents"`
	Resolution  *enums.DisputeResolution `json:"resolution,omitempty"`
	RefundedAt  time.Time                `json:"refunded_at"`
}

// OrderCancelledEvent is emitted when an unfunded order is withdrawn.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// EarningsReleasedEvent signals seller protection has elapsed and pending
// earnings moved to available.
type EarningsReleasedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	AmountCents int64     `json:"amount_cents"`
	ReleasedAt  time.Time `json:"released_at"`
}

// WalletDepositedEvent is emitted when external funds land in a wallet.
type WalletDepositedEvent struct {
	AccountID   uuid.UUID `json:"account_id"`
	EntryID     uuid.UUID `json:"entry_id"`
	AmountCents int64     `json:"amount_cents"`
}

// WalletAdjustedEvent covers privileged credit/debit/freeze/unfreeze
// operations on a wallet.
type WalletAdjustedEvent struct {
	AccountID   uuid.UUID             `json:"account_id"`
	Action      enums.AdminActionType `json:"action"`
	AmountCents int64                 `json:"amount_cents"`
	Reason      string                `json:"reason,omitempty"`
}

// WithdrawalRequestedEvent is emitted when a payout request locks funds.
type WithdrawalRequestedEvent struct {
	WithdrawalID  uuid.UUID `json:"withdrawal_id"`
	AccountID     uuid.UUID `json:"account_id"`
	AmountCents   int64     `json:"amount_cents"`
	PaymentMethod string    `json:"payment_method"`
}

// WithdrawalApprovedEvent is emitted when an admin pays out a withdrawal.
type WithdrawalApprovedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	AmountCents  int64     `json:"amount_cents"`
	ProcessedBy  uuid.UUID `json:"processed_by"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// WithdrawalRejectedEvent is emitted when a payout request is declined and
// the locked funds restored.
type WithdrawalRejectedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	AmountCents  int64     `json:"amount_cents"`
	Reason       string    `json:"reason,omitempty"`
}

// GiftCardRedeemedEvent is emitted when a code converts to available funds.
type GiftCardRedeemedEvent struct {
	GiftCardID  uuid.UUID `json:"gift_card_id"`
	AccountID   uuid.UUID `json:"account_id"`
	AmountCents int64     `json:"amount_cents"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}
