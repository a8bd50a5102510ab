package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
)

// OrderSide selects which side of an order an account listing covers.
type OrderSide string

const (
	OrderSideBuyer  OrderSide = "buyer"
	OrderSideSeller OrderSide = "seller"
)

// CreateInput funds an order from the buyer's available balance. The
// idempotency key makes a retried checkout return the original order instead
// of charging twice.
type CreateInput struct {
	BuyerID        uuid.UUID
	ListingID      uuid.UUID
	IdempotencyKey string
}

// DeliverInput marks the order delivered by its seller and opens the dispute
// window.
type DeliverInput struct {
	SellerID     uuid.UUID
	OrderID      uuid.UUID
	DeliveryNote *string
}

// CompleteInput settles escrow to the seller. By selects the path: the buyer
// confirming receipt or the scheduler acting after the dispute deadline.
type CompleteInput struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
	By      enums.CompletedBy
}

// AdminContext identifies a privileged caller. The step-up guard verifies
// the confirmation before the service is reached; the method used is stored
// on the AdminAction row.
type AdminContext struct {
	ActorID            uuid.UUID
	ActorRole          enums.Role
	Reason             string
	IPAddress          *string
	ConfirmationMethod *enums.ConfirmationMethod
}

// DisputeInput opens a dispute on a delivered order.
type DisputeInput struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
	Reason  string
}

// ResolveDisputeInput applies an admin resolution to a disputed order.
// RefundCents and PayoutCents are read for the split resolution only and
// must not exceed the original hold; the remainder becomes the platform fee.
type ResolveDisputeInput struct {
	Admin       AdminContext
	OrderID     uuid.UUID
	Resolution  enums.DisputeResolution
	Note        *string
	RefundCents int64
	PayoutCents int64
}

// CancelInput withdraws an order before delivery.
type CancelInput struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
}

// ForceCompleteInput settles a delivered or disputed order by admin override.
type ForceCompleteInput struct {
	Admin   AdminContext
	OrderID uuid.UUID
}

// ForceRefundInput returns escrow to the buyer by admin override.
type ForceRefundInput struct {
	Admin   AdminContext
	OrderID uuid.UUID
}

// ExtendDisputeWindowInput pushes the dispute deadline of a delivered order
// forward by whole hours.
type ExtendDisputeWindowInput struct {
	Admin           AdminContext
	OrderID         uuid.UUID
	AdditionalHours int
}

// ListFilters narrows an account's order listing.
type ListFilters struct {
	Side   *OrderSide
	Status *enums.OrderStatus
}

// OrderList is one cursor page of orders, newest first.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// DisputeFilters narrows the dispute queue. Open nil lists everything, true
// only unresolved disputes, false only resolved ones.
type DisputeFilters struct {
	Open *bool
}

// DisputeList is one cursor page of disputes, newest first.
type DisputeList struct {
	Disputes   []models.Dispute `json:"disputes"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
