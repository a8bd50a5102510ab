package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateWallet     OutboxAggregateType = "wallet"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
	AggregateGiftCard   OutboxAggregateType = "giftcard"
	AggregateDispute    OutboxAggregateType = "dispute"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWallet,
	AggregateWithdrawal,
	AggregateGiftCard,
	AggregateDispute,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. External
// notifiers subscribe to these; delivery failure never rolls back the
// transition that emitted them.
type OutboxEventType string

const (
	EventOrderPaid           OutboxEventType = "order.paid"
	EventOrderDelivered      OutboxEventType = "order.delivered"
	EventOrderCompleted      OutboxEventType = "order.completed"
	EventOrderDisputed       OutboxEventType = "order.disputed"
	EventOrderRefunded       OutboxEventType = "order.refunded"
	EventOrderCancelled      OutboxEventType = "order.cancelled"
	EventEarningsReleased    OutboxEventType = "order.earnings_released"
	EventWalletDeposited     OutboxEventType = "wallet.deposited"
	EventWalletAdjusted      OutboxEventType = "wallet.adjusted"
	EventWithdrawalRequested OutboxEventType = "withdrawal.requested"
	EventWithdrawalApproved  OutboxEventType = "withdrawal.approved"
	EventWithdrawalRejected  OutboxEventType = "withdrawal.rejected"
	EventGiftCardRedeemed    OutboxEventType = "giftcard.redeemed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderDelivered,
	EventOrderCompleted,
	EventOrderDisputed,
	EventOrderRefunded,
	EventOrderCancelled,
	EventEarningsReleased,
	EventWalletDeposited,
	EventWalletAdjusted,
	EventWithdrawalRequested,
	EventWithdrawalApproved,
	EventWithdrawalRejected,
	EventGiftCardRedeemed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
