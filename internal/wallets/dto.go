package wallets

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

// DepositInput credits external funds into an account. The idempotency key
// makes a retried deposit land exactly once.
type DepositInput struct {
	AccountID      uuid.UUID
	AmountCents    int64
	IdempotencyKey string
}

// RequestWithdrawalInput locks available funds behind a pending payout
// request.
type RequestWithdrawalInput struct {
	AccountID      uuid.UUID
	AmountCents    int64
	PaymentMethod  string
	PaymentDetails types.JSONMap
	IdempotencyKey string
}

// CancelWithdrawalInput lets the requester release a still-pending request.
type CancelWithdrawalInput struct {
	AccountID    uuid.UUID
	WithdrawalID uuid.UUID
}

// WithdrawalDecision is the admin verdict on a pending withdrawal.
type WithdrawalDecision string

const (
	WithdrawalDecisionApprove WithdrawalDecision = "approve"
	WithdrawalDecisionReject  WithdrawalDecision = "reject"
)

// ProcessWithdrawalInput settles a pending withdrawal one way or the other.
// RejectionReason is demanded for rejections and shown to the requester;
// the admin Reason goes to the audit trail.
type ProcessWithdrawalInput struct {
	WithdrawalID    uuid.UUID
	ActorID         uuid.UUID
	ActorRole       enums.Role
	Reason          string
	IPAddress       *string
	Decision        WithdrawalDecision
	RejectionReason string
	AdminNotes      *string
	Confirmation    disputes.Confirmation
}

// WithdrawalFilters narrows the withdrawal listing. AccountID scopes to one
// requester; Status to one state.
type WithdrawalFilters struct {
	AccountID *uuid.UUID
	Status    *enums.WithdrawalStatus
}

// WithdrawalList is one cursor page of withdrawal requests, newest first.
type WithdrawalList struct {
	Withdrawals []models.WithdrawalRequest `json:"withdrawals"`
	NextCursor  string                     `json:"next_cursor,omitempty"`
}

// RedeemGiftCardInput converts a code into available funds.
type RedeemGiftCardInput struct {
	AccountID      uuid.UUID
	Code           string
	IdempotencyKey string
}

// IssueGiftCardInput mints a new code worth the given amount.
type IssueGiftCardInput struct {
	ActorID      uuid.UUID
	ActorRole    enums.Role
	Reason       string
	IPAddress    *string
	AmountCents  int64
	ExpiresAt    *time.Time
	Confirmation disputes.Confirmation
}

// AdjustInput is a privileged balance mutation on one account: credit,
// debit, freeze or unfreeze.
type AdjustInput struct {
	AccountID      uuid.UUID
	AmountCents    int64
	IdempotencyKey string
	ActorID        uuid.UUID
	ActorRole      enums.Role
	Reason         string
	IPAddress      *string
	Confirmation   disputes.Confirmation
}
