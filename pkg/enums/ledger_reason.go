package enums

import "fmt"

// LedgerReason maps to the ledger_reason enum in Postgres.
type LedgerReason string

const (
	LedgerReasonDeposit        LedgerReason = "deposit"
	LedgerReasonWithdrawal     LedgerReason = "withdrawal"
	LedgerReasonOrderHold      LedgerReason = "order_hold"
	LedgerReasonOrderRelease   LedgerReason = "order_release"
	LedgerReasonOrderRefund    LedgerReason = "order_refund"
	LedgerReasonFee            LedgerReason = "fee"
	LedgerReasonGiftCardRedeem LedgerReason = "giftcard_redeem"
	LedgerReasonAdminCredit    LedgerReason = "admin_credit"
	LedgerReasonAdminDebit     LedgerReason = "admin_debit"
	LedgerReasonAdminFreeze    LedgerReason = "admin_freeze"
	LedgerReasonAdminUnfreeze  LedgerReason = "admin_unfreeze"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonDeposit,
	LedgerReasonWithdrawal,
	LedgerReasonOrderHold,
	LedgerReasonOrderRelease,
	LedgerReasonOrderRefund,
	LedgerReasonFee,
	LedgerReasonGiftCardRedeem,
	LedgerReasonAdminCredit,
	LedgerReasonAdminDebit,
	LedgerReasonAdminFreeze,
	LedgerReasonAdminUnfreeze,
}

// IsValid reports whether the value matches the canonical ledger reason enum.
func (r LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
