package enums

import "fmt"

// AdminActionType maps to the admin_action_type enum in Postgres.
type AdminActionType string

const (
	AdminActionResolveDispute      AdminActionType = "resolve_dispute"
	AdminActionForceComplete       AdminActionType = "force_complete"
	AdminActionForceRefund         AdminActionType = "force_refund"
	AdminActionExtendDisputeWindow AdminActionType = "extend_dispute_window"
	AdminActionWalletCredit        AdminActionType = "wallet_credit"
	AdminActionWalletDebit         AdminActionType = "wallet_debit"
	AdminActionWalletFreeze        AdminActionType = "wallet_freeze"
	AdminActionWalletUnfreeze      AdminActionType = "wallet_unfreeze"
	AdminActionWithdrawalProcessed AdminActionType = "withdrawal_processed"
	AdminActionGiftCardIssued      AdminActionType = "giftcard_issued"
	AdminActionConfigChange        AdminActionType = "config_change"
	AdminActionRoleChange          AdminActionType = "role_change"
)

var validAdminActionTypes = []AdminActionType{
	AdminActionResolveDispute,
	AdminActionForceComplete,
	AdminActionForceRefund,
	AdminActionExtendDisputeWindow,
	AdminActionWalletCredit,
	AdminActionWalletDebit,
	AdminActionWalletFreeze,
	AdminActionWalletUnfreeze,
	AdminActionWithdrawalProcessed,
	AdminActionGiftCardIssued,
	AdminActionConfigChange,
	AdminActionRoleChange,
}

// IsValid reports whether the value matches the canonical admin action enum.
func (a AdminActionType) IsValid() bool {
	for _, candidate := range validAdminActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdminActionType converts raw input into an AdminActionType.
func ParseAdminActionType(value string) (AdminActionType, error) {
	for _, candidate := range validAdminActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin action type %q", value)
}
