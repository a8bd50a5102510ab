package enums

import "fmt"

// TargetType identifies what kind of record an admin action touched.
type TargetType string

const (
	TargetTypeAccount    TargetType = "account"
	TargetTypeOrder      TargetType = "order"
	TargetTypeDispute    TargetType = "dispute"
	TargetTypeWithdrawal TargetType = "withdrawal"
	TargetTypeGiftCard   TargetType = "giftcard"
	TargetTypeConfig     TargetType = "config"
)

var validTargetTypes = []TargetType{
	TargetTypeAccount,
	TargetTypeOrder,
	TargetTypeDispute,
	TargetTypeWithdrawal,
	TargetTypeGiftCard,
	TargetTypeConfig,
}

// IsValid reports whether the value is a known TargetType.
func (t TargetType) IsValid() bool {
	for _, candidate := range validTargetTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTargetType converts raw input into a TargetType.
func ParseTargetType(value string) (TargetType, error) {
	for _, candidate := range validTargetTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target type %q", value)
}
