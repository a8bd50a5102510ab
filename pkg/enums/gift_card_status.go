package enums

import "fmt"

// GiftCardStatus tracks whether a gift card can still be redeemed.
type GiftCardStatus string

const (
	GiftCardStatusActive   GiftCardStatus = "active"
	GiftCardStatusRedeemed GiftCardStatus = "redeemed"
	GiftCardStatusVoid     GiftCardStatus = "void"
)

var validGiftCardStatuses = []GiftCardStatus{
	GiftCardStatusActive,
	GiftCardStatusRedeemed,
	GiftCardStatusVoid,
}

// IsValid reports whether the value is a known GiftCardStatus.
func (s GiftCardStatus) IsValid() bool {
	for _, candidate := range validGiftCardStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGiftCardStatus converts raw input into a GiftCardStatus.
func ParseGiftCardStatus(value string) (GiftCardStatus, error) {
	for _, candidate := range validGiftCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card status %q", value)
}
