package enums

import "fmt"

// CompletedBy records which path settled an order: the buyer's confirmation,
// an admin override, or the scheduler's auto-complete.
type CompletedBy string

const (
	CompletedByBuyer CompletedBy = "buyer"
	CompletedByAdmin CompletedBy = "admin"
	CompletedByAuto  CompletedBy = "auto"
)

var validCompletedByValues = []CompletedBy{
	CompletedByBuyer,
	CompletedByAdmin,
	CompletedByAuto,
}

// IsValid reports whether the value is a known CompletedBy.
func (c CompletedBy) IsValid() bool {
	for _, candidate := range validCompletedByValues {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCompletedBy converts raw input into a CompletedBy.
func ParseCompletedBy(value string) (CompletedBy, error) {
	for _, candidate := range validCompletedByValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid completed by %q", value)
}
