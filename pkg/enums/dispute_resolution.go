package enums

import "fmt"

// DisputeResolution is the outcome an admin applies to a disputed order.
type DisputeResolution string

const (
	DisputeResolutionRefundBuyer   DisputeResolution = "refund_buyer"
	DisputeResolutionReleaseSeller DisputeResolution = "release_seller"
	DisputeResolutionSplit         DisputeResolution = "split"
)

var validDisputeResolutions = []DisputeResolution{
	DisputeResolutionRefundBuyer,
	DisputeResolutionReleaseSeller,
	DisputeResolutionSplit,
}

// String implements fmt.Stringer.
func (r DisputeResolution) String() string {
	return string(r)
}

// IsValid reports whether the value is a known DisputeResolution.
func (r DisputeResolution) IsValid() bool {
	for _, candidate := range validDisputeResolutions {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseDisputeResolution converts raw input into a DisputeResolution.
func ParseDisputeResolution(value string) (DisputeResolution, error) {
	for _, candidate := range validDisputeResolutions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute resolution %q", value)
}
