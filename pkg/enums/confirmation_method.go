package enums

import "fmt"

// ConfirmationMethod records which step-up factor confirmed a privileged
// action.
type ConfirmationMethod string

const (
	ConfirmationMethodPassword ConfirmationMethod = "password"
	ConfirmationMethodPhrase   ConfirmationMethod = "phrase"
)

var validConfirmationMethods = []ConfirmationMethod{
	ConfirmationMethodPassword,
	ConfirmationMethodPhrase,
}

// IsValid reports whether the value is a known ConfirmationMethod.
func (c ConfirmationMethod) IsValid() bool {
	for _, candidate := range validConfirmationMethods {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConfirmationMethod converts raw input into a ConfirmationMethod.
func ParseConfirmationMethod(value string) (ConfirmationMethod, error) {
	for _, candidate := range validConfirmationMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid confirmation method %q", value)
}
