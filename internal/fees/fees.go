package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Breakdown captures the settlement split for one order amount. The fee is
// rounded half-to-even on the cent; earnings absorb the remainder so
// fee + earnings always equals the amount.
type Breakdown struct {
	AmountCents   int64
	FeeCents      int64
	EarningsCents int64
	Percent       decimal.Decimal
}

// ParsePercent converts a stored percent string ("5.0") into a decimal.
func ParsePercent(raw string) (decimal.Decimal, error) {
	percent, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid fee percent %q", raw))
	}
	if percent.IsNegative() || percent.GreaterThan(oneHundred) {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("fee percent %s out of range", percent))
	}
	return percent, nil
}

// Compute derives the platform fee and seller earnings for an order amount.
func Compute(amountCents int64, percent decimal.Decimal) (Breakdown, error) {
	if amountCents <= 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if percent.IsNegative() || percent.GreaterThan(oneHundred) {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("fee percent %s out of range", percent))
	}

	fee := decimal.NewFromInt(amountCents).
		Mul(percent).
		Div(oneHundred).
		RoundBank(0).
		IntPart()

	return Breakdown{
		AmountCents:   amountCents,
		FeeCents:      fee,
		EarningsCents: amountCents - fee,
		Percent:       percent,
	}, nil
}
