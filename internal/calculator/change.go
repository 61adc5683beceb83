package calculator

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidPreviousPrice is returned when the previous price cannot serve as a divisor.
var ErrInvalidPreviousPrice = errors.New("invalid previous price")

var hundred = decimal.NewFromInt(100)

// PercentDiff returns |old - new| * 100 / old as an unsigned magnitude.
func PercentDiff(oldPrice, newPrice decimal.Decimal) (decimal.Decimal, error) {
	if oldPrice.IsZero() {
		return decimal.Zero, ErrInvalidPreviousPrice
	}
	return oldPrice.Sub(newPrice).Abs().Mul(hundred).Div(oldPrice.Abs()), nil
}

// SignedChange attaches the direction of movement to an unsigned magnitude:
// negative when the new price is below the old one.
func SignedChange(magnitude, oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if newPrice.LessThan(oldPrice) {
		return magnitude.Neg()
	}
	return magnitude
}
