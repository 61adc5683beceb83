package strategy

import (
	"fmt"

	"CryptoWatch/internal/calculator"
	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
)

// Decision is the outcome of evaluating one change event.
type Decision struct {
	Notify    bool
	Magnitude decimal.Decimal // unsigned percent, compared against the threshold
	Change    decimal.Decimal // signed percent, used for reporting
}

// Evaluate compares the previous and new price of a change event against threshold.
// The very first observation of a symbol yields a zero Decision and no error.
func Evaluate(ev model.ChangeEvent, threshold decimal.Decimal) (Decision, error) {
	if !ev.HasPrevious() {
		return Decision{}, nil
	}
	oldPrice, newPrice := ev.Old.Price, ev.New.Price

	diff, err := calculator.PercentDiff(oldPrice, newPrice)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", ev.Symbol, err)
	}

	dec := Decision{
		Magnitude: diff,
		Change:    calculator.SignedChange(diff, oldPrice, newPrice),
	}
	dec.Notify = diff.GreaterThanOrEqual(threshold)
	return dec, nil
}
