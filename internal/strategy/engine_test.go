package strategy

import (
	"errors"
	"testing"

	"CryptoWatch/internal/calculator"
	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(oldPrice, newPrice string) model.ChangeEvent {
	ev := model.ChangeEvent{
		Symbol: "bitcoin",
		New:    model.PriceRecord{Symbol: "bitcoin", Price: decimal.RequireFromString(newPrice)},
	}
	if oldPrice != "" {
		ev.Old = &model.PriceRecord{Symbol: "bitcoin", Price: decimal.RequireFromString(oldPrice)}
	}
	return ev
}

func TestEvaluate_Rise(t *testing.T) {
	dec, err := Evaluate(event("100", "105"), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, dec.Notify)
	assert.Equal(t, "5", dec.Magnitude.String())
	assert.Equal(t, "5", dec.Change.String())
}

func TestEvaluate_Drop(t *testing.T) {
	dec, err := Evaluate(event("100", "95"), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, dec.Notify)
	assert.Equal(t, "-5", dec.Change.String())
}

func TestEvaluate_ThresholdInclusive(t *testing.T) {
	threshold := decimal.RequireFromString("2.0")

	below, err := Evaluate(event("100", "101.9"), threshold)
	require.NoError(t, err)
	assert.False(t, below.Notify)

	exact, err := Evaluate(event("100", "98"), threshold)
	require.NoError(t, err)
	assert.True(t, exact.Notify)
	assert.Equal(t, "-2", exact.Change.String())
}

func TestEvaluate_FirstObservation(t *testing.T) {
	dec, err := Evaluate(event("", "50000"), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, dec.Notify)
}

func TestEvaluate_ZeroPreviousPrice(t *testing.T) {
	dec, err := Evaluate(event("0", "10"), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, calculator.ErrInvalidPreviousPrice))
	assert.False(t, dec.Notify)
}

func TestEvaluate_ZeroThresholdNotifiesOnAnyUpdate(t *testing.T) {
	dec, err := Evaluate(event("100", "100"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, dec.Notify)
}
