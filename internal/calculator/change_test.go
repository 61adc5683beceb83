package calculator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPercentDiff(t *testing.T) {
	cases := []struct {
		old, new string
		want     string
	}{
		{"100", "105", "5"},
		{"100", "95", "5"},
		{"50000", "45000", "10"},
		{"100", "100", "0"},
		{"1.2345", "1.2345", "0"},
		{"100", "101.9", "1.9"},
	}
	for _, tc := range cases {
		got, err := PercentDiff(d(tc.old), d(tc.new))
		require.NoError(t, err)
		assert.Truef(t, got.Equal(d(tc.want)), "%s -> %s: got %s want %s", tc.old, tc.new, got, tc.want)
	}
}

func TestPercentDiff_ZeroPrevious(t *testing.T) {
	_, err := PercentDiff(decimal.Zero, d("10"))
	assert.True(t, errors.Is(err, ErrInvalidPreviousPrice))
}

func TestSignedChange(t *testing.T) {
	assert.Equal(t, "5", SignedChange(d("5"), d("100"), d("105")).String())
	assert.Equal(t, "-5", SignedChange(d("5"), d("100"), d("95")).String())
	assert.Equal(t, "0", SignedChange(d("0"), d("100"), d("100")).String())
}
