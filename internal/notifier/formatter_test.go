package notifier

import (
	"regexp"
	"strings"
	"testing"

	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() model.PriceRecord {
	return model.PriceRecord{
		Symbol:    "bitcoin",
		Price:     decimal.RequireFromString("45000"),
		MarketCap: decimal.RequireFromString("900000000000"),
		Volume24h: decimal.RequireFromString("25000000000.5"),
	}
}

var fieldRe = regexp.MustCompile(`(?m)^\s*(Symbol|Change|Price|Market cap|Volume 24H)\s*:\s*(\S+)`)

func parseMessage(t *testing.T, msg string) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, m := range fieldRe.FindAllStringSubmatch(msg, -1) {
		out[m[1]] = m[2]
	}
	return out
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(decimal.NewFromInt(-10), sampleRecord())

	fields := parseMessage(t, msg)
	require.Len(t, fields, 5)
	assert.Equal(t, "bitcoin/USD", fields["Symbol"])
	assert.Equal(t, "-10.00%", fields["Change"])
	assert.Equal(t, "45000", fields["Price"])
	assert.Equal(t, "900000000000", fields["Market cap"])
	assert.Equal(t, "25000000000.5", fields["Volume 24H"])
	assert.Contains(t, msg, "-10.0")
}

func TestFormatMessage_Deterministic(t *testing.T) {
	a := FormatMessage(decimal.NewFromInt(5), sampleRecord())
	b := FormatMessage(decimal.NewFromInt(5), sampleRecord())
	assert.Equal(t, a, b)
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "+5.00", FormatChange(decimal.NewFromInt(5)))
	assert.Equal(t, "-5.00", FormatChange(decimal.NewFromInt(-5)))
	assert.Equal(t, "+0.00", FormatChange(decimal.Zero))
	assert.Equal(t, "+1.23", FormatChange(decimal.RequireFromString("1.2345")))
}

func TestNewNotification(t *testing.T) {
	n := NewNotification("run-1", decimal.NewFromInt(-10), sampleRecord())
	assert.Equal(t, "CryptoWatch price notification- bitcoin", n.Subject)
	assert.Equal(t, "bitcoin", n.Symbol)
	assert.Equal(t, "run-1", n.RunID)
	assert.True(t, strings.HasPrefix(n.Text, "Price notification"))
}

func TestFormatPriceTable(t *testing.T) {
	assert.Equal(t, "No prices stored yet.", FormatPriceTable(nil))
	out := FormatPriceTable([]model.PriceRecord{sampleRecord()})
	assert.Contains(t, out, "bitcoin: 45000 USD")
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `\-10\.00%`, EscapeMarkdownV2("-10.00%"))
	assert.Equal(t, `a\_b \(c\)\!`, EscapeMarkdownV2("a_b (c)!"))
}
