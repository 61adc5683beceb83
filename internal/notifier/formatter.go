package notifier

import (
	"fmt"
	"strings"

	"CryptoWatch/internal/model"

	"github.com/shopspring/decimal"
)

// Subject returns the topic subject line for symbol.
func Subject(symbol string) string {
	return "CryptoWatch price notification- " + symbol
}

// FormatChange renders a signed percentage with an explicit sign and two decimals.
func FormatChange(change decimal.Decimal) string {
	s := change.StringFixed(2)
	if !change.IsNegative() {
		s = "+" + s
	}
	return s
}

// FormatMessage builds the notification text for a price movement.
// It depends only on its arguments.
func FormatMessage(change decimal.Decimal, rec model.PriceRecord) string {
	var b strings.Builder
	b.WriteString("Price notification\n\n")
	b.WriteString(fmt.Sprintf("Symbol : %s/USD\n\n", rec.Symbol))
	b.WriteString(fmt.Sprintf("Change          :   %s%%\n", FormatChange(change)))
	b.WriteString(fmt.Sprintf("Price           :   %s USD\n", rec.Price.String()))
	b.WriteString(fmt.Sprintf("Market cap      :   %s USD\n", rec.MarketCap.String()))
	b.WriteString(fmt.Sprintf("Volume 24H      :   %s USD\n", rec.Volume24h.String()))
	return b.String()
}

// NewNotification assembles the message, subject and metadata for one movement.
func NewNotification(runID string, change decimal.Decimal, rec model.PriceRecord) *model.Notification {
	return &model.Notification{
		RunID:   runID,
		Symbol:  rec.Symbol,
		Change:  change,
		Record:  rec,
		Subject: Subject(rec.Symbol),
		Text:    FormatMessage(change, rec),
	}
}

// FormatPriceTable lists the latest stored record per symbol.
func FormatPriceTable(recs []model.PriceRecord) string {
	if len(recs) == 0 {
		return "No prices stored yet."
	}
	var b strings.Builder
	b.WriteString("Latest prices\n\n")
	for _, r := range recs {
		b.WriteString(fmt.Sprintf("%s: %s USD (cap %s, vol %s) @ %s\n",
			r.Symbol, r.Price, r.MarketCap, r.Volume24h, r.UpdatedAt.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}
