package model

import "github.com/shopspring/decimal"

// Notification is a formatted price movement message ready for fanout.
type Notification struct {
	RunID   string
	Symbol  string
	Change  decimal.Decimal // signed percent
	Record  PriceRecord
	Subject string
	Text    string
}
