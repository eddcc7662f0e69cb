package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// FundingEvent is a native-asset transfer (ETH, SOL, ...) between two addresses.
// It is not a swap and never appears as a Trade.
type FundingEvent struct {
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Timestamp   time.Time       `json:"timestamp"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
}

// Involves reports whether the transfer moved funds between a and b in either direction.
func (f *FundingEvent) Involves(a, b string) bool {
	return (f.FromAddress == a && f.ToAddress == b) || (f.FromAddress == b && f.ToAddress == a)
}

// Validate checks that all funding event fields are valid
func (f *FundingEvent) Validate() error {
	if f.FromAddress == "" || f.ToAddress == "" {
		return errors.New("funding addresses must not be empty")
	}
	if f.FromAddress == f.ToAddress {
		return errors.New("funding must move between two distinct addresses")
	}
	if f.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if f.AmountUSD.IsNegative() {
		return errors.New("amount USD must not be negative")
	}
	return nil
}
