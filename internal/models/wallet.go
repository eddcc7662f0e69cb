package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// WalletStatus is the lifecycle state of a tracked wallet.
type WalletStatus string

const (
	WalletActive           WalletStatus = "ACTIVE"
	WalletUnderObservation WalletStatus = "UNDER_OBSERVATION"
	WalletDisqualified     WalletStatus = "DISQUALIFIED"
)

// Valid reports whether s is one of the known statuses.
func (s WalletStatus) Valid() bool {
	switch s {
	case WalletActive, WalletUnderObservation, WalletDisqualified:
		return true
	}
	return false
}

// WalletSummary is the metadata kept for a tracked wallet.
// CurrentScore is only valid once a Whale Score has been computed for the wallet.
type WalletSummary struct {
	ID           string              `json:"id"`
	Address      string              `json:"address"`
	FirstSeen    time.Time           `json:"first_seen"`
	CurrentScore decimal.NullDecimal `json:"current_score"`
	Status       WalletStatus        `json:"status"`
}

// HasScore reports whether the wallet has a computed reputation.
func (w *WalletSummary) HasScore() bool {
	return w.CurrentScore.Valid
}

// Validate checks that all wallet fields are valid
func (w *WalletSummary) Validate() error {
	if w.ID == "" {
		return errors.New("wallet ID must not be empty")
	}
	if w.Address == "" {
		return errors.New("wallet address must not be empty")
	}
	if w.FirstSeen.IsZero() {
		return errors.New("first seen must be set")
	}
	if !w.Status.Valid() {
		return errors.New("status must be one of ACTIVE, UNDER_OBSERVATION, DISQUALIFIED")
	}
	if w.CurrentScore.Valid && (w.CurrentScore.Decimal.IsNegative() || w.CurrentScore.Decimal.GreaterThan(decimal.NewFromInt(100))) {
		return errors.New("current score must be between 0 and 100")
	}
	return nil
}
