// Package models defines the core domain entities for the whalescope application.
// These models represent tracked wallets, their on-chain swap trades, native funding
// transfers between wallets and the fundamentals used to rate a token's risk.
// All models include built-in validation so the orchestration layer can reject
// malformed records before they reach the analytics packages.
//
// Monetary and score values are carried as decimal.Decimal so that threshold
// comparisons happen at the precision the thresholds are written in.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a swap from the tracked wallet's point of view.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Trade is a single parsed swap executed by a tracked wallet.
//
// ROIAdjusted is only populated on finalized SELLs: it is the realized return as a
// fraction (0.5 = +50%) already multiplied by the token's risk factor.
type Trade struct {
	ID           string              `json:"id"`
	WalletID     string              `json:"wallet_id"`
	TokenAddress string              `json:"token_address"`
	TokenSymbol  string              `json:"token_symbol,omitempty"`
	Direction    Direction           `json:"direction"`
	AmountUSD    decimal.Decimal     `json:"amount_usd"`
	Timestamp    time.Time           `json:"timestamp"`
	ROIAdjusted  decimal.NullDecimal `json:"roi_adjusted"`
	IsFinalized  bool                `json:"is_finalized"` // past reorg safety depth
}

// IsBuy reports whether the trade is a BUY.
func (t *Trade) IsBuy() bool {
	return t.Direction == DirectionBuy
}

// IsSell reports whether the trade is a SELL.
func (t *Trade) IsSell() bool {
	return t.Direction == DirectionSell
}

// DisplayToken returns the token symbol, falling back to the contract address.
func (t *Trade) DisplayToken() string {
	if t.TokenSymbol != "" {
		return t.TokenSymbol
	}
	return t.TokenAddress
}

// Validate checks that all trade fields are valid
func (t *Trade) Validate() error {
	if t.ID == "" {
		return errors.New("trade ID must not be empty")
	}
	if t.WalletID == "" {
		return errors.New("wallet ID must not be empty")
	}
	if t.TokenAddress == "" {
		return errors.New("token address must not be empty")
	}
	if t.Direction != DirectionBuy && t.Direction != DirectionSell {
		return errors.New("direction must be 'BUY' or 'SELL'")
	}
	if t.AmountUSD.IsNegative() {
		return errors.New("amount USD must not be negative")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if t.ROIAdjusted.Valid && !t.IsSell() {
		return errors.New("roi adjusted is only allowed on SELL trades")
	}
	return nil
}

// WalletTrade is a trade joined with the summary of the wallet that executed it.
// Cross-wallet detectors need the wallet's current score next to each trade.
type WalletTrade struct {
	Trade
	Wallet WalletSummary `json:"wallet"`
}
