package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

// Dataset is the JSON import format.
type Dataset struct {
	Wallets []models.WalletSummary `json:"wallets"`
	Tokens  []TokenRecord          `json:"tokens"`
	Funding []models.FundingEvent  `json:"funding"`
	Trades  []DatasetTrade         `json:"trades"`
}

// TokenRecord carries the market data known for a token.
type TokenRecord struct {
	Address      string                 `json:"address"`
	DailyVolume  decimal.NullDecimal    `json:"daily_volume"`
	Fundamentals *models.TokenRiskInput `json:"fundamentals,omitempty"`
}

// DatasetTrade is a trade with an optional unadjusted ROI. Trades without an ID get one.
type DatasetTrade struct {
	models.Trade
	RawROI decimal.NullDecimal `json:"raw_roi"`
}

// ImportSummary counts what an import stored.
type ImportSummary struct {
	Wallets       int
	Tokens        int
	Funding       int
	Trades        int
	Accumulations int
	Confluences   int
	Errors        []JobError
}

// ImportDataset loads a dataset file and ingests it: wallets and token data
// first, then funding events, then trades in time order. Each trade is
// ingested as of its own timestamp, so the detector windows end at that trade
// and a historical dataset raises the signals it would have raised live.
func (p *Pipeline) ImportDataset(ctx context.Context, path string) (*ImportSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return p.Import(ctx, &ds)
}

// Import ingests an already decoded dataset.
func (p *Pipeline) Import(ctx context.Context, ds *Dataset) (*ImportSummary, error) {
	summary := &ImportSummary{}

	for i := range ds.Wallets {
		w := &ds.Wallets[i]
		if w.Status == "" {
			w.Status = models.WalletUnderObservation
		}
		if err := p.store.AddWallet(w); err != nil {
			summary.Errors = append(summary.Errors, JobError{WalletID: w.ID, Err: err})
			continue
		}
		summary.Wallets++
	}

	for _, tok := range ds.Tokens {
		stored := false
		if tok.DailyVolume.Valid {
			if err := p.store.SetTokenVolume(tok.Address, tok.DailyVolume.Decimal); err != nil {
				return summary, fmt.Errorf("token %s: %w", tok.Address, err)
			}
			stored = true
		}
		if tok.Fundamentals != nil {
			if err := p.store.SetTokenFundamentals(tok.Address, *tok.Fundamentals); err != nil {
				return summary, fmt.Errorf("token %s: %w", tok.Address, err)
			}
			stored = true
		}
		if stored {
			summary.Tokens++
		}
	}

	for i := range ds.Funding {
		if err := p.store.AddFundingEvent(&ds.Funding[i]); err != nil {
			return summary, fmt.Errorf("funding event %d: %w", i, err)
		}
		summary.Funding++
	}

	trades := ds.Trades
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
	for _, dt := range trades {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if dt.ID == "" {
			dt.ID = uuid.New().String()
		}

		res, err := p.ingestAt(ctx, dt.Trade, dt.RawROI, dt.Timestamp)
		if err != nil {
			summary.Errors = append(summary.Errors, JobError{WalletID: dt.WalletID, Err: err})
			continue
		}
		summary.Trades++
		summary.Accumulations += len(res.Accumulations)
		summary.Confluences += len(res.Confluences)
	}

	for _, jobErr := range summary.Errors {
		logger.Warn("Import skipped a record for wallet %s: %v", jobErr.WalletID, jobErr.Err)
	}
	logger.Info("Imported %d wallets, %d tokens, %d funding events, %d trades",
		summary.Wallets, summary.Tokens, summary.Funding, summary.Trades)
	return summary, nil
}
