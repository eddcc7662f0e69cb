// Package storage provides thread-safe in-memory storage with file-based persistence.
// It manages tracked wallets, their trades, native funding transfers, per-token
// market data and the latest Whale Score of every wallet, with automatic trade
// rotation to prevent unbounded memory growth.
//
// Storage is designed for reliability with atomic file writes and graceful
// handling of persistence failures. Data is persisted to a JSON file and can
// be restored on application restart.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/rewired-gh/whalescope/internal/scoring"
	"github.com/shopspring/decimal"
)

const persistenceVersion = "1.0"

// rotationHorizon matches the longest detector window. Trades inside it are never rotated.
const rotationHorizon = 7 * 24 * time.Hour

// ScoreSnapshot is a stored Whale Score computation.
type ScoreSnapshot struct {
	ID         string              `json:"id"`
	WalletID   string              `json:"wallet_id"`
	Result     scoring.ScoreResult `json:"result"`
	ComputedAt time.Time           `json:"computed_at"`
}

// Storage provides thread-safe in-memory storage with file-based persistence
type Storage struct {
	wallets      map[string]*models.WalletSummary
	trades       map[string][]models.Trade // by wallet ID, ascending by timestamp
	tradeIDs     map[string]struct{}
	rotatedIDs   map[string]struct{} // dropped by rotation, still reserved
	funding      []models.FundingEvent
	volumes      map[string]decimal.Decimal // token address -> daily USD volume
	fundamentals map[string]models.TokenRiskInput
	scores       map[string]ScoreSnapshot // latest per wallet ID
	mu           sync.RWMutex

	// Configuration
	maxTradesPerWallet int
	filePath           string
	filePermissions    os.FileMode
	dirPermissions     os.FileMode
}

// PersistenceFile represents the file structure for JSON persistence
type PersistenceFile struct {
	Version      string                           `json:"version"`
	SavedAt      time.Time                        `json:"saved_at"`
	Wallets      map[string]*models.WalletSummary `json:"wallets"`
	Trades       map[string][]models.Trade        `json:"trades"`
	Funding      []models.FundingEvent            `json:"funding"`
	Volumes      map[string]decimal.Decimal       `json:"token_volumes"`
	Fundamentals map[string]models.TokenRiskInput `json:"token_fundamentals"`
	Scores       map[string]ScoreSnapshot         `json:"scores"`
	RotatedIDs   []string                         `json:"rotated_trade_ids,omitempty"`
}

// New creates a new Storage instance with persistence to filePath.
// If filePath is empty, uses OS-appropriate tmp directory
func New(maxTradesPerWallet int, filePath string, filePermissions, dirPermissions os.FileMode) *Storage {
	if filePath == "" {
		filePath = filepath.Join(os.TempDir(), "whalescope", "data.json")
	}
	if filePermissions == 0 {
		filePermissions = 0644
	}
	if dirPermissions == 0 {
		dirPermissions = 0755
	}

	s := &Storage{
		maxTradesPerWallet: maxTradesPerWallet,
		filePath:           filePath,
		filePermissions:    filePermissions,
		dirPermissions:     dirPermissions,
	}
	s.reset()
	return s
}

func (s *Storage) reset() {
	s.wallets = make(map[string]*models.WalletSummary)
	s.trades = make(map[string][]models.Trade)
	s.tradeIDs = make(map[string]struct{})
	s.rotatedIDs = make(map[string]struct{})
	s.funding = make([]models.FundingEvent, 0)
	s.volumes = make(map[string]decimal.Decimal)
	s.fundamentals = make(map[string]models.TokenRiskInput)
	s.scores = make(map[string]ScoreSnapshot)
}

// FilePath returns the persistence file location.
func (s *Storage) FilePath() string {
	return s.filePath
}

// AddWallet adds or replaces a wallet
func (s *Storage) AddWallet(wallet *models.WalletSummary) error {
	if err := wallet.Validate(); err != nil {
		return fmt.Errorf("invalid wallet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := *wallet
	s.wallets[w.ID] = &w
	return nil
}

// GetWallet retrieves a copy of a wallet by ID
func (s *Storage) GetWallet(id string) (*models.WalletSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, exists := s.wallets[id]
	if !exists {
		return nil, fmt.Errorf("wallet not found: %s", id)
	}
	w := *wallet
	return &w, nil
}

// ListWallets returns all wallets ordered by ID
func (s *Storage) ListWallets() ([]models.WalletSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]models.WalletSummary, 0, len(s.wallets))
	for _, w := range s.wallets {
		wallets = append(wallets, *w)
	}
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].ID < wallets[j].ID
	})
	return wallets, nil
}

// UpdateWalletScore stores a score computation and refreshes the wallet's
// current score and status from it.
func (s *Storage) UpdateWalletScore(walletID string, result scoring.ScoreResult, computedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, exists := s.wallets[walletID]
	if !exists {
		return fmt.Errorf("wallet not found: %s", walletID)
	}

	wallet.CurrentScore = result.EffectiveScore()
	wallet.Status = result.Status
	s.scores[walletID] = ScoreSnapshot{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Result:     result,
		ComputedAt: computedAt,
	}
	return nil
}

// LatestScore returns the most recent score computation of a wallet
func (s *Storage) LatestScore(walletID string) (*ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.scores[walletID]
	if !exists {
		return nil, fmt.Errorf("no score for wallet: %s", walletID)
	}
	return &snap, nil
}

// AddTrade adds a trade for an existing wallet. Trade IDs are unique.
func (s *Storage) AddTrade(trade *models.Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("invalid trade: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[trade.WalletID]; !exists {
		return fmt.Errorf("wallet not found: %s", trade.WalletID)
	}
	if _, dup := s.tradeIDs[trade.ID]; dup {
		return fmt.Errorf("duplicate trade: %s", trade.ID)
	}

	list := s.trades[trade.WalletID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(trade.Timestamp)
	})
	list = append(list, models.Trade{})
	copy(list[i+1:], list[i:])
	list[i] = *trade

	s.trades[trade.WalletID] = list
	s.tradeIDs[trade.ID] = struct{}{}
	return nil
}

// TradesInWindow returns a wallet's trades with timestamp >= now-window, oldest first
func (s *Storage) TradesInWindow(walletID string, window time.Duration, now time.Time) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.wallets[walletID]; !exists {
		return nil, fmt.Errorf("wallet not found: %s", walletID)
	}

	cutoff := now.Add(-window)
	var filtered []models.Trade
	for _, t := range s.trades[walletID] {
		if !t.Timestamp.Before(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// FinalizedTrades returns a wallet's full finalized history, oldest first
func (s *Storage) FinalizedTrades(walletID string) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.wallets[walletID]; !exists {
		return nil, fmt.Errorf("wallet not found: %s", walletID)
	}

	var filtered []models.Trade
	for _, t := range s.trades[walletID] {
		if t.IsFinalized {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// TokenTradesInWindow returns every wallet's trades of one token inside the
// window, joined with the wallet summary, oldest first.
func (s *Storage) TokenTradesInWindow(tokenAddress string, window time.Duration, now time.Time) ([]models.WalletTrade, error) {
	return s.walletTrades(func(t *models.Trade) bool { return t.TokenAddress == tokenAddress }, window, now), nil
}

// WalletTradesInWindow returns all wallets' trades inside the window, joined
// with the wallet summary, oldest first.
func (s *Storage) WalletTradesInWindow(window time.Duration, now time.Time) ([]models.WalletTrade, error) {
	return s.walletTrades(func(*models.Trade) bool { return true }, window, now), nil
}

func (s *Storage) walletTrades(keep func(*models.Trade) bool, window time.Duration, now time.Time) []models.WalletTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-window)
	var out []models.WalletTrade
	for walletID, trades := range s.trades {
		wallet := s.wallets[walletID]
		for i := range trades {
			t := &trades[i]
			if t.Timestamp.Before(cutoff) || !keep(t) {
				continue
			}
			out = append(out, models.WalletTrade{Trade: *t, Wallet: *wallet})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// AddFundingEvent records a native transfer
func (s *Storage) AddFundingEvent(event *models.FundingEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid funding event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.funding = append(s.funding, *event)
	return nil
}

// FundingEventsBetween returns transfers between two addresses in either direction
func (s *Storage) FundingEventsBetween(addressA, addressB string) ([]models.FundingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []models.FundingEvent
	for _, e := range s.funding {
		if e.Involves(addressA, addressB) {
			events = append(events, e)
		}
	}
	return events, nil
}

// SetTokenVolume sets a token's daily USD volume
func (s *Storage) SetTokenVolume(tokenAddress string, usd decimal.Decimal) error {
	if tokenAddress == "" {
		return fmt.Errorf("token address must not be empty")
	}
	if usd.IsNegative() {
		return fmt.Errorf("invalid volume for %s: %s", tokenAddress, usd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumes[tokenAddress] = usd
	return nil
}

// TokenVolumes returns a copy of all known daily volumes
func (s *Storage) TokenVolumes() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.volumes))
	for k, v := range s.volumes {
		out[k] = v
	}
	return out
}

// SetTokenFundamentals sets the risk inputs of a token
func (s *Storage) SetTokenFundamentals(tokenAddress string, input models.TokenRiskInput) error {
	if tokenAddress == "" {
		return fmt.Errorf("token address must not be empty")
	}
	if err := input.Validate(); err != nil {
		return fmt.Errorf("invalid fundamentals for %s: %w", tokenAddress, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fundamentals[tokenAddress] = input
	return nil
}

// TokenFundamentals returns the risk inputs of a token, if known
func (s *Storage) TokenFundamentals(tokenAddress string) (models.TokenRiskInput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	input, ok := s.fundamentals[tokenAddress]
	return input, ok
}

// Save persists storage state to file
func (s *Storage) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Create data directory if needed
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	rotated := make([]string, 0, len(s.rotatedIDs))
	for id := range s.rotatedIDs {
		rotated = append(rotated, id)
	}
	sort.Strings(rotated)

	data := PersistenceFile{
		Version:      persistenceVersion,
		SavedAt:      time.Now(),
		Wallets:      s.wallets,
		Trades:       s.trades,
		Funding:      s.funding,
		Volumes:      s.volumes,
		Fundamentals: s.fundamentals,
		Scores:       s.scores,
		RotatedIDs:   rotated,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, s.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Load restores storage state from file
func (s *Storage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clean up any stale temp files from previous crashes
	tempPath := s.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		// No file to load, start fresh
		return nil
	}

	jsonData, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data PersistenceFile
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	if data.Version != persistenceVersion {
		return fmt.Errorf("unsupported data version %q", data.Version)
	}
	for walletID := range data.Trades {
		if _, ok := data.Wallets[walletID]; !ok {
			return fmt.Errorf("trades stored for unknown wallet %s", walletID)
		}
	}

	s.reset()
	for id, w := range data.Wallets {
		s.wallets[id] = w
	}
	for walletID, trades := range data.Trades {
		sort.SliceStable(trades, func(i, j int) bool {
			return trades[i].Timestamp.Before(trades[j].Timestamp)
		})
		s.trades[walletID] = trades
		for _, t := range trades {
			s.tradeIDs[t.ID] = struct{}{}
		}
	}
	s.funding = append(s.funding, data.Funding...)
	for k, v := range data.Volumes {
		s.volumes[k] = v
	}
	for k, v := range data.Fundamentals {
		s.fundamentals[k] = v
	}
	for k, v := range data.Scores {
		s.scores[k] = v
	}
	for _, id := range data.RotatedIDs {
		s.rotatedIDs[id] = struct{}{}
		s.tradeIDs[id] = struct{}{}
	}

	return nil
}

// RotateTrades trims each wallet towards maxTradesPerWallet by dropping its
// oldest trades that are older than the rotation horizon and are not scoring
// history. Finalized SELLs with a realized ROI are never dropped, since the
// Whale Score is computed from the full finalized history, so a wallet may
// stay above the limit. Dropped IDs stay reserved and cannot be ingested again.
// A non-positive limit disables rotation.
func (s *Storage) RotateTrades(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxTradesPerWallet <= 0 {
		return nil
	}

	cutoff := now.Add(-rotationHorizon)
	for walletID, trades := range s.trades {
		excess := len(trades) - s.maxTradesPerWallet
		if excess <= 0 {
			continue
		}

		kept := make([]models.Trade, 0, len(trades))
		for i := range trades {
			t := &trades[i]
			if excess > 0 && t.Timestamp.Before(cutoff) && !isScoringTrade(t) {
				s.rotatedIDs[t.ID] = struct{}{}
				excess--
				continue
			}
			kept = append(kept, *t)
		}
		s.trades[walletID] = kept
	}

	return nil
}

func isScoringTrade(t *models.Trade) bool {
	return t.IsFinalized && t.IsSell() && t.ROIAdjusted.Valid
}
