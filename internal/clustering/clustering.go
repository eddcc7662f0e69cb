// Package clustering decides whether two tracked wallets are controlled by the
// same owner. The verdict is deliberately conservative: merging two independent
// owners corrupts both reputations, so every heuristic must agree before
// SameOwner is set. Partial matches are still reported.
package clustering

import (
	"time"

	"github.com/rewired-gh/whalescope/internal/models"
)

// Heuristic names one independent piece of ownership evidence.
type Heuristic string

const (
	// HeuristicFunding: one wallet bootstrapped the other before its first activity.
	HeuristicFunding Heuristic = "FUNDING"
	// HeuristicTiming: a large share of trades land within minutes of each other.
	HeuristicTiming Heuristic = "TIMING"
	// HeuristicSequence: several distinct tokens bought by both almost simultaneously.
	HeuristicSequence Heuristic = "SEQUENCE"
)

const heuristicCount = 3

// Rules configures the heuristics.
type Rules struct {
	TimingWindow       time.Duration
	MinTimingMatches   int
	MinTimingOverlap   float64 // matches / min(len(a), len(b))
	SequenceWindow     time.Duration
	MinSequenceTokens  int
	RequiredHeuristics int
}

// DefaultRules returns the production rules.
func DefaultRules() Rules {
	return Rules{
		TimingWindow:       30 * time.Minute,
		MinTimingMatches:   3,
		MinTimingOverlap:   0.30,
		SequenceWindow:     5 * time.Minute,
		MinSequenceTokens:  2,
		RequiredHeuristics: heuristicCount,
	}
}

// WalletActivity is a wallet together with its trade history.
type WalletActivity struct {
	Wallet models.WalletSummary
	Trades []models.Trade
}

// Verdict is the outcome of comparing two wallets.
type Verdict struct {
	SameOwner         bool        `json:"same_owner"`
	Confidence        float64     `json:"confidence"` // matched / 3
	MatchedHeuristics []Heuristic `json:"matched_heuristics"`
}

// Service compares wallet pairs. It holds no state besides its rules.
type Service struct {
	rules Rules
}

// NewService creates a Service with DefaultRules.
func NewService() *Service {
	return NewServiceWithRules(DefaultRules())
}

// NewServiceWithRules creates a Service with custom rules.
func NewServiceWithRules(rules Rules) *Service {
	return &Service{rules: rules}
}

// Analyze compares a and b. funding may be nil.
func (s *Service) Analyze(a, b WalletActivity, funding []models.FundingEvent) Verdict {
	aTrades, bTrades := finalized(a.Trades), finalized(b.Trades)

	matched := make([]Heuristic, 0, heuristicCount)
	if s.fundingLinked(a.Wallet, b.Wallet, funding) {
		matched = append(matched, HeuristicFunding)
	}
	if s.timingCorrelated(aTrades, bTrades) {
		matched = append(matched, HeuristicTiming)
	}
	if s.sequenceCorrelated(aTrades, bTrades) {
		matched = append(matched, HeuristicSequence)
	}

	return Verdict{
		SameOwner:         len(matched) >= s.rules.RequiredHeuristics,
		Confidence:        float64(len(matched)) / heuristicCount,
		MatchedHeuristics: matched,
	}
}

func finalized(trades []models.Trade) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsFinalized {
			out = append(out, t)
		}
	}
	return out
}

// fundingLinked reports a transfer between the wallets that happened strictly
// before the receiver's first activity. Later transfers prove nothing.
func (s *Service) fundingLinked(a, b models.WalletSummary, funding []models.FundingEvent) bool {
	for _, f := range funding {
		if f.FromAddress == a.Address && f.ToAddress == b.Address && f.Timestamp.Before(b.FirstSeen) {
			return true
		}
		if f.FromAddress == b.Address && f.ToAddress == a.Address && f.Timestamp.Before(a.FirstSeen) {
			return true
		}
	}
	return false
}

// timingCorrelated counts a's trades that have any b trade within TimingWindow.
// Both the absolute count and the share of the smaller history must pass.
func (s *Service) timingCorrelated(a, b []models.Trade) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	matches := 0
	for _, ta := range a {
		for _, tb := range b {
			if within(ta.Timestamp, tb.Timestamp, s.rules.TimingWindow) {
				matches++
				break
			}
		}
	}

	smaller := min(len(a), len(b))
	overlap := float64(matches) / float64(smaller)
	return matches >= s.rules.MinTimingMatches && overlap >= s.rules.MinTimingOverlap
}

// sequenceCorrelated counts distinct tokens traded by both within SequenceWindow.
func (s *Service) sequenceCorrelated(a, b []models.Trade) bool {
	tokens := make(map[string]struct{})
	for _, ta := range a {
		if _, done := tokens[ta.TokenAddress]; done {
			continue
		}
		for _, tb := range b {
			if ta.TokenAddress == tb.TokenAddress && within(ta.Timestamp, tb.Timestamp, s.rules.SequenceWindow) {
				tokens[ta.TokenAddress] = struct{}{}
				break
			}
		}
	}
	return len(tokens) >= s.rules.MinSequenceTokens
}

func within(x, y time.Time, window time.Duration) bool {
	d := x.Sub(y)
	if d < 0 {
		d = -d
	}
	return d <= window
}
