package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

// Category classifies a scored wallet for ranking purposes.
type Category string

const (
	CategoryMain               Category = "MAIN"
	CategoryHighRiskHighReward Category = "HIGH_RISK_HIGH_REWARD"
	CategoryNewcomer           Category = "NEWCOMER"
)

// ScoreResult is the output of WhaleScoreCalculator. Scores are in [0, 100] with
// two decimal places; an invalid NullDecimal means "not enough evidence".
type ScoreResult struct {
	ScoreAllTime    decimal.NullDecimal `json:"score_all_time"`
	Score90d        decimal.NullDecimal `json:"score_90d"`
	WinRate         float64             `json:"win_rate"`
	SharpeRatio     float64             `json:"sharpe_ratio"`
	ROIAdjusted     float64             `json:"roi_adjusted"`
	Consistency     float64             `json:"consistency"`
	TotalOperations int                 `json:"total_operations"`
	HistoryMonths   float64             `json:"history_months"`
	Status          models.WalletStatus `json:"status"`
	Category        Category            `json:"category"`
}

// EffectiveScore is the score a wallet is ranked by: all-time when present,
// otherwise the 90-day score.
func (r ScoreResult) EffectiveScore() decimal.NullDecimal {
	if r.ScoreAllTime.Valid {
		return r.ScoreAllTime
	}
	return r.Score90d
}

// WhaleScoreCalculator computes a wallet's reputation from its closed positions.
type WhaleScoreCalculator struct {
	rules ScoreRules
}

// NewWhaleScoreCalculator creates a calculator using DefaultScoreRules.
func NewWhaleScoreCalculator() *WhaleScoreCalculator {
	return NewWhaleScoreCalculatorWithRules(DefaultScoreRules())
}

// NewWhaleScoreCalculatorWithRules creates a calculator with custom rules.
func NewWhaleScoreCalculatorWithRules(rules ScoreRules) *WhaleScoreCalculator {
	return &WhaleScoreCalculator{rules: rules}
}

type sellEntry struct {
	roi    float64
	at     time.Time
	weight float64
}

type metrics struct {
	winRate     float64
	sharpe      float64
	roi         float64
	consistency float64
}

// Calculate scores trades relative to the current time.
func (c *WhaleScoreCalculator) Calculate(trades []models.Trade) ScoreResult {
	return c.CalculateAt(trades, time.Now())
}

// CalculateAt scores trades relative to now. Only finalized SELL trades carrying
// an adjusted ROI count as operations.
func (c *WhaleScoreCalculator) CalculateAt(trades []models.Trade, now time.Time) ScoreResult {
	entries := closedPositions(trades)
	months := c.historyMonths(entries, now)

	if len(entries) < c.rules.MinOperations {
		winRate := 0.0
		if len(entries) > 0 {
			winRate = unweightedWinRate(entries)
		}
		return ScoreResult{
			WinRate:         winRate,
			TotalOperations: len(entries),
			HistoryMonths:   months,
			Status:          models.WalletUnderObservation,
			Category:        CategoryMain,
		}
	}

	decayed := make([]sellEntry, len(entries))
	for i, e := range entries {
		e.weight = c.decayWeight(e.at, now)
		decayed[i] = e
	}
	allTime := c.metrics(decayed)

	var score90d decimal.NullDecimal
	cutoff := now.Add(-c.rules.RecentWindow)
	var recent []sellEntry
	for _, e := range entries {
		if !e.at.Before(cutoff) {
			e.weight = 1.0
			recent = append(recent, e)
		}
	}
	if len(recent) >= c.rules.MinRecentOperations {
		score90d = decimal.NewNullDecimal(c.compose(c.metrics(recent)))
	}

	category := CategoryMain
	if allTime.winRate < c.rules.MinWinRate {
		category = CategoryHighRiskHighReward
	}

	var scoreAllTime decimal.NullDecimal
	if months < c.rules.MinHistoryMonths {
		category = CategoryNewcomer
	} else {
		scoreAllTime = decimal.NewNullDecimal(c.compose(allTime))
	}

	status := models.WalletUnderObservation
	if scoreAllTime.Valid || score90d.Valid {
		status = models.WalletActive
	}

	return ScoreResult{
		ScoreAllTime:    scoreAllTime,
		Score90d:        score90d,
		WinRate:         allTime.winRate,
		SharpeRatio:     allTime.sharpe,
		ROIAdjusted:     allTime.roi,
		Consistency:     allTime.consistency,
		TotalOperations: len(entries),
		HistoryMonths:   months,
		Status:          status,
		Category:        category,
	}
}

func closedPositions(trades []models.Trade) []sellEntry {
	entries := make([]sellEntry, 0, len(trades))
	for _, t := range trades {
		if !t.IsFinalized || !t.IsSell() || !t.ROIAdjusted.Valid {
			continue
		}
		entries = append(entries, sellEntry{roi: t.ROIAdjusted.Decimal.InexactFloat64(), at: t.Timestamp, weight: 1.0})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})
	return entries
}

func (c *WhaleScoreCalculator) historyMonths(entries []sellEntry, now time.Time) float64 {
	if len(entries) == 0 {
		return 0
	}
	return float64(now.Sub(entries[0].at)) / float64(c.rules.MonthLength)
}

func (c *WhaleScoreCalculator) decayWeight(at, now time.Time) float64 {
	lambda := math.Ln2 / (float64(c.rules.DecayHalfLife) / float64(day))
	daysAgo := math.Max(0, float64(now.Sub(at))/float64(day))
	return math.Exp(-lambda * daysAgo)
}

func (c *WhaleScoreCalculator) metrics(entries []sellEntry) metrics {
	return metrics{
		winRate:     weightedWinRate(entries),
		sharpe:      c.weightedSharpe(entries),
		roi:         weightedMean(entries),
		consistency: c.consistency(entries),
	}
}

// compose maps the four metrics onto [0, 100], rounded to two decimals.
func (c *WhaleScoreCalculator) compose(m metrics) decimal.Decimal {
	sharpeNorm := clamp((m.sharpe+2)/6, 0, 1)
	roiNorm := clamp((m.roi+1.0)/6.0, 0, 1)
	raw := c.rules.WeightWinRate*m.winRate +
		c.rules.WeightSharpe*sharpeNorm +
		c.rules.WeightROI*roiNorm +
		c.rules.WeightConsistency*m.consistency
	return decimal.NewFromFloat(math.Round(raw*100*100) / 100)
}

func unweightedWinRate(entries []sellEntry) float64 {
	wins := 0
	for _, e := range entries {
		if e.roi > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(entries))
}

func weightedWinRate(entries []sellEntry) float64 {
	var won, total float64
	for _, e := range entries {
		total += e.weight
		if e.roi > 0 {
			won += e.weight
		}
	}
	if total == 0 {
		return 0
	}
	return won / total
}

func weightedMean(entries []sellEntry) float64 {
	var sum, total float64
	for _, e := range entries {
		sum += e.weight * e.roi
		total += e.weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// weightedSharpe uses population statistics. Zero deviation means perfectly
// repeatable returns, which score at the ends of the normalization range.
func (c *WhaleScoreCalculator) weightedSharpe(entries []sellEntry) float64 {
	if len(entries) < 2 {
		return 0
	}
	mean := weightedMean(entries)
	var variance, total float64
	for _, e := range entries {
		diff := e.roi - mean
		variance += e.weight * diff * diff
		total += e.weight
	}
	if total == 0 {
		return 0
	}
	std := math.Sqrt(variance / total)
	if std == 0 {
		if mean >= 0 {
			return c.rules.PerfectSharpe
		}
		return c.rules.FloorSharpe
	}
	return mean / std
}

// consistency measures how stable the win rate is across fixed-width time
// buckets. Decay is deliberately not applied.
func (c *WhaleScoreCalculator) consistency(entries []sellEntry) float64 {
	if len(entries) == 0 {
		return c.rules.NeutralConsistency
	}

	type bucket struct {
		wins, total int
	}
	width := c.rules.ConsistencyBucket.Milliseconds()
	buckets := make(map[int64]*bucket)
	var keys []int64
	for _, e := range entries {
		key := floorDiv(e.at.UnixMilli(), width)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			keys = append(keys, key)
		}
		b.total++
		if e.roi > 0 {
			b.wins++
		}
	}
	if len(keys) < c.rules.MinBuckets {
		return c.rules.NeutralConsistency
	}

	rates := make([]float64, len(keys))
	for i, k := range keys {
		b := buckets[k]
		rates[i] = float64(b.wins) / float64(b.total)
	}
	return clamp(1-populationStd(rates), 0, 1)
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
