package scoring

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(days float64) time.Time {
	return testNow.Add(-time.Duration(days * float64(day)))
}

func sell(id string, roi string, at time.Time) models.Trade {
	return models.Trade{
		ID:           id,
		WalletID:     "wallet-1",
		TokenAddress: "0xtoken",
		Direction:    models.DirectionSell,
		AmountUSD:    d("1000"),
		Timestamp:    at,
		ROIAdjusted:  decimal.NewNullDecimal(d(roi)),
		IsFinalized:  true,
	}
}

// sells spreads count SELL trades evenly between startDaysAgo and endDaysAgo.
func sells(count int, roiAt func(i int) string, startDaysAgo, endDaysAgo float64) []models.Trade {
	out := make([]models.Trade, 0, count)
	step := 0.0
	if count > 1 {
		step = (startDaysAgo - endDaysAgo) / float64(count-1)
	}
	for i := 0; i < count; i++ {
		out = append(out, sell(fmt.Sprintf("t-%d", i), roiAt(i), daysAgo(startDaysAgo-float64(i)*step)))
	}
	return out
}

func constROI(roi string) func(int) string {
	return func(int) string { return roi }
}

func TestWhaleScoreEmptyInput(t *testing.T) {
	got := NewWhaleScoreCalculator().CalculateAt(nil, testNow)

	if got.Status != models.WalletUnderObservation {
		t.Errorf("Status = %s, want %s", got.Status, models.WalletUnderObservation)
	}
	if got.ScoreAllTime.Valid || got.Score90d.Valid {
		t.Error("expected both scores to be null")
	}
	if got.TotalOperations != 0 || got.HistoryMonths != 0 || got.WinRate != 0 {
		t.Errorf("unexpected metrics: %+v", got)
	}
	if got.Category != CategoryMain {
		t.Errorf("Category = %s, want MAIN", got.Category)
	}
}

func TestWhaleScoreUnderObservation(t *testing.T) {
	tests := []struct {
		name        string
		trades      []models.Trade
		wantOps     int
		wantWinRate float64
	}{
		{
			name:        "29 winning sells",
			trades:      sells(29, constROI("0.5"), 130, 1),
			wantOps:     29,
			wantWinRate: 1,
		},
		{
			name: "unweighted win rate",
			trades: sells(20, func(i int) string {
				if i%4 == 0 {
					return "0.3"
				}
				return "-0.1"
			}, 300, 1),
			wantOps:     20,
			wantWinRate: 0.25,
		},
		{
			name: "sell without roi is not an operation",
			trades: func() []models.Trade {
				ts := sells(30, constROI("0.5"), 130, 1)
				ts[7].ROIAdjusted = decimal.NullDecimal{}
				return ts
			}(),
			wantOps:     29,
			wantWinRate: 1,
		},
		{
			name: "non-finalized trade is ignored",
			trades: func() []models.Trade {
				ts := sells(30, constROI("0.5"), 130, 1)
				ts[0].IsFinalized = false
				return ts
			}(),
			wantOps:     29,
			wantWinRate: 1,
		},
		{
			name: "buys are ignored",
			trades: func() []models.Trade {
				ts := sells(29, constROI("0.5"), 130, 1)
				buy := ts[0]
				buy.ID = "buy"
				buy.Direction = models.DirectionBuy
				buy.ROIAdjusted = decimal.NullDecimal{}
				return append(ts, buy)
			}(),
			wantOps:     29,
			wantWinRate: 1,
		},
	}

	calc := NewWhaleScoreCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.CalculateAt(tt.trades, testNow)
			if got.Status != models.WalletUnderObservation {
				t.Errorf("Status = %s, want UNDER_OBSERVATION", got.Status)
			}
			if got.ScoreAllTime.Valid || got.Score90d.Valid {
				t.Error("expected both scores to be null")
			}
			if got.TotalOperations != tt.wantOps {
				t.Errorf("TotalOperations = %d, want %d", got.TotalOperations, tt.wantOps)
			}
			if got.WinRate != tt.wantWinRate {
				t.Errorf("WinRate = %v, want %v", got.WinRate, tt.wantWinRate)
			}
			if got.SharpeRatio != 0 || got.ROIAdjusted != 0 || got.Consistency != 0 {
				t.Errorf("expected zero metrics, got %+v", got)
			}
			if got.Category != CategoryMain {
				t.Errorf("Category = %s, want MAIN", got.Category)
			}
		})
	}
}

func TestWhaleScoreUniformWinner(t *testing.T) {
	got := NewWhaleScoreCalculator().CalculateAt(sells(30, constROI("0.5"), 130, 1), testNow)

	want := d("81.25")
	if !got.ScoreAllTime.Valid || !got.ScoreAllTime.Decimal.Equal(want) {
		t.Errorf("ScoreAllTime = %v, want %s", got.ScoreAllTime, want)
	}
	if !got.Score90d.Valid || !got.Score90d.Decimal.Equal(want) {
		t.Errorf("Score90d = %v, want %s", got.Score90d, want)
	}
	if got.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", got.WinRate)
	}
	if got.Consistency != 1 {
		t.Errorf("Consistency = %v, want 1", got.Consistency)
	}
	if math.Abs(got.ROIAdjusted-0.5) > 1e-9 {
		t.Errorf("ROIAdjusted = %v, want 0.5", got.ROIAdjusted)
	}
	if got.Status != models.WalletActive || got.Category != CategoryMain {
		t.Errorf("Status/Category = %s/%s, want ACTIVE/MAIN", got.Status, got.Category)
	}
	if got.TotalOperations != 30 {
		t.Errorf("TotalOperations = %d, want 30", got.TotalOperations)
	}
	if math.Abs(got.HistoryMonths-130.0/30.0) > 1e-9 {
		t.Errorf("HistoryMonths = %v, want %v", got.HistoryMonths, 130.0/30.0)
	}
}

func TestWhaleScoreCategories(t *testing.T) {
	oneInThree := func(i int) string {
		if i%3 == 0 {
			return "0.5"
		}
		return "-0.2"
	}

	tests := []struct {
		name         string
		trades       []models.Trade
		wantCategory Category
		wantAllTime  bool
		want90d      bool
	}{
		{
			name:         "low win rate",
			trades:       sells(40, oneInThree, 130, 1),
			wantCategory: CategoryHighRiskHighReward,
			wantAllTime:  true,
			want90d:      true,
		},
		{
			name:         "short history",
			trades:       sells(35, constROI("0.2"), 60, 1),
			wantCategory: CategoryNewcomer,
			wantAllTime:  false,
			want90d:      true,
		},
		{
			name:         "short history overrides low win rate",
			trades:       sells(35, oneInThree, 60, 1),
			wantCategory: CategoryNewcomer,
			wantAllTime:  false,
			want90d:      true,
		},
		{
			name:         "dormant wallet has no recent score",
			trades:       sells(30, constROI("0.2"), 400, 200),
			wantCategory: CategoryMain,
			wantAllTime:  true,
			want90d:      false,
		},
	}

	calc := NewWhaleScoreCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.CalculateAt(tt.trades, testNow)
			if got.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", got.Category, tt.wantCategory)
			}
			if got.ScoreAllTime.Valid != tt.wantAllTime {
				t.Errorf("ScoreAllTime.Valid = %v, want %v", got.ScoreAllTime.Valid, tt.wantAllTime)
			}
			if got.Score90d.Valid != tt.want90d {
				t.Errorf("Score90d.Valid = %v, want %v", got.Score90d.Valid, tt.want90d)
			}
			if got.Status != models.WalletActive {
				t.Errorf("Status = %s, want ACTIVE", got.Status)
			}
		})
	}
}

func TestWhaleScoreRange(t *testing.T) {
	patterns := map[string]func(int) string{
		"all losses": constROI("-0.9"),
		"huge wins":  constROI("25"),
		"mixed": func(i int) string {
			return []string{"1.5", "-0.3", "0.1", "-0.8", "3"}[i%5]
		},
	}

	calc := NewWhaleScoreCalculator()
	lo, hi := decimal.Zero, decimal.NewFromInt(100)
	for name, roi := range patterns {
		t.Run(name, func(t *testing.T) {
			got := calc.CalculateAt(sells(60, roi, 365, 0), testNow)
			for _, s := range []decimal.NullDecimal{got.ScoreAllTime, got.Score90d} {
				if !s.Valid {
					t.Fatal("expected score")
				}
				if s.Decimal.LessThan(lo) || s.Decimal.GreaterThan(hi) {
					t.Errorf("score %s out of [0, 100]", s.Decimal)
				}
				if !s.Decimal.Equal(s.Decimal.Round(2)) {
					t.Errorf("score %s has more than two decimals", s.Decimal)
				}
			}
		})
	}
}

func TestWhaleScoreIdempotent(t *testing.T) {
	calc := NewWhaleScoreCalculator()
	trades := sells(45, func(i int) string {
		return []string{"0.4", "-0.1", "0.2"}[i%3]
	}, 200, 1)

	first := calc.CalculateAt(trades, testNow)
	second := calc.CalculateAt(trades, testNow)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestWhaleScoreOrderIndependent(t *testing.T) {
	calc := NewWhaleScoreCalculator()
	trades := sells(40, func(i int) string {
		return []string{"0.4", "-0.1", "0.2", "0.05"}[i%4]
	}, 200, 1)

	reversed := make([]models.Trade, len(trades))
	for i, tr := range trades {
		reversed[len(trades)-1-i] = tr
	}

	a := calc.CalculateAt(trades, testNow)
	b := calc.CalculateAt(reversed, testNow)
	if !a.ScoreAllTime.Decimal.Equal(b.ScoreAllTime.Decimal) || a.HistoryMonths != b.HistoryMonths {
		t.Errorf("order changed result: %+v vs %+v", a, b)
	}
}

func TestEffectiveScore(t *testing.T) {
	tests := []struct {
		name   string
		result ScoreResult
		want   decimal.NullDecimal
	}{
		{"all-time wins", ScoreResult{ScoreAllTime: decimal.NewNullDecimal(d("70")), Score90d: decimal.NewNullDecimal(d("80"))}, decimal.NewNullDecimal(d("70"))},
		{"falls back to 90d", ScoreResult{Score90d: decimal.NewNullDecimal(d("80"))}, decimal.NewNullDecimal(d("80"))},
		{"none", ScoreResult{}, decimal.NullDecimal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.EffectiveScore()
			if got.Valid != tt.want.Valid || !got.Decimal.Equal(tt.want.Decimal) {
				t.Errorf("EffectiveScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightedSharpe(t *testing.T) {
	calc := NewWhaleScoreCalculator()
	unit := func(rois ...float64) []sellEntry {
		out := make([]sellEntry, len(rois))
		for i, r := range rois {
			out[i] = sellEntry{roi: r, weight: 1}
		}
		return out
	}

	tests := []struct {
		name    string
		entries []sellEntry
		want    float64
	}{
		{"single entry", unit(0.5), 0},
		{"constant gain", unit(0.5, 0.5, 0.5, 0.5), 4},
		{"constant loss", unit(-0.25, -0.25, -0.25), -2},
		{"constant zero", unit(0, 0), 4},
		{"symmetric", unit(0.5, -0.5), 0},
		{"positive skew", unit(1, 0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.weightedSharpe(tt.entries); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("weightedSharpe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsistency(t *testing.T) {
	calc := NewWhaleScoreCalculator()
	bucket := func(k int, roi float64) sellEntry {
		return sellEntry{roi: roi, at: time.UnixMilli(0).UTC().Add(time.Duration(k)*30*day + day), weight: 1}
	}

	tests := []struct {
		name    string
		entries []sellEntry
		want    float64
	}{
		{"empty", nil, 0.5},
		{"two buckets", []sellEntry{bucket(700, 1), bucket(701, -1)}, 0.5},
		{"stable", []sellEntry{bucket(700, 1), bucket(701, 1), bucket(702, 1)}, 1},
		{"unstable", []sellEntry{bucket(700, 1), bucket(701, -1), bucket(702, 1)}, 1 - math.Sqrt(2.0/9.0)},
		{"same bucket counted once", []sellEntry{bucket(700, 1), bucket(700, -1), bucket(701, 1), bucket(702, 1)}, 1 - math.Sqrt(1.0/18.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.consistency(tt.entries); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("consistency = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecayWeight(t *testing.T) {
	calc := NewWhaleScoreCalculator()

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"now", testNow, 1},
		{"one half-life", daysAgo(365), 0.5},
		{"two half-lives", daysAgo(730), 0.25},
		{"future clamps to now", testNow.Add(48 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.decayWeight(tt.at, testNow); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("decayWeight = %v, want %v", got, tt.want)
			}
		})
	}
}
