package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/whalescope/internal/config"
	"github.com/rewired-gh/whalescope/internal/models"
	"github.com/rewired-gh/whalescope/internal/pipeline"
	"github.com/rewired-gh/whalescope/internal/storage"
	"github.com/shopspring/decimal"
)

var validSchedule = config.ScheduleConfig{
	RecalculateCron:  "0 * * * *",
	AccumulationCron: "*/15 * * * *",
	ConfluenceCron:   "*/5 * * * *",
}

func newTestScheduler(t *testing.T, ctx context.Context) (*Scheduler, *storage.Storage) {
	t.Helper()
	store := storage.New(100, filepath.Join(t.TempDir(), "data.json"), 0600, 0700)
	return New(ctx, pipeline.New(store, nil), store), store
}

func TestRegisterAll(t *testing.T) {
	tests := []struct {
		name         string
		schedule     config.ScheduleConfig
		persistEvery time.Duration
		wantEntries  int
		wantErr      bool
	}{
		{"all jobs", validSchedule, time.Minute, 4, false},
		{"persistence disabled", validSchedule, 0, 3, false},
		{"invalid recalculate schedule", config.ScheduleConfig{RecalculateCron: "nope", AccumulationCron: "* * * * *", ConfluenceCron: "* * * * *"}, 0, 0, true},
		{"invalid confluence schedule", config.ScheduleConfig{RecalculateCron: "* * * * *", AccumulationCron: "* * * * *", ConfluenceCron: "61 * * * *"}, 0, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestScheduler(t, context.Background())
			err := s.RegisterAll(tt.schedule, tt.persistEvery)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegisterAll() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := s.Entries(); got != tt.wantEntries {
				t.Errorf("Entries() = %d, want %d", got, tt.wantEntries)
			}
		})
	}
}

func TestRunAllNow(t *testing.T) {
	s, store := newTestScheduler(t, context.Background())
	w := &models.WalletSummary{ID: "w1", Address: "0xw1", FirstSeen: time.Now().Add(-time.Hour), Status: models.WalletActive}
	if err := store.AddWallet(w); err != nil {
		t.Fatal(err)
	}

	s.RunAllNow()

	got, err := store.GetWallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	// no trades: the wallet goes back under observation
	if got.Status != models.WalletUnderObservation {
		t.Errorf("Status = %s, want UNDER_OBSERVATION", got.Status)
	}
	if _, err := store.LatestScore("w1"); err != nil {
		t.Errorf("Expected a score snapshot: %v", err)
	}
}

func TestRunAllNow_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, store := newTestScheduler(t, ctx)
	_ = store.AddWallet(&models.WalletSummary{ID: "w1", Address: "0xw1", FirstSeen: time.Now(), Status: models.WalletActive})

	s.RunAllNow()

	if _, err := store.LatestScore("w1"); err == nil {
		t.Error("Jobs should not run after the context is done")
	}
}

func TestPersist(t *testing.T) {
	s, store := newTestScheduler(t, context.Background())
	_ = store.AddWallet(&models.WalletSummary{ID: "w1", Address: "0xw1", FirstSeen: time.Now(), Status: models.WalletActive})

	s.persist()

	if _, err := os.Stat(store.FilePath()); err != nil {
		t.Errorf("Expected data file to be written: %v", err)
	}
}

func TestPersistKeepsWhaleScore(t *testing.T) {
	s, store := newTestScheduler(t, context.Background())
	_ = store.AddWallet(&models.WalletSummary{ID: "w1", Address: "0xw1", FirstSeen: time.Now().Add(-400 * 24 * time.Hour), Status: models.WalletActive})

	now := time.Now()
	add := func(id string, dir models.Direction, roi string, at time.Time) {
		tr := &models.Trade{ID: id, WalletID: "w1", TokenAddress: "0xpepe", Direction: dir, AmountUSD: decimal.NewFromInt(500), Timestamp: at, IsFinalized: true}
		if roi != "" {
			tr.ROIAdjusted = decimal.NewNullDecimal(decimal.RequireFromString(roi))
		}
		if err := store.AddTrade(tr); err != nil {
			t.Fatalf("AddTrade %s failed: %v", id, err)
		}
	}
	for i := 0; i < 40; i++ {
		add(fmt.Sprintf("loss-%d", i), models.DirectionSell, "-0.4", now.Add(-time.Duration(300-2*i)*24*time.Hour))
	}
	for i := 0; i < 80; i++ {
		add(fmt.Sprintf("buy-%d", i), models.DirectionBuy, "", now.Add(-time.Duration(200-i)*24*time.Hour))
	}
	for i := 0; i < 100; i++ {
		add(fmt.Sprintf("win-%d", i), models.DirectionSell, "0.3", now.Add(-time.Duration(i+1)*7*time.Hour))
	}

	s.recalculate()
	before, err := store.LatestScore("w1")
	if err != nil {
		t.Fatal(err)
	}

	s.persist()
	s.recalculate()
	after, err := store.LatestScore("w1")
	if err != nil {
		t.Fatal(err)
	}

	want, got := before.Result, after.Result
	if got.TotalOperations != want.TotalOperations || got.Category != want.Category || got.Status != want.Status {
		t.Errorf("Persistence changed the score: before %+v, after %+v", want, got)
	}
	if !got.ScoreAllTime.Valid || got.ScoreAllTime.Decimal.Sub(want.ScoreAllTime.Decimal).Abs().GreaterThan(decimal.RequireFromString("0.05")) {
		t.Errorf("ScoreAllTime = %v, want about %v", got.ScoreAllTime, want.ScoreAllTime)
	}

	// old buys are trimmed, scoring history is not
	trades, _ := store.FinalizedTrades("w1")
	if len(trades) != 140 {
		t.Errorf("Expected 140 trades after persistence, got %d", len(trades))
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, context.Background())
	if err := s.RegisterAll(validSchedule, time.Hour); err != nil {
		t.Fatal(err)
	}
	s.Start()
	s.Stop()
}
