// Package alertlog keeps a queryable history of every alert in SQLite.
// Recorder implements detector.AlertNotifier so it can sit next to the Telegram
// client behind a detector.MultiNotifier.
package alertlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/whalescope/internal/detector"
	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/models"
	_ "modernc.org/sqlite"
)

// AlertType distinguishes the detector that raised an alert.
type AlertType string

const (
	TypeAccumulation AlertType = "ACCUMULATION"
	TypeConfluence   AlertType = "CONFLUENCE"
)

// Alert is one stored alert row.
type Alert struct {
	ID            string
	Type          AlertType
	WalletID      string
	Token         string
	Message       string
	PurchaseCount int
	Confidence    string // confluence level, empty for accumulation
	CreatedAt     time.Time
	IsRead        bool
}

// Recorder persists alerts to a SQLite database.
type Recorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (or creates) the SQLite database at dbPath and runs migrations.
// ":memory:" gives a throwaway database.
func Open(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: a second one would see a different :memory: database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &Recorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Alert log opened: %s", dbPath)
	return r, nil
}

func (r *Recorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			type           TEXT NOT NULL,
			wallet_id      TEXT NOT NULL,
			token          TEXT NOT NULL,
			message        TEXT NOT NULL,
			purchase_count INTEGER,
			confidence     TEXT,
			created_at     INTEGER NOT NULL,
			is_read        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_wallet ON alerts(wallet_id, created_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// NotifyAccumulation stores one alert for the accumulating wallet.
func (r *Recorder) NotifyAccumulation(ctx context.Context, walletID, token string, purchaseCount int) error {
	msg := fmt.Sprintf("Possible silent accumulation: %d buys of %s detected", purchaseCount, token)
	return r.insert(ctx, Alert{
		Type:          TypeAccumulation,
		WalletID:      walletID,
		Token:         token,
		Message:       msg,
		PurchaseCount: purchaseCount,
	})
}

// NotifyConfluence stores one alert per participating wallet so each wallet's
// history shows the confluence it took part in. The rows are written in a
// single transaction: either every wallet gets the alert or none does.
func (r *Recorder) NotifyConfluence(ctx context.Context, token string, wallets []models.WalletSummary, level detector.ConfidenceLevel) error {
	msg := fmt.Sprintf("%s confluence: %d whales bought %s", level, len(wallets), token)

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confluence alert: %w", err)
	}
	for _, w := range wallets {
		if err := r.exec(ctx, tx, Alert{
			Type:          TypeConfluence,
			WalletID:      w.ID,
			Token:         token,
			Message:       msg,
			PurchaseCount: len(wallets),
			Confidence:    string(level),
		}); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit confluence alert: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Recorder) insert(ctx context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec(ctx, r.db, a)
}

func (r *Recorder) exec(ctx context.Context, db execer, a Alert) error {
	_, err := db.ExecContext(ctx, `INSERT INTO alerts
		(id, type, wallet_id, token, message, purchase_count, confidence, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		uuid.New().String(), string(a.Type), a.WalletID, a.Token, a.Message,
		a.PurchaseCount, a.Confidence, r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert %s alert: %w", a.Type, err)
	}
	return nil
}

// ListByWallet returns a wallet's alerts, newest first.
func (r *Recorder) ListByWallet(ctx context.Context, walletID string) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type, wallet_id, token, message, purchase_count, confidence, created_at, is_read
		FROM alerts WHERE wallet_id = ? ORDER BY created_at DESC, rowid DESC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var (
			a       Alert
			typ     string
			created int64
			read    int
		)
		if err := rows.Scan(&a.ID, &typ, &a.WalletID, &a.Token, &a.Message, &a.PurchaseCount, &a.Confidence, &created, &read); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = AlertType(typ)
		a.CreatedAt = time.UnixMilli(created).UTC()
		a.IsRead = read != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkRead flags an alert as read.
func (r *Recorder) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
