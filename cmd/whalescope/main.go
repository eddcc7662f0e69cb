package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rewired-gh/whalescope/internal/alertlog"
	"github.com/rewired-gh/whalescope/internal/config"
	"github.com/rewired-gh/whalescope/internal/detector"
	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/pipeline"
	"github.com/rewired-gh/whalescope/internal/scheduler"
	"github.com/rewired-gh/whalescope/internal/storage"
	"github.com/rewired-gh/whalescope/internal/telegram"
)

var (
	configPath  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	importPath  = flag.String("import", "", "Import a JSON dataset and exit")
	clusterPair = flag.String("cluster", "", "Compare two wallet IDs (idA,idB) for common ownership and exit")
	runNow      = flag.Bool("run-now", false, "Run all analytics jobs once at startup")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store := storage.New(cfg.Storage.MaxTradesPerWallet, cfg.Storage.FilePath, 0, 0)
	if err := store.Load(); err != nil {
		logger.Fatal("Failed to load storage from %s: %v", store.FilePath(), err)
	}

	notifier, closeNotifiers := buildNotifier(cfg)
	defer closeNotifiers()

	p := pipeline.New(store, notifier)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	switch {
	case *importPath != "":
		if err := runImport(ctx, p, store, *importPath); err != nil {
			logger.Fatal("Import failed: %v", err)
		}
		return
	case *clusterPair != "":
		if err := runCluster(p, *clusterPair); err != nil {
			logger.Fatal("Cluster analysis failed: %v", err)
		}
		return
	}

	sched := scheduler.New(ctx, p, store)
	if err := sched.RegisterAll(cfg.Schedule, cfg.Storage.PersistenceInterval); err != nil {
		logger.Fatal("Failed to register jobs: %v", err)
	}

	if *runNow {
		logger.Debug("Running initial analytics jobs")
		sched.RunAllNow()
	}

	logger.Info("Starting whalescope (recalculate: %q, accumulation: %q, confluence: %q, persist every %v)",
		cfg.Schedule.RecalculateCron,
		cfg.Schedule.AccumulationCron,
		cfg.Schedule.ConfluenceCron,
		cfg.Storage.PersistenceInterval,
	)
	sched.Start()

	<-ctx.Done()
	sched.Stop()

	if err := store.Save(); err != nil {
		logger.Error("Failed to persist storage on shutdown: %v", err)
	}
	logger.Info("Service stopped")
}

// buildNotifier assembles the enabled alert sinks. The returned func closes them.
func buildNotifier(cfg *config.Config) (detector.AlertNotifier, func()) {
	var sinks detector.MultiNotifier
	var closers []func() error

	if cfg.AlertLog.Enabled {
		rec, err := alertlog.Open(cfg.AlertLog.DBPath)
		if err != nil {
			logger.Fatal("Failed to open alert log: %v", err)
		}
		sinks = append(sinks, rec)
		closers = append(closers, rec.Close)
		logger.Info("Alert log opened at %s", cfg.AlertLog.DBPath)
	}

	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		sinks = append(sinks, client)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("Failed to close notifier: %v", err)
			}
		}
	}
	if len(sinks) == 0 {
		return detector.NopNotifier{}, closeAll
	}
	return sinks, closeAll
}

func runImport(ctx context.Context, p *pipeline.Pipeline, store *storage.Storage, path string) error {
	summary, err := p.ImportDataset(ctx, path)
	if err != nil {
		return err
	}

	updated, _, err := p.RecalculateScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to score imported wallets: %w", err)
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to persist import: %w", err)
	}
	logger.Info("Import done: %d trades, %d accumulation and %d confluence signals, %d wallets scored, %d records skipped",
		summary.Trades, summary.Accumulations, summary.Confluences, updated, len(summary.Errors))
	return nil
}

func runCluster(p *pipeline.Pipeline, pair string) error {
	ids := strings.Split(pair, ",")
	if len(ids) != 2 || strings.TrimSpace(ids[0]) == "" || strings.TrimSpace(ids[1]) == "" {
		return errors.New("expected two comma-separated wallet IDs")
	}

	a, b := strings.TrimSpace(ids[0]), strings.TrimSpace(ids[1])
	verdict, err := p.AnalyzePair(a, b)
	if err != nil {
		return err
	}
	fmt.Printf("%s / %s: same_owner=%v confidence=%.2f heuristics=%v\n",
		a, b, verdict.SameOwner, verdict.Confidence, verdict.MatchedHeuristics)
	return nil
}
