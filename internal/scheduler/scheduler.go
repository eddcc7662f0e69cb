// Package scheduler runs the recurring pipeline jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/whalescope/internal/config"
	"github.com/rewired-gh/whalescope/internal/logger"
	"github.com/rewired-gh/whalescope/internal/pipeline"
	"github.com/rewired-gh/whalescope/internal/storage"
	"github.com/robfig/cron/v3"
)

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *pipeline.Pipeline
	store    *storage.Storage
	ctx      context.Context
}

// New creates a Scheduler. Jobs run with ctx and are skipped once it is done.
func New(ctx context.Context, p *pipeline.Pipeline, store *storage.Storage) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		pipeline: p,
		store:    store,
		ctx:      ctx,
	}
}

// RegisterAll registers the score, accumulation, confluence and persistence jobs.
// A non-positive persistEvery disables the persistence job.
func (s *Scheduler) RegisterAll(cfg config.ScheduleConfig, persistEvery time.Duration) error {
	if _, err := s.cron.AddFunc(cfg.RecalculateCron, s.recalculate); err != nil {
		return fmt.Errorf("register recalculate task: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.AccumulationCron, s.accumulation); err != nil {
		return fmt.Errorf("register accumulation task: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.ConfluenceCron, s.confluence); err != nil {
		return fmt.Errorf("register confluence task: %w", err)
	}
	if persistEvery > 0 {
		if _, err := s.cron.AddFunc("@every "+persistEvery.String(), s.persist); err != nil {
			return fmt.Errorf("register persistence task: %w", err)
		}
	}
	return nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started with %d jobs", s.Entries())
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Scheduler stopped")
}

// RunAllNow executes every analytics job immediately, in dependency order:
// scores first so the detectors see fresh wallet reputations.
func (s *Scheduler) RunAllNow() {
	s.recalculate()
	s.accumulation()
	s.confluence()
}

func (s *Scheduler) recalculate() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	updated, jobErrors, err := s.pipeline.RecalculateScores(s.ctx)
	if err != nil {
		logger.Error("Score recalculation failed: %v", err)
		return
	}
	logger.Info("Recalculated %d wallet scores in %v (%d errors)", updated, time.Since(start).Round(time.Millisecond), len(jobErrors))
}

func (s *Scheduler) accumulation() {
	if s.ctx.Err() != nil {
		return
	}
	results, jobErrors, err := s.pipeline.DetectAccumulation(s.ctx)
	if err != nil {
		logger.Error("Accumulation scan failed: %v", err)
		return
	}
	logger.Info("Accumulation scan: %d wallets accumulating (%d errors)", len(results), len(jobErrors))
}

func (s *Scheduler) confluence() {
	if s.ctx.Err() != nil {
		return
	}
	signals, err := s.pipeline.DetectConfluence(s.ctx)
	if err != nil {
		logger.Error("Confluence scan failed: %v", err)
		return
	}
	logger.Info("Confluence scan: %d signals", len(signals))
}

func (s *Scheduler) persist() {
	if err := s.store.RotateTrades(time.Now()); err != nil {
		logger.Error("Failed to rotate trades: %v", err)
	}
	if err := s.store.Save(); err != nil {
		logger.Error("Failed to persist storage: %v", err)
		return
	}
	logger.Debug("Storage persisted to %s", s.store.FilePath())
}
