package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/metrics"
	"github.com/veildex/swap-engine/internal/settlement"
	"github.com/veildex/swap-engine/internal/store"
	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/pkg/model"
)

// driveStages are the pipeline stages the sweeper advances itself. The first
// two stages (quote fetch, user confirmation) belong to the submit path.
var driveStages = []model.StageName{
	model.StageTokenWrapping,
	model.StageEncryptedComputation,
	model.StageSettlement,
}

// Sweeper periodically re-drives every non-terminal intent through the
// settlement pipeline. Each intent is driven independently: one failure is
// routed to FailSwap and the rest of the batch continues. Drives resume
// after the last completed stage rather than restarting the pipeline.
type Sweeper struct {
	store           store.Store
	engine          *swap.Engine
	backend         settlement.Backend
	logger          *zap.Logger
	interval        time.Duration
	cleanupInterval time.Duration
	workers         int
	stageTimeout    time.Duration
	done            chan struct{}
}

// New creates a sweeper. workers bounds concurrent settlement attempts.
func New(
	st store.Store,
	engine *swap.Engine,
	backend settlement.Backend,
	logger *zap.Logger,
	interval, cleanupInterval time.Duration,
	workers int,
	stageTimeout time.Duration,
) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	if stageTimeout <= 0 {
		stageTimeout = 30 * time.Second
	}
	return &Sweeper{
		store:           st,
		engine:          engine,
		backend:         backend,
		logger:          logger,
		interval:        interval,
		cleanupInterval: cleanupInterval,
		workers:         workers,
		stageTimeout:    stageTimeout,
		done:            make(chan struct{}),
	}
}

// Start runs the sweep and cleanup loops until context cancellation or Stop.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper.start",
		zap.Duration("interval", s.interval),
		zap.Duration("cleanup_interval", s.cleanupInterval),
		zap.Int("workers", s.workers))

	sweepTicker := time.NewTicker(s.interval)
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-sweepTicker.C:
			if _, _, err := s.ProcessPendingSwaps(ctx); err != nil {
				s.logger.Warn("sweeper.sweep_failed", zap.Error(err))
			}
		case <-cleanupTicker.C:
			if _, err := s.CleanupExpiredSessions(ctx); err != nil {
				s.logger.Warn("sweeper.session_cleanup_failed", zap.Error(err))
			}
			if _, err := s.CleanupExpiredQuotes(ctx); err != nil {
				s.logger.Warn("sweeper.quote_cleanup_failed", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("sweeper.stopped")
			return
		case <-s.done:
			s.logger.Info("sweeper.stopped")
			return
		}
	}
}

// Stop terminates the Start loop.
func (s *Sweeper) Stop() {
	close(s.done)
}

// ProcessPendingSwaps lists every non-terminal intent and drives each one
// through the remaining pipeline stages on a bounded worker pool. Returns
// how many intents settled and how many failed.
func (s *Sweeper) ProcessPendingSwaps(ctx context.Context) (settled, failed int, err error) {
	start := time.Now()
	intents, err := s.store.ListPendingIntents(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending intents: %w", err)
	}
	if len(intents) == 0 {
		return 0, 0, nil
	}

	s.logger.Info("sweeper.sweep_start", zap.Int("pending", len(intents)))

	jobs := make(chan model.SwapIntent)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for intent := range jobs {
				if driveErr := s.drive(ctx, intent); driveErr != nil {
					s.failIntent(ctx, intent.ID, driveErr)
					metrics.IncSweepIntent("failed")
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				metrics.IncSweepIntent("settled")
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}

	for _, intent := range intents {
		select {
		case jobs <- intent:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return settled, failed, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("sweeper.sweep_complete",
		zap.Int("settled", settled),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
	return settled, failed, nil
}

// drive advances one intent through the remaining driveable stages and
// completes it. Stages already COMPLETED are skipped so a crash mid-pipeline
// resumes where it left off.
func (s *Sweeper) drive(ctx context.Context, intent model.SwapIntent) error {
	stages, err := s.store.GetStages(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	completed := make(map[model.StageName]bool, len(stages))
	for _, st := range stages {
		if st.Status == model.StageCompleted {
			completed[st.Name] = true
		}
	}

	for _, name := range driveStages {
		if completed[name] {
			continue
		}

		if err := s.engine.UpdateSwapStage(ctx, intent.ID, name, model.StageInProgress, ""); err != nil {
			return fmt.Errorf("stage %s: mark in progress: %w", name, err)
		}

		stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
		err := s.backend.ExecuteStage(stageCtx, intent, name)
		cancel()
		if err != nil {
			if stErr := s.engine.UpdateSwapStage(ctx, intent.ID, name, model.StageFailed, err.Error()); stErr != nil {
				s.logger.Warn("sweeper.stage_fail_mark_failed",
					zap.String("swap_id", intent.ID),
					zap.Error(stErr))
			}
			return fmt.Errorf("stage %s: %w", name, err)
		}

		if err := s.engine.UpdateSwapStage(ctx, intent.ID, name, model.StageCompleted, ""); err != nil {
			return fmt.Errorf("stage %s: mark completed: %w", name, err)
		}
	}

	settleCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	res, err := s.backend.Settle(settleCtx, intent)
	cancel()
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	if err := s.engine.CompleteSwap(ctx, intent.ID, *res); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// failIntent routes a drive failure to FailSwap. Errors here are logged, not
// propagated: one broken intent must not abort the batch.
func (s *Sweeper) failIntent(ctx context.Context, swapID string, cause error) {
	s.logger.Warn("sweeper.drive_failed",
		zap.String("swap_id", swapID),
		zap.Error(cause))
	if err := s.engine.FailSwap(ctx, swapID, cause.Error()); err != nil {
		s.logger.Error("sweeper.fail_swap_failed",
			zap.String("swap_id", swapID),
			zap.Error(err))
	}
}

// CleanupExpiredSessions removes confirmation sessions past their validity
// window. Idempotent; invoked on its own schedule.
func (s *Sweeper) CleanupExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("sweeper.sessions_cleaned", zap.Int("expired", n))
	}
	return n, nil
}

// CleanupExpiredQuotes removes quote snapshots past their validity window.
// Idempotent; invoked on its own schedule.
func (s *Sweeper) CleanupExpiredQuotes(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredQuotes(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("sweeper.quotes_cleaned", zap.Int("expired", n))
	}
	return n, nil
}
