package server

import (
	"context"
	"log/slog"
	"time"

	"fieldops/internal/engine"
)

// runSweeper ends domination sessions whose duration elapsed, even when no
// client polls them.
func runSweeper(ctx context.Context, e engine.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := e.SweepDominationSessions(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("sweep domination sessions", "error", err)
		}
		if n > 0 {
			logger.Info("ended expired domination sessions", "count", n)
		}
	}
}

// StartBackground launches the webhook dispatcher and the session sweeper.
// Both stop when ctx is canceled. A zero sweep interval disables the sweeper.
func StartBackground(ctx context.Context, e engine.Engine, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if d := newWebhookDispatcher(e, logger); d != nil {
		go d.run(ctx)
	}
	if e.Config == nil || e.Config.Domination.SweepIntervalSec <= 0 {
		return
	}
	interval := time.Duration(e.Config.Domination.SweepIntervalSec) * time.Second
	go runSweeper(ctx, e, interval, logger.With("component", "sweeper"))
}
