package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/service"
)

// StartReconciliationWorker drives reconciliation cycles on a fixed cadence
// until the context is cancelled. Cycles are not serialized against manual
// invocations; the ledger checks make overlap safe.
func StartReconciliationWorker(ctx context.Context, reconciler *service.Reconciler, interval time.Duration, logger *zap.Logger) {
	if reconciler == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("reconciliation worker started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("reconciliation worker stopped")
				return
			case <-ticker.C:
				if err := reconciler.RunReconciliationCycle(ctx); err != nil {
					logger.Error("reconciliation cycle failed", zap.Error(err))
				}
			}
		}
	}()
}
