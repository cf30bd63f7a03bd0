package relayer

import (
	"context"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/version"
	"go.uber.org/zap"
)

func heartbeatRunnable(interval time.Duration) supervisor.Runnable {
	return func(ctx context.Context) error {
		logger := supervisor.Logger(ctx)
		started := time.Now()
		supervisor.Signal(ctx, supervisor.SignalHealthy)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				logger.Info("heartbeat",
					zap.String("version", version.Version()),
					zap.Duration("uptime", time.Since(started).Truncate(time.Second)),
					zap.Bool("ready", readiness.IsReady()))
			}
		}
	}
}

func compactionRunnable(database *db.Database, interval time.Duration) supervisor.Runnable {
	return func(ctx context.Context) error {
		logger := supervisor.Logger(ctx)
		supervisor.Signal(ctx, supervisor.SignalHealthy)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				start := time.Now()
				if err := database.Compact(); err != nil {
					logger.Error("value log GC failed", zap.Error(err))
					continue
				}
				logger.Debug("value log GC done", zap.Duration("took", time.Since(start)))
			}
		}
	}
}
