package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/service"
)

// Purger runs one retention pass.
type Purger interface {
	Purge(ctx context.Context) (service.RetentionReport, error)
}

// RunRetention purges on every tick until ctx is done.
func RunRetention(ctx context.Context, purger Purger, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := purger.Purge(ctx)
			if err != nil {
				logger.Error("retention run failed", zap.Error(err))
				continue
			}
			logger.Info("retention run completed",
				zap.Int("purged", len(report.Purged)),
				zap.Int("failed", len(report.Failed)),
				zap.Int("file_errors", report.FileErrors),
				zap.Time("cutoff", report.Cutoff))
		}
	}
}
