// Package logging builds the process logger and logs pipeline events.
package logging

import (
	"fmt"

	"github.com/chrisconley/arrbucket/internal"
	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/specs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger at the given level. verbose forces debug.
func New(level string, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		level = "debug"
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Subscribe logs every pipeline event published on bus.
func Subscribe(bus *infra.Bus, logger *zap.Logger) {
	bus.SubscribeAll(func(e infra.Event) {
		logEvent(logger, e)
	})
}

func logEvent(logger *zap.Logger, e infra.Event) {
	event := zap.Stringer("event", e.EventType())
	switch ev := e.(type) {
	case internal.RecordsPreCheckedEvent:
		logger.Debug("event", event,
			zap.String("run_id", ev.RunID),
			zap.Int("valid", ev.Valid),
			zap.Int("rejected", ev.Rejected),
			zap.Int("warnings", ev.Warnings),
			zap.Any("rejections_by_rule", ev.RejectionsByRule))
	case internal.RecordsBucketedEvent:
		logger.Debug("event", event,
			zap.String("run_id", ev.RunID),
			zap.Int("partitions", ev.Partitions),
			zap.Int("matched", ev.Matched),
			zap.Int("unmatched", ev.Unmatched))
	case internal.ReconciliationCompletedEvent:
		fields := []zap.Field{event,
			zap.String("run_id", ev.RunID),
			zap.String("period", ev.Result.Period),
			zap.Bool("healthy", ev.Result.Healthy),
			zap.String("delta", ev.Result.Delta),
		}
		if !ev.Result.Healthy {
			for _, c := range ev.Result.Checks {
				if c.Status != specs.StatusPass {
					fields = append(fields, zap.String("check_"+c.Category, c.Message))
				}
			}
			logger.Warn("reconciliation unhealthy", fields...)
			return
		}
		logger.Debug("event", fields...)
	case internal.ReportAssembledEvent:
		logger.Debug("event", event,
			zap.String("run_id", ev.RunID),
			zap.String("period", ev.Report.Period),
			zap.Int("buckets", len(ev.Report.Buckets)),
			zap.Int("growth", len(ev.Report.Growth)))
	case internal.RunFailedEvent:
		logger.Error("event", event,
			zap.String("run_id", ev.RunID),
			zap.String("stage", ev.Stage),
			zap.Error(ev.Err))
	default:
		logger.Debug("event", event)
	}
}
