package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// startHistoryPruning schedules removal of render history older than the
// configured retention. The caller owns the returned scheduler and must
// Shutdown it.
func startHistoryPruning(stats *StatsAPI, cfg *HistoryConfig, logger *slog.Logger) (gocron.Scheduler, error) {
	if cfg.RetentionHours <= 0 || cfg.PruneIntervalMin <= 0 {
		return nil, fmt.Errorf("history retention and prune interval must be positive")
	}
	retention := time.Duration(cfg.RetentionHours) * time.Hour

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Duration(cfg.PruneIntervalMin)*time.Minute),
		gocron.NewTask(func() {
			removed, err := stats.Prune(context.Background(), time.Now().Add(-retention))
			if err != nil {
				logger.Error("Failed to prune render history", "error", err)
				return
			}
			if removed > 0 {
				logger.Info("Pruned render history", "removed", removed, "retention", retention)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule history pruning: %w", err)
	}

	scheduler.Start()
	return scheduler, nil
}
