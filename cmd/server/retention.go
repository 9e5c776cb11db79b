package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brunobiangulo/worksheet"
)

const defaultRetentionSchedule = "30 3 * * *"

// startRetention schedules the purge of extractions older than days. It
// returns nil when retention is disabled.
func startRetention(engine worksheet.Engine, days int, schedule string) (*cron.Cron, error) {
	if days <= 0 {
		return nil, nil
	}
	if schedule == "" {
		schedule = defaultRetentionSchedule
	}

	logger := slog.Default()
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, func() { purgeExpired(engine, days, time.Now()) }); err != nil {
		return nil, err
	}
	c.Start()
	logger.Info("retention job scheduled", "schedule", schedule, "days", days)
	return c, nil
}

func purgeExpired(engine worksheet.Engine, days int, now time.Time) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := now.AddDate(0, 0, -days)
	n, err := engine.PurgeBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention purge failed", "cutoff", cutoff, "error", err)
		return 0
	}
	return n
}
