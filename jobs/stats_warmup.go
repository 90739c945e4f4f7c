package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybook/tallybook/internal/stats"
)

// StatsWarmupJob rebuilds the dashboard summary cache on a schedule so
// interactive requests hit warm data.
type StatsWarmupJob struct {
	Stats  *stats.Service
	Logger *slog.Logger
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(statsSvc *stats.Service, logger *slog.Logger) *StatsWarmupJob {
	return &StatsWarmupJob{Stats: statsSvc, Logger: logger}
}

// Handle processes stats warmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	summary, err := j.Stats.Refresh(ctx)
	if err != nil {
		j.Logger.Error("stats warmup", slog.Any("error", err))
		return err
	}
	j.Logger.Info("stats warmup complete",
		slog.String("reason", payload.Reason),
		slog.Int("kinds", len(summary.Kinds)),
		slog.Duration("took", time.Since(start)))
	return nil
}
