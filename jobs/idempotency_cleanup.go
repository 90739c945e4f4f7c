package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tallybook/tallybook/internal/shared"
)

// IdempotencyCleanupJob prunes idempotency keys past their retention
// window so the table stays small.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger}
}

// Handle processes idempotency cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 24
	}

	olderThan := time.Duration(payload.OlderThanHours) * time.Hour
	if err := j.Store.Cleanup(ctx, olderThan); err != nil {
		j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.Logger.Info("idempotency cleanup complete", slog.Duration("older_than", olderThan))
	return nil
}
