package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry, before, after []byte) error
}

// Recorder appends immutable audit records.
//
// Records are written after the business transaction commits. A failed
// audit write must never undo or fail the operation it describes, so
// Record does not return an error: the failure is logged as a degraded
// audit condition and the caller proceeds.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (r *Recorder) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Record appends one audit entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	if e.At.IsZero() {
		e.At = r.now()
	}
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		r.warn(ctx, e, err)
		return
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		r.warn(ctx, e, err)
		return
	}
	if err := r.store.Insert(ctx, e, before, after); err != nil {
		r.warn(ctx, e, err)
	}
}

func (r *Recorder) warn(ctx context.Context, e Entry, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WarnContext(ctx, "audit write degraded",
		slog.String("action", string(e.Action)),
		slog.String("entity", e.Entity),
		slog.String("entity_id", e.EntityID),
		slog.Int64("actor_id", e.ActorID),
		slog.Any("error", err),
	)
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
