package decisionlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/observability"
)

// Store appends entries to the append-only decision log.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// Recorder writes decision-log entries on a best-effort basis. It is
// invoked strictly after the authorization outcome is computed; a write
// failure is logged and counted but never reaches the caller, so the
// primary outcome is unaffected.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger *slog.Logger, metrics *observability.Metrics) *Recorder {
	return &Recorder{store: store, logger: logger, metrics: metrics, now: time.Now}
}

// WithClock overrides the timestamp clock.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// RecordDecision classifies, sanitizes, and appends the entry. It has
// no error return: failures are swallowed here and surfaced only on the
// operational log and the failure counter.
func (r *Recorder) RecordDecision(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = r.now()
	}
	entry.Risk, entry.SecurityEvent = Classify(entry.Action)
	entry.Context = Sanitize(entry.Context)
	entry.Before = Sanitize(entry.Before)
	entry.After = Sanitize(entry.After)

	if err := r.store.Append(ctx, entry); err != nil {
		if r.logger != nil {
			r.logger.Error("decision log append failed",
				slog.String("action", entry.Action),
				slog.String("resource", entry.ResourceType+"/"+entry.ResourceID),
				slog.Any("error", err))
		}
		r.metrics.DecisionLogFailure()
		return
	}
	r.metrics.ObserveDecision(entry.Action, string(entry.Outcome), string(entry.Risk))
}
