package audit

import (
	"context"
	"errors"
	"log/slog"
)

// Store appends entries to the audit trail.
type Store interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
}

// Recorder appends immutable audit entries describing privileged actions.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends one entry and returns the stored row.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.store == nil {
		return Entry{}, errors.New("audit: recorder not configured")
	}
	if entry.Action == "" || entry.EntityType == "" || entry.PerformedByID == 0 {
		return Entry{}, errors.New("audit: entry requires action, entity type and actor")
	}
	return r.store.Insert(ctx, entry)
}

// Capture records an entry on a best-effort basis. The primary mutation has
// already committed by the time Capture runs, so a failing audit write is
// logged and swallowed rather than propagated. The trail can therefore have
// gaps under storage failure; callers accept that tradeoff.
func (r *Recorder) Capture(ctx context.Context, entry Entry) {
	if _, err := r.Record(ctx, entry); err != nil {
		logger := slog.Default()
		if r != nil && r.logger != nil {
			logger = r.logger
		}
		logger.Error("audit capture failed",
			slog.String("action", string(entry.Action)),
			slog.String("entity_type", entry.EntityType),
			slog.Int64("performed_by", entry.PerformedByID),
			slog.Any("error", err),
		)
	}
}
