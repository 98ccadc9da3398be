package events

import (
	"context"
	"fmt"

	"github.com/PabloGalante/kitcheck/internal/app/projection"
	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

// JournalRecorder appends every event to an EventStore so the session
// history can be read back later.
type JournalRecorder struct {
	store domain.EventStore
}

func NewJournalRecorder(store domain.EventStore) *JournalRecorder {
	return &JournalRecorder{store: store}
}

func (r *JournalRecorder) Name() string {
	return "journal_recorder"
}

func (r *JournalRecorder) Handle(ctx context.Context, ev *domain.Event) error {
	if ev.SessionID == "" {
		return fmt.Errorf("journal_recorder: event without session id")
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("journal_recorder: append failed: %w", err)
	}
	return nil
}

// LogNotifier writes one structured log line per transition.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string {
	return "log_notifier"
}

func (n *LogNotifier) Handle(ctx context.Context, ev *domain.Event) error {
	observability.LoggerFromContext(ctx).Info("session transition",
		"session_id", ev.SessionID,
		"event", ev.Kind,
		"from", ev.From,
		"to", ev.To,
		"label", projection.Label(ev.To),
		"group", projection.GroupOf(ev.To),
		"actor", ev.Actor,
	)
	return nil
}
