package events

import (
	"context"
	"time"

	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

// Subscriber reacts to committed session transitions.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev *domain.Event) error
}

// Dispatcher delivers events to its subscribers in order.
type Dispatcher struct {
	subscribers []Subscriber
}

func NewDispatcher(subscribers ...Subscriber) *Dispatcher {
	return &Dispatcher{subscribers: subscribers}
}

// NewDefaultDispatcher records events in store and logs them.
func NewDefaultDispatcher(store domain.EventStore) *Dispatcher {
	subs := []Subscriber{NewLogNotifier()}
	if store != nil {
		subs = append([]Subscriber{NewJournalRecorder(store)}, subs...)
	}
	return NewDispatcher(subs...)
}

// Publish runs every subscriber for every event. The transition has already
// been committed, so subscriber failures are logged and never returned.
func (d *Dispatcher) Publish(ctx context.Context, events []*domain.Event) {
	if len(events) == 0 || len(d.subscribers) == 0 {
		return
	}

	for _, ev := range events {
		log := observability.LoggerFromContext(ctx).With(
			"session_id", ev.SessionID,
			"event", ev.Kind,
		)

		for _, sub := range d.subscribers {
			start := time.Now()
			if err := sub.Handle(ctx, ev); err != nil {
				log.Error("subscriber failed",
					"subscriber", sub.Name(),
					"error", err)
				continue
			}
			log.Debug("subscriber done", "subscriber", sub.Name(), "elapsed_ms", time.Since(start).Milliseconds())
		}
	}
}
