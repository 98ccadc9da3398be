package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// EventStore is a simple in-memory implementation of domain.EventStore.
// It is NOT persistent and is only suitable for development / local mode.
type EventStore struct {
	mu        sync.RWMutex
	bySession map[domain.SessionID][]domain.Event
}

// NewEventStore creates a new in-memory EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		bySession: make(map[domain.SessionID][]domain.Event),
	}
}

// AppendEvent saves a new event.
func (s *EventStore) AppendEvent(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySession[ev.SessionID] = append(s.bySession[ev.SessionID], *ev)
	return nil
}

// ListEventsBySession returns the last `limit` events of a session.
// If limit <= 0, returns all.
func (s *EventStore) ListEventsBySession(
	ctx context.Context,
	id domain.SessionID,
	limit int,
) ([]*domain.Event, error) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.bySession[id]
	if limit <= 0 || limit > len(evs) {
		limit = len(evs)
	}

	// Take the last `limit` events
	selected := evs[len(evs)-limit:]

	out := make([]*domain.Event, 0, len(selected))
	for i := range selected {
		ev := selected[i]
		out = append(out, &ev)
	}
	return out, nil
}
