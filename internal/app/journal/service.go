package journal

import (
	"context"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

const defaultLimit = 50

// Service holds the logic of reading the transition history of sessions.
type Service struct {
	store domain.EventStore
}

// NewService creates a journal service from an EventStore.
func NewService(store domain.EventStore) *Service {
	return &Service{
		store: store,
	}
}

// History returns the last `limit` events of a session, oldest first.
// If limit <= 0, a reasonable default value is used.
func (s *Service) History(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) ([]*domain.Event, error) {

	if s.store == nil {
		return []*domain.Event{}, nil
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	return s.store.ListEventsBySession(ctx, sessionID, limit)
}
