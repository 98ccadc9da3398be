package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// SessionStore is an in-memory domain.SessionStore. Sessions are cloned on
// the way in and out, so callers never share state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (s *SessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrAlreadyExists
	}

	session.Version = 1
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.sessions[session.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Version != session.Version {
		return domain.ErrConflict
	}

	session.Version++
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return sess.Clone(), nil
}

func (s *SessionStore) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Session
	for _, sess := range s.sessions {
		if filter.Matches(sess) {
			matched = append(matched, sess)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	out := make([]*domain.Session, 0, end-start)
	for _, sess := range matched[start:end] {
		out = append(out, sess.Clone())
	}
	return out, total, nil
}
