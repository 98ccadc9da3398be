package domain

import "context"

// Detector runs object detection on a decoded image. Detections below
// minConfidence may be omitted. Boxes must be normalized to [0,1].
type Detector interface {
	Detect(ctx context.Context, image []byte, minConfidence float64) ([]RawDetection, error)
}

// SessionFilter narrows ListSessions. Zero values mean "no restriction".
type SessionFilter struct {
	EmployeeID EmployeeID
	Statuses   []Status
	Offset     int
	Limit      int
}

// SessionStore defines session's persistence.
//
// UpdateSession succeeds only if the stored version equals session.Version;
// on success it increments session.Version. A stale version yields ErrConflict.
// ListSessions orders by creation time, newest first, and also returns the
// total number of matches ignoring Offset/Limit.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, int, error)
}

// EventStore persists the transition history of sessions.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *Event) error
	ListEventsBySession(ctx context.Context, id SessionID, limit int) ([]*Event, error)
}

// EventPublisher receives events after their transition has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, events []*Event)
}

// Matches reports whether s passes the filter, ignoring paging.
func (f SessionFilter) Matches(s *Session) bool {
	if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}
