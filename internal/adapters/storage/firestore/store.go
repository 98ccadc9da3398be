package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/kitcheck/internal/adapters/storage/codec"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (KITCHECK_GCP_PROJECT). The client honours
// FIRESTORE_EMULATOR_HOST.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) eventsCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.client.Collection("session_events").Doc(string(sessionID)).Collection("events")
}

func (s *Store) eventCounterDoc(sessionID domain.SessionID) *firestore.DocumentRef {
	return s.client.Collection("session_events").Doc(string(sessionID))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

// sessionDoc keeps phases as JSON strings; Firestore maps cannot
// round-trip the nested detection lists losslessly.
type sessionDoc struct {
	EmployeeID    string     `firestore:"employee_id"`
	Status        string     `firestore:"status"`
	ThresholdUsed float64    `firestore:"threshold_used"`
	Notes         string     `firestore:"notes"`
	CreatedAt     time.Time  `firestore:"created_at"`
	UpdatedAt     time.Time  `firestore:"updated_at"`
	IssuedAt      *time.Time `firestore:"issued_at"`
	ReturnedAt    *time.Time `firestore:"returned_at"`
	Handout       string     `firestore:"handout"`
	Handover      string     `firestore:"handover"`
	Hash          string     `firestore:"hash"`
	Version       int64      `firestore:"version"`
}

type eventDoc struct {
	Seq   int64     `firestore:"seq"`
	Kind  string    `firestore:"kind"`
	From  string    `firestore:"from"`
	To    string    `firestore:"to"`
	Actor string    `firestore:"actor"`
	At    time.Time `firestore:"at"`
}

type counterDoc struct {
	Next int64 `firestore:"next"`
}

func toDoc(s *domain.Session) (sessionDoc, error) {
	handout, err := codec.EncodePhase(s.Handout)
	if err != nil {
		return sessionDoc{}, err
	}
	handover, err := codec.EncodePhase(s.Handover)
	if err != nil {
		return sessionDoc{}, err
	}
	return sessionDoc{
		EmployeeID:    string(s.EmployeeID),
		Status:        string(s.Status),
		ThresholdUsed: s.ThresholdUsed,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		IssuedAt:      s.IssuedAt,
		ReturnedAt:    s.ReturnedAt,
		Handout:       string(handout),
		Handover:      string(handover),
		Hash:          s.Hash,
		Version:       s.Version,
	}, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*domain.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode sessionDoc: %w", err)
	}

	handout, err := codec.DecodePhase([]byte(doc.Handout))
	if err != nil {
		return nil, err
	}
	handover, err := codec.DecodePhase([]byte(doc.Handover))
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		ID:            domain.SessionID(snap.Ref.ID),
		EmployeeID:    domain.EmployeeID(doc.EmployeeID),
		Status:        domain.Status(doc.Status),
		ThresholdUsed: doc.ThresholdUsed,
		Notes:         doc.Notes,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		IssuedAt:      doc.IssuedAt,
		ReturnedAt:    doc.ReturnedAt,
		Handout:       handout,
		Handover:      handover,
		Hash:          doc.Hash,
		Version:       doc.Version,
	}, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	doc, err := toDoc(session)
	if err != nil {
		return err
	}
	doc.Version = 1

	if _, err := s.sessionDoc(session.ID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}

	session.Version = 1
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	doc, err := toDoc(session)
	if err != nil {
		return err
	}
	doc.Version = session.Version + 1

	ref := s.sessionDoc(session.ID)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrNotFound
			}
			return err
		}

		var current sessionDoc
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode sessionDoc: %w", err)
		}
		if current.Version != session.Version {
			return domain.ErrConflict
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return err
		}
		if status.Code(err) == codes.Aborted {
			return domain.ErrConflict
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}

	session.Version++
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	return fromSnapshot(snap)
}

// ListSessions reads every matching document and pages in memory, so the
// total is exact without a separate aggregation query.
func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, int, error) {
	q := s.sessionsCol().Query
	if filter.EmployeeID != "" {
		q = q.Where("employee_id", "==", string(filter.EmployeeID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status", "in", statuses)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var all []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, 0, fmt.Errorf("firestore ListSessions: %w", err)
		}
		sess, err := fromSnapshot(snap)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, sess)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	if filter.Offset >= total {
		return []*domain.Session{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], total, nil
}

// ─────────────────────────────────────────
// EventStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	counter := s.eventCounterDoc(ev.SessionID)
	ref := s.eventsCol(ev.SessionID).Doc(ev.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var c counterDoc
		snap, err := tx.Get(counter)
		switch {
		case err == nil:
			if err := snap.DataTo(&c); err != nil {
				return err
			}
		case status.Code(err) != codes.NotFound:
			return err
		}

		c.Next++
		if err := tx.Set(counter, c); err != nil {
			return err
		}
		return tx.Create(ref, eventDoc{
			Seq:   c.Next,
			Kind:  string(ev.Kind),
			From:  string(ev.From),
			To:    string(ev.To),
			Actor: string(ev.Actor),
			At:    ev.At,
		})
	})
	if err != nil {
		return fmt.Errorf("firestore AppendEvent: %w", err)
	}
	return nil
}

func (s *Store) ListEventsBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Event, error) {
	q := s.eventsCol(sessionID).OrderBy("seq", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Event
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListEventsBySession: %w", err)
		}

		var doc eventDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode eventDoc: %w", err)
		}

		out = append(out, &domain.Event{
			ID:        snap.Ref.ID,
			SessionID: sessionID,
			Kind:      domain.EventKind(doc.Kind),
			From:      domain.Status(doc.From),
			To:        domain.Status(doc.To),
			Actor:     domain.EmployeeID(doc.Actor),
			At:        doc.At,
		})
	}

	// newest first from the query; callers want append order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
