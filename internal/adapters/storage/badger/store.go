package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/PabloGalante/kitcheck/internal/adapters/storage/codec"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

var (
	sessionPrefix = []byte("session:")
	eventPrefix   = []byte("event:")
	eventSeqKey   = []byte("seq:events")
)

// Store keeps sessions as JSON documents in an embedded Badger database.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (or creates) a Badger database in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a Badger database that lives only in memory.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	seq, err := db.GetSequence(eventSeqKey, 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger event sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func sessionKey(id domain.SessionID) []byte {
	return append(append([]byte{}, sessionPrefix...), id...)
}

func eventKey(id domain.SessionID, seq uint64) []byte {
	return fmt.Appendf(append([]byte{}, eventPrefix...), "%s:%020d", id, seq)
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	rec := session.Clone()
	rec.Version = 1
	data, err := codec.EncodeSession(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(sessionKey(session.ID))
		if err == nil {
			return domain.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(sessionKey(session.ID), data)
	})
	if err != nil {
		return translate("CreateSession", err)
	}

	session.Version = 1
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	rec := session.Clone()
	rec.Version = session.Version + 1
	data, err := codec.EncodeSession(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		current, err := getSession(txn, session.ID)
		if err != nil {
			return err
		}
		if current.Version != session.Version {
			return domain.ErrConflict
		}
		return txn.Set(sessionKey(session.ID), data)
	})
	if err != nil {
		return translate("UpdateSession", err)
	}

	session.Version = rec.Version
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		sess, err := getSession(txn, id)
		out = sess
		return err
	})
	if err != nil {
		return nil, translate("GetSession", err)
	}
	return out, nil
}

func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, int, error) {
	var matched []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(sessionPrefix); it.ValidForPrefix(sessionPrefix); it.Next() {
			var sess *domain.Session
			err := it.Item().Value(func(val []byte) error {
				var err error
				sess, err = codec.DecodeSession(val)
				return err
			})
			if err != nil {
				return err
			}
			if filter.Matches(sess) {
				matched = append(matched, sess)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, translate("ListSessions", err)
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
	return matched[start:end], total, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger AppendEvent sequence: %w", err)
	}
	data, err := codec.EncodeEvent(ev)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(ev.SessionID, n), data)
	})
	if err != nil {
		return translate("AppendEvent", err)
	}
	return nil
}

func (s *Store) ListEventsBySession(ctx context.Context, id domain.SessionID, limit int) ([]*domain.Event, error) {
	prefix := fmt.Appendf(append([]byte{}, eventPrefix...), "%s:", id)

	var out []*domain.Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ev, err := codec.DecodeEvent(val)
				if err != nil {
					return err
				}
				out = append(out, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("ListEventsBySession", err)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func getSession(txn *badger.Txn, id domain.SessionID) (*domain.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if err != nil {
		return nil, err
	}
	var sess *domain.Session
	err = item.Value(func(val []byte) error {
		sess, err = codec.DecodeSession(val)
		return err
	})
	return sess, err
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		return err
	}
	return fmt.Errorf("badger %s: %w", op, err)
}
