package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/PabloGalante/kitcheck/internal/adapters/storage/codec"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

// Store keeps sessions and their events in a single SQLite file.
// Phases are stored as JSON columns.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at the given path and
// initializes the schema.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			status TEXT NOT NULL,
			threshold_used REAL NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			issued_at INTEGER,
			returned_at INTEGER,
			handout TEXT,
			handover TEXT,
			hash TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_employee ON sessions(employee_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = `id, employee_id, status, threshold_used, notes, created_at, updated_at,
	issued_at, returned_at, handout, handover, hash, version`

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	handout, handover, err := encodePhases(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		string(session.ID), string(session.EmployeeID), string(session.Status),
		session.ThresholdUsed, session.Notes,
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
		nullTime(session.IssuedAt), nullTime(session.ReturnedAt),
		handout, handover, session.Hash,
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite CreateSession: %w", err)
	}

	session.Version = 1
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	handout, handover, err := encodePhases(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			status = ?, threshold_used = ?, notes = ?, updated_at = ?,
			issued_at = ?, returned_at = ?, handout = ?, handover = ?, hash = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(session.Status), session.ThresholdUsed, session.Notes, session.UpdatedAt.UnixNano(),
		nullTime(session.IssuedAt), nullTime(session.ReturnedAt), handout, handover, session.Hash,
		string(session.ID), session.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite UpdateSession rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, string(session.ID)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("sqlite UpdateSession lookup: %w", err)
		}
		return domain.ErrConflict
	}

	session.Version++
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, string(id))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite GetSession: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(filter.EmployeeID))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite ListSessions count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite ListSessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite ListSessions scan: %w", err)
		}
		out = append(out, sess)
	}
	return out, total, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (id, session_id, kind, from_status, to_status, actor, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.SessionID), string(ev.Kind), string(ev.From), string(ev.To), string(ev.Actor), ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite AppendEvent: %w", err)
	}
	return nil
}

func (s *Store) ListEventsBySession(ctx context.Context, id domain.SessionID, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, from_status, to_status, actor, at FROM (
			SELECT * FROM session_events WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		string(id), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite ListEventsBySession: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			ev                               domain.Event
			sessionID, kind, from, to, actor string
			at                               int64
		)
		if err := rows.Scan(&ev.ID, &sessionID, &kind, &from, &to, &actor, &at); err != nil {
			return nil, fmt.Errorf("sqlite ListEventsBySession scan: %w", err)
		}
		ev.SessionID = domain.SessionID(sessionID)
		ev.Kind = domain.EventKind(kind)
		ev.From = domain.Status(from)
		ev.To = domain.Status(to)
		ev.Actor = domain.EmployeeID(actor)
		ev.At = time.Unix(0, at).UTC()
		out = append(out, &ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		id, employeeID, status, notes, hash string
		threshold                           float64
		createdAt, updatedAt                int64
		issuedAt, returnedAt                sql.NullInt64
		handout, handover                   sql.NullString
		version                             int64
	)
	if err := row.Scan(&id, &employeeID, &status, &threshold, &notes, &createdAt, &updatedAt,
		&issuedAt, &returnedAt, &handout, &handover, &hash, &version); err != nil {
		return nil, err
	}

	sess := &domain.Session{
		ID:            domain.SessionID(id),
		EmployeeID:    domain.EmployeeID(employeeID),
		Status:        domain.Status(status),
		ThresholdUsed: threshold,
		Notes:         notes,
		CreatedAt:     time.Unix(0, createdAt).UTC(),
		UpdatedAt:     time.Unix(0, updatedAt).UTC(),
		IssuedAt:      timeFromNull(issuedAt),
		ReturnedAt:    timeFromNull(returnedAt),
		Hash:          hash,
		Version:       version,
	}

	var err error
	if handout.Valid {
		if sess.Handout, err = codec.DecodePhase([]byte(handout.String)); err != nil {
			return nil, err
		}
	}
	if handover.Valid {
		if sess.Handover, err = codec.DecodePhase([]byte(handover.String)); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func encodePhases(s *domain.Session) (sql.NullString, sql.NullString, error) {
	out, err := codec.EncodePhase(s.Handout)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, err
	}
	back, err := codec.EncodePhase(s.Handover)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, err
	}
	return nullString(out), nullString(back), nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
