package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PabloGalante/kitcheck/internal/adapters/storage/codec"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

// PostgreSQL error codes the store translates.
const (
	PgErrUniqueViolation  = "23505" // unique_violation
	PgErrSerialization    = "40001" // serialization_failure
	PgErrDeadlockDetected = "40P01" // deadlock_detected
)

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&sessionModel{}, &eventModel{}); err != nil {
		return nil, fmt.Errorf("migrating postgres schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	m, err := toModel(session)
	if err != nil {
		return err
	}
	m.Version = 1

	dbTx := s.db.WithContext(ctx).Begin()
	if err := dbTx.Create(m).Error; err != nil {
		dbTx.Rollback()
		return translate("CreateSession", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return translate("CreateSession", err)
	}

	session.Version = 1
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	m, err := toModel(session)
	if err != nil {
		return err
	}

	dbTx := s.db.WithContext(ctx).Begin()
	res := dbTx.Model(&sessionModel{}).
		Where("id = ? AND version = ?", m.ID, session.Version).
		Updates(map[string]any{
			"status":         m.Status,
			"threshold_used": m.ThresholdUsed,
			"notes":          m.Notes,
			"updated_at":     m.UpdatedAt,
			"issued_at":      m.IssuedAt,
			"returned_at":    m.ReturnedAt,
			"handout":        m.Handout,
			"handover":       m.Handover,
			"hash":           m.Hash,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		dbTx.Rollback()
		return translate("UpdateSession", res.Error)
	}

	if res.RowsAffected == 0 {
		var existing sessionModel
		err := dbTx.Select("id").Where("id = ?", m.ID).First(&existing).Error
		dbTx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return translate("UpdateSession", err)
		}
		return domain.ErrConflict
	}

	if err := dbTx.Commit().Error; err != nil {
		return translate("UpdateSession", err)
	}

	session.Version++
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var m sessionModel
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, translate("GetSession", err)
	}
	return fromModel(&m)
}

func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, int, error) {
	q := s.db.WithContext(ctx).Model(&sessionModel{})
	if filter.EmployeeID != "" {
		q = q.Where("employee_id = ?", string(filter.EmployeeID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("ListSessions count", err)
	}

	var rows []sessionModel
	q = q.Order("created_at DESC").Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, translate("ListSessions", err)
	}

	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		sess, err := fromModel(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sess)
	}
	return out, int(total), nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *domain.Event) error {
	m := &eventModel{
		ID:         ev.ID,
		SessionID:  string(ev.SessionID),
		Kind:       string(ev.Kind),
		FromStatus: string(ev.From),
		ToStatus:   string(ev.To),
		Actor:      string(ev.Actor),
		At:         ev.At,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate("AppendEvent", err)
	}
	return nil
}

func (s *Store) ListEventsBySession(ctx context.Context, id domain.SessionID, limit int) ([]*domain.Event, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", string(id)).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []eventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate("ListEventsBySession", err)
	}

	out := make([]*domain.Event, len(rows))
	for i, m := range rows {
		// rows are newest first
		out[len(rows)-1-i] = &domain.Event{
			ID:        m.ID,
			SessionID: domain.SessionID(m.SessionID),
			Kind:      domain.EventKind(m.Kind),
			From:      domain.Status(m.FromStatus),
			To:        domain.Status(m.ToStatus),
			Actor:     domain.EmployeeID(m.Actor),
			At:        m.At,
		}
	}
	return out, nil
}

func toModel(s *domain.Session) (*sessionModel, error) {
	handout, err := codec.EncodePhase(s.Handout)
	if err != nil {
		return nil, err
	}
	handover, err := codec.EncodePhase(s.Handover)
	if err != nil {
		return nil, err
	}
	return &sessionModel{
		ID:            string(s.ID),
		EmployeeID:    string(s.EmployeeID),
		Status:        string(s.Status),
		ThresholdUsed: s.ThresholdUsed,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		IssuedAt:      s.IssuedAt,
		ReturnedAt:    s.ReturnedAt,
		Handout:       textPtr(handout),
		Handover:      textPtr(handover),
		Hash:          s.Hash,
		Version:       s.Version,
	}, nil
}

func fromModel(m *sessionModel) (*domain.Session, error) {
	sess := &domain.Session{
		ID:            domain.SessionID(m.ID),
		EmployeeID:    domain.EmployeeID(m.EmployeeID),
		Status:        domain.Status(m.Status),
		ThresholdUsed: m.ThresholdUsed,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		IssuedAt:      m.IssuedAt,
		ReturnedAt:    m.ReturnedAt,
		Hash:          m.Hash,
		Version:       m.Version,
	}

	var err error
	if m.Handout != nil {
		if sess.Handout, err = codec.DecodePhase([]byte(*m.Handout)); err != nil {
			return nil, err
		}
	}
	if m.Handover != nil {
		if sess.Handover, err = codec.DecodePhase([]byte(*m.Handover)); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func textPtr(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrUniqueViolation:
			return domain.ErrAlreadyExists
		case PgErrSerialization, PgErrDeadlockDetected:
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres %s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}

// Reset deletes every session and event. Intended for tests.
func (s *Store) Reset() error {
	return s.db.Exec("TRUNCATE TABLE sessions, session_events RESTART IDENTITY").Error
}
