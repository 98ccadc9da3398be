// Package codec serializes sessions for stores that keep phases as documents.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// EncodePhase returns the JSON form of p, or nil when p is nil.
func EncodePhase(p *domain.Phase) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode phase: %w", err)
	}
	return data, nil
}

// DecodePhase is the inverse of EncodePhase. Empty input decodes to nil.
func DecodePhase(data []byte) (*domain.Phase, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var p domain.Phase
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode phase: %w", err)
	}
	return &p, nil
}

// SessionRecord is the full JSON document of a session.
type SessionRecord struct {
	ID            string        `json:"id"`
	EmployeeID    string        `json:"employee_id"`
	Status        string        `json:"status"`
	ThresholdUsed float64       `json:"threshold_used"`
	Notes         string        `json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	IssuedAt      *time.Time    `json:"issued_at,omitempty"`
	ReturnedAt    *time.Time    `json:"returned_at,omitempty"`
	Handout       *domain.Phase `json:"handout,omitempty"`
	Handover      *domain.Phase `json:"handover,omitempty"`
	Hash          string        `json:"hash,omitempty"`
	Version       int64         `json:"version"`
}

func FromSession(s *domain.Session) SessionRecord {
	return SessionRecord{
		ID:            string(s.ID),
		EmployeeID:    string(s.EmployeeID),
		Status:        string(s.Status),
		ThresholdUsed: s.ThresholdUsed,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		IssuedAt:      s.IssuedAt,
		ReturnedAt:    s.ReturnedAt,
		Handout:       s.Handout,
		Handover:      s.Handover,
		Hash:          s.Hash,
		Version:       s.Version,
	}
}

func (r SessionRecord) Session() *domain.Session {
	return &domain.Session{
		ID:            domain.SessionID(r.ID),
		EmployeeID:    domain.EmployeeID(r.EmployeeID),
		Status:        domain.Status(r.Status),
		ThresholdUsed: r.ThresholdUsed,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		IssuedAt:      r.IssuedAt,
		ReturnedAt:    r.ReturnedAt,
		Handout:       r.Handout,
		Handover:      r.Handover,
		Hash:          r.Hash,
		Version:       r.Version,
	}
}

func EncodeSession(s *domain.Session) ([]byte, error) {
	data, err := json.Marshal(FromSession(s))
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func DecodeSession(data []byte) (*domain.Session, error) {
	var r SessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return r.Session(), nil
}

// EncodeEvent returns the JSON document of a transition event.
func EncodeEvent(ev *domain.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func DecodeEvent(data []byte) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
