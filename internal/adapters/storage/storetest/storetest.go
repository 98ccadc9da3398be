// Package storetest holds behavioural tests shared by every SessionStore and
// EventStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

var base = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// NewSession builds a draft session created n minutes after a fixed instant.
func NewSession(id string, owner domain.EmployeeID, n int) *domain.Session {
	at := base.Add(time.Duration(n) * time.Minute)
	return &domain.Session{
		ID:            domain.SessionID(id),
		EmployeeID:    owner,
		Status:        domain.StatusDraft,
		ThresholdUsed: 0.98,
		Notes:         "bench " + id,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func samplePhase() *domain.Phase {
	return &domain.Phase{
		Image: "aW1n",
		Predict: &domain.PredictResult{
			Threshold:      0.5,
			ClassesCatalog: []string{"wrench", "pliers"},
			Detections: []domain.Detection{
				{ID: "det-001", Class: "wrench", Confidence: 0.9, PassedThreshold: true, Box: domain.Box{XCenter: 0.512, YCenter: 0.431, Width: 0.183, Height: 0.072}},
			},
			NotFound: []string{"pliers"},
			Summary:  domain.PredictSummary{ExpectedTotal: 2, FoundCandidates: 1, PassedAboveThreshold: 1, RequiresManualCount: 1, NotFoundCount: 1},
		},
		Final: &domain.FinalSet{
			Classes: map[string]domain.FinalClass{
				"wrench": {Present: true, Box: domain.Box{XCenter: 0.512, YCenter: 0.431, Width: 0.183, Height: 0.072}, Source: domain.SourceModel, FromDetectionID: "det-001"},
				"pliers": {Present: true, Source: domain.SourceManual},
			},
			Validation: domain.Validation{Warnings: []string{}, Errors: []string{}, Passed: true},
			Count:      2,
		},
	}
}

// RunSessionStore exercises the SessionStore contract. newStore must return
// an empty store.
func RunSessionStore(t *testing.T, newStore func(t *testing.T) domain.SessionStore) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		s := NewSession("s-1", "e-1", 0)
		s.Handout = samplePhase()
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if s.Version != 1 {
			t.Fatalf("expected version 1 after create, got %d", s.Version)
		}

		got, err := store.GetSession(ctx, "s-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		assertSameSession(t, s, got)

		if err := store.CreateSession(ctx, NewSession("s-1", "e-1", 0)); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetSession(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update checks version", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.CreateSession(ctx, NewSession("s-1", "e-1", 0)); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		first, _ := store.GetSession(ctx, "s-1")
		second, _ := store.GetSession(ctx, "s-1")

		issuedAt := base.Add(time.Hour)
		first.Status = domain.StatusIssued
		first.IssuedAt = &issuedAt
		first.Handout = samplePhase()
		first.Handover = &domain.Phase{}
		first.UpdatedAt = issuedAt
		if err := store.UpdateSession(ctx, first); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}
		if first.Version != 2 {
			t.Fatalf("expected version 2, got %d", first.Version)
		}

		second.Notes = "stale write"
		if err := store.UpdateSession(ctx, second); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		got, err := store.GetSession(ctx, "s-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		assertSameSession(t, first, got)

		missing := NewSession("ghost", "e-1", 0)
		missing.Version = 1
		if err := store.UpdateSession(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for missing session, got %v", err)
		}
	})

	t.Run("list filters and pages", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for i := 0; i < 5; i++ {
			owner := domain.EmployeeID("e-1")
			if i%2 == 1 {
				owner = "e-2"
			}
			s := NewSession(fmt.Sprintf("s-%d", i), owner, i)
			if i == 4 {
				s.Status = domain.StatusCompleted
			}
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
		}

		all, total, err := store.ListSessions(ctx, domain.SessionFilter{})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if total != 5 || len(all) != 5 {
			t.Fatalf("expected 5 sessions, got %d (total %d)", len(all), total)
		}
		if all[0].ID != "s-4" || all[4].ID != "s-0" {
			t.Fatalf("expected newest first, got %s..%s", all[0].ID, all[4].ID)
		}

		own, total, _ := store.ListSessions(ctx, domain.SessionFilter{EmployeeID: "e-1"})
		if total != 3 || len(own) != 3 {
			t.Fatalf("expected 3 sessions for e-1, got %d (total %d)", len(own), total)
		}

		page, total, _ := store.ListSessions(ctx, domain.SessionFilter{Offset: 1, Limit: 2})
		if total != 5 || len(page) != 2 || page[0].ID != "s-3" || page[1].ID != "s-2" {
			t.Fatalf("unexpected page %v (total %d)", ids(page), total)
		}

		done, total, _ := store.ListSessions(ctx, domain.SessionFilter{Statuses: []domain.Status{domain.StatusReturned, domain.StatusCompleted}})
		if total != 1 || len(done) != 1 || done[0].ID != "s-4" {
			t.Fatalf("unexpected status filter result %v", ids(done))
		}

		past, total, _ := store.ListSessions(ctx, domain.SessionFilter{Offset: 10, Limit: 2})
		if total != 5 || len(past) != 0 {
			t.Fatalf("expected empty page past the end, got %v", ids(past))
		}
	})
}

// RunEventStore exercises the EventStore contract.
func RunEventStore(t *testing.T, newStore func(t *testing.T) domain.EventStore) {
	ctx := context.Background()
	store := newStore(t)

	kinds := []domain.EventKind{domain.EventHandoutPredicted, domain.EventHandoutAdjusted, domain.EventIssue}
	for i, k := range kinds {
		ev := &domain.Event{
			ID:        fmt.Sprintf("ev-%d", i),
			SessionID: "s-1",
			Kind:      k,
			From:      domain.StatusDraft,
			To:        domain.StatusHandoutNeedsManual,
			Actor:     "e-1",
			At:        base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	if err := store.AppendEvent(ctx, &domain.Event{ID: "ev-x", SessionID: "s-2", Kind: domain.EventIssue, At: base}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	all, err := store.ListEventsBySession(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("ListEventsBySession failed: %v", err)
	}
	if len(all) != 3 || all[0].Kind != domain.EventHandoutPredicted || all[2].Kind != domain.EventIssue {
		t.Fatalf("unexpected events %+v", all)
	}
	if !all[0].At.Equal(base) || all[0].Actor != "e-1" {
		t.Fatalf("event fields not preserved: %+v", all[0])
	}

	last, _ := store.ListEventsBySession(ctx, "s-1", 1)
	if len(last) != 1 || last[0].ID != "ev-2" {
		t.Fatalf("expected only the latest event, got %+v", last)
	}
}

func assertSameSession(t *testing.T, want, got *domain.Session) {
	t.Helper()

	if got.ID != want.ID || got.EmployeeID != want.EmployeeID || got.Status != want.Status ||
		got.ThresholdUsed != want.ThresholdUsed || got.Notes != want.Notes ||
		got.Hash != want.Hash || got.Version != want.Version {
		t.Fatalf("session mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps mismatch: want %v/%v got %v/%v", want.CreatedAt, want.UpdatedAt, got.CreatedAt, got.UpdatedAt)
	}
	if !sameTime(want.IssuedAt, got.IssuedAt) || !sameTime(want.ReturnedAt, got.ReturnedAt) {
		t.Fatalf("phase timestamps mismatch")
	}
	if !reflect.DeepEqual(want.Handout, got.Handout) {
		t.Fatalf("handout mismatch:\nwant %+v\ngot  %+v", want.Handout, got.Handout)
	}
	if !reflect.DeepEqual(want.Handover, got.Handover) {
		t.Fatalf("handover mismatch:\nwant %+v\ngot  %+v", want.Handover, got.Handover)
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func ids(ss []*domain.Session) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}
