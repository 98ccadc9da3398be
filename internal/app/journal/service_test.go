package journal_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/PabloGalante/kitcheck/internal/adapters/storage/memory"
	"github.com/PabloGalante/kitcheck/internal/app/journal"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

func TestHistoryReturnsLatestEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = store.AppendEvent(ctx, &domain.Event{
			ID:        fmt.Sprintf("ev-%d", i),
			SessionID: "s1",
			Kind:      domain.EventHandoutPredicted,
			At:        base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = store.AppendEvent(ctx, &domain.Event{ID: "other", SessionID: "s2", Kind: domain.EventIssue})

	svc := journal.NewService(store)
	got, err := svc.History(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ev-3" || got[1].ID != "ev-4" {
		t.Fatalf("unexpected history %+v", got)
	}

	all, _ := svc.History(ctx, "s1", 0)
	if len(all) != 5 {
		t.Fatalf("expected 5 events with default limit, got %d", len(all))
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	got, err := journal.NewService(nil).History(context.Background(), "s1", 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v %v", got, err)
	}
}
