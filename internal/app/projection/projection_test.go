package projection_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/PabloGalante/kitcheck/internal/app/projection"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

func TestGroups(t *testing.T) {
	tests := map[domain.Status]projection.Group{
		domain.StatusDraft:               projection.GroupDraft,
		domain.StatusHandoutAuto:         projection.GroupActive,
		domain.StatusHandoutNeedsManual:  projection.GroupActive,
		domain.StatusIssued:              projection.GroupActive,
		domain.StatusHandoverAuto:        projection.GroupActive,
		domain.StatusHandoverNeedsManual: projection.GroupActive,
		domain.StatusReturned:            projection.GroupCompleted,
		domain.StatusCompleted:           projection.GroupCompleted,
	}
	for st, want := range tests {
		if got := projection.GroupOf(st); got != want {
			t.Errorf("GroupOf(%s) = %s, want %s", st, got, want)
		}
	}

	want := []domain.Status{domain.StatusReturned, domain.StatusCompleted}
	if got := projection.StatusesIn(projection.GroupCompleted); !reflect.DeepEqual(got, want) {
		t.Fatalf("StatusesIn(completed) = %v", got)
	}
	if len(projection.StatusesIn(projection.GroupActive)) != 5 {
		t.Fatalf("expected 5 active statuses")
	}
}

func TestLabels(t *testing.T) {
	for _, st := range domain.AllStatuses {
		if projection.Label(st) == string(st) {
			t.Errorf("status %s has no label", st)
		}
	}
	if projection.Label(domain.StatusHandoutNeedsManual) != "Handout (manual review)" {
		t.Fatalf("unexpected label")
	}
}

func TestSummarize(t *testing.T) {
	c := projection.Summarize([]*domain.Session{
		{Status: domain.StatusDraft},
		{Status: domain.StatusIssued},
		{Status: domain.StatusHandoverAuto},
		{Status: domain.StatusCompleted},
	})
	if c[projection.GroupDraft] != 1 || c[projection.GroupActive] != 2 || c[projection.GroupCompleted] != 1 {
		t.Fatalf("unexpected counts %v", c)
	}
}

func TestPage(t *testing.T) {
	p := projection.Page{Page: 0, Limit: 0}.Normalize()
	if p.Page != 1 || p.Limit != projection.DefaultLimit {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if got := (projection.Page{Page: 3, Limit: 500}).Normalize().Limit; got != projection.MaxLimit {
		t.Fatalf("limit not clamped: %d", got)
	}
	if off := (projection.Page{Page: 3, Limit: 20}).Offset(); off != 40 {
		t.Fatalf("expected offset 40, got %d", off)
	}
}

func TestParseGroup(t *testing.T) {
	if g, err := projection.ParseGroup("active"); err != nil || g != projection.GroupActive {
		t.Fatalf("ParseGroup(active) = %v, %v", g, err)
	}
	if _, err := projection.ParseGroup("archived"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
