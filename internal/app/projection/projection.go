package projection

import (
	"fmt"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// Group is a list-level bucket of statuses.
type Group string

const (
	GroupDraft     Group = "draft"
	GroupActive    Group = "active"
	GroupCompleted Group = "completed"
)

var Groups = []Group{GroupDraft, GroupActive, GroupCompleted}

func ParseGroup(s string) (Group, error) {
	switch g := Group(s); g {
	case GroupDraft, GroupActive, GroupCompleted:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown group %q", domain.ErrInvalidInput, s)
}

func GroupOf(s domain.Status) Group {
	switch s {
	case domain.StatusDraft:
		return GroupDraft
	case domain.StatusReturned, domain.StatusCompleted:
		return GroupCompleted
	default:
		return GroupActive
	}
}

// StatusesIn lists the statuses of a group in lifecycle order.
func StatusesIn(g Group) []domain.Status {
	var out []domain.Status
	for _, s := range domain.AllStatuses {
		if GroupOf(s) == g {
			out = append(out, s)
		}
	}
	return out
}

var labels = map[domain.Status]string{
	domain.StatusDraft:               "Draft",
	domain.StatusHandoutAuto:         "Handout (auto-verified)",
	domain.StatusHandoutNeedsManual:  "Handout (manual review)",
	domain.StatusIssued:              "Issued",
	domain.StatusHandoverAuto:        "Handover (auto-verified)",
	domain.StatusHandoverNeedsManual: "Handover (manual review)",
	domain.StatusReturned:            "Returned",
	domain.StatusCompleted:           "Completed",
}

// Label is the human readable name of a status.
func Label(s domain.Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Counts holds the number of sessions per group.
type Counts map[Group]int

func Summarize(sessions []*domain.Session) Counts {
	c := Counts{GroupDraft: 0, GroupActive: 0, GroupCompleted: 0}
	for _, s := range sessions {
		c[GroupOf(s.Status)]++
	}
	return c
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}
