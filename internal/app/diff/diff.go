package diff

import (
	"sort"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// Compute compares the handout and handover final sets against the expected
// classes. It never mutates its inputs and returns domain.ErrNotReady unless
// both final sets exist.
func Compute(handout, handover *domain.FinalSet, expected []string) (*domain.SessionDiff, error) {
	if handout == nil || handover == nil {
		return nil, domain.ErrNotReady
	}

	d := &domain.SessionDiff{
		Expected:      make(map[string]int, len(expected)),
		HandoutFinal:  copyClasses(handout.Classes),
		HandoverFinal: copyClasses(handover.Classes),
		Missing:       []string{},
		Extra:         []string{},
		Unexpected:    []string{},
		Moved:         []string{},
	}

	for _, cl := range expected {
		d.Expected[cl] = 1

		out, back := handout.Present(cl), handover.Present(cl)
		switch {
		case out && !back:
			d.Missing = append(d.Missing, cl)
		case !out && back:
			d.Unexpected = append(d.Unexpected, cl)
		case out && back:
			// Zero boxes carry no position to compare.
			a, b := handout.Classes[cl].Box, handover.Classes[cl].Box
			if !a.IsZero() && !b.IsZero() && a != b {
				d.Moved = append(d.Moved, cl)
			}
		}
	}

	for cl, fc := range handover.Classes {
		if _, ok := d.Expected[cl]; !ok && fc.Present {
			d.Extra = append(d.Extra, cl)
		}
	}

	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	sort.Strings(d.Unexpected)
	sort.Strings(d.Moved)
	return d, nil
}

func copyClasses(in map[string]domain.FinalClass) map[string]domain.FinalClass {
	out := make(map[string]domain.FinalClass, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
