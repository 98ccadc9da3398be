package diff_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/PabloGalante/kitcheck/internal/app/diff"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

func finalSet(present ...string) *domain.FinalSet {
	fs := &domain.FinalSet{Classes: map[string]domain.FinalClass{}}
	for _, cl := range present {
		fs.Classes[cl] = domain.FinalClass{Present: true, Source: domain.SourceModel}
	}
	return fs
}

func TestMissingAfterHandover(t *testing.T) {
	handout := finalSet("wrench", "pliers")
	handover := finalSet("wrench")

	d, err := diff.Compute(handout, handover, []string{"wrench", "pliers"})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !reflect.DeepEqual(d.Missing, []string{"pliers"}) {
		t.Fatalf("expected missing=[pliers], got %v", d.Missing)
	}
	if len(d.Extra) != 0 || len(d.Unexpected) != 0 {
		t.Fatalf("unexpected extra/unexpected: %v %v", d.Extra, d.Unexpected)
	}
	if d.Expected["wrench"] != 1 || d.Expected["pliers"] != 1 {
		t.Fatalf("unexpected expected map %v", d.Expected)
	}
	if d.Clean() {
		t.Fatalf("diff with missing items is not clean")
	}
}

func TestExtraAndUnexpected(t *testing.T) {
	handout := finalSet("wrench")
	handout.Classes["pliers"] = domain.FinalClass{}
	handover := finalSet("wrench", "pliers", "hammer")

	d, err := diff.Compute(handout, handover, []string{"wrench", "pliers"})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !reflect.DeepEqual(d.Extra, []string{"hammer"}) {
		t.Fatalf("expected extra=[hammer], got %v", d.Extra)
	}
	if !reflect.DeepEqual(d.Unexpected, []string{"pliers"}) {
		t.Fatalf("expected unexpected=[pliers], got %v", d.Unexpected)
	}
	if len(d.Missing) != 0 {
		t.Fatalf("expected no missing, got %v", d.Missing)
	}
}

func TestNotReady(t *testing.T) {
	if _, err := diff.Compute(finalSet("wrench"), nil, []string{"wrench"}); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := diff.Compute(nil, finalSet("wrench"), []string{"wrench"}); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestComputeIsPure(t *testing.T) {
	handout := finalSet("a", "b", "c")
	handover := finalSet("a", "z")
	outBefore := handout.Clone()
	backBefore := handover.Clone()
	expected := []string{"c", "b", "a"}

	first, _ := diff.Compute(handout, handover, expected)
	// unrelated call in between
	_, _ = diff.Compute(finalSet("q"), finalSet(), []string{"q"})
	second, _ := diff.Compute(handout, handover, expected)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("diff not deterministic")
	}
	if !reflect.DeepEqual(handout, outBefore) || !reflect.DeepEqual(handover, backBefore) {
		t.Fatalf("inputs were mutated")
	}
	if !reflect.DeepEqual(expected, []string{"c", "b", "a"}) {
		t.Fatalf("expected slice was mutated")
	}

	first.HandoutFinal["a"] = domain.FinalClass{}
	if !handout.Present("a") {
		t.Fatalf("diff shares maps with its inputs")
	}
	if !reflect.DeepEqual(first.Missing, []string{"b", "c"}) {
		t.Fatalf("expected sorted missing [b c], got %v", first.Missing)
	}
}

func TestMovedBoxes(t *testing.T) {
	at := func(x float64) domain.FinalClass {
		return domain.FinalClass{Present: true, Source: domain.SourceModel, Box: domain.Box{XCenter: x, YCenter: 0.5, Width: 0.1, Height: 0.1}}
	}

	handout := finalSet("hammer")
	handout.Classes["wrench"] = at(0.2)
	handout.Classes["pliers"] = at(0.4)
	handover := finalSet("hammer")
	handover.Classes["wrench"] = at(0.7)
	handover.Classes["pliers"] = at(0.4)

	d, err := diff.Compute(handout, handover, []string{"wrench", "pliers", "hammer"})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !reflect.DeepEqual(d.Moved, []string{"wrench"}) {
		t.Fatalf("expected moved=[wrench], got %v", d.Moved)
	}
	if !d.Clean() {
		t.Fatalf("moved boxes must not make the diff unclean")
	}
}
