package reconcile_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PabloGalante/kitcheck/internal/app/reconcile"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

var tools = []string{"wrench", "pliers"}

// detections of a predict at threshold 0.5: wrench passed, pliers did not.
var predicted = []domain.Detection{
	{ID: "det-001", Class: "wrench", Confidence: 0.9, PassedThreshold: true, Box: domain.Box{XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.1}},
	{ID: "det-002", Class: "pliers", Confidence: 0.3, Box: domain.Box{XCenter: 0.2, YCenter: 0.3, Width: 0.1, Height: 0.1}},
}

func TestManualAnnotationCompletesSet(t *testing.T) {
	res := reconcile.Reconcile(reconcile.Input{
		Threshold:  0.5,
		Catalog:    tools,
		Detections: predicted,
		Annotations: []domain.Annotation{
			{Class: "pliers", Source: domain.SourceManual, Box: domain.Box{XCenter: 0.2, YCenter: 0.3, Width: 0.1, Height: 0.1}},
		},
		RequireAll: true,
	})

	if !res.OK || !res.Passed {
		t.Fatalf("expected ok and passed, got ok=%v passed=%v issues=%v errors=%v", res.OK, res.Passed, res.Issues, res.Validation.Errors)
	}
	if !res.Final.Present("wrench") || !res.Final.Present("pliers") {
		t.Fatalf("expected both classes present, got %+v", res.Final.Classes)
	}
	if res.Count != 2 {
		t.Fatalf("expected count 2, got %d", res.Count)
	}
	if w := res.Final.Classes["wrench"]; w.Source != domain.SourceModel || w.FromDetectionID != "det-001" {
		t.Fatalf("wrench should come from det-001, got %+v", w)
	}
	if p := res.Final.Classes["pliers"]; p.Source != domain.SourceManual {
		t.Fatalf("pliers should be manual, got %+v", p)
	}
}

func TestDuplicateAnnotationsAreIssues(t *testing.T) {
	res := reconcile.Reconcile(reconcile.Input{
		Threshold:  0.5,
		Catalog:    tools,
		Detections: predicted,
		Annotations: []domain.Annotation{
			{Class: "pliers", Source: domain.SourceManual},
			{Class: "pliers", Source: domain.SourceEdited, FromDetectionID: "det-002"},
		},
		RequireAll: true,
	})

	if res.OK {
		t.Fatalf("expected ok=false for duplicate annotations")
	}
	if len(res.Issues) != 1 || !strings.Contains(res.Issues[0], `"pliers"`) {
		t.Fatalf("unexpected issues %v", res.Issues)
	}
	if res.Final.Present("pliers") {
		t.Fatalf("duplicated class must stay unresolved")
	}
	if res.Passed {
		t.Fatalf("missing class must fail validation when all classes are required")
	}
}

func TestStructuralIssues(t *testing.T) {
	res := reconcile.Reconcile(reconcile.Input{
		Threshold: 0.5,
		Catalog:   tools,
		Annotations: []domain.Annotation{
			{Class: "hammer", Source: domain.SourceManual},
			{Class: "wrench", Source: domain.SourceManual, Box: domain.Box{XCenter: 1.5}},
			{Class: "pliers", Source: "guess"},
		},
	})

	if res.OK {
		t.Fatalf("expected ok=false")
	}
	if len(res.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %v", res.Issues)
	}
}

func TestMissingClassSeverityFollowsPolicy(t *testing.T) {
	in := reconcile.Input{Threshold: 0.5, Catalog: tools, Detections: predicted}

	in.RequireAll = true
	strict := reconcile.Reconcile(in)
	if strict.Passed || len(strict.Validation.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", strict.Validation)
	}

	in.RequireAll = false
	lenient := reconcile.Reconcile(in)
	if !lenient.Passed || len(lenient.Validation.Warnings) != 1 {
		t.Fatalf("expected one warning, got %+v", lenient.Validation)
	}
	if !lenient.OK || lenient.Count != 1 {
		t.Fatalf("expected ok with count 1, got ok=%v count=%d", lenient.OK, lenient.Count)
	}
	if got := lenient.Final.Unresolved(); !reflect.DeepEqual(got, []string{"pliers"}) {
		t.Fatalf("expected pliers unresolved, got %v", got)
	}
}

func TestWarnings(t *testing.T) {
	res := reconcile.Reconcile(reconcile.Input{
		Threshold:  0.5,
		Catalog:    tools,
		Detections: predicted,
		Annotations: []domain.Annotation{
			{Class: "wrench", Source: domain.SourceManual},
			{Class: "pliers", Source: domain.SourceModel, FromDetectionID: "det-002"},
		},
		RequireAll: true,
	})

	if !res.OK || !res.Passed {
		t.Fatalf("warnings must not fail validation: %+v", res)
	}
	if len(res.Validation.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Validation.Warnings)
	}

	unknown := reconcile.Reconcile(reconcile.Input{
		Threshold:   0.5,
		Catalog:     tools,
		Detections:  predicted,
		Annotations: []domain.Annotation{{Class: "pliers", Source: domain.SourceEdited, FromDetectionID: "det-404"}},
	})
	if len(unknown.Validation.Warnings) != 1 || !strings.Contains(unknown.Validation.Warnings[0], "det-404") {
		t.Fatalf("expected unknown detection warning, got %v", unknown.Validation.Warnings)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	in := reconcile.Input{
		Threshold:  0.5,
		Catalog:    []string{"a", "b", "c", "d"},
		Detections: []domain.Detection{{ID: "det-001", Class: "a", Confidence: 0.7, PassedThreshold: true}},
		Annotations: []domain.Annotation{
			{Class: "b", Source: domain.SourceManual},
			{Class: "c", Source: domain.SourceEdited},
			{Class: "c", Source: domain.SourceManual},
			{Class: "x", Source: domain.SourceManual},
		},
		RequireAll: true,
	}

	first := reconcile.Reconcile(in)
	second := reconcile.Reconcile(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}
