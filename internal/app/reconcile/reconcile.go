package reconcile

import (
	"fmt"
	"sort"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// Input is everything an adjust call needs. Detections are those of the
// phase's current prediction and may be empty.
type Input struct {
	Threshold   float64
	Catalog     []string
	Annotations []domain.Annotation
	Detections  []domain.Detection

	// RequireAll turns classes without an annotation into validation errors.
	// When false they are reported as warnings.
	RequireAll bool
}

type Result struct {
	OK         bool
	Issues     []string
	Count      int
	Passed     bool
	Validation domain.Validation
	Final      *domain.FinalSet
}

// Reconcile merges operator annotations with the phase's detections into a
// per-class final set and validates it against the catalog. A class the
// operator did not annotate is taken from its single passing detection, if
// there is exactly one. Duplicate annotations are reported as issues and the
// class is left unresolved. The result is deterministic.
func Reconcile(in Input) Result {
	issues := []string{}
	known := make(map[string]bool, len(in.Catalog))
	for _, cl := range in.Catalog {
		known[cl] = true
	}

	byClass := make(map[string][]int)
	for i, a := range in.Annotations {
		switch {
		case !known[a.Class]:
			issues = append(issues, fmt.Sprintf("annotation[%d]: unknown class %q", i, a.Class))
			continue
		case !a.Box.Normalized():
			issues = append(issues, fmt.Sprintf("annotation[%d]: box must be normalized to [0,1]", i))
			continue
		case a.Source != "" && !a.Source.Valid():
			issues = append(issues, fmt.Sprintf("annotation[%d]: unknown source %q", i, a.Source))
			continue
		}
		byClass[a.Class] = append(byClass[a.Class], i)
	}

	for _, cl := range in.Catalog {
		if n := len(byClass[cl]); n > 1 {
			issues = append(issues, fmt.Sprintf("duplicate annotations for class %q (%d)", cl, n))
		}
	}

	dets := make(map[string]domain.Detection, len(in.Detections))
	passedByClass := make(map[string][]domain.Detection)
	for _, d := range in.Detections {
		dets[d.ID] = d
		if d.PassedThreshold {
			passedByClass[d.Class] = append(passedByClass[d.Class], d)
		}
	}

	final := &domain.FinalSet{Classes: make(map[string]domain.FinalClass, len(in.Catalog))}
	warnings := []string{}
	errs := []string{}

	gap := func(cl, msg string) {
		final.Classes[cl] = domain.FinalClass{}
		if in.RequireAll {
			errs = append(errs, msg)
		} else {
			warnings = append(warnings, msg)
		}
	}

	for _, cl := range in.Catalog {
		idx := byClass[cl]
		switch {
		case len(idx) > 1:
			gap(cl, fmt.Sprintf("class %q is not accounted for: ambiguous annotations", cl))
			continue
		case len(idx) == 0:
			// Unannotated classes keep the model's answer when it is unambiguous.
			passed := passedByClass[cl]
			switch len(passed) {
			case 0:
				gap(cl, fmt.Sprintf("class %q is not accounted for", cl))
			case 1:
				final.Classes[cl] = domain.FinalClass{
					Present:         true,
					Box:             passed[0].Box,
					Source:          domain.SourceModel,
					FromDetectionID: passed[0].ID,
				}
				final.Count++
			default:
				gap(cl, fmt.Sprintf("class %q is not accounted for: %d detections passed the threshold", cl, len(passed)))
			}
			continue
		}

		a := in.Annotations[idx[0]]
		src := a.Source
		if src == "" {
			src = domain.SourceModel
		}
		final.Classes[cl] = domain.FinalClass{
			Present:         true,
			Box:             a.Box,
			Source:          src,
			FromDetectionID: a.FromDetectionID,
		}
		final.Count++

		if src == domain.SourceManual && len(passedByClass[cl]) > 0 {
			warnings = append(warnings, fmt.Sprintf("class %q confirmed manually although a detection passed the threshold", cl))
		}
		if a.FromDetectionID == "" {
			continue
		}
		d, ok := dets[a.FromDetectionID]
		switch {
		case !ok:
			warnings = append(warnings, fmt.Sprintf("class %q references unknown detection %q", cl, a.FromDetectionID))
		case d.Class != cl:
			warnings = append(warnings, fmt.Sprintf("class %q references detection %q of class %q", cl, d.ID, d.Class))
		case src == domain.SourceModel && d.Confidence < in.Threshold:
			warnings = append(warnings, fmt.Sprintf("class %q accepted from detection %q below threshold (%.3f < %.3f)", cl, d.ID, d.Confidence, in.Threshold))
		}
	}

	sort.Strings(issues)
	final.Validation = domain.Validation{
		Warnings: warnings,
		Errors:   errs,
		Passed:   len(errs) == 0,
	}

	return Result{
		OK:         len(issues) == 0,
		Issues:     issues,
		Count:      final.Count,
		Passed:     final.Validation.Passed,
		Validation: final.Validation,
		Final:      final,
	}
}
