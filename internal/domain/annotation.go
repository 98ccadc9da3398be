package domain

import (
	"encoding/json"
	"sort"
)

// Source says where an annotation came from.
type Source string

const (
	SourceModel  Source = "model"
	SourceEdited Source = "edited"
	SourceManual Source = "manual"
)

func (s Source) Valid() bool {
	switch s {
	case SourceModel, SourceEdited, SourceManual:
		return true
	}
	return false
}

// Annotation is an operator's confirmation or correction for one class.
type Annotation struct {
	Class           string `json:"class"`
	Box             Box    `json:"box"`
	Source          Source `json:"source"`
	FromDetectionID string `json:"from_detection_id,omitempty"`
}

// UnmarshalJSON defaults a missing source to model.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	type plain Annotation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Source == "" {
		p.Source = SourceModel
	}
	*a = Annotation(p)
	return nil
}

// FinalClass is the reconciled record for one catalog class.
type FinalClass struct {
	Present         bool   `json:"present"`
	Box             Box    `json:"box"`
	Source          Source `json:"source,omitempty"`
	FromDetectionID string `json:"from_detection_id,omitempty"`
}

type Validation struct {
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	Passed   bool     `json:"passed"`
}

// FinalSet is the operator-confirmed presence record for one phase.
type FinalSet struct {
	Classes    map[string]FinalClass `json:"classes"`
	Validation Validation            `json:"validation"`
	Count      int                   `json:"count"`
}

// Unresolved lists classes not marked present, sorted.
func (f *FinalSet) Unresolved() []string {
	if f == nil {
		return nil
	}
	var out []string
	for class, fc := range f.Classes {
		if !fc.Present {
			out = append(out, class)
		}
	}
	sort.Strings(out)
	return out
}

// Present reports whether class is marked present.
func (f *FinalSet) Present(class string) bool {
	if f == nil {
		return false
	}
	return f.Classes[class].Present
}

func (f *FinalSet) Clone() *FinalSet {
	if f == nil {
		return nil
	}
	c := *f
	if f.Classes != nil {
		c.Classes = make(map[string]FinalClass, len(f.Classes))
		for k, v := range f.Classes {
			c.Classes[k] = v
		}
	}
	c.Validation.Warnings = cloneStrings(f.Validation.Warnings)
	c.Validation.Errors = cloneStrings(f.Validation.Errors)
	return &c
}

// AdjustResult is returned by an adjust call. Final is only set when the
// set was committed to the phase.
type AdjustResult struct {
	OK         bool       `json:"ok"`
	Issues     []string   `json:"issues"`
	Phase      PhaseKind  `json:"stage"`
	Count      int        `json:"count"`
	Passed     bool       `json:"passed"`
	Validation Validation `json:"validation"`
	Final      *FinalSet  `json:"final,omitempty"`
	Status     Status     `json:"status"`
}
