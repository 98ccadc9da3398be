package domain

import (
	"encoding/json"
	"fmt"
)

// Box is a bounding box normalized to the image size: center x, center y,
// width, height. On the wire it is a 4-element array.
type Box struct {
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

func (b Box) Normalized() bool {
	for _, v := range b.values() {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (b Box) IsZero() bool {
	return b == Box{}
}

// Clamp returns b with every coordinate limited to [0,1].
func (b Box) Clamp() Box {
	c := func(v float64) float64 {
		switch {
		case v < 0:
			return 0
		case v > 1:
			return 1
		}
		return v
	}
	return Box{c(b.XCenter), c(b.YCenter), c(b.Width), c(b.Height)}
}

func (b Box) values() [4]float64 {
	return [4]float64{b.XCenter, b.YCenter, b.Width, b.Height}
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.values())
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("box: %w", err)
	}
	if len(v) == 0 {
		*b = Box{}
		return nil
	}
	if len(v) != 4 {
		return fmt.Errorf("box: expected 4 values, got %d", len(v))
	}
	*b = Box{XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3]}
	return nil
}

// RawDetection is what a Detector reports before it is mapped onto the catalog.
type RawDetection struct {
	Label      string
	Confidence float64
	Box        Box
}

// Detection is one candidate object found by a predict call.
type Detection struct {
	ID              string  `json:"detection_id"`
	Class           string  `json:"class"`
	Confidence      float64 `json:"confidence"`
	PassedThreshold bool    `json:"is_passed_conf_threshold"`
	Box             Box     `json:"box"`
}

type PredictSummary struct {
	ExpectedTotal        int `json:"expected_total"`
	FoundCandidates      int `json:"found_candidates"`
	PassedAboveThreshold int `json:"passed_above_threshold"`
	RequiresManualCount  int `json:"requires_manual_count"`
	NotFoundCount        int `json:"not_found_count"`
}

// PredictResult is the normalized output of one predict call for a phase.
type PredictResult struct {
	Threshold      float64        `json:"threshold"`
	ClassesCatalog []string       `json:"classes_catalog"`
	Detections     []Detection    `json:"detections"`
	NotFound       []string       `json:"not_found"`
	Summary        PredictSummary `json:"summary"`
}

// Detection returns the detection with the given id, if any.
func (p *PredictResult) Detection(id string) (Detection, bool) {
	if p == nil {
		return Detection{}, false
	}
	for _, d := range p.Detections {
		if d.ID == id {
			return d, true
		}
	}
	return Detection{}, false
}

// PassedByClass counts detections at or above threshold per class.
func (p *PredictResult) PassedByClass() map[string]int {
	out := make(map[string]int)
	if p == nil {
		return out
	}
	for _, d := range p.Detections {
		if d.PassedThreshold {
			out[d.Class]++
		}
	}
	return out
}

func (p *PredictResult) Clone() *PredictResult {
	if p == nil {
		return nil
	}
	c := *p
	c.ClassesCatalog = cloneStrings(p.ClassesCatalog)
	c.NotFound = cloneStrings(p.NotFound)
	if p.Detections != nil {
		c.Detections = make([]Detection, len(p.Detections))
		copy(c.Detections, p.Detections)
	}
	return &c
}
