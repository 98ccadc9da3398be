package detector

import (
	"context"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// StubDetections is what the mock returns when no detections are configured.
var StubDetections = []domain.RawDetection{
	{Label: "screwdriver_plus", Confidence: 0.992, Box: domain.Box{XCenter: 0.512, YCenter: 0.431, Width: 0.183, Height: 0.072}},
	{Label: "wrench_adjustable", Confidence: 0.74, Box: domain.Box{XCenter: 0.246, YCenter: 0.611, Width: 0.204, Height: 0.090}},
	{Label: "screwdriver_plus", Confidence: 0.981, Box: domain.Box{XCenter: 0.300, YCenter: 0.400, Width: 0.150, Height: 0.080}},
}

// Mock returns a fixed list of detections for every image.
type Mock struct {
	detections []domain.RawDetection
}

func NewMock(detections ...domain.RawDetection) *Mock {
	if len(detections) == 0 {
		detections = StubDetections
	}
	out := make([]domain.RawDetection, len(detections))
	copy(out, detections)
	return &Mock{detections: out}
}

func (m *Mock) Detect(ctx context.Context, image []byte, minConfidence float64) ([]domain.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.RawDetection, 0, len(m.detections))
	for _, d := range m.detections {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Mock) Name() string {
	return "mock"
}
