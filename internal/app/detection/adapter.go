package detection

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/PabloGalante/kitcheck/internal/catalog"
	"github.com/PabloGalante/kitcheck/internal/domain"
	"github.com/PabloGalante/kitcheck/internal/observability"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultMinConfidence = 0.25
)

type Config struct {
	// Timeout bounds a single Detector call.
	Timeout time.Duration
	// MinConfidence is the floor passed to the Detector. The effective
	// floor is never above the requested threshold.
	MinConfidence float64
}

// Adapter turns a Detector's raw output into a PredictResult for the catalog.
type Adapter struct {
	detector domain.Detector
	catalog  *catalog.Catalog
	cfg      Config
}

func NewAdapter(detector domain.Detector, cat *catalog.Catalog, cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	return &Adapter{
		detector: detector,
		catalog:  cat,
		cfg:      cfg,
	}
}

func (a *Adapter) Catalog() *catalog.Catalog {
	return a.catalog
}

// Run decodes image, runs the detector and normalizes the output. It either
// returns a complete result or an error; a *domain.DetectionFailure means the
// image could not be processed.
func (a *Adapter) Run(ctx context.Context, image string, threshold float64) (*domain.PredictResult, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be within [0,1], got %v", domain.ErrInvalidInput, threshold)
	}

	log := observability.LoggerFromContext(ctx).With("threshold", threshold)

	img, err := DecodeImage(image)
	if err != nil {
		log.Warn("image decode failed", "error", err)
		return nil, &domain.DetectionFailure{Reason: "invalid image", Err: err}
	}

	floor := min(a.cfg.MinConfidence, threshold)

	dctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.detector.Detect(dctx, img, floor)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(dctx.Err(), context.DeadlineExceeded)
		log.Error("detector failed", "error", err, "timeout", timeout)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason := "detector error"
		if timeout {
			reason = "detector timed out"
		}
		return nil, &domain.DetectionFailure{Reason: reason, Timeout: timeout, Err: err}
	}

	res := Normalize(raw, a.catalog, threshold)
	log.Info("detection completed",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"raw", len(raw),
		"detections", res.Summary.FoundCandidates,
		"passed", res.Summary.PassedAboveThreshold,
	)
	return res, nil
}

// Normalize maps raw detections onto the catalog and builds the summary.
// Labels the catalog cannot resolve are dropped.
func Normalize(raw []domain.RawDetection, cat *catalog.Catalog, threshold float64) *domain.PredictResult {
	classes := cat.Classes()

	dets := make([]domain.Detection, 0, len(raw))
	for _, r := range raw {
		class, ok := cat.Resolve(r.Label)
		if !ok {
			continue
		}
		conf := clampConfidence(r.Confidence)
		dets = append(dets, domain.Detection{
			ID:              fmt.Sprintf("det-%03d", len(dets)+1),
			Class:           class,
			Confidence:      conf,
			PassedThreshold: conf >= threshold,
			Box:             r.Box.Clamp(),
		})
	}

	res := &domain.PredictResult{
		Threshold:      threshold,
		ClassesCatalog: classes,
		Detections:     dets,
	}

	passed := res.PassedByClass()
	notFound := []string{}
	for _, cl := range classes {
		if passed[cl] == 0 {
			notFound = append(notFound, cl)
		}
	}
	res.NotFound = notFound

	passedTotal := 0
	for _, n := range passed {
		passedTotal += n
	}
	res.Summary = domain.PredictSummary{
		ExpectedTotal:        len(classes),
		FoundCandidates:      len(dets),
		PassedAboveThreshold: passedTotal,
		RequiresManualCount:  len(classes) - passedTotal,
		NotFoundCount:        len(notFound),
	}
	return res
}

// clampConfidence keeps detector scores within [0,1]. NaN counts as 0.
func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// AutoResolvable reports whether every catalog class has exactly one
// detection above threshold, so the result can be accepted without review.
func AutoResolvable(res *domain.PredictResult) bool {
	if res == nil {
		return false
	}
	passed := res.PassedByClass()
	if len(passed) != len(res.ClassesCatalog) {
		return false
	}
	for _, cl := range res.ClassesCatalog {
		if passed[cl] != 1 {
			return false
		}
	}
	return true
}

// AutoFinalSet accepts the passing detections of an auto-resolvable result.
func AutoFinalSet(res *domain.PredictResult) *domain.FinalSet {
	fs := &domain.FinalSet{
		Classes:    make(map[string]domain.FinalClass, len(res.ClassesCatalog)),
		Validation: domain.Validation{Warnings: []string{}, Errors: []string{}, Passed: true},
	}
	for _, d := range res.Detections {
		if !d.PassedThreshold {
			continue
		}
		fs.Classes[d.Class] = domain.FinalClass{
			Present:         true,
			Box:             d.Box,
			Source:          domain.SourceModel,
			FromDetectionID: d.ID,
		}
		fs.Count++
	}
	return fs
}

// DecodeImage decodes base64 image data, with or without a data URL prefix.
func DecodeImage(image string) ([]byte, error) {
	s := strings.TrimSpace(image)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, errors.New("empty image")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients strip padding
		if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rerr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}
