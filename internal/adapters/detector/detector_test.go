package detector_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PabloGalante/kitcheck/internal/adapters/detector"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMockFiltersByConfidence(t *testing.T) {
	m := detector.NewMock()

	all, err := m.Detect(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(all) != len(detector.StubDetections) {
		t.Fatalf("expected %d stub detections, got %d", len(detector.StubDetections), len(all))
	}

	high, _ := m.Detect(context.Background(), nil, 0.98)
	if len(high) != 2 {
		t.Fatalf("expected 2 detections at 0.98, got %d", len(high))
	}
}

func TestHTTPDetector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
			return
		case "/predict":
		default:
			http.NotFound(w, r)
			return
		}

		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "jpeg-bytes" {
			t.Errorf("unexpected image payload %q", data)
		}
		if got := r.FormValue("conf"); got != "0.25" {
			t.Errorf("expected conf=0.25, got %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"image_width":  200,
			"image_height": 100,
			"detections": []map[string]any{
				{"class": "wrench", "confidence": 0.9, "xyxy": []float64{20, 10, 60, 30}},
				{"label": "pliers", "confidence": 0.4, "box": []float64{0.5, 0.5, 0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	d := detector.NewHTTPDetector(srv.URL+"/", srv.Client())
	if err := d.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}

	dets, err := d.Detect(context.Background(), []byte("jpeg-bytes"), 0.25)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}

	w := dets[0]
	if w.Label != "wrench" || !near(w.Box.XCenter, 0.2) || !near(w.Box.YCenter, 0.2) || !near(w.Box.Width, 0.2) || !near(w.Box.Height, 0.2) {
		t.Fatalf("unexpected converted detection %+v", w)
	}
	if p := dets[1]; p.Label != "pliers" || p.Box != (domain.Box{XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.2}) {
		t.Fatalf("unexpected detection %+v", p)
	}
}

func TestHTTPDetectorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := detector.NewHTTPDetector(srv.URL, nil)
	if _, err := d.Detect(context.Background(), []byte("x"), 0.5); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
	if err := d.CheckHealth(context.Background()); err == nil {
		t.Fatalf("expected unhealthy error")
	}
}

func TestParseGeminiDetections(t *testing.T) {
	text := "```json\n[{\"label\": \"pliers\", \"confidence\": 0.93, \"box_2d\": [100, 200, 300, 600]}]\n```"

	dets, err := detector.ParseGeminiDetections(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	b := dets[0].Box
	if !near(b.XCenter, 0.4) || !near(b.YCenter, 0.2) || !near(b.Width, 0.4) || !near(b.Height, 0.2) {
		t.Fatalf("unexpected box %+v", b)
	}

	if _, err := detector.ParseGeminiDetections(`[{"label": "pliers", "box_2d": [1, 2]}]`); err == nil {
		t.Fatalf("expected error for short box")
	}
	if _, err := detector.ParseGeminiDetections("no tools here"); err == nil {
		t.Fatalf("expected error for non-json answer")
	}
}

func TestBuildDetectPrompt(t *testing.T) {
	p := detector.BuildDetectPrompt([]string{"wrench", "pliers"})
	if !strings.Contains(p, "- wrench\n- pliers") {
		t.Fatalf("classes not listed:\n%s", p)
	}
	if strings.Contains(p, "%CLASSES%") {
		t.Fatalf("placeholder not replaced")
	}
}
