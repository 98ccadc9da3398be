package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type GeminiConfig struct {
	Project  string
	Location string
	Model    string
	Classes  []string
}

// GeminiDetector asks a Gemini model on Vertex AI for bounding boxes.
type GeminiDetector struct {
	client    *genai.Client
	modelName string
	prompt    string
}

// NewGeminiDetector creates a Detector based on Vertex AI (Gemini).
func NewGeminiDetector(ctx context.Context, cfg GeminiConfig) (*GeminiDetector, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("gcp project and location must be set for the gemini detector")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &GeminiDetector{
		client:    client,
		modelName: cfg.Model,
		prompt:    BuildDetectPrompt(cfg.Classes),
	}, nil
}

// Detect implements domain.Detector using Vertex AI.
func (g *GeminiDetector) Detect(ctx context.Context, image []byte, minConfidence float64) ([]domain.RawDetection, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, http.DetectContentType(image)),
			genai.NewPartFromText(g.prompt),
		}, genai.RoleUser),
	}

	temp := float32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  int32(4096),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return nil, fmt.Errorf("vertex returned empty text")
	}

	dets, err := ParseGeminiDetections(text)
	if err != nil {
		return nil, err
	}

	out := dets[:0]
	for _, d := range dets {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out, nil
}

func (g *GeminiDetector) Name() string {
	return "gemini"
}

type geminiDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box2D      []float64 `json:"box_2d"`
}

// ParseGeminiDetections reads the model's JSON answer. Code fences around
// the array are tolerated; box_2d is [ymin, xmin, ymax, xmax] on a 0-1000
// scale.
func ParseGeminiDetections(text string) ([]domain.RawDetection, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var raw []geminiDetection
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("decode gemini detections: %w", err)
	}

	out := make([]domain.RawDetection, 0, len(raw))
	for i, r := range raw {
		if len(r.Box2D) != 4 {
			return nil, fmt.Errorf("detection %d: box_2d must have 4 values, got %d", i, len(r.Box2D))
		}
		ymin, xmin, ymax, xmax := r.Box2D[0], r.Box2D[1], r.Box2D[2], r.Box2D[3]
		out = append(out, domain.RawDetection{
			Label:      r.Label,
			Confidence: r.Confidence,
			Box:        FromXYXY(xmin, ymin, xmax, ymax, 1000, 1000),
		})
	}
	return out, nil
}
