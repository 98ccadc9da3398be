package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/PabloGalante/kitcheck/internal/domain"
)

// HTTPDetector sends images to an external inference service as a
// multipart upload ("file" plus a "conf" field) and reads back its
// detections.
type HTTPDetector struct {
	inferenceURL string
	client       *http.Client
}

func NewHTTPDetector(inferenceURL string, client *http.Client) *HTTPDetector {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDetector{
		inferenceURL: strings.TrimRight(inferenceURL, "/"),
		client:       client,
	}
}

// inferenceResponse accepts either normalized centre boxes ("box") or
// absolute corner boxes ("xyxy") together with the image size.
type inferenceResponse struct {
	ImageWidth  float64 `json:"image_width"`
	ImageHeight float64 `json:"image_height"`
	Detections  []struct {
		Label      string    `json:"label"`
		Class      string    `json:"class"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"`
		XYXY       []float64 `json:"xyxy"`
	} `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, image []byte, minConfidence float64) ([]domain.RawDetection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(minConfidence, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write conf field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.toRaw()
}

func (r inferenceResponse) toRaw() ([]domain.RawDetection, error) {
	out := make([]domain.RawDetection, 0, len(r.Detections))
	for i, det := range r.Detections {
		label := det.Label
		if label == "" {
			label = det.Class
		}

		var box domain.Box
		switch {
		case len(det.Box) == 4:
			box = domain.Box{XCenter: det.Box[0], YCenter: det.Box[1], Width: det.Box[2], Height: det.Box[3]}
		case len(det.XYXY) == 4:
			if r.ImageWidth <= 0 || r.ImageHeight <= 0 {
				return nil, fmt.Errorf("detection %d: xyxy box without image size", i)
			}
			box = FromXYXY(det.XYXY[0], det.XYXY[1], det.XYXY[2], det.XYXY[3], r.ImageWidth, r.ImageHeight)
		}

		out = append(out, domain.RawDetection{
			Label:      label,
			Confidence: det.Confidence,
			Box:        box,
		})
	}
	return out, nil
}

// FromXYXY converts absolute corner coordinates into a normalized centre box.
func FromXYXY(x1, y1, x2, y2, width, height float64) domain.Box {
	return domain.Box{
		XCenter: (x1 + x2) / 2 / width,
		YCenter: (y1 + y2) / 2 / height,
		Width:   (x2 - x1) / width,
		Height:  (y2 - y1) / height,
	}
}

// CheckHealth checks the inference service is reachable.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.inferenceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDetector) Name() string {
	return "http"
}
