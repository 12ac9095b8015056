package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
)

// maxResponseSize caps the detector response body.
const maxResponseSize = 16 << 20

// HTTPDetector calls a remote zero-shot object detection service.
//
// The image is posted as a PNG in a multipart form together with the label
// prompts, the score threshold and the model id. The service answers with a
// JSON list of {"label", "score", "box": {"xmin", "ymin", "xmax", "ymax"}}
// objects, either bare or wrapped as {"detections": [...]}.
type HTTPDetector struct {
	URL    string
	Model  string
	Client *http.Client
}

// NewHTTPDetector returns a detector posting to endpoint with the given
// request timeout.
func NewHTTPDetector(endpoint, model string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		URL:    endpoint,
		Model:  model,
		Client: &http.Client{Timeout: timeout},
	}
}

// Detect implements pipeline.Detector.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image, labels []string, threshold float64) ([]detection.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	fields := map[string]string{
		"labels":    strings.Join(labels, ","),
		"threshold": strconv.FormatFloat(threshold, 'f', -1, 64),
	}
	if d.Model != "" {
		fields["model"] = d.Model
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, snippet(data))
	}

	raw, err := decodeDetections(data)
	if err != nil {
		return nil, err
	}
	dets, err := detection.FromRawList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	monitoring.Debugf("detector: %d detections in %s", len(dets), time.Since(start).Round(time.Millisecond))
	return dets, nil
}

// CheckHealth reports whether the service answers GET /health on the
// detector's host.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("parse detector url: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDetector) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func decodeDetections(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Detections []map[string]any `json:"detections"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return wrapped.Detections, nil
	}

	var raw []map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

func snippet(b []byte) string {
	const n = 200
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
