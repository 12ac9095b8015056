package models

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestHTTPDetector_Detect(t *testing.T) {
	var gotLabels, gotThreshold, gotModel string
	var gotFile bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotLabels = r.FormValue("labels")
		gotThreshold = r.FormValue("threshold")
		gotModel = r.FormValue("model")
		if f, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(f)
			gotFile = strings.HasPrefix(string(data), "\x89PNG")
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"label": "person.", "score": 0.93, "box": {"xmin": 0, "ymin": 0, "xmax": 40, "ymax": 60}},
			{"label": "shirt.", "score": 0.71, "box": {"xmin": 5, "ymin": 10, "xmax": 35, "ymax": 30}}
		]`)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/detect", "grounding-dino-tiny", 5*time.Second)
	dets, err := d.Detect(context.Background(), testImage(40, 60), []string{"person.", "shirt."}, 0.3)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	want := []detection.Detection{
		{Label: "person.", Score: 0.93, Box: geometry.Box(0, 0, 40, 60)},
		{Label: "shirt.", Score: 0.71, Box: geometry.Box(5, 10, 35, 30)},
	}
	if diff := cmp.Diff(want, dets); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}
	if gotLabels != "person.,shirt." || gotThreshold != "0.3" || gotModel != "grounding-dino-tiny" {
		t.Errorf("form fields: labels=%q threshold=%q model=%q", gotLabels, gotThreshold, gotModel)
	}
	if !gotFile {
		t.Error("image should be posted as PNG")
	}
}

func TestHTTPDetector_WrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"detections": [{"label": "hat.", "score": 0.5, "box": {"xmin": 1, "ymin": 1, "xmax": 5, "ymax": 5}}]}`)
	}))
	defer srv.Close()

	dets, err := NewHTTPDetector(srv.URL, "", time.Second).Detect(context.Background(), testImage(8, 8), []string{"hat."}, 0.3)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 || dets[0].Label != "hat." {
		t.Errorf("got %v, want one hat", dets)
	}
}

func TestHTTPDetector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "model crashed", nil},
		{"bad json", http.StatusOK, "not json", nil},
		{"missing field", http.StatusOK, `[{"label": "hat.", "box": {"xmin": 0, "ymin": 0, "xmax": 1, "ymax": 1}}]`, detection.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPDetector(srv.URL, "", time.Second).Detect(context.Background(), testImage(4, 4), nil, 0.3)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPDetector_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "[]")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPDetector(srv.URL, "", time.Second).Detect(ctx, testImage(4, 4), nil, 0.3)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestHTTPDetector_CheckHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/v1/detect?x=1", "", time.Second)
	if err := d.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth: %v", err)
	}
	healthy = false
	if err := d.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth should fail on 503")
	}
}

func TestSAM2Geometry(t *testing.T) {
	g := newSAM2Geometry(image.Rect(0, 0, 2048, 1024))
	if g.newW != 1024 || g.newH != 512 || g.scale != 0.5 {
		t.Fatalf("geometry: %+v", g)
	}

	coords, labels := g.boxPrompt(detection.Detection{Box: geometry.Box(100, 200, 300, 400)})
	if diff := cmp.Diff([]float32{50, 100, 150, 200}, coords); diff != "" {
		t.Errorf("coords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 3}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestSAM2Geometry_Upscale(t *testing.T) {
	// 512x256 image: the valid logits region is 256x128.
	g := newSAM2Geometry(image.Rect(0, 0, 512, 256))
	logits := make([]float32, sam2MaskSize*sam2MaskSize)
	for i := range logits {
		logits[i] = -1
	}
	// Left half of the valid region is foreground.
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			logits[y*sam2MaskSize+x] = 1
		}
	}
	// Outside the valid region must be ignored.
	logits[200*sam2MaskSize+200] = 5

	m := g.upscale(logits)
	if m.Width() != 512 || m.Height() != 256 {
		t.Fatalf("mask size %dx%d, want 512x256", m.Width(), m.Height())
	}
	if !m.On(0, 0) || !m.On(255, 255) {
		t.Error("left half should be foreground")
	}
	if m.On(256, 0) || m.On(511, 255) {
		t.Error("right half should be background")
	}
	if m.Count() != 256*256 {
		t.Errorf("count = %d, want %d", m.Count(), 256*256)
	}
}

func TestNormalizeAndPad(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	data := normalizeAndPad(src, 4)
	if len(data) != 3*16 {
		t.Fatalf("len = %d, want 48", len(data))
	}
	wantR := (1 - sam2Mean[0]) / sam2Std[0]
	if data[0] != wantR {
		t.Errorf("R(0,0) = %v, want %v", data[0], wantR)
	}
	wantB := (0 - sam2Mean[2]) / sam2Std[2]
	if data[2*16+1] != wantB {
		t.Errorf("B(1,0) = %v, want %v", data[2*16+1], wantB)
	}
	if data[16+15] != 0 {
		t.Error("padding should be zero")
	}
}

func TestArgmax(t *testing.T) {
	i, v := argmax([]float32{0.1, 0.9, 0.5})
	if i != 1 || v != 0.9 {
		t.Errorf("argmax = %d, %v", i, v)
	}
}

func TestNewSAM2Segmenter_NoLibrary(t *testing.T) {
	_, err := NewSAM2Segmenter(SAM2Config{EncoderPath: "enc.onnx", DecoderPath: "dec.onnx"})
	if err == nil || !strings.Contains(err.Error(), "library path") {
		t.Errorf("got %v, want library path error", err)
	}
}

func TestSAM2Segmenter_Closed(t *testing.T) {
	s := &SAM2Segmenter{}
	if _, err := s.Segment(context.Background(), testImage(4, 4), nil); err == nil {
		t.Error("Segment on a closed segmenter should fail")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on empty segmenter: %v", err)
	}
}
