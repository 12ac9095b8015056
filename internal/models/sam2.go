package models

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/up-zero/gotool/convertutil"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
)

const (
	// sam2InputSize is the long side of the encoder input.
	sam2InputSize = 1024
	// sam2MaskSize is the side of the decoder's low resolution mask logits.
	sam2MaskSize = 256
	// sam2MaskThreshold is the logit above which a pixel is foreground.
	sam2MaskThreshold = 0.0
)

// Box corner prompt labels understood by the SAM2 prompt encoder.
const (
	labelBoxTopLeft     = 2
	labelBoxBottomRight = 3
)

// ImageNet normalization used by the SAM2 encoder.
var (
	sam2Mean = [3]float32{0.485, 0.456, 0.406}
	sam2Std  = [3]float32{0.229, 0.224, 0.225}
)

// SAM2Config locates the SAM2 encoder and decoder ONNX models.
type SAM2Config struct {
	OnnxLibraryPath string
	EncoderPath     string
	DecoderPath     string
	UseCUDA         bool
	NumThreads      int
}

// SAM2Segmenter segments detections with SAM2, prompting the decoder with
// each detection's box.
type SAM2Segmenter struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
}

// NewSAM2Segmenter loads both models. Call Close to release them.
func NewSAM2Segmenter(cfg SAM2Config) (*SAM2Segmenter, error) {
	oc := new(onnxConfig)
	if err := convertutil.CopyProperties(cfg, oc); err != nil {
		return nil, fmt.Errorf("copy onnx config: %w", err)
	}
	if err := oc.newSessionOptions(); err != nil {
		return nil, err
	}
	defer oc.SessionOptions.Destroy()

	encoder, err := ort.NewDynamicAdvancedSession(cfg.EncoderPath,
		[]string{"pixel_values"},
		[]string{"image_embeddings.0", "image_embeddings.1", "image_embeddings.2"},
		oc.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("create encoder session: %w", err)
	}

	decoder, err := ort.NewDynamicAdvancedSession(cfg.DecoderPath,
		[]string{
			"input_points", "input_labels", "input_boxes",
			"image_embeddings.0", "image_embeddings.1", "image_embeddings.2",
		},
		[]string{"iou_scores", "pred_masks", "object_score_logits"},
		oc.SessionOptions)
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("create decoder session: %w", err)
	}

	return &SAM2Segmenter{encoder: encoder, decoder: decoder}, nil
}

// Close releases both sessions.
func (s *SAM2Segmenter) Close() error {
	if s.encoder != nil {
		if err := s.encoder.Destroy(); err != nil {
			return fmt.Errorf("destroy encoder session: %w", err)
		}
		s.encoder = nil
	}
	if s.decoder != nil {
		if err := s.decoder.Destroy(); err != nil {
			return fmt.Errorf("destroy decoder session: %w", err)
		}
		s.decoder = nil
	}
	return nil
}

// Segment implements pipeline.Segmenter. The image is encoded once and the
// decoder is run for every detection; ctx is checked between detections.
func (s *SAM2Segmenter) Segment(ctx context.Context, img image.Image, dets []detection.Detection) ([]*mask.Mask, error) {
	if s.encoder == nil || s.decoder == nil {
		return nil, fmt.Errorf("segmenter is closed")
	}

	geom := newSAM2Geometry(img.Bounds())
	embeddings, err := s.encode(img, geom)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, v := range embeddings {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	masks := make([]*mask.Mask, len(dets))
	for i, d := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, score, err := s.decode(embeddings, geom, d)
		if err != nil {
			return nil, fmt.Errorf("detection %d (%s): %w", i, d.Label, err)
		}
		monitoring.Debugf("sam2: %s mask iou score %.3f, %d pixels", d.Label, score, m.Count())
		masks[i] = m
	}
	return masks, nil
}

func (s *SAM2Segmenter) encode(img image.Image, geom sam2Geometry) ([]ort.Value, error) {
	resized := imaging.Resize(img, geom.newW, geom.newH, imaging.Linear)
	data := normalizeAndPad(resized, sam2InputSize)

	input, err := ort.NewTensor(ort.NewShape(1, 3, sam2InputSize, sam2InputSize), data)
	if err != nil {
		return nil, fmt.Errorf("create encoder input: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, 3)
	if err := s.encoder.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	return outputs, nil
}

func (s *SAM2Segmenter) decode(embeddings []ort.Value, geom sam2Geometry, d detection.Detection) (*mask.Mask, float32, error) {
	coords, labels := geom.boxPrompt(d)

	tPoints, err := ort.NewTensor(ort.NewShape(1, 1, 2, 2), coords)
	if err != nil {
		return nil, 0, fmt.Errorf("create points tensor: %w", err)
	}
	defer tPoints.Destroy()

	tLabels, err := ort.NewTensor(ort.NewShape(1, 1, 2), labels)
	if err != nil {
		return nil, 0, fmt.Errorf("create labels tensor: %w", err)
	}
	defer tLabels.Destroy()

	// The box is passed as corner points, so input_boxes stays empty.
	var noBoxes []float32
	tBoxes, err := ort.NewTensor(ort.NewShape(1, 0, 4), noBoxes)
	if err != nil {
		return nil, 0, fmt.Errorf("create boxes tensor: %w", err)
	}
	defer tBoxes.Destroy()

	inputs := []ort.Value{tPoints, tLabels, tBoxes, embeddings[0], embeddings[1], embeddings[2]}
	outputs := make([]ort.Value, 3)
	if err := s.decoder.Run(inputs, outputs); err != nil {
		return nil, 0, fmt.Errorf("decoder: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	scores, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, 0, fmt.Errorf("unexpected iou_scores type %T", outputs[0])
	}
	logits, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return nil, 0, fmt.Errorf("unexpected pred_masks type %T", outputs[1])
	}

	best, score := argmax(scores.GetData())
	all := logits.GetData()
	size := sam2MaskSize * sam2MaskSize
	if (best+1)*size > len(all) {
		return nil, 0, fmt.Errorf("pred_masks has %d values, want at least %d", len(all), (best+1)*size)
	}
	return geom.upscale(all[best*size : (best+1)*size]), score, nil
}

// sam2Geometry maps between original image coordinates and the encoder's
// padded square input.
type sam2Geometry struct {
	origW, origH int
	newW, newH   int
	scale        float32
}

func newSAM2Geometry(b image.Rectangle) sam2Geometry {
	w, h := b.Dx(), b.Dy()
	scale := float32(sam2InputSize) / float32(max(w, h))
	return sam2Geometry{
		origW: w,
		origH: h,
		newW:  max(1, int(float32(w)*scale)),
		newH:  max(1, int(float32(h)*scale)),
		scale: scale,
	}
}

// boxPrompt encodes a detection box as top-left and bottom-right corner
// points in encoder input coordinates.
func (g sam2Geometry) boxPrompt(d detection.Detection) ([]float32, []int64) {
	coords := []float32{
		float32(d.Box.XMin) * g.scale, float32(d.Box.YMin) * g.scale,
		float32(d.Box.XMax) * g.scale, float32(d.Box.YMax) * g.scale,
	}
	labels := []int64{labelBoxTopLeft, labelBoxBottomRight}
	return coords, labels
}

// upscale thresholds 256x256 mask logits and resamples the valid region to
// the original image size with nearest-neighbour lookup.
func (g sam2Geometry) upscale(logits []float32) *mask.Mask {
	validW := max(1, g.newW*sam2MaskSize/sam2InputSize)
	validH := max(1, g.newH*sam2MaskSize/sam2InputSize)
	xRatio := float32(validW) / float32(g.origW)
	yRatio := float32(validH) / float32(g.origH)

	m := mask.New(g.origW, g.origH)
	for y := 0; y < g.origH; y++ {
		srcY := min(int(float32(y)*yRatio), validH-1)
		for x := 0; x < g.origW; x++ {
			srcX := min(int(float32(x)*xRatio), validW-1)
			if logits[srcY*sam2MaskSize+srcX] > sam2MaskThreshold {
				m.SetOn(x, y, true)
			}
		}
	}
	return m
}

// normalizeAndPad converts src to a CHW float tensor of side size, padding
// the right and bottom with zeros.
func normalizeAndPad(src *image.NRGBA, size int) []float32 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < h && y < size; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w && x < size; x++ {
			idx := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c]) / 255
				data[c*plane+idx] = (v - sam2Mean[c]) / sam2Std[c]
			}
		}
	}
	return data
}

func argmax(v []float32) (int, float32) {
	best := 0
	bestVal := float32(-1e30)
	for i, x := range v {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best, bestVal
}
