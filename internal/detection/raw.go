package detection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

// ErrMissingField is returned by FromRaw when a required key is absent.
var ErrMissingField = errors.New("missing field")

// ErrInvalidValue is returned by FromRaw when a field has the wrong type or
// an out-of-range value.
var ErrInvalidValue = errors.New("invalid value")

// FromRaw converts one loosely-typed detector result into a Detection.
//
// The expected shape is the one produced by the transformers zero-shot
// object detection pipeline:
//
//	{"label": "shirt.", "score": 0.82, "box": {"xmin": 10, "ymin": 20, "xmax": 50, "ymax": 90}}
//
// Numbers may be any Go numeric type or json.Number. The score must lie in
// [0, 1] and the box must have positive width and height.
func FromRaw(raw map[string]any) (Detection, error) {
	var d Detection

	label, ok := raw["label"]
	if !ok {
		return d, fmt.Errorf("label: %w", ErrMissingField)
	}
	s, ok := label.(string)
	if !ok {
		return d, fmt.Errorf("label %v: %w", label, ErrInvalidValue)
	}
	d.Label = s

	score, err := number(raw, "score")
	if err != nil {
		return d, err
	}
	if score < 0 || score > 1 {
		return d, fmt.Errorf("score %v: %w", score, ErrInvalidValue)
	}
	d.Score = score

	boxVal, ok := raw["box"]
	if !ok {
		return d, fmt.Errorf("box: %w", ErrMissingField)
	}
	box, ok := boxVal.(map[string]any)
	if !ok {
		return d, fmt.Errorf("box %v: %w", boxVal, ErrInvalidValue)
	}

	var coords [4]float64
	for i, key := range [4]string{"xmin", "ymin", "xmax", "ymax"} {
		v, err := number(box, key)
		if err != nil {
			return d, fmt.Errorf("box: %w", err)
		}
		coords[i] = v
	}
	d.Box = geometry.Box(coords[0], coords[1], coords[2], coords[3])
	if !d.Box.Valid() {
		return d, fmt.Errorf("box %v: %w", d.Box, ErrInvalidValue)
	}
	return d, nil
}

// FromRawList converts a detector result list, failing on the first bad entry.
func FromRawList(raw []map[string]any) ([]Detection, error) {
	dets := make([]Detection, 0, len(raw))
	for i, r := range raw {
		d, err := FromRaw(r)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		dets = append(dets, d)
	}
	return dets, nil
}

func number(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrMissingField)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", key, n, ErrInvalidValue)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%s %v: %w", key, v, ErrInvalidValue)
}
