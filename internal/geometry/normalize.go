package geometry

import (
	"encoding/json"
	"fmt"
)

// NormalizedBox is (x, y, w, h) relative to the image size, each rounded to
// four decimal places.
//
// It marshals to a JSON array [x, y, w, h].
type NormalizedBox [4]float64

// X returns the normalized left edge.
func (n NormalizedBox) X() float64 { return n[0] }

// Y returns the normalized top edge.
func (n NormalizedBox) Y() float64 { return n[1] }

// W returns the normalized width.
func (n NormalizedBox) W() float64 { return n[2] }

// H returns the normalized height.
func (n NormalizedBox) H() float64 { return n[3] }

// MarshalJSON encodes the box as a four-element array.
func (n NormalizedBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64(n))
}

// UnmarshalJSON decodes a four-element array.
func (n *NormalizedBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("normalized box must have 4 elements, got %d", len(v))
	}
	copy(n[:], v)
	return nil
}

// Normalize converts a pixel-space box to coordinates relative to the image.
//
// Parameters:
//   - b: Box in absolute pixel coordinates.
//   - width, height: Image dimensions in pixels. Both must be positive.
//
// Returns:
//   - NormalizedBox: x = xmin/width, y = ymin/height, w = (xmax-xmin)/width,
//     h = (ymax-ymin)/height, each rounded to 4 decimals.
//   - error: Wraps ErrInvalidDimension if width or height is not positive.
//
// Components fall within [0, 1] whenever the box lies inside the image.
func Normalize(b BoundingBox, width, height int) (NormalizedBox, error) {
	if width <= 0 || height <= 0 {
		return NormalizedBox{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}

	w := float64(width)
	h := float64(height)
	return NormalizedBox{
		Round4(b.XMin / w),
		Round4(b.YMin / h),
		Round4((b.XMax - b.XMin) / w),
		Round4((b.YMax - b.YMin) / h),
	}, nil
}
