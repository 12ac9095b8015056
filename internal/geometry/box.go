package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidDimension is returned when an image width or height is zero or negative.
var ErrInvalidDimension = errors.New("invalid image dimension")

// BoundingBox is an axis-aligned box in absolute pixel coordinates.
type BoundingBox struct {
	XMin float64 `json:"xmin"` // Left edge
	YMin float64 `json:"ymin"` // Top edge
	XMax float64 `json:"xmax"` // Right edge
	YMax float64 `json:"ymax"` // Bottom edge
}

// Box builds a BoundingBox from its corner coordinates.
func Box(xmin, ymin, xmax, ymax float64) BoundingBox {
	return BoundingBox{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

// XYXY returns the coordinates in (xmin, ymin, xmax, ymax) order.
func (b BoundingBox) XYXY() [4]float64 {
	return [4]float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// Width returns XMax - XMin. It is negative for an inverted box.
func (b BoundingBox) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns YMax - YMin. It is negative for an inverted box.
func (b BoundingBox) Height() float64 {
	return b.YMax - b.YMin
}

// Area returns the box area, treating inverted extents as zero.
func (b BoundingBox) Area() float64 {
	return math.Max(0, b.Width()) * math.Max(0, b.Height())
}

// Valid reports whether the box has finite coordinates with XMin < XMax and YMin < YMax.
func (b BoundingBox) Valid() bool {
	for _, v := range b.XYXY() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Rect converts the box to an integer image.Rectangle.
//
// Min is floored and Max is ceiled so the rectangle covers every pixel the
// box touches.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.XMin)),
		int(math.Floor(b.YMin)),
		int(math.Ceil(b.XMax)),
		int(math.Ceil(b.YMax)),
	)
}

// FromRect converts an image.Rectangle to a BoundingBox.
func FromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return Box(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.1f, %.1f, %.1f, %.1f]", b.XMin, b.YMin, b.XMax, b.YMax)
}

// IoU computes the intersection over union of two boxes.
//
// Returns exactly 0 when the boxes do not overlap (zero-width or zero-height
// intersection) without computing a union, and 0 when the union area is zero.
// The result is symmetric in its arguments.
func IoU(a, b BoundingBox) float64 {
	xA := math.Max(a.XMin, b.XMin)
	yA := math.Max(a.YMin, b.YMin)
	xB := math.Min(a.XMax, b.XMax)
	yB := math.Min(a.YMax, b.YMax)

	interArea := math.Max(0, xB-xA) * math.Max(0, yB-yA)
	if interArea == 0 {
		return 0
	}

	union := a.Area() + b.Area() - interArea
	if union == 0 {
		return 0
	}
	return interArea / union
}

// Contains reports whether inner lies entirely within outer.
//
// The boundary is closed: an inner box touching an edge of outer counts as
// contained.
func Contains(outer, inner BoundingBox) bool {
	return inner.XMin >= outer.XMin &&
		inner.YMin >= outer.YMin &&
		inner.XMax <= outer.XMax &&
		inner.YMax <= outer.YMax
}

// Round4 rounds v to four decimal places, half away from zero.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
