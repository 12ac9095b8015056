// Package geometry provides the box arithmetic shared by the outfit pipeline.
//
// All boxes are axis-aligned and expressed in absolute pixel space as
// (XMin, YMin, XMax, YMax) using float64 coordinates, exactly as the detector
// reports them. Coordinates are never clamped or snapped to the pixel grid
// by this package; callers that need integer rectangles use Rect.
//
// # Coordinate System
//
//   - Origin (0, 0) at the top-left corner of the image
//   - X increases rightward, Y increases downward
//   - A valid box has XMin < XMax and YMin < YMax
//
// # Normalized Boxes
//
// NormalizedBox is a presentation transform: (x, y, w, h) relative to the
// image width and height, rounded to four decimal places. It serializes as a
// four-element JSON array and is never converted back to pixel space.
//
// # Error Handling
//
// Only Normalize can fail. It returns an error wrapping ErrInvalidDimension
// when the image width or height is not positive.
package geometry
