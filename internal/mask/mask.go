package mask

import (
	"errors"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/segment"
)

// ErrEmptyMask is returned when a polygon is requested from a mask with no
// foreground pixels.
var ErrEmptyMask = errors.New("mask has no foreground pixels")

// Foreground is the pixel value written for foreground pixels.
const Foreground uint8 = 255

// Mask is a binary raster mask with its origin at (0, 0).
type Mask struct {
	*image.Gray
}

// New returns an all-background mask of the given size.
func New(width, height int) *Mask {
	return &Mask{image.NewGray(image.Rect(0, 0, width, height))}
}

// FromGray wraps g without copying. A non-zero origin is rebased to (0, 0).
func FromGray(g *image.Gray) *Mask {
	if g.Rect.Min != (image.Point{}) {
		g = &image.Gray{
			Pix:    g.Pix,
			Stride: g.Stride,
			Rect:   g.Rect.Sub(g.Rect.Min),
		}
	}
	return &Mask{g}
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.Rect.Dx() }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.Rect.Dy() }

// SetOn marks (x, y) as foreground or background. Out-of-range points are ignored.
func (m *Mask) SetOn(x, y int, on bool) {
	if x < 0 || y < 0 || x >= m.Width() || y >= m.Height() {
		return
	}
	v := uint8(0)
	if on {
		v = Foreground
	}
	m.Pix[y*m.Stride+x] = v
}

// On reports whether (x, y) is foreground. Out-of-range points are background.
func (m *Mask) On(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width() || y >= m.Height() {
		return false
	}
	return m.Pix[y*m.Stride+x] != 0
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for y := 0; y < m.Height(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+m.Width()]
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// Empty reports whether the mask has no foreground pixels.
func (m *Mask) Empty() bool {
	for y := 0; y < m.Height(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+m.Width()]
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// ForegroundBounds returns the bounding rectangle of the foreground pixels,
// or the empty rectangle for an empty mask.
func (m *Mask) ForegroundBounds() image.Rectangle {
	var r image.Rectangle
	for y := 0; y < m.Height(); y++ {
		for x := 0; x < m.Width(); x++ {
			if m.On(x, y) {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

// Binarize thresholds img so that every pixel with a value greater than zero
// becomes foreground.
//
// Grayscale inputs are thresholded directly. Other color models are reduced
// to luminance rank and thresholded at level 1; fully transparent pixels are
// background.
func Binarize(img image.Image) *Mask {
	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		m := New(b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				if g.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0 {
					m.SetGray(x, y, color.Gray{Y: Foreground})
				}
			}
		}
		return m
	}
	m := FromGray(segment.Threshold(img, 1))
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// segment.Threshold maps transparent black to white.
			if _, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA(); a == 0 {
				m.Pix[y*m.Stride+x] = 0
			}
		}
	}
	return m
}
