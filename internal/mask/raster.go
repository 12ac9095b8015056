package mask

import (
	"image"
	"math"
	"sort"
)

// FromPolygon rasterizes a filled polygon onto a zero-initialized mask.
//
// Parameters:
//   - p: Polygon vertices in pixel coordinates (vertex (x, y) is the centre
//     of pixel (x, y)).
//   - width, height: Size of the output mask.
//
// The interior is filled with the even-odd rule: for every row, the scan line
// through the pixel centres is intersected with each edge (half-open in Y so a
// shared vertex is counted once) and pixels between successive pairs of
// crossings are set. The polygon edges are then drawn so boundary pixels are
// always foreground. Parts of the polygon outside the mask are clipped.
func FromPolygon(p Polygon, width, height int) *Mask {
	m := New(width, height)
	if len(p) == 0 {
		return m
	}

	fillEvenOdd(m, p)
	for i := range p {
		drawLine(m, p[i], p[(i+1)%len(p)])
	}
	return m
}

func fillEvenOdd(m *Mask, p Polygon) {
	if len(p) < 3 {
		return
	}

	minY, maxY := p[0].Y, p[0].Y
	for _, v := range p[1:] {
		minY = min(minY, v.Y)
		maxY = max(maxY, v.Y)
	}
	minY = max(minY, 0)
	maxY = min(maxY, m.Height()-1)

	xs := make([]float64, 0, len(p))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		fy := float64(y)
		for i := range p {
			a := p[i]
			b := p[(i+1)%len(p)]
			if a.Y == b.Y {
				continue
			}
			lo, hi := a, b
			if lo.Y > hi.Y {
				lo, hi = hi, lo
			}
			if fy < float64(lo.Y) || fy >= float64(hi.Y) {
				continue
			}
			t := (fy - float64(lo.Y)) / float64(hi.Y-lo.Y)
			xs = append(xs, float64(lo.X)+t*float64(hi.X-lo.X))
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			x0 := max(int(math.Ceil(xs[i])), 0)
			x1 := min(int(math.Floor(xs[i+1])), m.Width()-1)
			for x := x0; x <= x1; x++ {
				m.SetOn(x, y, true)
			}
		}
	}
}

// drawLine sets every pixel on the segment a-b using Bresenham's algorithm.
func drawLine(m *Mask, a, b image.Point) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy

	x, y := a.X, a.Y
	for {
		m.SetOn(x, y, true)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Refine replaces m with the filled outline of its largest foreground region.
//
// Returns ErrEmptyMask when m has no foreground; callers decide the fallback.
func Refine(m *Mask) (*Mask, error) {
	poly, err := ToPolygon(m)
	if err != nil {
		return nil, err
	}
	return FromPolygon(poly, m.Width(), m.Height()), nil
}

// RefineAll binarizes each mask (value > 0) and, when polygonRefinement is
// true, refines it with Refine.
//
// RefineAll never fails. A mask that cannot be refined (ErrEmptyMask) is
// returned unrefined, which for an empty mask is an all-background mask of the
// same size. Nil entries stay nil.
func RefineAll(masks []*Mask, polygonRefinement bool) []*Mask {
	out := make([]*Mask, len(masks))
	for i, raw := range masks {
		if raw == nil {
			continue
		}
		bin := Binarize(raw.Gray)
		if !polygonRefinement {
			out[i] = bin
			continue
		}

		refined, err := Refine(bin)
		if err != nil {
			out[i] = bin
			continue
		}
		out[i] = refined
	}
	return out
}
