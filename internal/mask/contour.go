package mask

import (
	"image"
	"math"
)

// Polygon is an ordered list of vertices describing a closed outline.
// The last vertex connects back to the first.
type Polygon []image.Point

// Area returns the absolute shoelace area of the polygon.
// Polygons with fewer than three vertices have zero area.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	sum := 0
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// Pairs returns the vertices as [x, y] pairs for JSON output.
func (p Polygon) Pairs() [][2]int {
	out := make([][2]int, len(p))
	for i, pt := range p {
		out[i] = [2]int{pt.X, pt.Y}
	}
	return out
}

// ToPolygon returns the outer boundary of the largest foreground region of m.
//
// Parameters:
//   - m: Binary mask. Any non-zero pixel is foreground.
//
// Returns:
//   - Polygon: Compressed boundary vertices, clockwise in image coordinates,
//     starting at the region's top-most, left-most pixel.
//   - error: ErrEmptyMask if the mask has no foreground pixels.
//
// When several regions enclose the same area the first one found in raster
// order wins. A single-pixel region yields a one-vertex polygon.
func ToPolygon(m *Mask) (Polygon, error) {
	contours := findContours(m)
	if len(contours) == 0 {
		return nil, ErrEmptyMask
	}

	best := 0
	bestArea := contours[0].Area()
	for i := 1; i < len(contours); i++ {
		if a := contours[i].Area(); a > bestArea {
			best = i
			bestArea = a
		}
	}
	return contours[best], nil
}

// Moore neighbourhood in clockwise order (image coordinates, Y down),
// starting from the west neighbour.
var neighbours = [8]image.Point{
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
}

const west = 0

// findContours traces the outer boundary of every 8-connected foreground region.
//
// Regions are labelled with an iterative flood fill. The first pixel of each
// region in raster order is always on its outer boundary with a background
// pixel to the west, which seeds the trace.
func findContours(m *Mask) []Polygon {
	width, height := m.Width(), m.Height()
	labels := make([]int, width*height)

	contours := make([]Polygon, 0)
	next := 1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !m.On(x, y) || labels[y*width+x] != 0 {
				continue
			}
			label := next
			next++
			floodFill(m, labels, x, y, label)
			boundary := traceBoundary(labels, width, height, image.Point{X: x, Y: y}, label)
			contours = append(contours, compress(boundary))
		}
	}
	return contours
}

// floodFill labels every foreground pixel 8-connected to (startX, startY).
//
// Uses an explicit stack to avoid deep recursion on large regions.
func floodFill(m *Mask, labels []int, startX, startY, label int) {
	width := m.Width()
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.On(p.X, p.Y) || labels[p.Y*width+p.X] != 0 {
			continue
		}
		labels[p.Y*width+p.X] = label

		for _, d := range neighbours {
			stack = append(stack, p.Add(d))
		}
	}
}

// traceBoundary walks the outer boundary of one labelled region.
//
// Moore-neighbour tracing: from the current pixel, scan its neighbours
// clockwise starting just after the background pixel we came from. The trace
// stops when the start pixel is about to be left towards the same pixel as
// on the first step, which handles regions that pass through the start pixel
// more than once.
func traceBoundary(labels []int, width, height int, start image.Point, label int) []image.Point {
	in := func(p image.Point) bool {
		if p.X < 0 || p.Y < 0 || p.X >= width || p.Y >= height {
			return false
		}
		return labels[p.Y*width+p.X] == label
	}

	step := func(p image.Point, back int) (image.Point, int, bool) {
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			q := p.Add(neighbours[d])
			if !in(q) {
				continue
			}
			prev := p.Add(neighbours[(back+i-1)%8])
			return q, direction(prev.Sub(q)), true
		}
		return p, back, false
	}

	points := make([]image.Point, 0)
	p, back := start, west
	var second image.Point
	maxSteps := 4*width*height + 8

	for i := 0; i < maxSteps; i++ {
		q, nb, ok := step(p, back)
		if !ok {
			return []image.Point{start}
		}
		if i == 0 {
			second = q
		} else if p == start && q == second {
			break
		}
		points = append(points, p)
		p, back = q, nb
	}
	return points
}

// direction returns the neighbour index for a unit offset.
func direction(d image.Point) int {
	for i, n := range neighbours {
		if n == d {
			return i
		}
	}
	return west
}

// compress drops every vertex that continues in the same direction as the
// previous step, keeping only the end points of straight runs.
func compress(points []image.Point) Polygon {
	n := len(points)
	if n <= 2 {
		return Polygon(points)
	}

	out := make(Polygon, 0, n)
	for i := 0; i < n; i++ {
		prev := points[(i-1+n)%n]
		cur := points[i]
		next := points[(i+1)%n]
		if cur.Sub(prev) != next.Sub(cur) {
			out = append(out, cur)
		}
	}
	return out
}
