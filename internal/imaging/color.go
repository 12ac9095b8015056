package imaging

import (
	"image"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSLColor represents a color in HSL space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// ColorResult describes the dominant color of a garment.
type ColorResult struct {
	Hex string   `json:"hex"` // "#RRGGBB"
	RGB RGBColor `json:"rgb"`
	HSL HSLColor `json:"hsl"`

	// Percentage is the share of sampled pixels in the dominant bucket (0-100).
	Percentage float64 `json:"percentage"`
}

// DominantColor returns the most common color inside a garment.
//
// Parameters:
//   - img: The source image.
//   - m: Garment mask with the image's dimensions. When nil, every pixel in
//     region is sampled.
//   - region: Rectangle to sample, usually the detection box. It is clipped
//     to the image.
//
// Returns nil when no pixel is sampled.
//
// # Color Quantization
//
// Colors are grouped by dividing each 8-bit component by 16, so colors within
// 16 units of each other count as the same color. The reported color is the
// mean of the winning bucket rather than the bucket corner, which keeps dark
// and light shades distinguishable.
func DominantColor(img image.Image, m *mask.Mask, region image.Rectangle) *ColorResult {
	b := img.Bounds()
	region = region.Add(b.Min).Intersect(b)

	type bucket struct {
		n       int
		r, g, bl int
	}
	buckets := make(map[uint16]*bucket)
	total := 0

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if m != nil && !m.On(x-b.Min.X, y-b.Min.Y) {
				continue
			}
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := int(r>>8), int(g>>8), int(bl>>8)
			key := uint16(r8>>4)<<8 | uint16(g8>>4)<<4 | uint16(b8>>4)
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.n++
			bk.r += r8
			bk.g += g8
			bk.bl += b8
			total++
		}
	}
	if total == 0 {
		return nil
	}

	keys := make([]uint16, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	// Deterministic winner: highest count, then lowest key.
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := buckets[keys[i]], buckets[keys[j]]
		if bi.n != bj.n {
			return bi.n > bj.n
		}
		return keys[i] < keys[j]
	})
	best := buckets[keys[0]]

	rgb := RGBColor{
		R: uint8(best.r / best.n),
		G: uint8(best.g / best.n),
		B: uint8(best.bl / best.n),
	}
	c := colorful.Color{R: float64(rgb.R) / 255, G: float64(rgb.G) / 255, B: float64(rgb.B) / 255}
	h, s, l := c.Hsl()

	return &ColorResult{
		Hex: c.Hex(),
		RGB: rgb,
		HSL: HSLColor{
			H: int(math.Round(h)) % 360,
			S: int(math.Round(s * 100)),
			L: int(math.Round(l * 100)),
		},
		Percentage: math.Round(float64(best.n)/float64(total)*10000) / 100,
	}
}
