package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
)

const (
	boxThickness = 3
	maskOpacity  = 0.45
	goldenAngle  = 137.508
)

// PaletteColor returns the i-th annotation color. Hues step by the golden
// angle so neighbouring indices stay visually distinct.
func PaletteColor(i int) color.RGBA {
	h := math.Mod(float64(i)*goldenAngle, 360)
	c := colorful.Hsv(h, 0.85, 0.95).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Annotate draws every detection onto a copy of img: the mask (when present)
// as a translucent fill, the box outline, and a "label score" tag above the
// box. Persons and items get colors from the same palette in slice order.
func Annotate(img image.Image, dets []detection.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	for i, d := range dets {
		c := PaletteColor(i)
		if d.Mask != nil {
			overlayMask(dst, d, c)
		}
		imageutil.DrawThickRectOutline(dst, d.Box.Rect(), c, boxThickness)
		drawTag(dst, d.Box.Rect().Min, fmt.Sprintf("%s %.2f", detection.NormalizeLabel(d.Label), d.Score), c)
	}
	return dst
}

func overlayMask(dst *image.RGBA, d detection.Detection, c color.RGBA) {
	m := d.Mask
	w := min(m.Width(), dst.Rect.Dx())
	h := min(m.Height(), dst.Rect.Dy())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !m.On(x, y) {
				continue
			}
			off := dst.PixOffset(x, y)
			p := dst.Pix[off : off+4 : off+4]
			p[0] = blend(p[0], c.R)
			p[1] = blend(p[1], c.G)
			p[2] = blend(p[2], c.B)
			p[3] = 255
		}
	}
}

func blend(bg, fg uint8) uint8 {
	return uint8(math.Round(float64(bg)*(1-maskOpacity) + float64(fg)*maskOpacity))
}

// drawTag writes text on a filled background just above at, or just inside
// the image when there is no room above.
func drawTag(dst *image.RGBA, at image.Point, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := at.Y - height
	if top < 0 {
		top = at.Y
	}
	tag := image.Rect(at.X, top, at.X+width, top+height).Intersect(dst.Bounds())
	if tag.Empty() {
		return
	}
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor(bg)),
		Face: face,
		Dot:  fixed.P(at.X+2, top+face.Ascent+1),
	}
	d.DrawString(text)
}

// textColor picks black or white, whichever reads better on bg.
func textColor(bg color.RGBA) color.Color {
	c, _ := colorful.MakeColor(bg)
	if _, _, l := c.Hsl(); l > 0.55 {
		return color.Black
	}
	return color.White
}

// SavePNG writes img to path as PNG, creating or truncating the file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
