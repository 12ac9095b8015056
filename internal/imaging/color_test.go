package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDominantColor_SingleColor(t *testing.T) {
	img := createInMemoryImage(50, 50, color.RGBA{255, 128, 64, 255})

	result := DominantColor(img, nil, img.Bounds())
	if result == nil {
		t.Fatal("DominantColor returned nil")
	}
	if result.Hex != "#ff8040" {
		t.Errorf("Hex: got %s, want #ff8040", result.Hex)
	}
	if result.RGB != (RGBColor{255, 128, 64}) {
		t.Errorf("RGB: got %+v", result.RGB)
	}
	if result.Percentage != 100 {
		t.Errorf("Percentage: got %v, want 100", result.Percentage)
	}
}

func TestDominantColor_Region(t *testing.T) {
	img := createPatternImage(100, 100)

	result := DominantColor(img, nil, image.Rect(50, 0, 100, 50))
	if result == nil || result.Hex != "#00ff00" {
		t.Errorf("top-right region: got %+v, want green", result)
	}
}

func TestDominantColor_Mask(t *testing.T) {
	img := createPatternImage(100, 100)

	// Mostly red box, but the mask only covers blue pixels.
	m := mask.New(100, 100)
	for y := 50; y < 60; y++ {
		for x := 0; x < 10; x++ {
			m.SetOn(x, y, true)
		}
	}
	result := DominantColor(img, m, image.Rect(0, 0, 60, 60))
	if result == nil || result.Hex != "#0000ff" {
		t.Errorf("masked: got %+v, want blue", result)
	}
	if result != nil && result.HSL != (HSLColor{240, 100, 50}) {
		t.Errorf("HSL: got %+v, want {240 100 50}", result.HSL)
	}
}

func TestDominantColor_Majority(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 7 {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
			} else {
				img.Set(x, y, color.RGBA{250, 250, 250, 255})
			}
		}
	}

	result := DominantColor(img, nil, img.Bounds())
	if result == nil || result.RGB != (RGBColor{20, 20, 20}) {
		t.Fatalf("got %+v, want dark gray", result)
	}
	if result.Percentage != 70 {
		t.Errorf("Percentage: got %v, want 70", result.Percentage)
	}
}

func TestDominantColor_Empty(t *testing.T) {
	img := createInMemoryImage(10, 10, color.White)

	if got := DominantColor(img, mask.New(10, 10), img.Bounds()); got != nil {
		t.Errorf("empty mask: got %+v, want nil", got)
	}
	if got := DominantColor(img, nil, image.Rect(20, 20, 30, 30)); got != nil {
		t.Errorf("region outside image: got %+v, want nil", got)
	}
}
