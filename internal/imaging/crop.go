package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

// CropResult contains an encoded image ready for an MCP image content block.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropBox extracts the detection box from img, grown by padding pixels on
// every side and clipped to the image, and fits it within maxSide pixels.
//
// maxSide <= 0 keeps the original resolution.
func CropBox(img image.Image, box geometry.BoundingBox, padding, maxSide int) (*CropResult, error) {
	bounds := img.Bounds()
	r := box.Rect().Inset(-padding).Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", box, bounds)
	}

	cropped := imaging.Crop(img, r)
	return EncodePNG(cropped, maxSide)
}

// EncodePNG encodes img as base64 PNG, first downscaling it to fit within
// maxSide x maxSide when maxSide is positive and the image is larger.
func EncodePNG(img image.Image, maxSide int) (*CropResult, error) {
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &CropResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
