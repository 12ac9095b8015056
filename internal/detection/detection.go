package detection

import (
	"fmt"

	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
)

// Detection is a single labelled box reported by the zero-shot detector.
//
// Mask is nil until the segmenter has run. Detections are treated as values:
// pipeline stages copy and filter them but never modify one in place.
type Detection struct {
	// Label is the text prompt the detector matched, e.g. "shirt.".
	Label string `json:"label"`

	// Score is the detector confidence in [0, 1].
	Score float64 `json:"score"`

	// Box is the bounding box in absolute pixel coordinates.
	Box geometry.BoundingBox `json:"box"`

	// Mask is the binary segmentation mask with the source image's dimensions.
	Mask *mask.Mask `json:"-"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f) %v", d.Label, d.Score, d.Box)
}

// FilterByScore returns the detections whose score is at least threshold,
// preserving order.
func FilterByScore(dets []Detection, threshold float64) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	return kept
}

// Partition splits detections into persons and items, preserving order.
// A detection is a person when IsPerson reports true for its label.
func Partition(dets []Detection) (persons, items []Detection) {
	persons = make([]Detection, 0)
	items = make([]Detection, 0)
	for _, d := range dets {
		if IsPerson(d.Label) {
			persons = append(persons, d)
		} else {
			items = append(items, d)
		}
	}
	return persons, items
}
