package association

import (
	"fmt"

	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

// Item is one garment listed under a person.
type Item struct {
	// Label is the detector prompt that matched, e.g. "shirt.".
	Label string `json:"text_prompt"`

	// Box is the garment box as (x, y, w, h) fractions of the image size.
	Box geometry.NormalizedBox `json:"box"`

	// Confidence is the detector score rounded to four decimals.
	Confidence float64 `json:"confidence"`

	// IoUWithPerson is the overlap between the garment and the person box,
	// rounded to four decimals. Zero for unassigned items.
	IoUWithPerson float64 `json:"iou_with_person"`
}

// Record groups the garments found inside one person.
type Record struct {
	// PersonID is the 1-based position of the person among the filtered
	// person detections.
	PersonID int `json:"person_id"`

	// PersonBox is the person's normalized bounding box.
	PersonBox geometry.NormalizedBox `json:"bounding_box"`

	// Items lists every garment contained in the person box, in item order.
	// Never nil, so it serializes as [] for a person with no garments.
	Items []Item `json:"outfit"`
}

// Associate builds one Record per person, in order, listing the items whose
// boxes the person's box contains.
//
// Parameters:
//   - persons: Person detections. Their order defines PersonID (1..N).
//   - items: Garment detections, typically already deduplicated.
//   - width, height: Source image size used for normalization.
//
// Returns:
//   - []Record: One record per person, even when it holds no items.
//   - []Item: Items contained by no person, with IoUWithPerson 0.
//   - error: wraps geometry.ErrInvalidDimension when width or height is not
//     positive.
func Associate(persons, items []detection.Detection, width, height int) ([]Record, []Item, error) {
	records := make([]Record, 0, len(persons))
	assigned := make([]bool, len(items))

	for idx, person := range persons {
		personBox, err := geometry.Normalize(person.Box, width, height)
		if err != nil {
			return nil, nil, fmt.Errorf("person %d: %w", idx+1, err)
		}

		rec := Record{
			PersonID:  idx + 1,
			PersonBox: personBox,
			Items:     make([]Item, 0),
		}
		for i, item := range items {
			if !geometry.Contains(person.Box, item.Box) {
				continue
			}
			it, err := newItem(item, geometry.IoU(person.Box, item.Box), width, height)
			if err != nil {
				return nil, nil, err
			}
			rec.Items = append(rec.Items, it)
			assigned[i] = true
		}
		records = append(records, rec)
	}

	unassigned := make([]Item, 0)
	for i, item := range items {
		if assigned[i] {
			continue
		}
		it, err := newItem(item, 0, width, height)
		if err != nil {
			return nil, nil, err
		}
		unassigned = append(unassigned, it)
	}
	return records, unassigned, nil
}

func newItem(d detection.Detection, iou float64, width, height int) (Item, error) {
	box, err := geometry.Normalize(d.Box, width, height)
	if err != nil {
		return Item{}, fmt.Errorf("item %q: %w", d.Label, err)
	}
	return Item{
		Label:         d.Label,
		Box:           box,
		Confidence:    geometry.Round4(d.Score),
		IoUWithPerson: geometry.Round4(iou),
	}, nil
}
