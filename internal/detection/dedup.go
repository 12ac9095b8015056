package detection

import (
	"sort"

	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

// DefaultItemIoUThreshold is the overlap above which two item detections are
// considered the same garment.
const DefaultItemIoUThreshold = 0.5

// RemoveMultilabelSameArea collapses detections that cover the same area
// under different labels, keeping the highest-scoring one.
//
// Detections are visited in descending score order (ties keep input order).
// Each detection not yet absorbed becomes a representative and absorbs every
// later detection whose IoU with it is strictly greater than iouThreshold.
// Labels are ignored. The result holds the representatives in visit order;
// dets is not modified.
func RemoveMultilabelSameArea(dets []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	absorbed := make([]bool, len(sorted))
	kept := make([]Detection, 0, len(sorted))
	for i := range sorted {
		if absorbed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if absorbed[j] {
				continue
			}
			if geometry.IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				absorbed[j] = true
			}
		}
	}
	return kept
}
