// Package association attaches garment detections to the person detections
// that fully contain them.
//
// Association is purely geometric. An item belongs to a person when the
// item's box lies inside the person's box, borders included. Items that sit
// inside two overlapping persons are reported under both, and items inside no
// person are returned separately so callers can still see them.
//
// All boxes in the output are normalized to the image size (see
// geometry.Normalize) and scores and overlaps are rounded to four decimals.
package association
