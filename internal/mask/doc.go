// Package mask converts segmentation masks to polygons and back.
//
// A Mask is a binary raster backed by an *image.Gray whose origin is (0, 0).
// Any non-zero pixel is foreground. Masks produced by this package only ever
// contain the values 0 and 255.
//
// # Polygon Extraction
//
// ToPolygon groups foreground pixels into 8-connected regions, traces the
// outer boundary of each region with Moore-neighbour tracing, and compresses
// straight horizontal, vertical and diagonal runs down to their end points.
// The boundary enclosing the largest area (shoelace formula over the
// compressed vertices) is returned. Holes and regions nested inside holes
// never win because the enclosing region's outer boundary is always larger.
//
// # Rasterization
//
// FromPolygon fills the polygon interior with the even-odd rule, sampling
// each row at the pixel centres, and then draws the polygon edges. Vertices
// lie on pixel centres of the traced boundary, so drawing the edges keeps the
// boundary pixels foreground and a traced rectangle rasterizes back to the
// identical rectangle. Concave outlines rasterize exactly; self-intersecting
// polygons follow even-odd parity, which may differ from a nonzero-winding
// fill.
//
// # Refinement
//
// Refine snaps a noisy mask to the filled outline of its largest region,
// discarding secondary blobs and holes. It is deliberately lossy.
package mask
