// Package imaging loads source images and renders outfit results.
//
// # Loading
//
// [Loader] accepts local paths, http(s) URLs, Pinterest pin pages and
// s3://bucket/key URLs. Every decoded image is returned as *image.NRGBA with
// EXIF orientation applied, so pixel coordinates from the detector match what
// the user sees. Decoded images are kept in an [ImageCache] keyed by source
// string. All loader failures wrap [ErrImageLoad].
//
// # Rendering
//
// [Annotate] draws boxes, labels and translucent masks for a set of
// detections. [CropBox] and [EncodePNG] produce base64 PNG payloads for MCP
// image content, and [DominantColor] reports the main color of a garment,
// restricted to its mask when one is available.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. Regions
// are half-open: Min is inclusive and Max is exclusive.
//
// # Thread Safety
//
// ImageCache and Loader are safe for concurrent use. Rendering functions never
// modify their input image.
package imaging
