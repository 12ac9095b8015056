// Package models adapts the external detection and segmentation models to
// the pipeline.Detector and pipeline.Segmenter interfaces.
//
// HTTPDetector talks to a zero-shot object detection service (for example a
// Grounding DINO server) over HTTP. SAM2Segmenter runs the SAM2 encoder and
// mask decoder in-process through onnxruntime; the runtime library is loaded
// once per process.
package models
