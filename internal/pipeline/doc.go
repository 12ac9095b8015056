// Package pipeline turns an image into per-person outfit records.
//
// A run has four stages:
//
//  1. Detect: the injected Detector is prompted with the prepared labels.
//  2. Segment (optional): the injected Segmenter produces one mask per
//     detection, which is binarized and, with PolygonRefinement, replaced by
//     the filled outline of its largest region.
//  3. Process: detections below the score threshold are dropped, persons are
//     split from items, overlapping items are collapsed and items are
//     associated with the persons that contain them.
//  4. Report: a Result with normalized boxes, ready for JSON encoding.
//
// Process is a plain function over detections so the post-processing can be
// exercised without any model. Model adapters live in package models.
//
// # Errors
//
// Every failure leaving Run or Process is an *Error whose Kind tells the
// caller which stage failed. The underlying cause stays reachable with
// errors.Is, e.g. geometry.ErrInvalidDimension.
package pipeline
