// Package detection holds the detector output model and the label-level
// post-processing applied before association.
//
// # Detections
//
// A [Detection] is a labelled, scored bounding box in absolute pixel
// coordinates, optionally carrying a segmentation mask. Detector adapters
// receive loosely-typed JSON and convert it at the boundary with [FromRaw],
// so malformed payloads fail fast instead of surfacing deep in the pipeline.
//
// # Labels
//
// The zero-shot detector is prompted with free-text labels terminated by a
// period ("shirt."). [PrepareLabels] applies that convention and makes sure a
// person prompt is always present, since association needs person boxes.
// [IsPerson] compares labels after lower-casing and trimming whitespace and
// trailing periods, so "Person." and "person" are the same class.
//
// # Post-processing
//
//  1. [FilterByScore] drops detections below the confidence threshold.
//  2. [Partition] splits persons from items.
//  3. [RemoveMultilabelSameArea] collapses item boxes that overlap by more
//     than the IoU threshold, keeping the highest score regardless of label.
//
// Persons are never deduplicated: two people standing close together are
// still two people.
package detection
