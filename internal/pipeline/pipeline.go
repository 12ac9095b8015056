package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/outfit-tools-mcp/internal/association"
	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
)

// Detector finds labelled boxes in an image.
//
// Labels are detector prompts as produced by detection.PrepareLabels.
// Implementations may drop results below threshold but are not required to.
type Detector interface {
	Detect(ctx context.Context, img image.Image, labels []string, threshold float64) ([]detection.Detection, error)
}

// Segmenter produces one raw mask per detection, in the same order, each with
// the image's dimensions. Masks are refined by the pipeline, not the segmenter.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, dets []detection.Detection) ([]*mask.Mask, error)
}

// Options controls a pipeline run.
type Options struct {
	// Labels are the user supplied garment labels. A person label is added
	// when missing and DefaultLabels are used when empty.
	Labels []string

	// Threshold drops detections with a lower score.
	Threshold float64

	// IoUThreshold merges item detections that overlap by more than this.
	IoUThreshold float64

	// PolygonRefinement replaces every mask by its filled outer contour.
	PolygonRefinement bool

	// Segment runs the segmenter when one is configured.
	Segment bool
}

// DefaultOptions returns the options used when a request leaves them unset.
func DefaultOptions() Options {
	labels := make([]string, len(detection.DefaultLabels))
	copy(labels, detection.DefaultLabels)
	return Options{
		Labels:            labels,
		Threshold:         0.3,
		IoUThreshold:      detection.DefaultItemIoUThreshold,
		PolygonRefinement: true,
		Segment:           true,
	}
}

// Validate checks that thresholds are within [0, 1].
func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > 1 {
		return Errorf(KindInvalidInput, "options", "threshold must be between 0 and 1, got %v", o.Threshold)
	}
	if o.IoUThreshold < 0 || o.IoUThreshold > 1 {
		return Errorf(KindInvalidInput, "options", "iou_threshold must be between 0 and 1, got %v", o.IoUThreshold)
	}
	return nil
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Persons holds one record per person detection, in discovery order.
	Persons []association.Record `json:"results"`

	// NumPersons is len(Persons).
	NumPersons int `json:"num_persons"`

	// TotalDetections counts detections that passed the score filter, before
	// item deduplication.
	TotalDetections int `json:"total_detections"`

	// Unassigned lists deduplicated items contained by no person.
	Unassigned []association.Item `json:"unassigned"`

	// Detections are the filtered detections, with masks when segmented.
	Detections []detection.Detection `json:"-"`

	// Width and Height are the source image size.
	Width  int `json:"-"`
	Height int `json:"-"`
}

// Process runs the post-processing stages on raw detections:
// score filter, person/item partition, item deduplication and association.
//
// Process is deterministic and has no side effects. The only failure is an
// invalid image size, reported as a KindInvalidDimension *Error.
func Process(dets []detection.Detection, width, height int, opts Options) (*Result, error) {
	if width <= 0 || height <= 0 {
		return nil, &Error{
			Kind: KindInvalidDimension,
			Op:   "process",
			Err:  fmt.Errorf("%w: %dx%d", geometry.ErrInvalidDimension, width, height),
		}
	}

	filtered := detection.FilterByScore(dets, opts.Threshold)
	persons, items := detection.Partition(filtered)
	items = detection.RemoveMultilabelSameArea(items, opts.IoUThreshold)

	monitoring.Debugf("process: %d detections, %d persons, %d items after dedup",
		len(filtered), len(persons), len(items))

	records, unassigned, err := association.Associate(persons, items, width, height)
	if err != nil {
		return nil, &Error{Kind: KindInvalidDimension, Op: "associate", Err: err}
	}

	return &Result{
		Persons:         records,
		NumPersons:      len(records),
		TotalDetections: len(filtered),
		Unassigned:      unassigned,
		Detections:      filtered,
		Width:           width,
		Height:          height,
	}, nil
}

// Pipeline runs detection, optional segmentation and post-processing.
type Pipeline struct {
	Detector  Detector
	Segmenter Segmenter // optional
}

// New returns a Pipeline. seg may be nil to disable segmentation.
func New(det Detector, seg Segmenter) *Pipeline {
	return &Pipeline{Detector: det, Segmenter: seg}
}

// Run executes the full pipeline on img.
//
// Every error returned is an *Error. Segmentation runs only when a Segmenter
// is configured and opts.Segment is set. A mask that cannot be refined is
// kept unrefined.
func (p *Pipeline) Run(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	if img == nil {
		return nil, Errorf(KindInvalidInput, "run", "no image")
	}
	if p.Detector == nil {
		return nil, Errorf(KindDetector, "run", "no detector configured")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, &Error{
			Kind: KindInvalidDimension,
			Op:   "run",
			Err:  fmt.Errorf("%w: %dx%d", geometry.ErrInvalidDimension, width, height),
		}
	}

	labels := detection.PrepareLabels(opts.Labels)
	monitoring.Debugf("run: %dx%d image, labels %v, threshold %.2f", width, height, labels, opts.Threshold)

	dets, err := p.Detector.Detect(ctx, img, labels, opts.Threshold)
	if err != nil {
		return nil, &Error{Kind: KindDetector, Op: "detect", Err: err}
	}
	monitoring.Debugf("run: detector returned %d detections", len(dets))

	if p.Segmenter != nil && opts.Segment && len(dets) > 0 {
		dets, err = p.segment(ctx, img, dets, opts.PolygonRefinement)
		if err != nil {
			return nil, err
		}
	}

	return Process(dets, width, height, opts)
}

func (p *Pipeline) segment(ctx context.Context, img image.Image, dets []detection.Detection, refine bool) ([]detection.Detection, error) {
	masks, err := p.Segmenter.Segment(ctx, img, dets)
	if err != nil {
		return nil, &Error{Kind: KindSegmenter, Op: "segment", Err: err}
	}
	if len(masks) != len(dets) {
		return nil, Errorf(KindSegmenter, "segment", "got %d masks for %d detections", len(masks), len(dets))
	}

	refined := mask.RefineAll(masks, refine)
	out := make([]detection.Detection, len(dets))
	for i, d := range dets {
		if refine && masks[i] != nil && refined[i] != nil && refined[i].Empty() {
			monitoring.Logf("segment: %s has an empty mask", d.Label)
		}
		d.Mask = refined[i]
		out[i] = d
	}
	return out, nil
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
