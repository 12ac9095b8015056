package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/outfit-tools-mcp/internal/association"
	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
)

func det(label string, score, xmin, ymin, xmax, ymax float64) detection.Detection {
	return detection.Detection{Label: label, Score: score, Box: geometry.Box(xmin, ymin, xmax, ymax)}
}

type fakeDetector struct {
	dets   []detection.Detection
	err    error
	labels []string
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image, labels []string, threshold float64) ([]detection.Detection, error) {
	f.labels = labels
	return f.dets, f.err
}

type fakeSegmenter struct {
	masks func(img image.Image, dets []detection.Detection) []*mask.Mask
	err   error
}

func (f *fakeSegmenter) Segment(ctx context.Context, img image.Image, dets []detection.Detection) ([]*mask.Mask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.masks(img, dets), nil
}

// boxMasks returns a mask per detection covering its box plus one stray pixel.
func boxMasks(img image.Image, dets []detection.Detection) []*mask.Mask {
	b := img.Bounds()
	out := make([]*mask.Mask, len(dets))
	for i, d := range dets {
		m := mask.New(b.Dx(), b.Dy())
		r := d.Box.Rect().Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				m.SetOn(x, y, true)
			}
		}
		m.SetOn(b.Dx()-1, b.Dy()-1, true)
		out[i] = m
	}
	return out
}

func TestProcess_LowScoreShirtFiltered(t *testing.T) {
	dets := []detection.Detection{
		det("person", 0.9, 0, 0, 200, 300),
		det("shirt", 0.8, 20, 50, 150, 200),
		det("shirt", 0.3, 22, 52, 148, 198),
	}
	opts := DefaultOptions()
	opts.Threshold = 0.5

	res, err := Process(dets, 200, 300, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []association.Record{{
		PersonID:  1,
		PersonBox: geometry.NormalizedBox{0, 0, 1, 1},
		Items: []association.Item{{
			Label:         "shirt",
			Box:           geometry.NormalizedBox{0.1, 0.1667, 0.65, 0.5},
			Confidence:    0.8,
			IoUWithPerson: 0.325,
		}},
	}}
	if diff := cmp.Diff(want, res.Persons); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.NumPersons != 1 {
		t.Errorf("NumPersons = %d, want 1", res.NumPersons)
	}
	if res.TotalDetections != 2 {
		t.Errorf("TotalDetections = %d, want 2", res.TotalDetections)
	}
}

func TestProcess_DuplicateShirtRemoved(t *testing.T) {
	dets := []detection.Detection{
		det("person", 0.9, 0, 0, 200, 300),
		det("shirt", 0.6, 22, 52, 148, 198),
		det("shirt", 0.8, 20, 50, 150, 200),
	}
	opts := DefaultOptions()
	opts.Threshold = 0.5

	res, err := Process(dets, 200, 300, opts)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	items := res.Persons[0].Items
	if len(items) != 1 || items[0].Confidence != 0.8 {
		t.Errorf("items: got %+v, want only the 0.8 shirt", items)
	}
	if res.TotalDetections != 3 {
		t.Errorf("TotalDetections = %d, want 3 (counted before dedup)", res.TotalDetections)
	}
}

func TestProcess_ItemOutsidePersons(t *testing.T) {
	dets := []detection.Detection{
		det("person.", 0.9, 0, 0, 100, 300),
		det("hat.", 0.7, 120, 10, 180, 60),
	}
	res, err := Process(dets, 200, 300, DefaultOptions())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Persons[0].Items) != 0 {
		t.Errorf("person items: got %+v, want none", res.Persons[0].Items)
	}
	if res.TotalDetections != 2 {
		t.Errorf("TotalDetections = %d, want 2", res.TotalDetections)
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0].Label != "hat." {
		t.Errorf("Unassigned = %+v, want the hat", res.Unassigned)
	}
}

func TestProcess_PersonsNotDeduplicated(t *testing.T) {
	dets := []detection.Detection{
		det("person", 0.9, 0, 0, 100, 100),
		det("person", 0.8, 1, 1, 100, 100),
	}
	res, err := Process(dets, 100, 100, DefaultOptions())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.NumPersons != 2 {
		t.Errorf("NumPersons = %d, want 2", res.NumPersons)
	}
}

func TestProcess_InvalidDimension(t *testing.T) {
	_, err := Process(nil, 0, 100, DefaultOptions())
	if !IsKind(err, KindInvalidDimension) {
		t.Errorf("got %v, want KindInvalidDimension", err)
	}
	if !errors.Is(err, geometry.ErrInvalidDimension) {
		t.Errorf("cause should be ErrInvalidDimension, got %v", err)
	}
}

func TestProcess_Deterministic(t *testing.T) {
	dets := []detection.Detection{
		det("person", 0.9, 0, 0, 200, 300),
		det("shirt", 0.8, 20, 50, 150, 200),
		det("vest", 0.8, 21, 51, 149, 199),
		det("shoe", 0.5, 30, 250, 80, 300),
	}
	first, err := Process(dets, 200, 300, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Process(dets, 200, 300, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first.Persons, again.Persons); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestRun_WithSegmentation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 300))
	fd := &fakeDetector{dets: []detection.Detection{
		det("person.", 0.9, 0, 0, 200, 300),
		det("shirt.", 0.8, 20, 50, 150, 200),
	}}
	p := New(fd, &fakeSegmenter{masks: boxMasks})

	opts := DefaultOptions()
	opts.Labels = []string{"shirt"}
	res, err := p.Run(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff([]string{"person.", "shirt."}, fd.labels); diff != "" {
		t.Errorf("detector labels mismatch (-want +got):\n%s", diff)
	}
	if res.NumPersons != 1 || len(res.Persons[0].Items) != 1 {
		t.Fatalf("unexpected result: %+v", res.Persons)
	}

	shirt := res.Detections[1]
	if shirt.Mask == nil {
		t.Fatal("shirt should carry a mask")
	}
	if shirt.Mask.On(199, 299) {
		t.Error("refinement should drop the stray pixel")
	}
	if shirt.Mask.Count() != 130*150 {
		t.Errorf("shirt mask count = %d, want %d", shirt.Mask.Count(), 130*150)
	}
}

func TestRun_WithoutRefinement(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	fd := &fakeDetector{dets: []detection.Detection{det("person.", 0.9, 0, 0, 20, 20)}}
	p := New(fd, &fakeSegmenter{masks: boxMasks})

	opts := DefaultOptions()
	opts.PolygonRefinement = false
	res, err := p.Run(context.Background(), img, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Detections[0].Mask.On(49, 49) {
		t.Error("unrefined mask should keep the stray pixel")
	}
}

func TestRun_EmptyMaskFallsBack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	fd := &fakeDetector{dets: []detection.Detection{det("person.", 0.9, 0, 0, 20, 20)}}
	seg := &fakeSegmenter{masks: func(img image.Image, dets []detection.Detection) []*mask.Mask {
		return []*mask.Mask{mask.New(40, 40)}
	}}

	res, err := New(fd, seg).Run(context.Background(), img, DefaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m := res.Detections[0].Mask
	if m == nil || !m.Empty() || m.Width() != 40 {
		t.Errorf("empty mask should come back as an empty 40x40 mask")
	}
}

func TestRun_Errors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	boom := errors.New("boom")

	tests := []struct {
		name string
		p    *Pipeline
		img  image.Image
		opts func(*Options)
		want Kind
	}{
		{"nil image", New(&fakeDetector{}, nil), nil, nil, KindInvalidInput},
		{"no detector", New(nil, nil), img, nil, KindDetector},
		{"bad threshold", New(&fakeDetector{}, nil), img, func(o *Options) { o.Threshold = 2 }, KindInvalidInput},
		{"empty image", New(&fakeDetector{}, nil), image.NewRGBA(image.Rect(0, 0, 0, 10)), nil, KindInvalidDimension},
		{"detector failure", New(&fakeDetector{err: boom}, nil), img, nil, KindDetector},
		{
			"segmenter failure",
			New(&fakeDetector{dets: []detection.Detection{det("person.", 0.9, 0, 0, 5, 5)}}, &fakeSegmenter{err: boom}),
			img, nil, KindSegmenter,
		},
		{
			"mask count mismatch",
			New(&fakeDetector{dets: []detection.Detection{det("person.", 0.9, 0, 0, 5, 5)}},
				&fakeSegmenter{masks: func(image.Image, []detection.Detection) []*mask.Mask { return nil }}),
			img, nil, KindSegmenter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := tt.p.Run(context.Background(), tt.img, opts)
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a *pipeline.Error", err)
			}
			if pe.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", pe.Kind, tt.want)
			}
		})
	}
}

func TestRun_DetectorErrorUnwraps(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := New(&fakeDetector{err: boom}, nil).Run(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), DefaultOptions())
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is should reach the detector cause, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(Errorf(KindStore, "save", "disk full")); got != KindStore {
		t.Errorf("KindOf(*Error) = %s", got)
	}
	if got := KindOf(geometry.ErrInvalidDimension); got != KindInvalidDimension {
		t.Errorf("KindOf(ErrInvalidDimension) = %s", got)
	}
	if got := KindOf(errors.New("x")); got != KindInvalidInput {
		t.Errorf("KindOf(other) = %s", got)
	}
}

func TestDefaultOptions_DoesNotAliasLabels(t *testing.T) {
	opts := DefaultOptions()
	opts.Labels[0] = "changed"
	if detection.DefaultLabels[0] != "person." {
		t.Error("DefaultOptions shares its label slice with detection.DefaultLabels")
	}
}
