package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/outfit-tools-mcp/internal/association"
	"github.com/ironsheep/outfit-tools-mcp/internal/detection"
	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
	"github.com/ironsheep/outfit-tools-mcp/internal/imaging"
	"github.com/ironsheep/outfit-tools-mcp/internal/mask"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
	"github.com/ironsheep/outfit-tools-mcp/internal/pipeline"
	"github.com/ironsheep/outfit-tools-mcp/internal/store"
)

const (
	statusCompleted  = "completed"
	defaultCropSide  = 1024
	healthCheckLimit = 3 * time.Second
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "outfit_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tools/call response.
type ToolErrorData struct {
	Kind    pipeline.Kind `json:"kind"`
	Message string        `json:"message"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Crops add an image content block. Tool execution errors return a JSON-RPC
// error response with code -32000 and a ToolErrorData payload.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		monitoring.Logf("%s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", ToolErrorData{
			Kind:    pipeline.KindOf(err),
			Message: err.Error(),
		})
	}

	content := []map[string]interface{}{
		{
			"type": "text",
			"text": mustMarshalJSON(result),
		},
	}
	if crop, ok := result.(*imaging.CropResult); ok {
		content = append(content, map[string]interface{}{
			"type":     "image",
			"data":     crop.ImageBase64,
			"mimeType": crop.MimeType,
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": content,
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "outfit_detect":
		return s.handleOutfitDetect(ctx, args)
	case "outfit_segment":
		return s.handleOutfitSegment(ctx, args)
	case "outfit_crop":
		return s.handleOutfitCrop(ctx, args)
	case "outfit_results_list":
		return s.handleResultsList(args)
	case "outfit_result_get":
		return s.handleResultGet(args)
	case "outfit_status":
		return s.handleStatus(ctx)
	default:
		return nil, pipeline.Errorf(pipeline.KindInvalidInput, "tools/call", "unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(tool string, args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return pipeline.Errorf(pipeline.KindInvalidInput, tool, "invalid arguments: %w", err)
	}
	return nil
}

// labelList accepts either a JSON string array or a comma separated string.
type labelList []string

func (l *labelList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = detection.SplitLabels(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("labels must be an array of strings or a comma separated string")
	}
	*l = list
	return nil
}

// loadImage resolves an image source through the loader cache.
func (s *Server) loadImage(ctx context.Context, tool, source string) (image.Image, *imaging.Source, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil, pipeline.Errorf(pipeline.KindInvalidInput, tool, "image is required")
	}
	img, src, err := s.loader.Load(ctx, source)
	if err != nil {
		return nil, nil, &pipeline.Error{Kind: pipeline.KindImageLoad, Op: tool, Err: err}
	}
	return img, src, nil
}

// baseOptions returns pipeline defaults with the configured thresholds.
func (s *Server) baseOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Threshold = s.cfg.DefaultThreshold
	opts.IoUThreshold = s.cfg.ItemIoUThreshold
	return opts
}

// shouldSave reports whether a run is persisted. Saving defaults to on when a
// store is configured.
func (s *Server) shouldSave(flag *bool) bool {
	return s.store != nil && (flag == nil || *flag)
}

// === Detection ===

type outfitDetectArgs struct {
	Image             string    `json:"image"`
	Labels            labelList `json:"labels"`
	Threshold         *float64  `json:"threshold"`
	IoUThreshold      *float64  `json:"iou_threshold"`
	PolygonRefinement *bool     `json:"polygon_refinement"`
	Save              *bool     `json:"save"`
}

type savedFiles struct {
	JSON  string `json:"json"`
	Image string `json:"image,omitempty"`
}

type detectResponse struct {
	RunID           string               `json:"run_id,omitempty"`
	InputType       imaging.SourceKind   `json:"input_type"`
	ImageSource     string               `json:"image_source"`
	Status          string               `json:"status"`
	NumPersons      int                  `json:"num_persons"`
	TotalDetections int                  `json:"total_detections"`
	Results         []association.Record `json:"results"`
	Unassigned      []association.Item   `json:"unassigned,omitempty"`
	SavedFiles      *savedFiles          `json:"saved_files,omitempty"`
}

func (s *Server) handleOutfitDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	const tool = "outfit_detect"

	var a outfitDetectArgs
	if err := decodeArgs(tool, args, &a); err != nil {
		return nil, err
	}

	opts := s.baseOptions()
	if len(a.Labels) > 0 {
		opts.Labels = a.Labels
	}
	if a.Threshold != nil {
		opts.Threshold = *a.Threshold
	}
	if a.IoUThreshold != nil {
		opts.IoUThreshold = *a.IoUThreshold
	}
	if a.PolygonRefinement != nil {
		opts.PolygonRefinement = *a.PolygonRefinement
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img, src, err := s.loadImage(ctx, tool, a.Image)
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Run(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	resp := &detectResponse{
		InputType:       src.Kind,
		ImageSource:     src.Input,
		Status:          statusCompleted,
		NumPersons:      res.NumPersons,
		TotalDetections: res.TotalDetections,
		Results:         res.Persons,
		Unassigned:      res.Unassigned,
	}

	if s.shouldSave(a.Save) {
		run := &store.Run{
			RunID:           uuid.New().String(),
			Tool:            "detection",
			ImageSource:     src.Input,
			NumPersons:      res.NumPersons,
			TotalDetections: res.TotalDetections,
		}
		s.store.Assign(run, true)
		resp.RunID = run.RunID
		resp.SavedFiles = &savedFiles{JSON: run.ResultFile, Image: run.AnnotatedFile}
		if err := s.store.Save(run, resp, imaging.Annotate(img, res.Detections)); err != nil {
			return nil, &pipeline.Error{Kind: pipeline.KindStore, Op: tool, Err: err}
		}
	}

	return resp, nil
}

// === Segmentation ===

type outfitSegmentArgs struct {
	Image             string    `json:"image"`
	Labels            labelList `json:"labels"`
	Threshold         *float64  `json:"threshold"`
	PolygonRefinement *bool     `json:"polygon_refinement"`
	Save              *bool     `json:"save"`
}

type segmentDetection struct {
	Label   string               `json:"label"`
	Score   float64              `json:"score"`
	Box     geometry.BoundingBox `json:"box"`
	Polygon [][2]int             `json:"polygon"`
	Color   *imaging.ColorResult `json:"color,omitempty"`
}

type segmentResponse struct {
	RunID         string             `json:"run_id,omitempty"`
	ImageSource   string             `json:"image_source"`
	Status        string             `json:"status"`
	NumDetections int                `json:"num_detections"`
	Detections    []segmentDetection `json:"detections"`
	SavedFile     string             `json:"saved_file,omitempty"`
}

func (s *Server) handleOutfitSegment(ctx context.Context, args json.RawMessage) (interface{}, error) {
	const tool = "outfit_segment"

	var a outfitSegmentArgs
	if err := decodeArgs(tool, args, &a); err != nil {
		return nil, err
	}
	if len(a.Labels) == 0 {
		return nil, pipeline.Errorf(pipeline.KindInvalidInput, tool, "labels are required")
	}
	if s.pipeline.Segmenter == nil {
		return nil, pipeline.Errorf(pipeline.KindSegmenter, tool, "segmentation is not configured")
	}

	opts := s.baseOptions()
	opts.Labels = a.Labels
	opts.Segment = true
	if a.Threshold != nil {
		opts.Threshold = *a.Threshold
	}
	if a.PolygonRefinement != nil {
		opts.PolygonRefinement = *a.PolygonRefinement
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img, src, err := s.loadImage(ctx, tool, a.Image)
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Run(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	dets := make([]segmentDetection, 0, len(res.Detections))
	for _, d := range res.Detections {
		dets = append(dets, describeSegment(img, d))
	}
	resp := &segmentResponse{
		ImageSource:   src.Input,
		Status:        statusCompleted,
		NumDetections: len(dets),
		Detections:    dets,
	}

	if s.shouldSave(a.Save) {
		run := &store.Run{
			RunID:           uuid.New().String(),
			Tool:            "segmentation",
			ImageSource:     src.Input,
			NumPersons:      res.NumPersons,
			TotalDetections: res.TotalDetections,
		}
		s.store.Assign(run, true)
		resp.RunID = run.RunID
		resp.SavedFile = run.AnnotatedFile
		if err := s.store.Save(run, resp, imaging.Annotate(img, res.Detections)); err != nil {
			return nil, &pipeline.Error{Kind: pipeline.KindStore, Op: tool, Err: err}
		}
	}

	return resp, nil
}

func describeSegment(img image.Image, d detection.Detection) segmentDetection {
	out := segmentDetection{
		Label:   d.Label,
		Score:   geometry.Round4(d.Score),
		Box:     d.Box,
		Polygon: [][2]int{},
	}
	if d.Mask == nil {
		out.Color = imaging.DominantColor(img, nil, d.Box.Rect())
		return out
	}
	if poly, err := mask.ToPolygon(d.Mask); err == nil {
		out.Polygon = poly.Pairs()
	} else if !errors.Is(err, mask.ErrEmptyMask) {
		monitoring.Logf("polygon for %s: %v", d.Label, err)
	}
	out.Color = imaging.DominantColor(img, d.Mask, d.Box.Rect())
	return out
}

// === Crop ===

type outfitCropArgs struct {
	Image   string               `json:"image"`
	Box     geometry.BoundingBox `json:"box"`
	Padding int                  `json:"padding"`
	MaxSide *int                 `json:"max_side"`
}

func (s *Server) handleOutfitCrop(ctx context.Context, args json.RawMessage) (interface{}, error) {
	const tool = "outfit_crop"

	var a outfitCropArgs
	if err := decodeArgs(tool, args, &a); err != nil {
		return nil, err
	}
	if !a.Box.Valid() {
		return nil, pipeline.Errorf(pipeline.KindInvalidInput, tool, "invalid box %v", a.Box)
	}
	if a.Padding < 0 {
		return nil, pipeline.Errorf(pipeline.KindInvalidInput, tool, "padding must not be negative")
	}
	maxSide := defaultCropSide
	if a.MaxSide != nil {
		maxSide = *a.MaxSide
	}

	img, _, err := s.loadImage(ctx, tool, a.Image)
	if err != nil {
		return nil, err
	}

	crop, err := imaging.CropBox(img, a.Box, a.Padding, maxSide)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindInvalidInput, Op: tool, Err: err}
	}
	return crop, nil
}

// === Saved results ===

type resultsListArgs struct {
	Limit int `json:"limit"`
}

type resultsListResponse struct {
	Count int         `json:"count"`
	Runs  []store.Run `json:"runs"`
}

func (s *Server) requireStore(tool string) error {
	if s.store == nil {
		return pipeline.Errorf(pipeline.KindStore, tool, "result store is not configured")
	}
	return nil
}

func (s *Server) handleResultsList(args json.RawMessage) (interface{}, error) {
	const tool = "outfit_results_list"

	var a resultsListArgs
	if err := decodeArgs(tool, args, &a); err != nil {
		return nil, err
	}
	if err := s.requireStore(tool); err != nil {
		return nil, err
	}

	runs, err := s.store.List(a.Limit)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindStore, Op: tool, Err: err}
	}
	return &resultsListResponse{Count: len(runs), Runs: runs}, nil
}

type resultGetArgs struct {
	RunID    string `json:"run_id"`
	Filename string `json:"filename"`
}

type resultGetResponse struct {
	Run    *store.Run      `json:"run"`
	Result json.RawMessage `json:"result"`
}

func (s *Server) handleResultGet(args json.RawMessage) (interface{}, error) {
	const tool = "outfit_result_get"

	var a resultGetArgs
	if err := decodeArgs(tool, args, &a); err != nil {
		return nil, err
	}
	ref := a.RunID
	if ref == "" {
		ref = a.Filename
	}
	if ref == "" {
		return nil, pipeline.Errorf(pipeline.KindInvalidInput, tool, "run_id or filename is required")
	}
	if err := s.requireStore(tool); err != nil {
		return nil, err
	}

	run, data, err := s.store.Get(ref)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindStore, Op: tool, Err: err}
	}
	return &resultGetResponse{Run: run, Result: data}, nil
}

// === Status ===

type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

type statusResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Runtime runtimeStatus `json:"runtime"`
	Memory  memoryStatus  `json:"memory"`
	Models  modelStatus   `json:"models"`
	Storage storageStatus `json:"storage"`
}

type runtimeStatus struct {
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Arch       string `json:"arch"`
	NumCPU     int    `json:"num_cpu"`
	Goroutines int    `json:"goroutines"`
}

type memoryStatus struct {
	AllocMB float64 `json:"alloc_mb"`
	SysMB   float64 `json:"sys_mb"`
	NumGC   uint32  `json:"num_gc"`
}

type modelStatus struct {
	DetectorURL       string `json:"detector_url"`
	DetectorModel     string `json:"detector_model"`
	DetectorReachable bool   `json:"detector_reachable"`
	DetectorError     string `json:"detector_error,omitempty"`
	SegmenterEnabled  bool   `json:"segmenter_enabled"`
	Device            string `json:"device"`
}

type storageStatus struct {
	ResultsDir    string `json:"results_dir,omitempty"`
	SavedRuns     int    `json:"saved_runs"`
	CachedImages  int    `json:"cached_images"`
	SchemaVersion uint   `json:"schema_version,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context) (interface{}, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	device := "CPU"
	if s.cfg.UseCUDA {
		device = "CUDA"
	}

	resp := &statusResponse{
		Status:  "ok",
		Version: s.version,
		Runtime: runtimeStatus{
			GoVersion:  runtime.Version(),
			Platform:   runtime.GOOS,
			Arch:       runtime.GOARCH,
			NumCPU:     runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
		},
		Memory: memoryStatus{
			AllocMB: geometry.Round4(float64(mem.Alloc) / (1 << 20)),
			SysMB:   geometry.Round4(float64(mem.Sys) / (1 << 20)),
			NumGC:   mem.NumGC,
		},
		Models: modelStatus{
			DetectorURL:      s.cfg.DetectorURL,
			DetectorModel:    s.cfg.DetectorModel,
			SegmenterEnabled: s.pipeline.Segmenter != nil,
			Device:           device,
		},
		Storage: storageStatus{
			CachedImages: s.loader.Cache.Len(),
		},
	}

	if hc, ok := s.pipeline.Detector.(healthChecker); ok {
		hctx, cancel := context.WithTimeout(ctx, healthCheckLimit)
		err := hc.CheckHealth(hctx)
		cancel()
		resp.Models.DetectorReachable = err == nil
		if err != nil {
			resp.Models.DetectorError = err.Error()
		}
	}

	if s.store != nil {
		resp.Storage.ResultsDir = s.store.Dir()
		if n, err := s.store.Count(); err == nil {
			resp.Storage.SavedRuns = n
		}
		if v, err := s.store.SchemaVersion(); err == nil {
			resp.Storage.SchemaVersion = v
		}
	}

	return resp, nil
}
