package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func imageProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Image source: absolute file path, http(s) URL, Pinterest pin URL, or s3://bucket/key",
	}
}

func labelsProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func numberProperty(description string, def float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"minimum":     0,
		"maximum":     1,
		"description": description,
		"default":     def,
	}
}

func boolProperty(description string, def bool) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
		"default":     def,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: "outfit_detect",
			Description: "Detect people and the garments they wear. Returns one record per person with the items " +
				"whose boxes lie inside the person box. Boxes are normalized [x, y, width, height] in 0..1.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image":              imageProperty(),
					"labels":             labelsProperty("Garment labels to look for, e.g. [\"shirt\", \"shoe\"]. A comma separated string is also accepted. Defaults to a built-in clothing list; \"person\" is always added."),
					"threshold":          numberProperty("Minimum detection score", 0.3),
					"iou_threshold":      numberProperty("Overlap above which item boxes are merged", 0.5),
					"polygon_refinement": boolProperty("Smooth segmentation masks to their outer contour", true),
					"save":               boolProperty("Save the JSON result and an annotated image to the results directory", true),
				},
				"required": []string{"image"},
			},
		},
		{
			Name:        "outfit_segment",
			Description: "Detect and segment the given labels. Returns each detection with its box, mask outline polygon and dominant color. Requires the SAM2 segmenter.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image":              imageProperty(),
					"labels":             labelsProperty("Labels to segment"),
					"threshold":          numberProperty("Minimum detection score", 0.3),
					"polygon_refinement": boolProperty("Smooth segmentation masks to their outer contour", true),
					"save":               boolProperty("Save the JSON result and an annotated image to the results directory", true),
				},
				"required": []string{"image", "labels"},
			},
		},
		{
			Name:        "outfit_crop",
			Description: "Crop a detection box from an image and return it as a PNG image, e.g. to look closely at one garment.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image": imageProperty(),
					"box": map[string]interface{}{
						"type":        "object",
						"description": "Pixel box as returned by outfit_segment",
						"properties": map[string]interface{}{
							"xmin": map[string]interface{}{"type": "number"},
							"ymin": map[string]interface{}{"type": "number"},
							"xmax": map[string]interface{}{"type": "number"},
							"ymax": map[string]interface{}{"type": "number"},
						},
						"required": []string{"xmin", "ymin", "xmax", "ymax"},
					},
					"padding": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels added on every side. Default 0",
					},
					"max_side": map[string]interface{}{
						"type":        "integer",
						"description": "Downscale so neither side exceeds this. Default 1024",
					},
				},
				"required": []string{"image", "box"},
			},
		},
		{
			Name:        "outfit_results_list",
			Description: "List saved runs, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of runs. Default 20",
					},
				},
			},
		},
		{
			Name:        "outfit_result_get",
			Description: "Fetch a saved run by run_id or by its JSON or PNG file name.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id":   map[string]interface{}{"type": "string"},
					"filename": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "outfit_status",
			Description: "Report server health: runtime, memory, model configuration and detector reachability.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
