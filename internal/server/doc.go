// Package server implements the MCP (Model Context Protocol) server for outfit
// detection.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - outfit_detect: Detect people and associate garments with each person
//   - outfit_segment: Detect and segment labels, with mask polygons and colors
//   - outfit_crop: Return a detection box as a PNG image block
//   - outfit_results_list: List saved runs, newest first
//   - outfit_result_get: Fetch a saved run by ID or file name
//   - outfit_status: Runtime, memory and model health
//
// Images are given as a local path, an http(s) URL, a Pinterest pin URL or an
// s3://bucket/key URL.
//
// # Errors
//
// A failing tool call returns a JSON-RPC error with code -32000 whose data is
//
//	{"kind": "image_load", "message": "..."}
//
// where kind is one of image_load, invalid_dimension, detector, segmenter,
// invalid_input or store.
//
// # Concurrency
//
// Requests are processed one at a time, in the order they are read.
package server
