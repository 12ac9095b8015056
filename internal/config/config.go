// Package config loads the server configuration from an optional JSON file
// and OUTFIT_MCP_* environment variables.
//
// Precedence, lowest first: built-in defaults, the JSON file named by
// OUTFIT_MCP_CONFIG, then individual environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "OUTFIT_MCP_"

// maxFileSize caps the size of a JSON config file.
const maxFileSize = 1 * 1024 * 1024

// Config holds every runtime setting of the server.
type Config struct {
	// LogLevel is "info" or "debug".
	LogLevel string `json:"log_level"`

	// DetectorURL is the zero-shot detection inference endpoint.
	DetectorURL string `json:"detector_url"`

	// DetectorModel is passed to the inference service as the model id.
	DetectorModel string `json:"detector_model"`

	// DetectorTimeout bounds a single detection request, e.g. "60s".
	DetectorTimeout string `json:"detector_timeout"`

	// SAM2EncoderPath and SAM2DecoderPath locate the ONNX segmenter models.
	// Segmentation is disabled when either is empty.
	SAM2EncoderPath string `json:"sam2_encoder_path"`
	SAM2DecoderPath string `json:"sam2_decoder_path"`

	// OnnxLibraryPath is the onnxruntime shared library.
	OnnxLibraryPath string `json:"onnx_library_path"`

	// UseCUDA enables the CUDA execution provider.
	UseCUDA bool `json:"use_cuda"`

	// Threads is the intra-op thread count for ONNX sessions, 0 for default.
	Threads int `json:"threads"`

	// ResultsDir receives JSON and PNG artifacts of saved runs.
	ResultsDir string `json:"results_dir"`

	// DatabasePath is the SQLite run index. Defaults to ResultsDir/runs.db.
	DatabasePath string `json:"database_path"`

	// DefaultThreshold is the detection score threshold when a request omits it.
	DefaultThreshold float64 `json:"default_threshold"`

	// ItemIoUThreshold is the overlap above which item detections are merged.
	ItemIoUThreshold float64 `json:"item_iou_threshold"`

	// FetchTimeout bounds image downloads, e.g. "30s".
	FetchTimeout string `json:"fetch_timeout"`

	// S3 settings for s3:// image sources.
	S3Endpoint  string `json:"s3_endpoint"`
	S3Region    string `json:"s3_region"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
	S3UseSSL    bool   `json:"s3_use_ssl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		DetectorURL:      "http://localhost:5000/detect",
		DetectorModel:    "IDEA-Research/grounding-dino-tiny",
		DetectorTimeout:  "60s",
		OnnxLibraryPath:  defaultOnnxLibrary(),
		ResultsDir:       "results",
		DefaultThreshold: 0.3,
		ItemIoUThreshold: 0.5,
		FetchTimeout:     "30s",
		S3Endpoint:       "s3.amazonaws.com",
		S3Region:         "us-east-1",
		S3UseSSL:         true,
	}
}

// Load builds the configuration from defaults, the optional file named by
// OUTFIT_MCP_CONFIG, and the environment.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a JSON config file over the defaults without consulting the
// environment. Fields omitted from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DetectorURL = getEnv("DETECTOR_URL", c.DetectorURL)
	c.DetectorModel = getEnv("DETECTOR_MODEL", c.DetectorModel)
	c.DetectorTimeout = getEnv("DETECTOR_TIMEOUT", c.DetectorTimeout)
	c.SAM2EncoderPath = getEnv("SAM2_ENCODER", c.SAM2EncoderPath)
	c.SAM2DecoderPath = getEnv("SAM2_DECODER", c.SAM2DecoderPath)
	c.OnnxLibraryPath = getEnv("ONNX_LIBRARY", c.OnnxLibraryPath)
	c.ResultsDir = getEnv("RESULTS_DIR", c.ResultsDir)
	c.DatabasePath = getEnv("DATABASE", c.DatabasePath)
	c.FetchTimeout = getEnv("FETCH_TIMEOUT", c.FetchTimeout)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)

	var err error
	if c.UseCUDA, err = getEnvBool("USE_CUDA", c.UseCUDA); err != nil {
		return err
	}
	if c.S3UseSSL, err = getEnvBool("S3_USE_SSL", c.S3UseSSL); err != nil {
		return err
	}
	if c.Threads, err = getEnvInt("THREADS", c.Threads); err != nil {
		return err
	}
	if c.DefaultThreshold, err = getEnvFloat("THRESHOLD", c.DefaultThreshold); err != nil {
		return err
	}
	if c.ItemIoUThreshold, err = getEnvFloat("ITEM_IOU_THRESHOLD", c.ItemIoUThreshold); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "info", "debug":
	default:
		return fmt.Errorf("log_level must be info or debug, got %q", c.LogLevel)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("default_threshold must be between 0 and 1, got %f", c.DefaultThreshold)
	}
	if c.ItemIoUThreshold < 0 || c.ItemIoUThreshold > 1 {
		return fmt.Errorf("item_iou_threshold must be between 0 and 1, got %f", c.ItemIoUThreshold)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", c.Threads)
	}
	if _, err := time.ParseDuration(c.DetectorTimeout); err != nil {
		return fmt.Errorf("invalid detector_timeout '%s': %w", c.DetectorTimeout, err)
	}
	if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
		return fmt.Errorf("invalid fetch_timeout '%s': %w", c.FetchTimeout, err)
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results_dir must not be empty")
	}
	return nil
}

// Debug reports whether debug logging is requested.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
}

// SegmenterEnabled reports whether both SAM2 model paths are set.
func (c *Config) SegmenterEnabled() bool {
	return c.SAM2EncoderPath != "" && c.SAM2DecoderPath != ""
}

// GetDetectorTimeout returns DetectorTimeout as a duration. Validate has
// already checked that it parses.
func (c *Config) GetDetectorTimeout() time.Duration {
	d, _ := time.ParseDuration(c.DetectorTimeout)
	return d
}

// GetFetchTimeout returns FetchTimeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, _ := time.ParseDuration(c.FetchTimeout)
	return d
}

// GetDatabasePath returns DatabasePath, or runs.db inside ResultsDir when unset.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.ResultsDir, "runs.db")
}

func defaultOnnxLibrary() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	return "libonnxruntime.so"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return f, nil
}
