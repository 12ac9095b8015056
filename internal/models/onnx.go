package models

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxConfig holds the runtime settings shared by every ONNX session.
// Field names match SAM2Config so it can be filled with CopyProperties.
type onnxConfig struct {
	SessionOptions *ort.SessionOptions

	OnnxLibraryPath string
	UseCUDA         bool
	NumThreads      int
}

var (
	initErr  error
	initOnce sync.Once
)

// newSessionOptions initializes the ONNX runtime once per process and builds
// session options from cfg.
func (cfg *onnxConfig) newSessionOptions() error {
	if cfg.OnnxLibraryPath == "" {
		return fmt.Errorf("onnxruntime library path is empty")
	}
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(cfg.OnnxLibraryPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return fmt.Errorf("initialize onnxruntime: %w", initErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return err
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			options.Destroy()
			return err
		}
	}

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return fmt.Errorf("append CUDA execution provider: %w", err)
		}
	}
	cfg.SessionOptions = options
	return nil
}
