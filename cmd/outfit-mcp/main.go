package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/outfit-tools-mcp/internal/config"
	"github.com/ironsheep/outfit-tools-mcp/internal/imaging"
	"github.com/ironsheep/outfit-tools-mcp/internal/models"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
	"github.com/ironsheep/outfit-tools-mcp/internal/pipeline"
	"github.com/ironsheep/outfit-tools-mcp/internal/server"
	"github.com/ironsheep/outfit-tools-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("outfit-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	monitoring.SetDebug(cfg.Debug())
	monitoring.Debugf("Outfit MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector := models.NewHTTPDetector(cfg.DetectorURL, cfg.DetectorModel, cfg.GetDetectorTimeout())

	var segmenter pipeline.Segmenter
	if cfg.SegmenterEnabled() {
		sam2, err := models.NewSAM2Segmenter(models.SAM2Config{
			OnnxLibraryPath: cfg.OnnxLibraryPath,
			EncoderPath:     cfg.SAM2EncoderPath,
			DecoderPath:     cfg.SAM2DecoderPath,
			UseCUDA:         cfg.UseCUDA,
			NumThreads:      cfg.Threads,
		})
		if err != nil {
			log.Printf("SAM2 segmenter disabled: %v", err)
		} else {
			defer sam2.Close()
			segmenter = sam2
		}
	}

	var s3 imaging.ObjectGetter
	if cfg.S3Endpoint != "" {
		getter, err := imaging.NewS3Getter(imaging.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("S3 sources disabled: %v", err)
		} else {
			s3 = getter
		}
	}

	st, err := store.Open(cfg.ResultsDir, cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Result store error: %v", err)
	}
	defer st.Close()

	srv := server.New(server.Options{
		Config:   cfg,
		Pipeline: pipeline.New(detector, segmenter),
		Loader:   imaging.NewLoader(cfg.GetFetchTimeout(), s3),
		Store:    st,
		Version:  Version,
	})
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("outfit-tools-mcp - MCP server for outfit detection")
	fmt.Println()
	fmt.Println("Usage: outfit-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  OUTFIT_MCP_CONFIG=path.json          Optional JSON config file")
	fmt.Println("  OUTFIT_MCP_LOG_LEVEL=debug           Enable debug logging")
	fmt.Println("  OUTFIT_MCP_DETECTOR_URL=url          Zero-shot detection endpoint")
	fmt.Println("  OUTFIT_MCP_DETECTOR_MODEL=id         Detector model id")
	fmt.Println("  OUTFIT_MCP_SAM2_ENCODER=path         SAM2 encoder ONNX model")
	fmt.Println("  OUTFIT_MCP_SAM2_DECODER=path         SAM2 decoder ONNX model")
	fmt.Println("  OUTFIT_MCP_ONNX_LIBRARY=path         onnxruntime shared library")
	fmt.Println("  OUTFIT_MCP_USE_CUDA=true             Use the CUDA execution provider")
	fmt.Println("  OUTFIT_MCP_RESULTS_DIR=dir           Where saved runs are written")
	fmt.Println("  OUTFIT_MCP_S3_ACCESS_KEY/SECRET_KEY  Credentials for s3:// images")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
