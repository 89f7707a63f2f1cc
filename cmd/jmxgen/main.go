package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/export"
	"github.com/mqtap/mqtap/internal/loadtest"
	"github.com/mqtap/mqtap/internal/logger"
	"github.com/mqtap/mqtap/internal/rewrite"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Exported events file (CSV, JSON lines, or Parquet)")
		planName   = flag.String("name", "", "Plan name (defaults to the input file name)")
		outputDir  = flag.String("output-dir", "", "Output directory override")
		targetURL  = flag.String("target", "", "Target URL override")
		threads    = flag.Int("threads", 0, "Thread count override")
		rampUp     = flag.Int("ramp-up", 0, "Ramp-up seconds override")
		loops      = flag.Int("loops", 0, "Loop count override")
		limit      = flag.Int("limit", 0, "Maximum events to include, 0 for all")
		reprocess  = flag.Bool("reprocess", false, "Re-run raw bodies through the current replacement rules")
		dryRun     = flag.Bool("dry-run", false, "Write the plan to stdout instead of a file")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input events.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input events.parquet --threads 50 --loops 10\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input events.csv --reprocess --dry-run\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting mqtap plan generator",
		zap.String("input", *inputFile),
		zap.Bool("reprocess", *reprocess))

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("input", *inputFile))
	}

	// Read the exported events
	exporter := export.New(log.WithComponent("export").Logger)
	records, err := exporter.Read(*inputFile)
	if err != nil {
		log.Fatal("Failed to read input file", zap.Error(err))
	}
	if len(records) == 0 {
		log.Fatal("Input file contains no events", zap.String("input", *inputFile))
	}

	events := export.ToEvents(records)
	if *limit > 0 && *limit < len(events) {
		events = events[:*limit]
	}

	// Optionally re-run raw bodies through the current rules
	if *reprocess {
		engine := rewrite.New(cfg.Replace, log.WithComponent("rewrite"))
		for i := range events {
			body := events[i].RawBody
			if body == "" {
				body = events[i].Body
			}
			result := engine.Process(body, rewrite.LooksLikeJSON(body))
			events[i].Body = result.Output
			events[i].Applied = result.Applied
		}
	}

	// Apply command line overrides
	if *outputDir != "" {
		cfg.LoadTest.OutputDir = *outputDir
	}
	if *targetURL != "" {
		cfg.LoadTest.TargetURL = *targetURL
	}
	if *threads > 0 {
		cfg.LoadTest.Threads = *threads
	}
	if *rampUp > 0 {
		cfg.LoadTest.RampUpSeconds = *rampUp
	}
	if *loops > 0 {
		cfg.LoadTest.LoopCount = *loops
	}

	name := *planName
	if name == "" {
		base := filepath.Base(*inputFile)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	generator := loadtest.New(cfg.LoadTest, log.WithComponent("loadtest").Logger)

	if *dryRun {
		data, err := generator.Generate(name, events)
		if err != nil {
			log.Fatal("Failed to generate plan", zap.Error(err))
		}
		os.Stdout.Write(data)
		return
	}

	path, err := generator.WritePlan(name, events)
	if err != nil {
		log.Fatal("Failed to write plan", zap.Error(err))
	}

	log.Info("Plan generation completed",
		zap.String("path", path),
		zap.Int("events", len(events)),
		zap.Int("threads", cfg.LoadTest.Threads),
		zap.Int("loops", cfg.LoadTest.LoopCount))
}
