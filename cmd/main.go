package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"graph-loader/internal/config"
	"graph-loader/internal/database"
	"graph-loader/internal/mapping"
	"graph-loader/internal/pipeline"
	"graph-loader/pkg/types"

	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (default: config.yaml)")
	mode       = flag.String("mode", "full", "Run mode: full, sample, analyze, schema or validate")
	loadType   = flag.String("load-type", "both", "What to load: entities, relationships or both")
	showInfo   = flag.Bool("info", false, "Show working directory and project directory information")
	projectDir string // Set at build time with -ldflags
)

func main() {
	flag.Parse()

	// Handle --info flag
	if *showInfo {
		displayInfo()
		return
	}

	logrus.Info("Starting Graph Loader")

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging with config
	setupLogging(cfg)

	filterLoadType(cfg, *loadType)
	logrus.Infof("Configuration loaded: %d entity files, %d relationship files",
		len(cfg.Entities), len(cfg.Relationships))

	logger := logrus.NewEntry(logrus.StandardLogger())

	registry, err := mapping.FromConfig(cfg)
	if err != nil {
		logrus.Fatalf("Invalid field mappings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "analyze":
		// reads the files only, no database needed
		p := pipeline.New(cfg, nil, registry, logger)
		infos, err := p.Analyze()
		for _, info := range infos {
			fmt.Printf("FILE path=%s size=%d estimated_rows=%d columns=%d\n",
				info.Path, info.SizeBytes, info.EstimatedRows, len(info.Columns))
		}
		if err != nil {
			logrus.Fatalf("Analysis failed: %v", err)
		}
		return
	case "sample":
		cfg, err = pipeline.WriteSamples(cfg, logger)
		if err != nil {
			logrus.Fatalf("Failed to write sample files: %v", err)
		}
	case "full", "schema", "validate":
	default:
		logrus.Fatalf("Unknown mode %q", *mode)
	}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseConnection(db)

	if *mode == "validate" {
		// post-load check: tables already exist, counts against file estimates
		p := pipeline.New(cfg, nil, registry, logger)
		results, err := p.Validate(func(table string) (int64, error) {
			return database.CountRows(db, table)
		})
		failed := 0
		for _, res := range results {
			fmt.Printf("VALIDATE name=%s table=%s rows=%d estimated=%d ok=%t\n",
				res.Name, res.Table, res.Rows, res.EstimatedRows, res.OK)
			if !res.OK {
				failed++
			}
		}
		if err != nil {
			logrus.Fatalf("Validation failed: %v", err)
		}
		if failed > 0 {
			logrus.Errorf("Validation found %d empty tables", failed)
			os.Exit(1)
		}
		logrus.Info("Validation passed")
		return
	}

	for _, spec := range append(append([]types.FileSpec(nil), cfg.Entities...), cfg.Relationships...) {
		if !spec.Enabled {
			continue
		}
		schema, err := registry.Lookup(spec.Name)
		if err != nil {
			logrus.Fatalf("Missing schema for %s: %v", spec.Name, err)
		}
		if err := database.EnsureSchema(db, schema, logger); err != nil {
			logrus.Fatalf("Failed to prepare schema: %v", err)
		}
	}

	if *mode == "schema" {
		logrus.Info("Schema setup complete")
		return
	}

	sink := database.NewSQLSink(db, registry, logger)
	p := pipeline.New(cfg, sink, registry, logger)

	result, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logrus.Errorf("Load interrupted: %v", err)
		} else {
			logrus.Errorf("Load failed: %v", err)
		}
		os.Exit(1)
	}
	if result.Failed > 0 {
		logrus.Warnf("Load finished with %d failed files", result.Failed)
		os.Exit(1)
	}

	logrus.Info("Graph Loader completed successfully")
}

func filterLoadType(cfg *types.Config, loadType string) {
	switch loadType {
	case "entities":
		cfg.Relationships = nil
	case "relationships":
		cfg.Entities = nil
	case "both", "":
	default:
		logrus.Fatalf("Unknown load type %q", loadType)
	}
}

func displayInfo() {
	workingDir, err := os.Getwd()
	if err != nil {
		fmt.Printf("Error getting working directory: %v\n", err)
		return
	}

	fmt.Printf("working_dir: %s\n", workingDir)
	fmt.Printf("project_dir: %s\n", projectDir)
}

func setupLogging(config *types.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Set log level from config or default to Info
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = config.Processing.LogLevel
		if level == "" {
			level = "info"
		}
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', defaulting to 'info'", level)
		logLevel = logrus.InfoLevel
	}

	logrus.SetLevel(logLevel)

	// Configure log output
	logPath := config.Processing.LogPath
	if logPath == "" {
		logPath = "logs/graph-loader.log" // Default log file
		logrus.Infof("Using default log path: %s", logPath)
	}

	// Resolve relative paths to working directory
	if !filepath.IsAbs(logPath) {
		wd, err := os.Getwd()
		if err != nil {
			logrus.Warnf("Failed to get working directory: %v, logging to stdout", err)
			return
		}
		logPath = filepath.Join(wd, logPath)
	}

	// Create log directory if it doesn't exist
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logrus.Warnf("Failed to create log directory %s: %v, logging to stdout", logDir, err)
		return
	}

	// Open log file
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.Warnf("Failed to open log file %s: %v, logging to stdout", logPath, err)
		return
	}

	// Structured logs go to the file so the spinner and PROGRESS lines own
	// the terminal streams.
	logrus.SetOutput(logFile)
	log.SetOutput(logFile)
	logrus.Infof("Logging to file: %s", logPath)
}
