package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/kdimtricp/vmood/internal/analysis"
	"github.com/kdimtricp/vmood/internal/classifier"
	"github.com/kdimtricp/vmood/internal/config"
	"github.com/kdimtricp/vmood/internal/database"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
	"github.com/kdimtricp/vmood/internal/storage"
	"github.com/kdimtricp/vmood/internal/video"
)

type output struct {
	AnalysisID string            `json:"analysis_id,omitempty"`
	Results    []string          `json:"results"`
	Segments   []emotion.Segment `json:"segments,omitempty"`
	Sampled    int               `json:"frames_sampled"`
	Failed     int               `json:"frames_failed"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		file     = flag.String("file", "", "Local video file to analyze")
		id       = flag.String("id", "", "Content id to fetch from the gateway")
		stride   = flag.Int("stride", cfg.Engine.Stride, "Classify every n-th frame")
		window   = flag.Int("window", cfg.Engine.Window, "Sampled frames per label (0 = whole video)")
		divisor  = flag.Int("divisor", cfg.Engine.Divisor, "Neutral suppression divisor")
		workers  = flag.Int("workers", cfg.Engine.Workers, "Concurrent classifier calls per window")
		majority = flag.Bool("majority", false, "Single majority label over every 4th frame")
		store    = flag.Bool("store", false, "Persist the analysis to the database")
		verbose  = flag.Bool("v", false, "Include per-window counts in the output")
	)
	flag.Parse()

	logger := cfg.NewLogger()
	logger.SetOutput(os.Stderr)

	if (*file == "") == (*id == "") {
		logger.Fatal("Please provide exactly one of -file or -id")
	}

	engineCfg := emotion.Config{
		Stride:          *stride,
		Window:          *window,
		Divisor:         *divisor,
		SuppressNeutral: cfg.Engine.SuppressNeutral,
		Workers:         *workers,
	}
	if *majority {
		engineCfg = emotion.Majority()
		engineCfg.Workers = *workers
	}

	cls, err := classifier.New(&cfg.Classifier, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize classifier")
	}
	engine, err := emotion.NewEngine(cls, engineCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("invalid engine settings")
	}
	extractor, err := video.NewExtractor(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize frame extractor")
	}

	deps := analysis.Deps{
		Engine: engine,
		Open:   extractor.Opener(cfg.FrameSize),
		Logger: logger,
	}
	if *id != "" {
		localStorage, err := storage.NewLocalStorage(cfg.UploadDir)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize storage")
		}
		deps.Files = localStorage
		deps.Fetcher = gateway.NewPinataClient(cfg.Pinata)
	}
	if *store {
		db, err := database.NewDB(cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		deps.Store = database.NewAnalysisRepo(db)
	}

	service, err := analysis.NewService(deps)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize analysis service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var report *analysis.Report
	if *file != "" {
		report, err = service.AnalyzeFile(ctx, *file)
	} else {
		report, err = service.Analyze(ctx, *id)
	}
	if err != nil {
		logger.WithError(err).Fatal("analysis failed")
	}

	out := output{
		AnalysisID: report.AnalysisID,
		Results:    emotion.Strings(report.Result.Labels()),
		Sampled:    report.Result.Sampled,
		Failed:     report.Result.Failed,
	}
	if *verbose {
		out.Segments = report.Result.Segments
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Fatal("failed to write output")
	}
}
