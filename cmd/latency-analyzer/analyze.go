package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/report"
)

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	details := fs.Bool("details", false, "Also write one CSV row per exchange")
	eventDB := fs.String("event-db", "", "Agent database holding the event log (must exist when set)")
	outputDir := fs.String("output-dir", "", "Directory for CSV reports (default: next to the capture)")
	backend := fs.String("backend", "", "Capture backend: tshark or native")
	quiet := fs.Bool("quiet", false, "Skip the console summary")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: latency-analyzer analyze <capture> [flags]")
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return usageError{err}
	}
	if len(positional) != 1 {
		fs.Usage()
		return usageError{errors.New("exactly one capture file is required")}
	}

	cfg, logger, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if *backend != "" {
		cfg.Capture.Backend = *backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	svc, closePublisher, err := analysisService(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := svc.Analyze(ctx, models.AnalysisRequest{
		CapturePath:  positional[0],
		EventLogPath: *eventDB,
		Details:      *details,
	})
	if err != nil {
		return err
	}

	if cfg.Report.Console && !*quiet {
		return report.RenderResult(os.Stdout, result)
	}
	return nil
}
