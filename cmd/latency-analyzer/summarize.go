package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/report"
	"github.com/miradorstack/mirador-latency/internal/services"
)

func runSummarize(args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	day := fs.String("day", "", "Target day folder (YYYY-MM-DD)")
	testName := fs.String("test-name", "", "Test/scenario prefix")
	slots := fs.String("slots", "", "Comma-separated run slots to include (default: 1,2,3)")
	baseDir := fs.String("base-dir", "", "Base captures directory")
	network := fs.String("network", "", "Network subfolder under the base directory")
	suffixes := fs.String("suffixes", "", "Comma-separated summary suffixes (default: configured targets)")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	if *day == "" || *testName == "" {
		fs.Usage()
		return usageError{fmt.Errorf("-day and -test-name are required")}
	}

	parsedSlots, err := services.ParseSlots(*slots)
	if err != nil {
		return usageError{err}
	}

	cfg, logger, err := bootstrap(*configPath)
	if err != nil {
		return err
	}

	req := models.RunsRequest{
		Day:      *day,
		TestName: *testName,
		Slots:    parsedSlots,
		BaseDir:  *baseDir,
		Network:  *network,
	}
	for _, s := range strings.Split(*suffixes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			req.Suffixes = append(req.Suffixes, s)
		}
	}

	averages, err := services.NewRunsService(cfg.Runs, logger).Summarize(context.Background(), req)
	if err != nil {
		return err
	}
	return report.RenderAverages(os.Stdout, averages)
}
