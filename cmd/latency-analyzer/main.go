package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-latency/internal/config"
	"github.com/miradorstack/mirador-latency/internal/metrics"
	"github.com/miradorstack/mirador-latency/internal/publish"
	"github.com/miradorstack/mirador-latency/internal/services"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: latency-analyzer <command> [flags]

Commands:
  analyze <capture>   correlate one capture with the event log and write summaries
  summarize           average per-run summaries of one test day
  serve               run the gRPC analysis service

Run "latency-analyzer <command> -h" for command flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "summarize":
		err = runSummarize(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	code := exitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

// usageError marks bad command lines: unknown flags, missing arguments, invalid values.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

// exitCode maps a command result to the process status: 0 for success and -h, 2 for usage
// errors, 1 otherwise.
func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &usage):
		return 2
	default:
		return 1
	}
}

// parseInterspersed parses flags that may appear after positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// bootstrap loads configuration, builds the logger and registers metrics.
func bootstrap(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}
	return cfg, logger, nil
}

// analysisService wires the analysis service and an optional NATS publisher. The returned
// close func is never nil.
func analysisService(cfg *config.Config, logger *slog.Logger) (*services.AnalysisService, func(), error) {
	var opts []services.AnalysisOption
	closer := func() {}
	if cfg.Publish.Enabled && cfg.Publish.URL != "" {
		pub, err := publish.NewNATSPublisher(cfg.Publish.URL, cfg.Publish.Subject, cfg.Publish.Timeout, logger)
		if err != nil {
			logger.Warn("result publishing disabled", slog.Any("error", err))
		} else {
			opts = append(opts, services.WithPublisher(pub))
			closer = pub.Close
		}
	}

	svc, err := services.NewAnalysisService(cfg, logger, opts...)
	if err != nil {
		closer()
		return nil, func() {}, fmt.Errorf("load rule pack: %w", err)
	}
	return svc, closer, nil
}
