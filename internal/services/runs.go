package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-latency/internal/config"
	"github.com/miradorstack/mirador-latency/internal/engine"
	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/report"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// ErrInvalidRequest marks caller mistakes such as missing or malformed arguments.
var ErrInvalidRequest = errors.New("invalid request")

var defaultSlots = []string{"1", "2", "3"}

// ParseSlots splits a comma separated slot list. An empty list selects every slot.
func ParseSlots(raw string) ([]string, error) {
	var slots []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			slots = append(slots, part)
		}
	}
	if len(slots) == 0 {
		return append([]string(nil), defaultSlots...), nil
	}
	for _, slot := range slots {
		switch slot {
		case "1", "2", "3":
		default:
			return nil, fmt.Errorf("slot %q: use digits 1,2,3 separated by commas: %w", slot, ErrInvalidRequest)
		}
	}
	return slots, nil
}

// RunsService averages per-run summary CSVs of one test day.
type RunsService struct {
	defaults config.RunsConfig
	logger   *slog.Logger
}

// NewRunsService constructs the service; request fields left empty fall back to defaults.
func NewRunsService(defaults config.RunsConfig, logger *slog.Logger) *RunsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsService{defaults: defaults, logger: logger}
}

// Summarize averages the summaries of every suffix across the requested slots. Missing
// slots are reported on each average; a missing day directory is a setup error.
func (s *RunsService) Summarize(ctx context.Context, req models.RunsRequest) ([]models.RunsAverage, error) {
	req = s.withDefaults(req)
	if req.Day == "" || req.TestName == "" {
		return nil, fmt.Errorf("day and test name are required: %w", ErrInvalidRequest)
	}
	slots, err := ParseSlots(strings.Join(req.Slots, ","))
	if err != nil {
		return nil, err
	}
	req.Slots = slots

	dayDir := filepath.Join(req.BaseDir, req.Network, req.Day)
	if info, err := os.Stat(dayDir); err != nil || !info.IsDir() {
		return nil, utils.NewAppError("summarize", "day folder not found", fmt.Errorf("%s: %w", dayDir, utils.ErrInputNotFound))
	}

	averages := make([]models.RunsAverage, 0, len(req.Suffixes))
	for _, suffix := range req.Suffixes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		avg, err := s.averageSuffix(dayDir, req, suffix)
		if err != nil {
			return nil, err
		}
		averages = append(averages, avg)
	}
	return averages, nil
}

func (s *RunsService) withDefaults(req models.RunsRequest) models.RunsRequest {
	if req.BaseDir == "" {
		req.BaseDir = s.defaults.BaseDir
	}
	if req.Network == "" {
		req.Network = s.defaults.Network
	}
	if len(req.Suffixes) == 0 {
		req.Suffixes = append([]string(nil), s.defaults.Suffixes...)
	}
	if len(req.Slots) == 0 && s.defaults.Slots != "" {
		if slots, err := ParseSlots(s.defaults.Slots); err == nil {
			req.Slots = slots
		}
	}
	return req
}

func (s *RunsService) averageSuffix(dayDir string, req models.RunsRequest, suffix string) (models.RunsAverage, error) {
	avg := models.RunsAverage{Suffix: suffix}
	var summaries []models.Summary
	outputDir := ""

	for _, slot := range req.Slots {
		name := fmt.Sprintf("%s_%s_run%s_%s_summary.csv", req.TestName, req.Day, slot, suffix)
		path, err := FindSummary(dayDir, name)
		if err != nil {
			return avg, err
		}
		if path == "" {
			avg.Missing = append(avg.Missing, slot)
			continue
		}
		summary, err := report.ReadSummary(path)
		if err != nil {
			return avg, err
		}
		if outputDir == "" {
			outputDir = filepath.Dir(path)
		}
		avg.Found = append(avg.Found, slot)
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 {
		s.logger.Info("no summaries found", slog.String("suffix", suffix), slog.String("day", req.Day))
		return avg, nil
	}

	avg.Summary = engine.Average(suffix, summaries)
	if len(avg.Summary.Metrics) == 0 && len(avg.Summary.Operations) == 0 {
		return avg, nil
	}

	name := fmt.Sprintf("%s_%s_run%s_%s_summary_avg.csv", req.TestName, req.Day, strings.Join(avg.Found, ""), suffix)
	avg.Output = filepath.Join(outputDir, name)
	if err := report.WriteSummary(avg.Output, avg.Summary, true); err != nil {
		return avg, err
	}
	s.logger.Info("averaged summary written",
		slog.String("suffix", suffix),
		slog.Int("runs", len(avg.Found)),
		slog.Any("missing", avg.Missing),
		slog.String("path", avg.Output))
	return avg, nil
}

// FindSummary returns the lexicographically first file named name anywhere under root, or
// an empty path when there is none.
func FindSummary(root, name string) (string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search %s: %w", root, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}
