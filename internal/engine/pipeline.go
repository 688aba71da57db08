package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// CaptureSource yields the packet-level events observed on one port of a closed capture.
type CaptureSource interface {
	Events(ctx context.Context, capturePath string, port int) ([]models.CapturedEvent, error)
}

// EventSource loads the independent persisted event log.
type EventSource interface {
	LoadEvents(ctx context.Context) (models.EventLog, error)
}

// Config bundles the per-stage settings of a pipeline.
type Config struct {
	Targets []models.Target
	Pairer  PairerConfig
	Match   MatchConfig
	Link    LinkConfig
	// OutlierThreshold is the z-score marking slow exchanges; zero uses the default.
	OutlierThreshold float64
	// Rules is optional; a nil engine yields no findings.
	Rules *RuleEngine
}

// Pipeline runs the strictly sequential correlation flow:
// pair -> match primary against the event log -> link secondaries -> summarize.
// Causality scoring and latency rules run over the summarized result.
type Pipeline struct {
	logger  *slog.Logger
	capture CaptureSource
	cfg     Config
}

// NewPipeline constructs a pipeline over the configured targets.
func NewPipeline(logger *slog.Logger, capture CaptureSource, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger, capture: capture, cfg: cfg}
}

// Analyze extracts events for every target from the capture, loads the event log when a
// source is given, and correlates them. Extraction and loading either return a complete
// batch or fail the run before any correlation happens.
func (p *Pipeline) Analyze(ctx context.Context, capturePath string, events EventSource) (models.AnalysisResult, error) {
	if p.capture == nil {
		return models.AnalysisResult{}, fmt.Errorf("capture source not configured")
	}
	if len(p.cfg.Targets) == 0 {
		return models.AnalysisResult{}, fmt.Errorf("no capture targets configured")
	}

	var eventLog models.EventLog
	if events != nil {
		loaded, err := events.LoadEvents(ctx)
		if err != nil {
			return models.AnalysisResult{}, fmt.Errorf("load event log: %w", err)
		}
		eventLog = loaded
	}

	captured := make(map[string][]models.CapturedEvent, len(p.cfg.Targets))
	for _, target := range p.cfg.Targets {
		evs, err := p.capture.Events(ctx, capturePath, target.Port)
		if err != nil {
			return models.AnalysisResult{}, fmt.Errorf("extract %s (port %d): %w", target.Name, target.Port, err)
		}
		captured[target.Name] = evs
	}

	result := p.Correlate(captured, eventLog)
	result.Capture = capturePath
	return result, nil
}

// Correlate runs the in-memory stages over already materialised inputs.
func (p *Pipeline) Correlate(captured map[string][]models.CapturedEvent, eventLog models.EventLog) models.AnalysisResult {
	result := models.AnalysisResult{
		Targets:   make([]models.TargetResult, 0, len(p.cfg.Targets)),
		CreatedAt: time.Now().UTC(),
	}
	result.Stats.LogEvents = len(eventLog.Events)

	pairer := NewPairer(p.cfg.Pairer, p.logger)
	for _, target := range p.cfg.Targets {
		paired := pairer.Pair(captured[target.Name])
		result.Targets = append(result.Targets, models.TargetResult{
			Target:    target,
			Exchanges: paired.Exchanges,
			Pairing:   paired.Stats,
		})
		if paired.Stats.Dropped > 0 || paired.Stats.Malformed > 0 {
			p.logger.Info("pairing incomplete",
				slog.String("target", target.Name),
				slog.Int("dropped", paired.Stats.Dropped),
				slog.Int("malformed_latency", paired.Stats.Malformed),
				slog.Int("duplicates", paired.Stats.Duplicates))
		}
	}

	matchCfg := p.cfg.Match
	if eventLog.HubActor != "" {
		matchCfg.HubActor = eventLog.HubActor
	}
	matcher := NewMatcher(matchCfg, p.logger)
	remaining := eventLog.Events

	var primary []models.CapturedExchange
	for i := range result.Targets {
		tr := &result.Targets[i]
		if tr.Target.Role != models.RolePrimary {
			continue
		}
		if len(remaining) > 0 {
			matched := matcher.Match(tr.Exchanges, remaining)
			tr.Exchanges = matched.Records
			remaining = matched.Events
			result.Stats.Matched += matched.Matched
			result.Stats.Unmatched += matched.Unmatched
		} else {
			result.Stats.Unmatched += len(tr.Exchanges)
		}
		primary = append(primary, tr.Exchanges...)
	}

	linker := NewLinker(p.cfg.Link, p.logger)
	for i := range result.Targets {
		tr := &result.Targets[i]
		if tr.Target.Role != models.RoleSecondary {
			continue
		}
		linked := linker.Link(tr.Exchanges, primary)
		tr.Exchanges = linked.Records
		result.Stats.Linked += linked.Linked
		result.Stats.Unlinked += linked.Unlinked
	}

	outliers := NewOutlierDetector(p.cfg.OutlierThreshold)
	for i := range result.Targets {
		tr := &result.Targets[i]
		tr.Summary = Summarize(tr.Target.Name, tr.Exchanges)
		tr.Outliers = outliers.Detect(tr.Exchanges)
	}

	result.Causality = NewCausalityEngine(p.logger).Evaluate(result)
	result.Findings = p.cfg.Rules.Recommend(result)

	p.logger.Info("correlation complete",
		slog.Int("log_events", result.Stats.LogEvents),
		slog.Int("matched", result.Stats.Matched),
		slog.Int("unmatched", result.Stats.Unmatched),
		slog.Int("linked", result.Stats.Linked),
		slog.Int("unlinked", result.Stats.Unlinked))

	return result
}
