package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-latency/internal/config"
	"github.com/miradorstack/mirador-latency/internal/engine"
	"github.com/miradorstack/mirador-latency/internal/extractors"
	"github.com/miradorstack/mirador-latency/internal/metrics"
	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/repo"
	"github.com/miradorstack/mirador-latency/internal/report"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// ResultPublisher forwards a finished analysis to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, result models.AnalysisResult) error
}

// CaptureFactory builds the capture source for a run.
type CaptureFactory func() (engine.CaptureSource, error)

// EventStoreFactory opens the event log for a run. The returned release func is never nil.
type EventStoreFactory func(ctx context.Context, path string, required bool) (engine.EventSource, func(), error)

// AnalysisOption customises an AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithCaptureFactory overrides how capture sources are built.
func WithCaptureFactory(f CaptureFactory) AnalysisOption {
	return func(s *AnalysisService) { s.newCapture = f }
}

// WithEventStoreFactory overrides how the event log is opened.
func WithEventStoreFactory(f EventStoreFactory) AnalysisOption {
	return func(s *AnalysisService) { s.openEvents = f }
}

// WithPublisher enables publication of every successful result.
func WithPublisher(p ResultPublisher) AnalysisOption {
	return func(s *AnalysisService) { s.publisher = p }
}

// WithGatherer sets the registry exported to the metrics textfile.
func WithGatherer(g prometheus.Gatherer) AnalysisOption {
	return func(s *AnalysisService) { s.gatherer = g }
}

// AnalysisService runs one capture analysis end to end: input checks, event log, pipeline,
// reports, metrics and publication.
type AnalysisService struct {
	cfg        *config.Config
	logger     *slog.Logger
	rules      *engine.RuleEngine
	newCapture CaptureFactory
	openEvents EventStoreFactory
	publisher  ResultPublisher
	gatherer   prometheus.Gatherer
	latencies  *utils.LatencyTracker
}

// NewAnalysisService constructs the service from configuration.
func NewAnalysisService(cfg *config.Config, logger *slog.Logger, opts ...AnalysisOption) (*AnalysisService, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return nil, err
	}

	s := &AnalysisService{
		cfg:       cfg,
		logger:    logger,
		rules:     rules,
		gatherer:  prometheus.DefaultGatherer,
		latencies: utils.NewLatencyTracker(256),
	}
	s.newCapture = s.defaultCapture
	s.openEvents = s.defaultEvents
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Targets converts the configured capture targets.
func Targets(cfg *config.Config) []models.Target {
	targets := make([]models.Target, 0, len(cfg.Capture.Targets))
	for _, t := range cfg.Capture.Targets {
		targets = append(targets, models.Target{
			Name:   t.Name,
			Port:   t.Port,
			Role:   models.TargetRole(t.Role),
			Suffix: t.Suffix,
		})
	}
	return targets
}

func (s *AnalysisService) defaultCapture() (engine.CaptureSource, error) {
	if s.cfg.Capture.Backend == "native" {
		return extractors.NewNativeSource(s.logger), nil
	}
	return extractors.NewTsharkSource(s.cfg.Capture.TsharkPath, s.logger)
}

// defaultEvents opens the configured store. An explicit path always names a sqlite file
// that must exist.
func (s *AnalysisService) defaultEvents(ctx context.Context, path string, required bool) (engine.EventSource, func(), error) {
	noop := func() {}
	ev := s.cfg.EventLog
	if required {
		return repo.NewSQLiteEventStore(path, ev.HubAlias, true, s.logger), noop, nil
	}

	switch ev.Driver {
	case "none":
		return nil, noop, nil
	case "postgres":
		store, err := repo.NewPostgresEventStore(ctx, repo.PostgresOptions{
			DSN:            ev.DSN,
			HubAlias:       ev.HubAlias,
			ConnectTimeout: ev.ConnectTimeout,
			MaxElapsed:     ev.MaxRetryTime,
		}, s.logger)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return repo.NewSQLiteEventStore(path, ev.HubAlias, false, s.logger), noop, nil
	}
}

func (s *AnalysisService) pipelineConfig() engine.Config {
	corr := s.cfg.Correlation
	return engine.Config{
		Targets: Targets(s.cfg),
		Pairer:  engine.PairerConfig{RetainMatchedRequests: corr.RetainMatchedRequests},
		Match: engine.MatchConfig{
			Tolerance:     corr.MatchTolerance,
			ResponseTypes: corr.ResponseTypes,
		},
		Link:             engine.LinkConfig{Tolerance: corr.LinkTolerance},
		OutlierThreshold: corr.OutlierThreshold,
		Rules:            s.rules,
	}
}

// Analyze runs the analysis described by req. Setup errors (missing capture, tool or
// event database) surface before any correlation happens.
func (s *AnalysisService) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	start := time.Now()
	result, err := s.analyze(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		s.logger.Error("analysis failed", slog.String("capture", req.CapturePath), slog.Any("error", err))
		return models.AnalysisResult{}, err
	}

	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	metrics.ObserveResult(result)
	if err := metrics.WriteTextfile(s.cfg.Metrics.TextfilePath, s.gatherer); err != nil {
		s.logger.Warn("metrics textfile not written", slog.String("path", s.cfg.Metrics.TextfilePath), slog.Any("error", err))
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, result); err != nil {
			s.logger.Warn("result not published", slog.String("run_id", result.RunID), slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *AnalysisService) analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if req.CapturePath == "" {
		return models.AnalysisResult{}, fmt.Errorf("capture path is required: %w", ErrInvalidRequest)
	}
	if err := extractors.CheckCapture(req.CapturePath); err != nil {
		return models.AnalysisResult{}, err
	}

	capture, err := s.newCapture()
	if err != nil {
		return models.AnalysisResult{}, err
	}

	eventPath, required := req.EventLogPath, req.EventLogPath != ""
	if !required {
		eventPath = s.cfg.EventLog.Path
	}
	events, release, err := s.openEvents(ctx, eventPath, required)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	defer release()

	runID := ulid.Make().String()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Info("analysis started", slog.String("capture", req.CapturePath), slog.String("backend", s.cfg.Capture.Backend))

	pipeline := engine.NewPipeline(logger, capture, s.pipelineConfig())
	result, err := pipeline.Analyze(ctx, req.CapturePath, events)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	result.RunID = runID

	writer := report.Writer{OutputDir: s.cfg.Report.OutputDir, Details: req.Details || s.cfg.Report.Details}
	written, err := writer.WriteResult(result)
	result.Reports = written
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("write reports: %w", err)
	}
	return result, nil
}
