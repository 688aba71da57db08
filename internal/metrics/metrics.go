package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-latency/internal/models"
)

const (
	// OutcomeSuccess labels successful analyses.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analyses (setup or pipeline issues).
	OutcomeError = "error"
)

// Correlation outcomes recorded per target.
const (
	StageMatched   = "matched"
	StageUnmatched = "unmatched"
	StageLinked    = "linked"
	StageUnlinked  = "unlinked"
	StageDropped   = "dropped"
	StageMalformed = "malformed"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_latency",
			Name:      "analyses_total",
			Help:      "Total number of capture analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_latency",
			Name:      "analysis_seconds",
			Help:      "Wall time of one capture analysis in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_latency",
			Name:      "exchanges_total",
			Help:      "Exchanges seen per target, partitioned by correlation outcome.",
		},
		[]string{"target", "outcome"},
	)

	exchangeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_latency",
			Name:      "exchange_latency_seconds",
			Help:      "Measured request/response latency per target.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"target"},
	)
)

// Register attaches mirador-latency collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		exchangesTotal,
		exchangeLatencySeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveResult records per-target exchange outcomes and latencies of a finished run.
func ObserveResult(result models.AnalysisResult) {
	for _, tr := range result.Targets {
		name := tr.Target.Name
		exchangesTotal.WithLabelValues(name, StageDropped).Add(float64(tr.Pairing.Dropped))
		exchangesTotal.WithLabelValues(name, StageMalformed).Add(float64(tr.Pairing.Malformed))

		var matched, linked int
		for _, rec := range tr.Exchanges {
			if rec.Annotation != nil {
				matched++
			}
			if rec.Link != nil {
				linked++
			}
			if rec.HasLatency() {
				exchangeLatencySeconds.WithLabelValues(name).Observe(rec.Latency)
			}
		}

		switch tr.Target.Role {
		case models.RolePrimary:
			exchangesTotal.WithLabelValues(name, StageMatched).Add(float64(matched))
			exchangesTotal.WithLabelValues(name, StageUnmatched).Add(float64(len(tr.Exchanges) - matched))
		case models.RoleSecondary:
			exchangesTotal.WithLabelValues(name, StageLinked).Add(float64(linked))
			exchangesTotal.WithLabelValues(name, StageUnlinked).Add(float64(len(tr.Exchanges) - linked))
		}
	}
}

// WriteTextfile dumps the gathered metrics in text exposition format, for collection by a
// node exporter after a batch run.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
