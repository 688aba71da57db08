package engine

import (
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// CausalityEngine estimates how much of the secondary traffic is explained by primary exchanges.
type CausalityEngine struct {
	logger *slog.Logger
}

// NewCausalityEngine constructs a CausalityEngine.
func NewCausalityEngine(logger *slog.Logger) *CausalityEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CausalityEngine{logger: logger}
}

// Evaluate inspects the links of every secondary target and derives a score in [0,1].
// TopCause is the cross-reference that fans out to the most secondary calls.
func (e *CausalityEngine) Evaluate(result models.AnalysisResult) models.CausalityReport {
	report := models.CausalityReport{}

	total := 0
	supporting := 0
	fanOut := make(map[string]int)
	var order []string
	for _, tr := range result.Targets {
		if tr.Target.Role != models.RoleSecondary {
			continue
		}
		linked := 0
		for _, rec := range tr.Exchanges {
			total++
			if rec.Link == nil {
				continue
			}
			linked++
			ref := rec.Link.CrossReferenceID
			if _, ok := fanOut[ref]; !ok {
				order = append(order, ref)
			}
			fanOut[ref]++
		}
		supporting += linked
		if len(tr.Exchanges) > 0 {
			report.Notes = append(report.Notes, fmt.Sprintf("%d of %d %s exchanges follow a primary exchange", linked, len(tr.Exchanges), tr.Target.Name))
		}
	}

	if total == 0 || supporting == 0 {
		return report
	}

	for _, ref := range order {
		if fanOut[ref] > report.FanOut {
			report.TopCause = ref
			report.FanOut = fanOut[ref]
		}
	}
	if report.FanOut > 1 {
		report.Notes = append(report.Notes, fmt.Sprintf("%s fans out to %d secondary calls", report.TopCause, report.FanOut))
	}

	ratio := float64(supporting) / float64(total)
	report.Score = clamp(0.4+0.6*ratio, 0, 1)
	e.logger.Debug("causality evaluated", slog.Float64("score", report.Score), slog.String("top_cause", report.TopCause))
	return report
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
