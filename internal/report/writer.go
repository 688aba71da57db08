package report

import (
	"path/filepath"

	"github.com/miradorstack/mirador-latency/internal/extractors"
	"github.com/miradorstack/mirador-latency/internal/models"
)

// Writer persists the CSV reports of an analysis run.
type Writer struct {
	// OutputDir defaults to the directory of the capture.
	OutputDir string
	// Details also writes one row per exchange.
	Details bool
}

// WriteResult writes a summary CSV per target, plus detail CSVs when enabled, and
// returns the written paths.
func (w Writer) WriteResult(result models.AnalysisResult) ([]string, error) {
	dir := w.OutputDir
	if dir == "" {
		dir = filepath.Dir(result.Capture)
	}
	stem := extractors.CaptureStem(result.Capture)

	var written []string
	for _, tr := range result.Targets {
		suffix := tr.Target.Suffix
		if suffix == "" {
			suffix = tr.Target.Name
		}

		summaryPath := filepath.Join(dir, SummaryFileName(stem, suffix))
		if err := WriteSummary(summaryPath, tr.Summary, false); err != nil {
			return written, err
		}
		written = append(written, summaryPath)

		if !w.Details {
			continue
		}
		detailPath := filepath.Join(dir, DetailFileName(stem, suffix))
		ok, err := WriteDetails(detailPath, tr.Exchanges)
		if err != nil {
			return written, err
		}
		if ok {
			written = append(written, detailPath)
		}
	}
	return written, nil
}
