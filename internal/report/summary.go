package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// OperationPrefix starts every operation-count row of a summary CSV.
const OperationPrefix = "Operation:"

var metricLabels = map[string]string{
	models.MetricCount:  "Count",
	models.MetricMin:    "Min (ms)",
	models.MetricMedian: "P50 (ms)",
	models.MetricP90:    "P90 (ms)",
	models.MetricP95:    "P95 (ms)",
	models.MetricMax:    "Max (ms)",
	models.MetricAvg:    "Avg (ms)",
}

var labelMetrics = func() map[string]string {
	out := make(map[string]string, len(metricLabels))
	for key, label := range metricLabels {
		out[label] = key
	}
	return out
}()

// SummaryFileName is "<stem>_<suffix>_summary.csv".
func SummaryFileName(stem, suffix string) string {
	return fmt.Sprintf("%s_%s_summary.csv", stem, suffix)
}

// DetailFileName is "<stem>_<suffix>.csv".
func DetailFileName(stem, suffix string) string {
	return fmt.Sprintf("%s_%s.csv", stem, suffix)
}

// MetricLabel returns the CSV label of a metric key; unknown keys are used verbatim.
func MetricLabel(key string) string {
	if label, ok := metricLabels[key]; ok {
		return label
	}
	return key
}

// SummaryRows renders a summary as Metric/Value rows. Latency metrics are written in
// milliseconds with two decimals. The count is an integer for a single run and keeps two
// decimals once averaged.
func SummaryRows(summary models.Summary, averaged bool) [][]string {
	rows := [][]string{{"Metric", "Value"}}

	count, hasCount := summary.Value(models.MetricCount)
	if hasCount {
		if averaged {
			rows = append(rows, []string{MetricLabel(models.MetricCount), fmt.Sprintf("%.2f", count)})
		} else {
			rows = append(rows, []string{MetricLabel(models.MetricCount), strconv.Itoa(int(count))})
		}
	}
	if !averaged && count == 0 {
		return append(rows, operationRows(summary.Operations, averaged)...)
	}

	for _, key := range models.SummaryMetricOrder[1:] {
		if v, ok := summary.Value(key); ok {
			rows = append(rows, []string{MetricLabel(key), fmt.Sprintf("%.2f", v*1000)})
		} else if !averaged {
			rows = append(rows, []string{MetricLabel(key), "-"})
		}
	}

	var extra []string
	for key := range summary.Metrics {
		if _, known := metricLabels[key]; !known {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{key, fmt.Sprintf("%.2f", summary.Metrics[key])})
	}

	return append(rows, operationRows(summary.Operations, averaged)...)
}

func operationRows(ops []models.OperationCount, averaged bool) [][]string {
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		value := strconv.FormatFloat(op.Count, 'f', 0, 64)
		if averaged {
			value = fmt.Sprintf("%.2f", op.Count)
		}
		rows = append(rows, []string{OperationPrefix + " " + op.Operation, value})
	}
	return rows
}

// WriteSummary writes the summary CSV at path, creating parent directories.
func WriteSummary(path string, summary models.Summary, averaged bool) error {
	return writeCSV(path, SummaryRows(summary, averaged))
}

// ReadSummary parses a summary CSV back into a Summary with latency metrics in seconds.
// The header, empty rows, "-" and non-numeric values are skipped; unknown labels are kept
// verbatim as metric keys.
func ReadSummary(path string) (models.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Summary{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return models.Summary{}, fmt.Errorf("parse %s: %w", path, err)
	}

	summary := models.Summary{Label: filepath.Base(path), Metrics: make(map[string]float64)}
	for _, row := range records {
		if len(row) == 0 {
			continue
		}
		label := strings.TrimSpace(row[0])
		if label == "" || label == "Metric" {
			continue
		}
		raw := ""
		if len(row) > 1 {
			raw = strings.TrimSpace(row[1])
		}
		if raw == "" || raw == "-" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}

		if strings.HasPrefix(label, OperationPrefix) {
			op := strings.TrimSpace(strings.TrimPrefix(label, OperationPrefix))
			if op != "" {
				summary.Operations = append(summary.Operations, models.OperationCount{Operation: op, Count: value})
			}
			continue
		}

		key, known := labelMetrics[label]
		switch {
		case !known:
			summary.Metrics[label] = value
		case key == models.MetricCount:
			summary.Metrics[key] = value
		default:
			summary.Metrics[key] = value / 1000
		}
	}
	return summary, nil
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
