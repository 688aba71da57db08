package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-latency/internal/models"
)

func sampleSummary() models.Summary {
	return models.Summary{
		Label: "mediator",
		Metrics: map[string]float64{
			models.MetricCount:  3,
			models.MetricMin:    0.010,
			models.MetricMedian: 0.020,
			models.MetricP90:    0.030,
			models.MetricP95:    0.030,
			models.MetricMax:    0.030,
			models.MetricAvg:    0.020,
		},
		Operations: []models.OperationCount{{Operation: "eth_call", Count: 2}, {Operation: "unknown", Count: 1}},
	}
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows(sampleSummary(), false)
	assert.Equal(t, [][]string{
		{"Metric", "Value"},
		{"Count", "3"},
		{"Min (ms)", "10.00"},
		{"P50 (ms)", "20.00"},
		{"P90 (ms)", "30.00"},
		{"P95 (ms)", "30.00"},
		{"Max (ms)", "30.00"},
		{"Avg (ms)", "20.00"},
		{"Operation: eth_call", "2"},
		{"Operation: unknown", "1"},
	}, rows)
}

func TestSummaryRowsEmpty(t *testing.T) {
	rows := SummaryRows(models.Summary{Metrics: map[string]float64{models.MetricCount: 0}}, false)
	assert.Equal(t, [][]string{{"Metric", "Value"}, {"Count", "0"}}, rows)
}

func TestSummaryRowsKeepOperationsWithoutLatencies(t *testing.T) {
	summary := models.Summary{
		Metrics:    map[string]float64{models.MetricCount: 0},
		Operations: []models.OperationCount{{Operation: "eth_call", Count: 2}, {Operation: "unknown", Count: 1}},
	}
	assert.Equal(t, [][]string{
		{"Metric", "Value"},
		{"Count", "0"},
		{"Operation: eth_call", "2"},
		{"Operation: unknown", "1"},
	}, SummaryRows(summary, false))
}

func TestReadSummaryToleratesGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_run1_mediator_summary.csv")
	require.NoError(t, os.WriteFile(path, []byte("Metric,Value\nCount,4\nMin (ms),12.50\nP50 (ms),-\nP90 (ms),n/a\nJitter,1.5\n\nOperation: eth_call,3\nOperation: ,2\n"), 0o644))

	summary, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		models.MetricCount: 4,
		models.MetricMin:   0.0125,
		"Jitter":           1.5,
	}, summary.Metrics)
	assert.Equal(t, []models.OperationCount{{Operation: "eth_call", Count: 3}}, summary.Operations)
}

func TestWriteSummaryReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run_mediator_summary.csv")
	require.NoError(t, WriteSummary(path, sampleSummary(), false))

	summary, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count())
	assert.InDelta(t, 0.020, summary.Metrics[models.MetricAvg], 1e-9)
	assert.Len(t, summary.Operations, 2)
}

func TestDetailRows(t *testing.T) {
	rows := DetailRows([]models.CapturedExchange{
		{
			Frame:      "12",
			Timestamp:  1700000000.5,
			Src:        models.Endpoint{IP: "10.0.0.1", Port: "50000"},
			Dst:        models.Endpoint{IP: "10.0.0.2", Port: "3000"},
			Method:     "POST",
			Status:     "200",
			Latency:    0.0125,
			Operation:  "eth_call",
			PayloadID:  "7",
			Annotation: &models.Annotation{EventID: "evt-1", DeltaMS: -1.5},
		},
		{Frame: "13", Latency: math.NaN()},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, detailHeader, rows[0])
	assert.Equal(t, []string{
		"12", "1700000000.500000", "2023-11-14T22:13:20.5Z", "10.0.0.1:50000", "10.0.0.2:3000",
		"POST", "-", "200", "eth_call", "7", "evt-1", "-1.50", "12.50",
	}, rows[1])
	assert.Equal(t, "-", rows[2][11])
	assert.Equal(t, "-", rows[2][12])
}

func TestWriterWritesReports(t *testing.T) {
	dir := t.TempDir()
	result := models.AnalysisResult{
		Capture: filepath.Join(dir, "test_2024-05-01_run1.pcapng"),
		Targets: []models.TargetResult{
			{Target: models.Target{Name: "mediator", Suffix: "mediator"}, Summary: sampleSummary(), Exchanges: []models.CapturedExchange{{Frame: "1", Latency: 0.01}}},
			{Target: models.Target{Name: "anvil", Suffix: "anvil"}, Summary: models.Summary{Metrics: map[string]float64{models.MetricCount: 0}}},
		},
	}

	written, err := Writer{Details: true}.WriteResult(result)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "test_2024-05-01_run1_mediator_summary.csv"),
		filepath.Join(dir, "test_2024-05-01_run1_mediator.csv"),
		filepath.Join(dir, "test_2024-05-01_run1_anvil_summary.csv"),
	}, written)
}

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	err := RenderResult(&buf, models.AnalysisResult{
		RunID:    "01HZX",
		Targets:  []models.TargetResult{{Target: models.Target{Name: "mediator", Port: 3000, Role: models.RolePrimary}, Summary: sampleSummary()}},
		Findings: []string{"Check mediator queue depth"},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "mediator (port 3000, primary)")
	assert.Contains(t, out, "eth_call")
	assert.Contains(t, out, "Check mediator queue depth")
}

func TestRenderAverages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderAverages(&buf, []models.RunsAverage{
		{Suffix: "mediator", Found: []string{"1", "3"}, Missing: []string{"2"}, Summary: sampleSummary()},
		{Suffix: "rpc", Missing: []string{"1", "2", "3"}},
	}))
	out := buf.String()
	assert.Contains(t, out, "2 (missing: 2)")
	assert.Contains(t, out, "no summary files found")
}
