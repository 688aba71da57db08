package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-latency/internal/models"
)

func withLatencies(latencies ...float64) []models.CapturedExchange {
	records := make([]models.CapturedExchange, len(latencies))
	for i, l := range latencies {
		records[i] = exchange("f", float64(i), l)
	}
	return records
}

func TestSummarizePercentiles(t *testing.T) {
	summary := Summarize("mediator", withLatencies(10, 9, 8, 7, 6, 5, 4, 3, 2, 1))

	assert.Equal(t, 10, summary.Count())
	assert.Equal(t, 1.0, summary.Metrics[models.MetricMin])
	assert.Equal(t, 10.0, summary.Metrics[models.MetricMax])
	assert.Equal(t, 5.5, summary.Metrics[models.MetricMedian])
	assert.Equal(t, 9.0, summary.Metrics[models.MetricP90])
	assert.Equal(t, 10.0, summary.Metrics[models.MetricP95])
	assert.Equal(t, 5.5, summary.Metrics[models.MetricAvg])
}

func TestSummarizeSkipsNaN(t *testing.T) {
	summary := Summarize("rpc", withLatencies(0.01, math.NaN(), 0.03))

	assert.Equal(t, 2, summary.Count())
	assert.InDelta(t, 0.02, summary.Metrics[models.MetricAvg], 1e-12)
	// the NaN record still contributes its operation
	require.Len(t, summary.Operations, 1)
	assert.Equal(t, 3.0, summary.Operations[0].Count)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize("rpc", nil)

	assert.Equal(t, 0, summary.Count())
	_, ok := summary.Value(models.MetricMin)
	assert.False(t, ok)
	assert.Empty(t, summary.Operations)
	assert.Len(t, summary.Metrics, 1)
}

func TestSummarizeOperationOrder(t *testing.T) {
	records := withLatencies(1, 1, 1, 1, 1)
	for i, op := range []string{"b", "a", "a", "c", "b"} {
		records[i].Operation = op
	}
	records = append(records, models.CapturedExchange{Latency: 1})

	summary := Summarize("x", records)

	require.Len(t, summary.Operations, 3)
	assert.Equal(t, []models.OperationCount{
		{Operation: "b", Count: 2},
		{Operation: "a", Count: 2},
		{Operation: "c", Count: 1},
	}, summary.Operations)
}

func TestAverageHeterogeneousKeys(t *testing.T) {
	first := models.Summary{
		Metrics:    map[string]float64{models.MetricMin: 1, models.MetricMax: 9},
		Operations: []models.OperationCount{{Operation: "eth_call", Count: 4}},
	}
	second := models.Summary{
		Metrics:    map[string]float64{models.MetricMin: 3, models.MetricMedian: 5},
		Operations: []models.OperationCount{{Operation: "eth_call", Count: 2}, {Operation: "eth_chainId", Count: 6}},
	}

	avg := Average("avg", []models.Summary{first, second})

	assert.Equal(t, map[string]float64{
		models.MetricMin:    2,
		models.MetricMax:    9,
		models.MetricMedian: 5,
	}, avg.Metrics)
	assert.Equal(t, []models.OperationCount{
		{Operation: "eth_chainId", Count: 6},
		{Operation: "eth_call", Count: 3},
	}, avg.Operations)

	// inputs are not modified
	assert.Len(t, first.Metrics, 2)
}

func TestAverageEmpty(t *testing.T) {
	avg := Average("none", nil)
	assert.Empty(t, avg.Metrics)
	assert.Empty(t, avg.Operations)
}
