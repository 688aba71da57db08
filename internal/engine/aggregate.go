package engine

import (
	"sort"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// Summarize reduces exchanges to order statistics over their numeric latencies (seconds)
// and a frequency table of operation identities. Without numeric latencies only the zero
// count is reported.
func Summarize(label string, records []models.CapturedExchange) models.Summary {
	summary := models.Summary{
		Label:   label,
		Metrics: make(map[string]float64, len(models.SummaryMetricOrder)),
	}

	latencies := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.HasLatency() {
			latencies = append(latencies, rec.Latency)
		}
	}
	summary.Metrics[models.MetricCount] = float64(len(latencies))
	summary.Operations = operationCounts(records)

	if len(latencies) == 0 {
		return summary
	}

	sort.Float64s(latencies)
	summary.Metrics[models.MetricMin] = latencies[0]
	summary.Metrics[models.MetricMax] = latencies[len(latencies)-1]
	if v, ok := utils.Median(latencies); ok {
		summary.Metrics[models.MetricMedian] = v
	}
	if v, ok := utils.Percentile(latencies, 90); ok {
		summary.Metrics[models.MetricP90] = v
	}
	if v, ok := utils.Percentile(latencies, 95); ok {
		summary.Metrics[models.MetricP95] = v
	}
	if v, ok := utils.Mean(latencies); ok {
		summary.Metrics[models.MetricAvg] = v
	}
	return summary
}

func operationCounts(records []models.CapturedExchange) []models.OperationCount {
	index := make(map[string]int)
	counts := make([]models.OperationCount, 0)
	for _, rec := range records {
		if rec.Operation == "" {
			continue
		}
		i, ok := index[rec.Operation]
		if !ok {
			i = len(counts)
			index[rec.Operation] = i
			counts = append(counts, models.OperationCount{Operation: rec.Operation})
		}
		counts[i].Count++
	}
	sortOperations(counts)
	return counts
}

// sortOperations orders by descending count; the stable sort keeps first-seen order on ties.
func sortOperations(counts []models.OperationCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
}

// Average builds a new summary whose every metric and operation count is the mean over
// only those inputs that carry the key. Heterogeneous key sets are expected across runs.
func Average(label string, summaries []models.Summary) models.Summary {
	totals := make(map[string]float64)
	seen := make(map[string]int)
	for _, s := range summaries {
		for key, value := range s.Metrics {
			totals[key] += value
			seen[key]++
		}
	}

	result := models.Summary{Label: label, Metrics: make(map[string]float64, len(totals))}
	for key, total := range totals {
		result.Metrics[key] = total / float64(seen[key])
	}

	index := make(map[string]int)
	opSeen := make([]int, 0)
	for _, s := range summaries {
		for _, op := range s.Operations {
			i, ok := index[op.Operation]
			if !ok {
				i = len(result.Operations)
				index[op.Operation] = i
				result.Operations = append(result.Operations, models.OperationCount{Operation: op.Operation})
				opSeen = append(opSeen, 0)
			}
			result.Operations[i].Count += op.Count
			opSeen[i]++
		}
	}
	for i := range result.Operations {
		result.Operations[i].Count /= float64(opSeen[i])
	}
	sortOperations(result.Operations)
	return result
}
