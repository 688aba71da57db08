package engine

import (
	"math"
	"strconv"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// DefaultOutlierThreshold is the z-score at which an exchange counts as slow.
const DefaultOutlierThreshold = 2.0

// OutlierDetector flags slow or failed exchanges using a simple z-score heuristic.
type OutlierDetector struct {
	threshold float64
}

// NewOutlierDetector constructs a detector; a non-positive threshold uses the default.
func NewOutlierDetector(threshold float64) *OutlierDetector {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	return &OutlierDetector{threshold: threshold}
}

// Detect returns exchanges whose latency significantly exceeds the population mean, plus
// every exchange answered with a 5xx status. Records without a numeric latency only qualify
// through their status.
func (d *OutlierDetector) Detect(records []models.CapturedExchange) []models.Outlier {
	latencies := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.HasLatency() {
			latencies = append(latencies, rec.Latency)
		}
	}

	mean, std := 0.0, 0.0
	if len(latencies) > 0 {
		mean = meanOf(latencies)
		std = stdDev(latencies, mean)
	}
	if std == 0 {
		std = 0.01
	}

	var outliers []models.Outlier
	for _, rec := range records {
		score := math.NaN()
		slow := false
		if rec.HasLatency() && len(latencies) > 1 {
			score = (rec.Latency - mean) / std
			slow = score >= d.threshold
		}
		if slow || serverError(rec.Status) {
			outliers = append(outliers, models.Outlier{
				Frame:     rec.Frame,
				Operation: rec.Operation,
				Status:    rec.Status,
				Latency:   rec.Latency,
				Score:     score,
				Mean:      mean,
			})
		}
	}
	return outliers
}

func serverError(status string) bool {
	code, err := strconv.Atoi(status)
	return err == nil && code >= 500 && code <= 599
}

func meanOf(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdDev(values []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	variance := sum / float64(len(values))
	return math.Sqrt(variance)
}
