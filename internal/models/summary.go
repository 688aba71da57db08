package models

// Metric keys carried by a Summary.
const (
	MetricCount  = "count"
	MetricMin    = "min"
	MetricMedian = "median"
	MetricP90    = "p90"
	MetricP95    = "p95"
	MetricMax    = "max"
	MetricAvg    = "avg"
)

// SummaryMetricOrder is the canonical presentation order of summary metrics.
var SummaryMetricOrder = []string{MetricCount, MetricMin, MetricMedian, MetricP90, MetricP95, MetricMax, MetricAvg}

// OperationCount is one row of an operation frequency table. Count is fractional once averaged.
type OperationCount struct {
	Operation string
	Count     float64
}

// Summary maps metric labels to values (seconds for latency metrics). A missing key means
// the statistic is undefined for the input, never zero.
type Summary struct {
	Label      string
	Metrics    map[string]float64
	Operations []OperationCount
}

// Value returns the metric and whether it is present.
func (s Summary) Value(key string) (float64, bool) {
	v, ok := s.Metrics[key]
	return v, ok
}

// Count returns the number of exchanges with a numeric latency.
func (s Summary) Count() int {
	return int(s.Metrics[MetricCount])
}
