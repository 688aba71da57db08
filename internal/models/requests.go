package models

import "time"

// TargetRole says how a capture target participates in correlation.
type TargetRole string

const (
	// RolePrimary targets are matched against the event log.
	RolePrimary TargetRole = "primary"
	// RoleSecondary targets are linked to the primary target.
	RoleSecondary TargetRole = "secondary"
)

// Target is one logical port analysed in a capture.
type Target struct {
	Name   string
	Port   int
	Role   TargetRole
	Suffix string
}

// AnalysisRequest describes one analysis run over a closed capture.
type AnalysisRequest struct {
	CapturePath  string
	EventLogPath string
	Details      bool
}

// TargetResult holds the per-target outcome of a run.
type TargetResult struct {
	Target    Target
	Exchanges []CapturedExchange
	Summary   Summary
	Pairing   PairStats
	Outliers  []Outlier
}

// Outlier is an exchange that is unusually slow for its target or failed server side.
type Outlier struct {
	Frame     string
	Operation string
	Status    string
	Latency   float64
	// Score is the z-score of the latency; NaN when it could not be computed.
	Score float64
	Mean  float64
}

// PairStats counts what the pairer could not turn into exchanges.
type PairStats struct {
	Requests   int
	Responses  int
	Dropped    int
	Duplicates int
	Malformed  int
}

// RunStats reports correlation outcomes for a run.
type RunStats struct {
	LogEvents int
	Matched   int
	Unmatched int
	Linked    int
	Unlinked  int
}

// CausalityReport scores how much secondary traffic is explained by primary exchanges.
type CausalityReport struct {
	Score    float64
	Notes    []string
	TopCause string
	FanOut   int
}

// AnalysisResult is the full output of one run.
type AnalysisResult struct {
	RunID     string
	Capture   string
	Targets   []TargetResult
	Stats     RunStats
	Causality CausalityReport
	Findings  []string
	Reports   []string
	CreatedAt time.Time
}

// Target returns the result for the named target.
func (r AnalysisResult) Target(name string) (TargetResult, bool) {
	for _, tr := range r.Targets {
		if tr.Target.Name == name {
			return tr, true
		}
	}
	return TargetResult{}, false
}

// RunsRequest selects summaries to average across runs.
type RunsRequest struct {
	Day      string
	TestName string
	Slots    []string
	BaseDir  string
	Network  string
	Suffixes []string
}

// RunsAverage is the averaged summary for one suffix.
type RunsAverage struct {
	Suffix  string
	Found   []string
	Missing []string
	Summary Summary
	Output  string
}
