package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// FromStructAnalysisRequest maps an Analyze request into a domain AnalysisRequest.
func FromStructAnalysisRequest(req *structpb.Struct) (models.AnalysisRequest, error) {
	if req == nil {
		return models.AnalysisRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	capture := strings.TrimSpace(fields["capture_path"].GetStringValue())
	if capture == "" {
		return models.AnalysisRequest{}, fmt.Errorf("capture_path is required")
	}
	return models.AnalysisRequest{
		CapturePath:  capture,
		EventLogPath: strings.TrimSpace(fields["event_log_path"].GetStringValue()),
		Details:      fields["details"].GetBoolValue(),
	}, nil
}

// FromStructRunsRequest maps a SummarizeRuns request. Slots may be a comma separated
// string or a list of strings or numbers.
func FromStructRunsRequest(req *structpb.Struct) (models.RunsRequest, error) {
	if req == nil {
		return models.RunsRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	out := models.RunsRequest{
		Day:      strings.TrimSpace(fields["day"].GetStringValue()),
		TestName: strings.TrimSpace(fields["test_name"].GetStringValue()),
		BaseDir:  fields["base_dir"].GetStringValue(),
		Network:  fields["network"].GetStringValue(),
		Slots:    stringList(fields["slots"]),
		Suffixes: stringList(fields["suffixes"]),
	}
	if out.Day == "" || out.TestName == "" {
		return models.RunsRequest{}, fmt.Errorf("day and test_name are required")
	}
	return out, nil
}

func stringList(v *structpb.Value) []string {
	if v == nil {
		return nil
	}
	var out []string
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		for _, part := range strings.Split(kind.StringValue, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case *structpb.Value_ListValue:
		for _, item := range kind.ListValue.GetValues() {
			switch iv := item.GetKind().(type) {
			case *structpb.Value_StringValue:
				out = append(out, strings.TrimSpace(iv.StringValue))
			case *structpb.Value_NumberValue:
				out = append(out, strconv.FormatFloat(iv.NumberValue, 'f', -1, 64))
			}
		}
	}
	return out
}

func metricsMap(metrics map[string]float64) map[string]any {
	out := make(map[string]any, len(metrics))
	for key, value := range metrics {
		out[key] = value
	}
	return out
}

func operationsList(ops []models.OperationCount) []any {
	out := make([]any, 0, len(ops))
	for _, op := range ops {
		out = append(out, map[string]any{"operation": op.Operation, "count": op.Count})
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func stringsList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// ToStructAnalysisResult converts a result into the response struct. Per-exchange records
// stay in the detail CSVs.
func ToStructAnalysisResult(result models.AnalysisResult) (*structpb.Struct, error) {
	targets := make([]any, 0, len(result.Targets))
	for _, tr := range result.Targets {
		outliers := make([]any, 0, len(tr.Outliers))
		for _, o := range tr.Outliers {
			outliers = append(outliers, map[string]any{
				"frame":      o.Frame,
				"operation":  o.Operation,
				"status":     o.Status,
				"latency_ms": finiteOrZero(o.Latency * 1000),
			})
		}
		targets = append(targets, map[string]any{
			"name":       tr.Target.Name,
			"port":       tr.Target.Port,
			"role":       string(tr.Target.Role),
			"exchanges":  len(tr.Exchanges),
			"metrics":    metricsMap(tr.Summary.Metrics),
			"operations": operationsList(tr.Summary.Operations),
			"outliers":   outliers,
			"pairing": map[string]any{
				"requests":   tr.Pairing.Requests,
				"responses":  tr.Pairing.Responses,
				"dropped":    tr.Pairing.Dropped,
				"duplicates": tr.Pairing.Duplicates,
				"malformed":  tr.Pairing.Malformed,
			},
		})
	}

	return structpb.NewStruct(map[string]any{
		"run_id":     result.RunID,
		"capture":    result.Capture,
		"created_at": result.CreatedAt.UTC().Format(time.RFC3339Nano),
		"targets":    targets,
		"stats": map[string]any{
			"log_events": result.Stats.LogEvents,
			"matched":    result.Stats.Matched,
			"unmatched":  result.Stats.Unmatched,
			"linked":     result.Stats.Linked,
			"unlinked":   result.Stats.Unlinked,
		},
		"causality": map[string]any{
			"score":     result.Causality.Score,
			"top_cause": result.Causality.TopCause,
			"fan_out":   result.Causality.FanOut,
			"notes":     stringsList(result.Causality.Notes),
		},
		"findings": stringsList(result.Findings),
		"reports":  stringsList(result.Reports),
	})
}

// ToStructRunsAverages converts averaged summaries into the response struct.
func ToStructRunsAverages(averages []models.RunsAverage) (*structpb.Struct, error) {
	items := make([]any, 0, len(averages))
	for _, avg := range averages {
		items = append(items, map[string]any{
			"suffix":     avg.Suffix,
			"found":      stringsList(avg.Found),
			"missing":    stringsList(avg.Missing),
			"metrics":    metricsMap(avg.Summary.Metrics),
			"operations": operationsList(avg.Summary.Operations),
			"output":     avg.Output,
		})
	}
	return structpb.NewStruct(map[string]any{"averages": items})
}
