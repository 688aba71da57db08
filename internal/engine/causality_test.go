package engine

import (
	"testing"

	"github.com/miradorstack/mirador-latency/internal/models"
)

func TestCausalityEngineEvaluate(t *testing.T) {
	engine := NewCausalityEngine(nil)
	linked := func(ref string) models.CapturedExchange {
		return models.CapturedExchange{Link: &models.Link{CrossReferenceID: ref}}
	}
	result := models.AnalysisResult{Targets: []models.TargetResult{
		{Target: models.Target{Name: "mediator", Role: models.RolePrimary}, Exchanges: []models.CapturedExchange{{}}},
		{Target: models.Target{Name: "rpc", Role: models.RoleSecondary}, Exchanges: []models.CapturedExchange{
			linked("msg-1"), linked("msg-2"), linked("msg-2"), {},
		}},
	}}

	res := engine.Evaluate(result)
	if res.Score <= 0.4 || res.Score > 1 {
		t.Fatalf("expected score in (0.4,1], got %f", res.Score)
	}
	if res.TopCause != "msg-2" || res.FanOut != 2 {
		t.Fatalf("expected msg-2 with fan-out 2, got %s/%d", res.TopCause, res.FanOut)
	}
	if len(res.Notes) != 2 {
		t.Fatalf("expected two notes, got %v", res.Notes)
	}
}

func TestCausalityEngineNoEvidence(t *testing.T) {
	engine := NewCausalityEngine(nil)
	res := engine.Evaluate(models.AnalysisResult{})
	if res.Score != 0 {
		t.Fatalf("expected zero score without data")
	}
}
