package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// RuleEngine turns latency summaries into findings using a YAML rule file.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single latency budget.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. A rule without a metric only
// checks the target and operations.
type RuleMatch struct {
	Target            string   `yaml:"target"`
	Metric            string   `yaml:"metric"`
	AboveMS           float64  `yaml:"above_ms"`
	OperationContains []string `yaml:"operation_contains"`
	MinUnmatched      int      `yaml:"min_unmatched"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or missing, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend returns the deduplicated recommendations of every rule matching any target.
func (e *RuleEngine) Recommend(result models.AnalysisResult) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		for _, tr := range result.Targets {
			if rule.Match.Target != "" && !strings.EqualFold(rule.Match.Target, tr.Target.Name) {
				continue
			}
			if !metricExceeds(rule.Match, tr.Summary) {
				continue
			}
			if !operationsContain(rule.Match.OperationContains, tr.Summary.Operations) {
				continue
			}
			if rule.Match.MinUnmatched > 0 && result.Stats.Unmatched < rule.Match.MinUnmatched {
				continue
			}
			e.logger.Debug("latency rule matched", slog.String("rule", rule.ID), slog.String("target", tr.Target.Name))
			matched = appendUnique(matched, rule.Recommendations...)
		}
	}
	return matched
}

func metricExceeds(match RuleMatch, summary models.Summary) bool {
	if match.Metric == "" {
		return true
	}
	value, ok := summary.Value(match.Metric)
	if !ok {
		return false
	}
	if match.Metric == models.MetricCount {
		return value > match.AboveMS
	}
	return value*1000 > match.AboveMS
}

func operationsContain(keywords []string, ops []models.OperationCount) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, op := range ops {
		name := strings.ToLower(op.Operation)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
