package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// TargetMessage is the published form of one target summary.
type TargetMessage struct {
	Name       string                  `json:"name"`
	Port       int                     `json:"port"`
	Role       string                  `json:"role"`
	Metrics    map[string]float64      `json:"metrics"`
	Operations []models.OperationCount `json:"operations,omitempty"`
	Dropped    int                     `json:"dropped"`
	Malformed  int                     `json:"malformed"`
	Outliers   []string                `json:"outlier_frames,omitempty"`
}

// ResultMessage is the JSON document published after each analysis.
type ResultMessage struct {
	RunID     string          `json:"run_id"`
	Capture   string          `json:"capture"`
	CreatedAt time.Time       `json:"created_at"`
	Targets   []TargetMessage `json:"targets"`
	Stats     models.RunStats `json:"stats"`
	Causality float64         `json:"causality_score"`
	Findings  []string        `json:"findings,omitempty"`
}

// NewResultMessage flattens a result, leaving out per-exchange records.
func NewResultMessage(result models.AnalysisResult) ResultMessage {
	msg := ResultMessage{
		RunID:     result.RunID,
		Capture:   result.Capture,
		CreatedAt: result.CreatedAt,
		Stats:     result.Stats,
		Causality: result.Causality.Score,
		Findings:  result.Findings,
	}
	for _, tr := range result.Targets {
		var frames []string
		for _, o := range tr.Outliers {
			frames = append(frames, o.Frame)
		}
		msg.Targets = append(msg.Targets, TargetMessage{
			Name:       tr.Target.Name,
			Port:       tr.Target.Port,
			Role:       string(tr.Target.Role),
			Metrics:    tr.Summary.Metrics,
			Operations: tr.Summary.Operations,
			Dropped:    tr.Pairing.Dropped,
			Malformed:  tr.Pairing.Malformed,
			Outliers:   frames,
		})
	}
	return msg
}

// NATSPublisher publishes analysis results on a subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, timeout time.Duration, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nc, err := nats.Connect(url, nats.Name("mirador-latency"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, subject: subject, timeout: timeout, logger: logger}, nil
}

// Publish sends the result and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, result models.AnalysisResult) error {
	data, err := json.Marshal(NewResultMessage(result))
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	p.logger.Debug("result published", slog.String("subject", p.subject), slog.String("run_id", result.RunID), slog.Int("bytes", len(data)))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
