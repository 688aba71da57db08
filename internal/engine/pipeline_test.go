package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-latency/internal/models"
)

type fakeCapture struct {
	byPort map[int][]models.CapturedEvent
	err    error
	calls  []int
}

func (f *fakeCapture) Events(ctx context.Context, capturePath string, port int) ([]models.CapturedEvent, error) {
	f.calls = append(f.calls, port)
	if f.err != nil {
		return nil, f.err
	}
	return f.byPort[port], nil
}

type fakeEvents struct {
	log models.EventLog
	err error
}

func (f fakeEvents) LoadEvents(ctx context.Context) (models.EventLog, error) {
	return f.log, f.err
}

func testTargets() []models.Target {
	return []models.Target{
		{Name: "mediator", Port: 3000, Role: models.RolePrimary, Suffix: "mediator"},
		{Name: "rpc", Port: 8545, Role: models.RoleSecondary, Suffix: "rpc"},
	}
}

func scenarioCapture() *fakeCapture {
	return &fakeCapture{byPort: map[int][]models.CapturedEvent{
		3000: {
			request("1", 100.0, `{"id":"m-1"}`),
			response("2", 100.010, "1", "0.010"),
			request("3", 200.0, `{"id":"m-2"}`),
			response("4", 200.020, "3", "0.020"),
			request("5", 300.0, `{"id":"m-3"}`),
			response("6", 300.030, "5", "0.030"),
		},
		8545: {
			request("7", 201.0, `{"jsonrpc":"2.0","method":"eth_sendRawTransaction","id":4}`),
			response("8", 201.050, "7", "0.050"),
		},
	}}
}

func TestPipelineAnalyzeEndToEnd(t *testing.T) {
	capture := scenarioCapture()
	events := fakeEvents{log: models.EventLog{Events: []models.LogEvent{
		{ID: "evt-1", Type: "https://didcomm.org/basicmessage/2.0/message", Timestamp: 202.0, From: "did:web:alice"},
	}}}
	pipeline := NewPipeline(nil, capture, Config{
		Targets: testTargets(),
		Pairer:  DefaultPairerConfig(),
		Match:   MatchConfig{Tolerance: 5 * time.Second},
		Link:    LinkConfig{Tolerance: 5 * time.Second},
	})

	result, err := pipeline.Analyze(context.Background(), "run.pcapng", events)
	require.NoError(t, err)
	assert.Equal(t, "run.pcapng", result.Capture)
	assert.Equal(t, []int{3000, 8545}, capture.calls)

	mediator, ok := result.Target("mediator")
	require.True(t, ok)
	require.Len(t, mediator.Exchanges, 3)
	assert.Nil(t, mediator.Exchanges[0].Annotation)
	require.NotNil(t, mediator.Exchanges[1].Annotation)
	assert.Equal(t, "evt-1", mediator.Exchanges[1].Annotation.EventID)
	assert.InDelta(t, 2000.0, mediator.Exchanges[1].Annotation.DeltaMS, 1e-6)
	assert.Nil(t, mediator.Exchanges[2].Annotation)

	assert.Equal(t, 3, mediator.Summary.Count())
	assert.InDelta(t, 0.010, mediator.Summary.Metrics[models.MetricMin], 1e-12)
	assert.InDelta(t, 0.030, mediator.Summary.Metrics[models.MetricMax], 1e-12)
	assert.InDelta(t, 0.020, mediator.Summary.Metrics[models.MetricAvg], 1e-12)

	rpc, ok := result.Target("rpc")
	require.True(t, ok)
	require.Len(t, rpc.Exchanges, 1)
	require.NotNil(t, rpc.Exchanges[0].Link)
	assert.Equal(t, "evt-1", rpc.Exchanges[0].Link.CrossReferenceID)
	assert.Equal(t, "4", rpc.Exchanges[0].Link.PrimaryFrame)
	assert.Equal(t, []models.OperationCount{{Operation: "eth_sendRawTransaction", Count: 1}}, rpc.Summary.Operations)

	assert.Equal(t, models.RunStats{LogEvents: 1, Matched: 1, Unmatched: 2, Linked: 1}, result.Stats)
	assert.Equal(t, "evt-1", result.Causality.TopCause)
	assert.Empty(t, result.Findings)
}

func TestPipelineWithoutEventLog(t *testing.T) {
	pipeline := NewPipeline(nil, scenarioCapture(), Config{Targets: testTargets()})

	result, err := pipeline.Analyze(context.Background(), "run.pcapng", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Unmatched)
	assert.Zero(t, result.Stats.Matched)

	// secondaries still link by time, falling back to the primary operation
	rpc, _ := result.Target("rpc")
	require.NotNil(t, rpc.Exchanges[0].Link)
	assert.Equal(t, "m-2", rpc.Exchanges[0].Link.CrossReferenceID)
}

func TestPipelineEmptyInputs(t *testing.T) {
	pipeline := NewPipeline(nil, &fakeCapture{}, Config{Targets: testTargets()})

	result, err := pipeline.Analyze(context.Background(), "empty.pcap", fakeEvents{})
	require.NoError(t, err)
	require.Len(t, result.Targets, 2)
	for _, tr := range result.Targets {
		assert.Equal(t, 0, tr.Summary.Count())
		assert.Len(t, tr.Summary.Metrics, 1)
	}
	assert.Equal(t, models.RunStats{}, result.Stats)
}

func TestPipelineSetupFailures(t *testing.T) {
	boom := errors.New("tshark missing")

	_, err := NewPipeline(nil, &fakeCapture{err: boom}, Config{Targets: testTargets()}).
		Analyze(context.Background(), "x.pcap", nil)
	require.ErrorIs(t, err, boom)

	capture := &fakeCapture{}
	_, err = NewPipeline(nil, capture, Config{Targets: testTargets()}).
		Analyze(context.Background(), "x.pcap", fakeEvents{err: boom})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, capture.calls)

	_, err = NewPipeline(nil, capture, Config{}).Analyze(context.Background(), "x.pcap", nil)
	require.Error(t, err)
}
