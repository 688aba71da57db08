package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-latency/internal/models"
)

func request(frame string, ts float64, payload string) models.CapturedEvent {
	return models.CapturedEvent{
		Kind:      models.EventRequest,
		Frame:     frame,
		Timestamp: ts,
		Src:       models.Endpoint{IP: "10.0.0.1", Port: "50000"},
		Dst:       models.Endpoint{IP: "10.0.0.2", Port: "3000"},
		Method:    "POST",
		Host:      "mediator:3000",
		URI:       "/messaging",
		Payload:   payload,
	}
}

func response(frame string, ts float64, requestIn, latency string) models.CapturedEvent {
	return models.CapturedEvent{
		Kind:      models.EventResponse,
		Frame:     frame,
		Timestamp: ts,
		Src:       models.Endpoint{IP: "10.0.0.2", Port: "3000"},
		Dst:       models.Endpoint{IP: "10.0.0.1", Port: "50000"},
		Status:    "200",
		Latency:   latency,
		RequestIn: requestIn,
	}
}

func TestPairerBuildsExchanges(t *testing.T) {
	pairer := NewPairer(DefaultPairerConfig(), nil)
	res := pairer.Pair([]models.CapturedEvent{
		request("1", 100.0, `{"method":"eth_call","id":1}`),
		request("2", 100.5, `{"id":"msg-7"}`),
		response("3", 100.2, "1", "0.2"),
		response("4", 100.6, "2,5", "0.1"),
	})

	require.Len(t, res.Exchanges, 2)
	first := res.Exchanges[0]
	assert.Equal(t, "3", first.Frame)
	assert.Equal(t, 100.2, first.Timestamp)
	assert.Equal(t, 100.0, first.RequestTimestamp)
	assert.Equal(t, "eth_call", first.Operation)
	assert.Equal(t, "1", first.PayloadID)
	assert.Equal(t, "10.0.0.1", first.Src.IP)
	assert.Equal(t, "POST", first.Method)
	assert.Equal(t, "/messaging", first.URI)
	assert.InDelta(t, 0.2, first.Latency, 1e-9)

	second := res.Exchanges[1]
	assert.Equal(t, "msg-7", second.Operation)
	assert.Equal(t, 2, res.Stats.Requests)
	assert.Equal(t, 2, res.Stats.Responses)
	assert.Zero(t, res.Stats.Dropped)
}

func TestPairerDropsResponseWithoutRequest(t *testing.T) {
	pairer := NewPairer(DefaultPairerConfig(), nil)
	res := pairer.Pair([]models.CapturedEvent{
		response("9", 10, "404", "0.1"),
		response("10", 11, "", "0.1"),
	})

	assert.Empty(t, res.Exchanges)
	assert.Equal(t, 2, res.Stats.Dropped)
}

func TestPairerMalformedLatencyBecomesNaN(t *testing.T) {
	pairer := NewPairer(DefaultPairerConfig(), nil)
	res := pairer.Pair([]models.CapturedEvent{
		request("1", 1, ""),
		response("2", 2, "1", "n/a"),
	})

	require.Len(t, res.Exchanges, 1)
	assert.True(t, math.IsNaN(res.Exchanges[0].Latency))
	assert.Equal(t, models.UnknownOperation, res.Exchanges[0].Operation)
	assert.Equal(t, 1, res.Stats.Malformed)
}

func TestPairerDuplicateResponsePolicy(t *testing.T) {
	events := []models.CapturedEvent{
		request("1", 1, `{"method":"eth_call"}`),
		response("2", 2, "1", "1.0"),
		response("3", 3, "1", "2.0"),
	}

	lenient := NewPairer(DefaultPairerConfig(), nil).Pair(events)
	require.Len(t, lenient.Exchanges, 2)
	assert.Equal(t, "eth_call", lenient.Exchanges[1].Operation)
	assert.Equal(t, 1, lenient.Stats.Duplicates)

	strict := NewPairer(PairerConfig{RetainMatchedRequests: false}, nil).Pair(events)
	require.Len(t, strict.Exchanges, 1)
	assert.Equal(t, "2", strict.Exchanges[0].Frame)
	assert.Equal(t, 1, strict.Stats.Duplicates)
	assert.Equal(t, 1, strict.Stats.Dropped)
}
