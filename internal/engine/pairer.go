package engine

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-latency/internal/extractors"
	"github.com/miradorstack/mirador-latency/internal/models"
)

// PairerConfig tunes request/response reconstruction.
type PairerConfig struct {
	// RetainMatchedRequests keeps a request available after its first response, so a
	// duplicate response (retransmission, capture artefact) yields another exchange reusing
	// the same request context. When false, duplicates are dropped.
	RetainMatchedRequests bool
}

// DefaultPairerConfig returns the lenient capture-tolerant behaviour.
func DefaultPairerConfig() PairerConfig {
	return PairerConfig{RetainMatchedRequests: true}
}

// PairResult carries the exchanges plus what could not be paired.
type PairResult struct {
	Exchanges []models.CapturedExchange
	Stats     models.PairStats
}

// Pairer reconstructs request/response exchanges from packet-level events of one port.
type Pairer struct {
	cfg    PairerConfig
	logger *slog.Logger
}

// NewPairer constructs a Pairer.
func NewPairer(cfg PairerConfig, logger *slog.Logger) *Pairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pairer{cfg: cfg, logger: logger}
}

type heldRequest struct {
	event     models.CapturedEvent
	operation string
	payloadID string
	answered  bool
}

// Pair walks events in order, holding requests until a response references them.
func (p *Pairer) Pair(events []models.CapturedEvent) PairResult {
	held := make(map[string]*heldRequest)
	result := PairResult{Exchanges: make([]models.CapturedExchange, 0, len(events)/2)}

	for _, ev := range events {
		switch ev.Kind {
		case models.EventRequest:
			result.Stats.Requests++
			method, id := extractors.DecodeRPC(ev.Payload)
			operation := method
			if operation == "" {
				operation = id
			}
			if operation == "" {
				operation = models.UnknownOperation
			}
			held[ev.Frame] = &heldRequest{event: ev, operation: operation, payloadID: id}

		case models.EventResponse:
			result.Stats.Responses++
			ref := firstReference(ev.RequestIn)
			req, ok := held[ref]
			if ref == "" || !ok {
				result.Stats.Dropped++
				p.logger.Debug("response without resolvable request", slog.String("frame", ev.Frame), slog.String("request_in", ev.RequestIn))
				continue
			}
			if req.answered {
				result.Stats.Duplicates++
				if !p.cfg.RetainMatchedRequests {
					result.Stats.Dropped++
					continue
				}
			}
			req.answered = true

			latency, err := strconv.ParseFloat(strings.TrimSpace(ev.Latency), 64)
			if err != nil {
				latency = math.NaN()
				result.Stats.Malformed++
			}

			result.Exchanges = append(result.Exchanges, buildExchange(ev, req, latency))
		}
	}

	return result
}

func buildExchange(resp models.CapturedEvent, req *heldRequest, latency float64) models.CapturedExchange {
	src, dst := req.event.Src, req.event.Dst
	if src == (models.Endpoint{}) {
		// responses travel the other way
		src, dst = resp.Dst, resp.Src
	}
	return models.CapturedExchange{
		Frame:            resp.Frame,
		Timestamp:        resp.Timestamp,
		RequestTimestamp: req.event.Timestamp,
		Src:              src,
		Dst:              dst,
		Method:           firstNonEmpty(resp.Method, req.event.Method),
		Host:             firstNonEmpty(resp.Host, req.event.Host),
		URI:              firstNonEmpty(resp.URI, req.event.URI),
		Status:           resp.Status,
		Latency:          latency,
		Operation:        req.operation,
		PayloadID:        req.payloadID,
	}
}

// firstReference takes the first frame of a comma separated back-reference list.
func firstReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, ','); i >= 0 {
		ref = ref[:i]
	}
	return strings.TrimSpace(ref)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
