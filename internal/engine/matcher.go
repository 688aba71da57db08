package engine

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// DefaultTolerance is the matching window used when a config leaves it unset.
const DefaultTolerance = 5 * time.Second

// MatchConfig controls temporal matching of exchanges against the event log.
type MatchConfig struct {
	Tolerance time.Duration
	// HubActor is the intermediary identity; events it originated invert the capture direction.
	HubActor string
	// ResponseTypes are event types that always travel opposite to the captured request.
	ResponseTypes []string
}

// MatchResult holds annotated copies of the inputs. Records keep their input order;
// Events are sorted by timestamp with Consumed set on matched entries.
type MatchResult struct {
	Records   []models.CapturedExchange
	Events    []models.LogEvent
	Matched   int
	Unmatched int
}

// Matcher aligns exchanges with independently clocked log events.
type Matcher struct {
	cfg           MatchConfig
	responseTypes map[string]struct{}
	logger        *slog.Logger
}

// NewMatcher constructs a Matcher. A non-positive tolerance falls back to DefaultTolerance.
func NewMatcher(cfg MatchConfig, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	types := make(map[string]struct{}, len(cfg.ResponseTypes))
	for _, t := range cfg.ResponseTypes {
		types[t] = struct{}{}
	}
	return &Matcher{cfg: cfg, responseTypes: types, logger: logger}
}

// Match pairs each exchange with at most one unconsumed event whose timestamp lies within
// the tolerance of the exchange anchor, preferring the closest. A monotonic cursor over the
// sorted events means records are visited in timestamp order and never reach back before
// the previous match.
func (m *Matcher) Match(records []models.CapturedExchange, events []models.LogEvent) MatchResult {
	result := MatchResult{
		Records: cloneExchanges(records),
		Events:  append([]models.LogEvent(nil), events...),
	}
	sort.SliceStable(result.Events, func(i, j int) bool {
		return result.Events[i].Timestamp < result.Events[j].Timestamp
	})

	order := timestampOrder(result.Records)
	tolerance := m.cfg.Tolerance.Seconds()
	cursor := 0

	for _, idx := range order {
		rec := &result.Records[idx]
		anchor := rec.Anchor()

		best := -1
		bestDiff := math.Inf(1)
		for i := cursor; i < len(result.Events); i++ {
			ev := result.Events[i]
			if ev.Timestamp > anchor+tolerance {
				break
			}
			if ev.Consumed {
				continue
			}
			diff := math.Abs(ev.Timestamp - anchor)
			if diff <= tolerance && diff < bestDiff {
				best = i
				bestDiff = diff
			}
		}

		if best < 0 {
			result.Unmatched++
			continue
		}

		ev := &result.Events[best]
		ev.Consumed = true
		cursor = best
		result.Matched++
		m.annotate(rec, *ev, (ev.Timestamp-anchor)*1000)
		m.logger.Debug("exchange matched", slog.String("frame", rec.Frame), slog.String("event_id", ev.ID), slog.Float64("diff_s", bestDiff))
	}

	return result
}

func (m *Matcher) annotate(rec *models.CapturedExchange, ev models.LogEvent, deltaMS float64) {
	ann := &models.Annotation{
		EventID:   ev.ID,
		EventType: ev.Type,
		Actor:     ev.From,
		DeltaMS:   deltaMS,
	}
	if ev.Type != "" {
		rec.Operation = ev.Type
	}
	if ev.ID != "" {
		rec.PayloadID = ev.ID
	}
	if m.invertsDirection(ev) {
		rec.Src, rec.Dst = rec.Dst, rec.Src
		ann.Swapped = true
	}
	rec.Annotation = ann
}

func (m *Matcher) invertsDirection(ev models.LogEvent) bool {
	if m.cfg.HubActor != "" && ev.From == m.cfg.HubActor {
		return true
	}
	_, ok := m.responseTypes[ev.Type]
	return ok
}

// timestampOrder returns record indices in stable timestamp order.
func timestampOrder(records []models.CapturedExchange) []int {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Timestamp < records[order[b]].Timestamp
	})
	return order
}

func cloneExchanges(records []models.CapturedExchange) []models.CapturedExchange {
	out := make([]models.CapturedExchange, len(records))
	for i, rec := range records {
		out[i] = rec
		if rec.Annotation != nil {
			ann := *rec.Annotation
			out[i].Annotation = &ann
		}
		if rec.Link != nil {
			link := *rec.Link
			out[i].Link = &link
		}
	}
	return out
}
