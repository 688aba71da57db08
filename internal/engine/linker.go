package engine

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-latency/internal/models"
)

// LinkConfig controls secondary-to-primary linking.
type LinkConfig struct {
	Tolerance time.Duration
}

// LinkResult holds linked copies of the secondary records in their input order.
type LinkResult struct {
	Records  []models.CapturedExchange
	Linked   int
	Unlinked int
}

// Linker chains a secondary exchange stream (e.g. RPC calls) to the primary stream by
// nearest preceding timestamp. Several secondary records may link to one primary record.
type Linker struct {
	cfg    LinkConfig
	logger *slog.Logger
}

// NewLinker constructs a Linker. A non-positive tolerance falls back to DefaultTolerance.
func NewLinker(cfg LinkConfig, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Linker{cfg: cfg, logger: logger}
}

// Link annotates each secondary record with the closest primary record that does not
// follow it, provided the gap is within tolerance.
func (l *Linker) Link(secondary, primary []models.CapturedExchange) LinkResult {
	result := LinkResult{Records: cloneExchanges(secondary)}
	if len(primary) == 0 {
		result.Unlinked = len(secondary)
		return result
	}

	sorted := append([]models.CapturedExchange(nil), primary...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	times := make([]float64, len(sorted))
	for i, rec := range sorted {
		times[i] = rec.Timestamp
	}

	tolerance := l.cfg.Tolerance.Seconds()
	for _, idx := range timestampOrder(result.Records) {
		rec := &result.Records[idx]
		// rightmost primary at or before the secondary timestamp
		pos := sort.Search(len(times), func(i int) bool { return times[i] > rec.Timestamp }) - 1

		best := -1
		bestDiff := math.Inf(1)
		for _, cand := range []int{pos, pos + 1} {
			if cand < 0 || cand >= len(sorted) {
				continue
			}
			diff := rec.Timestamp - times[cand]
			if diff < 0 {
				continue
			}
			if diff < bestDiff {
				best = cand
				bestDiff = diff
			}
		}

		if best < 0 || bestDiff > tolerance {
			result.Unlinked++
			continue
		}

		cause := sorted[best]
		ref := cause.CrossReferenceID()
		if ref == "" {
			ref = cause.Operation
		}
		rec.Link = &models.Link{
			CrossReferenceID: ref,
			PrimaryFrame:     cause.Frame,
			DelayMS:          bestDiff * 1000,
		}
		result.Linked++
		l.logger.Debug("secondary exchange linked", slog.String("frame", rec.Frame), slog.String("primary_frame", cause.Frame), slog.Float64("delay_ms", bestDiff*1000))
	}

	return result
}
