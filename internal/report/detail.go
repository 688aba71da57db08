package report

import (
	"fmt"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

var detailHeader = []string{
	"Frame",
	"Timestamp",
	"Time",
	"Src",
	"Dst",
	"Method",
	"URI",
	"Status",
	"Operation",
	"Payload ID",
	"Cross Reference",
	"Delta (ms)",
	"Latency (ms)",
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// DetailRows renders one row per exchange in the given order.
func DetailRows(records []models.CapturedExchange) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, detailHeader)
	for _, rec := range records {
		delta := "-"
		if ms, ok := rec.SecondaryDelayMS(); ok {
			delta = fmt.Sprintf("%.2f", ms)
		}
		latency := "-"
		if rec.HasLatency() {
			latency = fmt.Sprintf("%.2f", rec.Latency*1000)
		}
		rows = append(rows, []string{
			rec.Frame,
			fmt.Sprintf("%.6f", rec.Timestamp),
			utils.FormatEpoch(rec.Timestamp),
			rec.Src.String(),
			rec.Dst.String(),
			orDash(rec.Method),
			orDash(rec.URI),
			orDash(rec.Status),
			orDash(rec.Operation),
			orDash(rec.PayloadID),
			orDash(rec.CrossReferenceID()),
			delta,
			latency,
		})
	}
	return rows
}

// WriteDetails writes the per-exchange CSV. Nothing is written for an empty set and the
// boolean reports whether a file was produced.
func WriteDetails(path string, records []models.CapturedExchange) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}
	if err := writeCSV(path, DetailRows(records)); err != nil {
		return false, err
	}
	return true, nil
}
