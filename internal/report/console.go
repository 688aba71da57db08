package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/miradorstack/mirador-latency/internal/models"
)

var (
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
)

// maxConsoleOperations caps the operation table printed per target.
const maxConsoleOperations = 10

func line(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func summaryLines(summary models.Summary) []string {
	lines := []string{line("Count", fmt.Sprintf("%d", summary.Count()))}
	if summary.Count() == 0 {
		return append(lines, warnStyle.Render("no exchanges with a numeric latency"))
	}
	for _, key := range models.SummaryMetricOrder[1:] {
		if v, ok := summary.Value(key); ok {
			lines = append(lines, line(MetricLabel(key), fmt.Sprintf("%.2f", v*1000)))
		}
	}
	return append(lines, operationLines(summary.Operations, "%.0f")...)
}

func operationLines(ops []models.OperationCount, format string) []string {
	if len(ops) == 0 {
		return nil
	}
	lines := []string{titleStyle.Render("Operations")}
	for i, op := range ops {
		if i == maxConsoleOperations {
			lines = append(lines, valueStyle.Render(fmt.Sprintf("  … %d more", len(ops)-i)))
			break
		}
		lines = append(lines, "  "+valueStyle.Render(fmt.Sprintf(format, op.Count))+"  "+op.Operation)
	}
	return lines
}

// RenderResult prints one panel per target followed by correlation statistics.
func RenderResult(w io.Writer, result models.AnalysisResult) error {
	panels := make([]string, 0, len(result.Targets)+1)
	for _, tr := range result.Targets {
		lines := []string{titleStyle.Render(fmt.Sprintf("%s (port %d, %s)", tr.Target.Name, tr.Target.Port, tr.Target.Role))}
		lines = append(lines, summaryLines(tr.Summary)...)
		if n := len(tr.Outliers); n > 0 {
			frames := make([]string, 0, n)
			for _, o := range tr.Outliers {
				frames = append(frames, o.Frame)
			}
			lines = append(lines, warnStyle.Render(fmt.Sprintf("%d slow or failed exchanges (frames %s)", n, strings.Join(frames, ", "))))
		}
		if tr.Pairing.Dropped > 0 || tr.Pairing.Malformed > 0 {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("dropped %d responses, %d malformed latencies", tr.Pairing.Dropped, tr.Pairing.Malformed)))
		}
		panels = append(panels, panelStyle.Render(strings.Join(lines, "\n")))
	}

	stats := []string{
		titleStyle.Render("Correlation"),
		line("Run", result.RunID),
		line("Log events", fmt.Sprintf("%d", result.Stats.LogEvents)),
		line("Matched", fmt.Sprintf("%d", result.Stats.Matched)),
		line("Unmatched", fmt.Sprintf("%d", result.Stats.Unmatched)),
		line("Linked", fmt.Sprintf("%d", result.Stats.Linked)),
		line("Unlinked", fmt.Sprintf("%d", result.Stats.Unlinked)),
	}
	if result.Causality.Score > 0 {
		stats = append(stats, line("Causality", fmt.Sprintf("%.2f", result.Causality.Score)))
	}
	for _, note := range result.Causality.Notes {
		stats = append(stats, "  "+note)
	}
	for _, finding := range result.Findings {
		stats = append(stats, warnStyle.Render("! "+finding))
	}
	for _, path := range result.Reports {
		stats = append(stats, okStyle.Render("saved "+path))
	}
	panels = append(panels, panelStyle.Render(strings.Join(stats, "\n")))

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, panels...))
	return err
}

// RenderAverages prints the averaged summary of every suffix.
func RenderAverages(w io.Writer, averages []models.RunsAverage) error {
	panels := make([]string, 0, len(averages))
	for _, avg := range averages {
		missing := "none"
		if len(avg.Missing) > 0 {
			missing = strings.Join(avg.Missing, ", ")
		}
		lines := []string{
			titleStyle.Render(avg.Suffix),
			line("Runs considered", fmt.Sprintf("%d (missing: %s)", len(avg.Found), missing)),
		}
		if len(avg.Found) == 0 {
			lines = append(lines, warnStyle.Render("no summary files found"))
			panels = append(panels, panelStyle.Render(strings.Join(lines, "\n")))
			continue
		}
		for _, row := range SummaryRows(avg.Summary, true)[1:] {
			if strings.HasPrefix(row[0], OperationPrefix) {
				continue
			}
			lines = append(lines, line(row[0], row[1]))
		}
		lines = append(lines, operationLines(avg.Summary.Operations, "%.2f")...)
		if avg.Output != "" {
			lines = append(lines, okStyle.Render("saved "+avg.Output))
		}
		panels = append(panels, panelStyle.Render(strings.Join(lines, "\n")))
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, panels...))
	return err
}
