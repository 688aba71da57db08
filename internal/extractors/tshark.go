package extractors

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// DefaultTsharkPath is looked up on PATH when no explicit binary is configured.
const DefaultTsharkPath = "tshark"

var requestFields = []string{
	"frame.number",
	"frame.time_epoch",
	"http.request.method",
	"http.host",
	"http.request.uri",
	"http.file_data",
	"ip.src",
	"tcp.srcport",
	"ip.dst",
	"tcp.dstport",
}

var responseFields = []string{
	"frame.number",
	"frame.time_epoch",
	"ip.src",
	"tcp.srcport",
	"ip.dst",
	"tcp.dstport",
	"http.request.method",
	"http.host",
	"http.request.uri",
	"http.response.code",
	"http.time",
	"http.request_in",
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// TsharkSource extracts HTTP events by running tshark field queries against a capture.
type TsharkSource struct {
	binary string
	logger *slog.Logger
	run    commandRunner
}

// NewTsharkSource resolves the tshark binary. A missing binary is a setup error.
func NewTsharkSource(binary string, logger *slog.Logger) (*TsharkSource, error) {
	if binary == "" {
		binary = DefaultTsharkPath
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, utils.NewAppError("tshark", "tshark not found in PATH, install it (e.g. apt install tshark)", fmt.Errorf("%s: %w", binary, utils.ErrToolNotFound))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TsharkSource{binary: resolved, logger: logger, run: execRunner}, nil
}

// Events returns request events followed by response events for one port.
func (s *TsharkSource) Events(ctx context.Context, capturePath string, port int) ([]models.CapturedEvent, error) {
	path, cleanup, err := MaterializeCapture(capturePath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := s.run(ctx, s.binary, fieldArgs(path, fmt.Sprintf("http.request && tcp.dstport == %d", port), requestFields)...)
	if err != nil {
		return nil, fmt.Errorf("extract requests: %w", err)
	}
	events, skipped := parseRequestLines(out)

	out, err = s.run(ctx, s.binary, fieldArgs(path, fmt.Sprintf("http.time && tcp.port == %d", port), responseFields)...)
	if err != nil {
		return nil, fmt.Errorf("extract responses: %w", err)
	}
	responses, skippedResponses := parseResponseLines(out)
	events = append(events, responses...)

	if skipped+skippedResponses > 0 {
		s.logger.Info("tshark lines skipped", slog.Int("port", port), slog.Int("requests", skipped), slog.Int("responses", skippedResponses))
	}
	return events, nil
}

func fieldArgs(path, filter string, fields []string) []string {
	args := []string{"-r", path, "-Y", filter, "-T", "fields", "-E", "separator=/t", "-E", "occurrence=f"}
	for _, field := range fields {
		args = append(args, "-e", field)
	}
	return args
}

func splitFields(out []byte, want int, fn func(parts []string) bool) int {
	skipped := 0
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != want || !fn(parts) {
			skipped++
		}
	}
	return skipped
}

func parseRequestLines(out []byte) ([]models.CapturedEvent, int) {
	var events []models.CapturedEvent
	skipped := splitFields(out, len(requestFields), func(p []string) bool {
		ts, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return false
		}
		events = append(events, models.CapturedEvent{
			Kind:      models.EventRequest,
			Frame:     p[0],
			Timestamp: ts,
			Method:    p[2],
			Host:      p[3],
			URI:       p[4],
			Payload:   p[5],
			Src:       models.Endpoint{IP: p[6], Port: p[7]},
			Dst:       models.Endpoint{IP: p[8], Port: p[9]},
		})
		return true
	})
	return events, skipped
}

func parseResponseLines(out []byte) ([]models.CapturedEvent, int) {
	var events []models.CapturedEvent
	skipped := splitFields(out, len(responseFields), func(p []string) bool {
		ts, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return false
		}
		events = append(events, models.CapturedEvent{
			Kind:      models.EventResponse,
			Frame:     p[0],
			Timestamp: ts,
			Src:       models.Endpoint{IP: p[2], Port: p[3]},
			Dst:       models.Endpoint{IP: p[4], Port: p[5]},
			Method:    p[6],
			Host:      p[7],
			URI:       p[8],
			Status:    p[9],
			Latency:   p[10],
			RequestIn: p[11],
		})
		return true
	})
	return events, skipped
}
