package extractors

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/miradorstack/mirador-latency/internal/models"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// maxHeaderBytes bounds how much of a direction is buffered while waiting for a header block.
const maxHeaderBytes = 1 << 16

// NativeSource reads pcap and pcapng captures in-process and reconstructs HTTP/1.x
// messages per TCP direction. It needs no external tools but only understands plain
// HTTP (no TLS, no HTTP/2).
type NativeSource struct {
	logger *slog.Logger
}

// NewNativeSource constructs a NativeSource.
func NewNativeSource(logger *slog.Logger) *NativeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeSource{logger: logger}
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

type connKey struct {
	client string
	server string
}

type pendingRequest struct {
	frame string
	at    time.Time
}

type nativeState struct {
	port        int
	streams     map[string][]byte
	outstanding map[connKey][]pendingRequest
	events      []models.CapturedEvent
	malformed   int
}

// Events decodes every packet of the capture and returns the HTTP requests sent to port
// and the responses coming back from it, in completion order.
func (s *NativeSource) Events(ctx context.Context, capturePath string, port int) ([]models.CapturedEvent, error) {
	rc, err := OpenCapture(capturePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader, err := newPacketReader(rc)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	state := &nativeState{
		port:        port,
		streams:     make(map[string][]byte),
		outstanding: make(map[connKey][]pendingRequest),
	}
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	frame := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("capture truncated", slog.String("capture", capturePath), slog.Int("frames", frame), slog.String("error", err.Error()))
			break
		}
		frame++
		state.handle(packet, frame)
	}

	if state.malformed > 0 {
		s.logger.Info("unparseable http segments discarded", slog.Int("port", port), slog.Int("segments", state.malformed))
	}
	return state.events, nil
}

func newPacketReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

func (st *nativeState) handle(packet gopacket.Packet, frame int) {
	netLayer := packet.NetworkLayer()
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if netLayer == nil || tcpLayer == nil {
		return
	}
	tcp, _ := tcpLayer.(*layers.TCP)
	if tcp == nil || len(tcp.Payload) == 0 {
		return
	}
	srcIP, dstIP := netLayer.NetworkFlow().Endpoints()
	src := models.Endpoint{IP: srcIP.String(), Port: strconv.Itoa(int(tcp.SrcPort))}
	dst := models.Endpoint{IP: dstIP.String(), Port: strconv.Itoa(int(tcp.DstPort))}
	at := packet.Metadata().Timestamp

	switch {
	case int(tcp.DstPort) == st.port:
		st.feedRequests(src, dst, tcp.Payload, strconv.Itoa(frame), at)
	case int(tcp.SrcPort) == st.port:
		st.feedResponses(src, dst, tcp.Payload, strconv.Itoa(frame), at)
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func streamID(src, dst models.Endpoint) string {
	return net.JoinHostPort(src.IP, src.Port) + ">" + net.JoinHostPort(dst.IP, dst.Port)
}

func (st *nativeState) feedRequests(src, dst models.Endpoint, payload []byte, frame string, at time.Time) {
	id := streamID(src, dst)
	buf := append(st.streams[id], payload...)
	for len(buf) > 0 && headerComplete(buf) {
		req, body, n, err := readHTTPRequest(buf)
		if err != nil {
			if !incomplete(err) {
				st.malformed++
				buf = nil
			}
			break
		}
		buf = buf[n:]
		st.events = append(st.events, models.CapturedEvent{
			Kind:      models.EventRequest,
			Frame:     frame,
			Timestamp: epochSeconds(at),
			Src:       src,
			Dst:       dst,
			Method:    req.Method,
			Host:      req.Host,
			URI:       req.RequestURI,
			Payload:   string(body),
		})
		key := connKey{client: src.String(), server: dst.String()}
		st.outstanding[key] = append(st.outstanding[key], pendingRequest{frame: frame, at: at})
	}
	st.keep(id, buf)
}

func (st *nativeState) feedResponses(src, dst models.Endpoint, payload []byte, frame string, at time.Time) {
	id := streamID(src, dst)
	buf := append(st.streams[id], payload...)
	for len(buf) > 0 && headerComplete(buf) {
		resp, n, err := readHTTPResponse(buf)
		if err != nil {
			if !incomplete(err) {
				st.malformed++
				buf = nil
			}
			break
		}
		buf = buf[n:]
		if resp.StatusCode < http.StatusOK {
			continue
		}
		ev := models.CapturedEvent{
			Kind:      models.EventResponse,
			Frame:     frame,
			Timestamp: epochSeconds(at),
			Src:       src,
			Dst:       dst,
			Status:    strconv.Itoa(resp.StatusCode),
		}
		key := connKey{client: dst.String(), server: src.String()}
		if queue := st.outstanding[key]; len(queue) > 0 {
			req := queue[0]
			st.outstanding[key] = queue[1:]
			ev.RequestIn = req.frame
			ev.Latency = strconv.FormatFloat(at.Sub(req.at).Seconds(), 'f', 9, 64)
		}
		st.events = append(st.events, ev)
	}
	st.keep(id, buf)
}

func (st *nativeState) keep(id string, buf []byte) {
	if len(buf) > maxHeaderBytes && !headerComplete(buf) {
		st.malformed++
		buf = nil
	}
	st.streams[id] = buf
}

// headerComplete reports whether buf holds a full header block. Partial header lines do not
// parse as EOF, so they must not reach the HTTP reader.
func headerComplete(buf []byte) bool {
	return bytes.Contains(buf, []byte("\r\n\r\n"))
}

func incomplete(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// readHTTPRequest parses one request from buf and reports how many bytes it used.
func readHTTPRequest(buf []byte) (*http.Request, []byte, int, error) {
	raw := bytes.NewReader(buf)
	rd := bufio.NewReader(raw)
	req, err := http.ReadRequest(rd)
	if err != nil {
		return nil, nil, 0, err
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, nil, 0, err
	}
	return req, body, len(buf) - raw.Len() - rd.Buffered(), nil
}

func readHTTPResponse(buf []byte) (*http.Response, int, error) {
	raw := bytes.NewReader(buf)
	rd := bufio.NewReader(raw)
	resp, err := http.ReadResponse(rd, nil)
	if err != nil {
		return nil, 0, err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return nil, 0, err
	}
	return resp, len(buf) - raw.Len() - rd.Buffered(), nil
}
