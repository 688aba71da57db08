package extractors

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

type segment struct {
	at      time.Time
	src     net.IP
	dst     net.IP
	srcPort uint16
	dstPort uint16
	payload string
}

var (
	clientIP = net.IP{10, 0, 0, 1}
	serverIP = net.IP{10, 0, 0, 2}
	base     = time.Unix(1700000000, 0)
)

func toServer(offset time.Duration, payload string) segment {
	return segment{at: base.Add(offset), src: clientIP, dst: serverIP, srcPort: 50000, dstPort: 3000, payload: payload}
}

func toClient(offset time.Duration, payload string) segment {
	return segment{at: base.Add(offset), src: serverIP, dst: clientIP, srcPort: 3000, dstPort: 50000, payload: payload}
}

func encodeSegment(t *testing.T, s segment) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: s.src, DstIP: s.dst}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(s.srcPort), DstPort: layers.TCPPort(s.dstPort), PSH: true, ACK: true, Seq: 1, Window: 65535}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload([]byte(s.payload))))
	return buf.Bytes()
}

func writePcap(t *testing.T, path string, compress bool, segments ...segment) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var sink io.Writer = f
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(f)
		require.NoError(t, err)
		sink = enc
	}

	w := pcapgo.NewWriter(sink)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, s := range segments {
		data := encodeSegment(t, s)
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: s.at, CaptureLength: len(data), Length: len(data)}, data))
	}
	if enc != nil {
		require.NoError(t, enc.Close())
	}
}

const rpcBody = `{"jsonrpc":"2.0","method":"eth_chainId","id":7}`

func exchangeSegments() []segment {
	request := "POST /rpc HTTP/1.1\r\nHost: anvil:3000\r\nContent-Type: application/json\r\nContent-Length: 47\r\n\r\n" + rpcBody
	response := "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 40\r\n\r\n" + `{"jsonrpc":"2.0","id":7,"result":"0x1"}` + " "
	return []segment{
		toServer(0, request[:40]),
		toServer(10*time.Millisecond, request[40:]),
		toClient(250*time.Millisecond, response),
		// unrelated traffic on another port
		{at: base.Add(time.Second), src: clientIP, dst: serverIP, srcPort: 50001, dstPort: 8545, payload: "GET / HTTP/1.1\r\nHost: x\r\n\r\n"},
	}
}

func TestNativeSourceReconstructsExchanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap")
	writePcap(t, path, false, exchangeSegments()...)

	events, err := NewNativeSource(utils.NewLogger("error", false)).Events(context.Background(), path, 3000)
	require.NoError(t, err)
	require.Len(t, events, 2)

	req := events[0]
	assert.Equal(t, models.EventRequest, req.Kind)
	assert.Equal(t, "2", req.Frame)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "anvil:3000", req.Host)
	assert.Equal(t, "/rpc", req.URI)
	assert.Equal(t, rpcBody, req.Payload)
	assert.Equal(t, "10.0.0.1:50000", req.Src.String())
	assert.Equal(t, "eth_chainId", Decode(req.Payload))

	resp := events[1]
	assert.Equal(t, models.EventResponse, resp.Kind)
	assert.Equal(t, "3", resp.Frame)
	assert.Equal(t, "200", resp.Status)
	assert.Equal(t, "2", resp.RequestIn)
	assert.Equal(t, "0.240000000", resp.Latency)
}

func TestNativeSourceReadsZstdCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap.zst")
	writePcap(t, path, true, exchangeSegments()...)

	events, err := NewNativeSource(nil).Events(context.Background(), path, 3000)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNativeSourceMissingCapture(t *testing.T) {
	_, err := NewNativeSource(nil).Events(context.Background(), filepath.Join(t.TempDir(), "none.pcap"), 3000)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrInputNotFound)
}

func TestMaterializeCaptureDecompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap.zst")
	writePcap(t, path, true, exchangeSegments()...)

	plain, cleanup, err := MaterializeCapture(path)
	require.NoError(t, err)
	assert.Equal(t, ".pcap", filepath.Ext(plain))
	_, err = os.Stat(plain)
	require.NoError(t, err)

	cleanup()
	_, err = os.Stat(plain)
	assert.True(t, os.IsNotExist(err))
}

func newTestState() *nativeState {
	return &nativeState{
		port:        3000,
		streams:     make(map[string][]byte),
		outstanding: make(map[connKey][]pendingRequest),
	}
}

func TestNativeStateBuffersSplitHeaders(t *testing.T) {
	request := "POST /rpc HTTP/1.1\r\nHost: anvil:3000\r\nContent-Type: application/json\r\nContent-Length: 47\r\n\r\n" + rpcBody
	response := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n{}"
	client := models.Endpoint{IP: "10.0.0.1", Port: "50000"}
	server := models.Endpoint{IP: "10.0.0.2", Port: "3000"}

	st := newTestState()
	st.feedRequests(client, server, []byte(request[:40]), "1", base)
	assert.Empty(t, st.events)
	st.feedRequests(client, server, []byte(request[40:90]), "2", base.Add(time.Millisecond))
	assert.Empty(t, st.events)
	st.feedRequests(client, server, []byte(request[90:]), "3", base.Add(2*time.Millisecond))
	require.Len(t, st.events, 1)
	assert.Equal(t, "3", st.events[0].Frame)
	assert.Equal(t, rpcBody, st.events[0].Payload)

	st.feedResponses(server, client, []byte(response[:22]), "4", base.Add(10*time.Millisecond))
	st.feedResponses(server, client, []byte(response[22:]), "5", base.Add(12*time.Millisecond))
	require.Len(t, st.events, 2)
	assert.Equal(t, "200", st.events[1].Status)
	assert.Equal(t, "3", st.events[1].RequestIn)
	assert.Zero(t, st.malformed)
}

func TestNativeStateDiscardsMalformedHeaders(t *testing.T) {
	client := models.Endpoint{IP: "10.0.0.1", Port: "50000"}
	server := models.Endpoint{IP: "10.0.0.2", Port: "3000"}

	st := newTestState()
	st.feedRequests(client, server, []byte("BOGUS\r\n\r\n"), "1", base)
	assert.Empty(t, st.events)
	assert.Equal(t, 1, st.malformed)
	assert.Empty(t, st.streams[streamID(client, server)])

	st.feedRequests(client, server, bytes.Repeat([]byte("x"), maxHeaderBytes+1), "2", base)
	assert.Equal(t, 2, st.malformed)
	assert.Empty(t, st.streams[streamID(client, server)])
}
