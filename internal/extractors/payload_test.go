package extractors

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/mirador-latency/internal/models"
)

func TestDecodeStructuredPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "rpc method", payload: `{"jsonrpc":"2.0","id":7,"method":"eth_call","params":[]}`, want: "eth_call"},
		{name: "string id", payload: `{"id":"9a1c","type":"https://didcomm.org/trust-ping/2.0/ping"}`, want: "9a1c"},
		{name: "numeric id", payload: `{"id":42}`, want: "42"},
		{name: "nested message", payload: `{"message":{"id":"msg-1"}}`, want: "msg-1"},
		{name: "nested payload", payload: `{"payload":{"id":"pl-1"},"other":1}`, want: "pl-1"},
		{name: "attachment", payload: `{"attachments":[{"data":{"base64":"xx"}},{"data":{"json":{"id":"att-2"}}}]}`, want: "att-2"},
		{name: "batch", payload: `[{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"},{"method":"eth_chainId"}]`, want: "eth_blockNumber"},
		{name: "scalar", payload: `"just a string"`, want: models.UnknownOperation},
		{name: "empty", payload: "   ", want: models.UnknownOperation},
		{name: "object without identity", payload: `{"foo":"bar"}`, want: models.UnknownOperation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decode(tc.payload))
		})
	}
}

func TestDecodeHexPayload(t *testing.T) {
	body := `{"method":"eth_getBalance","id":3}`
	encoded := hex.EncodeToString([]byte(body))

	assert.Equal(t, "eth_getBalance", Decode(encoded))

	// tshark prints bytes colon separated
	var separated string
	for i := 0; i < len(encoded); i += 2 {
		if i > 0 {
			separated += ":"
		}
		separated += encoded[i : i+2]
	}
	assert.Equal(t, "eth_getBalance", Decode(separated))
}

func TestNormalizePayloadDropsInvalidBytes(t *testing.T) {
	raw := hex.EncodeToString(append([]byte{0xff, 0xfe}, []byte(`{"id":"x"}`)...))
	assert.Equal(t, `{"id":"x"}`, NormalizePayload(raw))
}

func TestNormalizePayloadKeepsOddHex(t *testing.T) {
	assert.Equal(t, "abc", NormalizePayload(" abc "))
	// a single invalid byte decodes to nothing, so the input is kept
	assert.Equal(t, "ff", NormalizePayload("ff"))
}

func TestDecodeFallbackOnMalformedJSON(t *testing.T) {
	// truncated bodies defeat the strict parser but still carry identities
	method, id := DecodeRPC(`{"jsonrpc":"2.0","method":"eth_sendRawTransaction","id":"tx-9","params":["0x`)
	assert.Equal(t, "eth_sendRawTransaction", method)
	assert.Equal(t, "tx-9", id)

	assert.Equal(t, "17", Decode(`garbage {"id": 17, broken`))
	assert.Equal(t, models.UnknownOperation, Decode(`not json at all`))
}

func TestDecodeIsIdempotentOverNormalization(t *testing.T) {
	payloads := []string{
		hex.EncodeToString([]byte(`{"method":"eth_call"}`)),
		hex.EncodeToString([]byte(hex.EncodeToString([]byte(`{"method":"eth_call"}`)))),
		`{"message":{"id":"m-1"}}`,
		`{"id":"broken`,
		`[{"id":5}]`,
	}
	for _, p := range payloads {
		once := NormalizePayload(p)
		assert.Equal(t, once, NormalizePayload(once))
		assert.Equal(t, Decode(p), Decode(once))
	}
}

func TestNormalizePayloadUnwrapsNestedHex(t *testing.T) {
	inner := `{"method":"eth_call"}`
	doubled := hex.EncodeToString([]byte(hex.EncodeToString([]byte(inner))))

	assert.Equal(t, inner, NormalizePayload(doubled))
	assert.Equal(t, "eth_call", Decode(doubled))
}
