package extractors

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/miradorstack/mirador-latency/internal/models"
)

var (
	methodPattern = regexp.MustCompile(`"method"\s*:\s*"([^"]+)"`)
	idPattern     = regexp.MustCompile(`"id"\s*:\s*(?:"([^"]+)"|(\d+))`)

	payloadSeparators = strings.NewReplacer(":", "", " ", "", "\n", "", "\r", "", "\t", "")

	// containerKeys hold an embedded message one level below the payload root.
	containerKeys = []string{"message", "payload"}
)

// maxHexLayers bounds how many nested hex encodings NormalizePayload unwraps.
const maxHexLayers = 4

// NormalizePayload turns a captured body into text. Bodies that are an even-length run of
// hex digits (optionally colon or whitespace separated, as tshark prints them) are decoded,
// repeatedly until the text stops changing; invalid UTF-8 is dropped. Undecodable or empty
// results fall back to the trimmed input.
func NormalizePayload(raw string) string {
	text := unhex(raw)
	for i := 1; i < maxHexLayers; i++ {
		next := unhex(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func unhex(raw string) string {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return ""
	}
	candidate := payloadSeparators.Replace(stripped)
	if candidate == "" || len(candidate)%2 != 0 || !isHex(candidate) {
		return stripped
	}
	decoded, err := hex.DecodeString(candidate)
	if err != nil {
		return stripped
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(decoded), ""))
	if text == "" {
		return stripped
	}
	return text
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Decode returns the best-effort operation identity of a payload: an RPC method name when
// present, otherwise a message id, otherwise models.UnknownOperation. It never fails.
func Decode(raw string) string {
	method, id := DecodeRPC(raw)
	switch {
	case method != "":
		return method
	case id != "":
		return id
	default:
		return models.UnknownOperation
	}
}

// DecodeRPC returns the method and id carried by a payload, either of which may be empty.
// Strict JSON is tried first; text that does not parse is scanned with regular expressions.
func DecodeRPC(raw string) (method, id string) {
	text := NormalizePayload(raw)
	if text == "" {
		return "", ""
	}

	var parser fastjson.Parser
	v, err := parser.Parse(text)
	if err != nil {
		return scanIdentity(text)
	}

	switch v.Type() {
	case fastjson.TypeObject:
		return objectIdentity(v)
	case fastjson.TypeArray:
		items, _ := v.Array()
		if len(items) > 0 && items[0].Type() == fastjson.TypeObject {
			return objectIdentity(items[0])
		}
	}
	return "", ""
}

func objectIdentity(v *fastjson.Value) (method, id string) {
	method = stringField(v, "method")
	id = idField(v)

	for _, key := range containerKeys {
		if method != "" && id != "" {
			break
		}
		nested := v.Get(key)
		if nested == nil || nested.Type() != fastjson.TypeObject {
			continue
		}
		if method == "" {
			method = stringField(nested, "method")
		}
		if id == "" {
			id = idField(nested)
		}
	}

	if id == "" {
		id = attachmentID(v)
	}
	return method, id
}

// attachmentID returns the first attachments[i].data.json.id string.
func attachmentID(v *fastjson.Value) string {
	attachments := v.Get("attachments")
	if attachments == nil || attachments.Type() != fastjson.TypeArray {
		return ""
	}
	items, _ := attachments.Array()
	for _, item := range items {
		if item.Type() != fastjson.TypeObject {
			continue
		}
		if id := stringField(item, "data", "json", "id"); id != "" {
			return id
		}
	}
	return ""
}

func stringField(v *fastjson.Value, keys ...string) string {
	field := v.Get(keys...)
	if field == nil || field.Type() != fastjson.TypeString {
		return ""
	}
	return string(field.GetStringBytes())
}

func idField(v *fastjson.Value) string {
	field := v.Get("id")
	if field == nil {
		return ""
	}
	switch field.Type() {
	case fastjson.TypeString:
		return string(field.GetStringBytes())
	case fastjson.TypeNumber:
		return field.String()
	default:
		return ""
	}
}

func scanIdentity(text string) (method, id string) {
	if m := methodPattern.FindStringSubmatch(text); m != nil {
		method = m[1]
	}
	if m := idPattern.FindStringSubmatch(text); m != nil {
		id = m[1]
		if id == "" {
			id = m[2]
		}
	}
	return method, id
}
