package codec

import (
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// envelopeEncoder favours speed: response bodies are compressed on every
// request, unlike stored payloads.
var envelopeEncoder *zstd.Encoder

func init() {
	var err error
	envelopeEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd envelope encoder initialization failed: " + err.Error())
	}
}

// Accepts reports whether an Accept-Encoding header value admits coding.
// A coding listed with q=0 is refused; "*" admits anything not refused.
func Accepts(header, coding string) bool {
	wildcard := false
	for _, part := range strings.Split(header, ",") {
		name, q := parseCoding(part)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, coding) {
			return q > 0
		}
		if name == "*" && q > 0 {
			wildcard = true
		}
	}
	return wildcard
}

func parseCoding(part string) (string, float64) {
	fields := strings.Split(part, ";")
	name := strings.TrimSpace(fields[0])
	q := 1.0
	for _, param := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(key) != "q" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil {
			q = parsed
		}
	}
	return name, q
}

// CompressEnvelope zstd-compresses a whole response body. Gzip envelopes
// are left to the HTTP layer.
func CompressEnvelope(body []byte) []byte {
	return envelopeEncoder.EncodeAll(body, make([]byte, 0, len(body)/3+64))
}
