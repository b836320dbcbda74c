package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/packrelay/internal/event"
)

// Encoding is the HTTP content-coding name of stored payloads. A client
// that accepts it can be handed a payload byte-for-byte.
const Encoding = "zstd"

// Encoded is the result of compressing one event.
type Encoded struct {
	// Payload is the zstd frame holding the canonical serialization.
	Payload []byte

	// RawSize is the length of the canonical serialization.
	RawSize int

	// CompressedSize is len(Payload).
	CompressedSize int
}

// storageEncoder and storageDecoder are reused across calls. zstd.Encoder
// and zstd.Decoder are safe for concurrent use of EncodeAll/DecodeAll.
//
// The encoder is pinned to one goroutine and the best-compression level so
// that the same input always yields the same frame.
var (
	storageEncoder *zstd.Encoder
	storageDecoder *zstd.Decoder
)

func init() {
	var err error
	storageEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}

	storageDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode renders ev canonically and compresses it.
func Encode(ev event.Event) Encoded {
	return EncodeCanonical(event.Canonical(ev))
}

// EncodeCanonical compresses an already-rendered canonical serialization.
func EncodeCanonical(canonical []byte) Encoded {
	payload := storageEncoder.EncodeAll(canonical, make([]byte, 0, len(canonical)/2+64))
	return Encoded{
		Payload:        payload,
		RawSize:        len(canonical),
		CompressedSize: len(payload),
	}
}

// Decode decompresses a stored payload back into the canonical
// serialization. rawSize is the size recorded at acceptance; a mismatch is
// an error. Pass a negative rawSize to skip the check.
func Decode(payload []byte, rawSize int) ([]byte, error) {
	capacity := 0
	if rawSize > 0 {
		capacity = rawSize
	}
	result, err := storageDecoder.DecodeAll(payload, make([]byte, 0, capacity))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if rawSize >= 0 && len(result) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
	}
	return result, nil
}

// DecodeEvent decompresses and parses a stored payload.
func DecodeEvent(payload []byte, rawSize int) (event.Event, error) {
	canonical, err := Decode(payload, rawSize)
	if err != nil {
		return event.Event{}, err
	}
	return event.Parse(canonical)
}
