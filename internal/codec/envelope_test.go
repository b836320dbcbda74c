package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccepts(t *testing.T) {
	tests := []struct {
		header string
		coding string
		want   bool
	}{
		{"gzip", "gzip", true},
		{"gzip, deflate, br, zstd", "zstd", true},
		{"GZIP", "gzip", true},
		{"gzip;q=0", "gzip", false},
		{"gzip; q=0.5", "gzip", true},
		{"deflate", "gzip", false},
		{"*", "zstd", true},
		{"*;q=0", "zstd", false},
		{"zstd;q=0, *", "zstd", false},
		{"", "gzip", false},
	}

	for _, tt := range tests {
		t.Run(tt.header+"/"+tt.coding, func(t *testing.T) {
			assert.Equal(t, tt.want, Accepts(tt.header, tt.coding))
		})
	}
}

func TestCompressEnvelope(t *testing.T) {
	body := bytes.Repeat([]byte(`{"id":"y"},`), 200)

	compressed := CompressEnvelope(body)
	assert.Less(t, len(compressed), len(body))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}
