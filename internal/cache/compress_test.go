package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox ", 50))

	for _, codec := range []string{"gzip", "brotli"} {
		t.Run(codec, func(t *testing.T) {
			c := NewCompressor(codec)
			assert.Equal(t, codec, c.Name())

			packed, err := c.Compress(payload)
			require.NoError(t, err)
			assert.Less(t, len(packed), len(payload), "repetitive payload should shrink")

			unpacked, err := c.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)
		})
	}
}

func TestNoopCompressor(t *testing.T) {
	c := NewCompressor("none")
	assert.Equal(t, "none", c.Name())

	data := []byte("as-is")
	packed, err := c.Compress(data)
	require.NoError(t, err)
	assert.Equal(t, data, packed)
}

func TestNewCompressorUnknownCodecDefaultsToGzip(t *testing.T) {
	c := NewCompressor("zstd")
	assert.Equal(t, "gzip", c.Name())
}

func TestDecompressGarbage(t *testing.T) {
	c := NewCompressor("gzip")
	_, err := c.Decompress([]byte("not a gzip stream"))
	assert.Error(t, err)
}
