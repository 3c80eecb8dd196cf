package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Compressor is the strategy used for payloads above a namespace's
// compression threshold. Implementations must be safe for concurrent use.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NewCompressor returns the compressor for a codec name. Unknown names fall
// back to gzip.
func NewCompressor(codec string) Compressor {
	switch codec {
	case "brotli":
		return &BrotliCompressor{Level: brotli.DefaultCompression}
	case "none":
		return NoopCompressor{}
	default:
		return &GzipCompressor{Level: gzip.DefaultCompression}
	}
}

// GzipCompressor compresses with stdlib gzip.
type GzipCompressor struct {
	Level int
}

func (GzipCompressor) Name() string { return "gzip" }

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// BrotliCompressor compresses with brotli, which trades CPU for a better
// ratio on text-heavy payloads such as rendered documents.
type BrotliCompressor struct {
	Level int
}

func (BrotliCompressor) Name() string { return "brotli" }

func (c *BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.Level)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("brotli read: %w", err)
	}
	return out, nil
}

// NoopCompressor disables compression regardless of thresholds.
type NoopCompressor struct{}

func (NoopCompressor) Name() string                            { return "none" }
func (NoopCompressor) Compress(data []byte) ([]byte, error)    { return data, nil }
func (NoopCompressor) Decompress(data []byte) ([]byte, error)  { return data, nil }
