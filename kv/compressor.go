package kv

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
)

// ZlibCompressor compresses payloads with zlib at a configurable level.
// A zero Level means zlib.DefaultCompression.
type ZlibCompressor struct {
	Level int
}

var _ Compressor = ZlibCompressor{}

func (c ZlibCompressor) Compress(data []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ZlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// GzipCompressor compresses payloads with gzip.
type GzipCompressor struct{}

var _ Compressor = GzipCompressor{}

func (GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// IdentityCompressor stores payloads unchanged. Its Decompress never fails,
// so it belongs at the end of a fallback chain.
type IdentityCompressor struct{}

var _ Compressor = IdentityCompressor{}

func (IdentityCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (IdentityCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
