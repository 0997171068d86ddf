package loader

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the container an input was wrapped in.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// MaxDecompressedSize bounds decompressed inputs.
const MaxDecompressedSize = 256 << 20

// Decompress detects a compression container by its magic bytes and
// returns the decompressed payload. Uncompressed data is returned as is.
func Decompress(data []byte) ([]byte, Compression, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, CompressionGzip, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		out, err := readLimited(r)
		return out, CompressionGzip, err
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
		if err != nil {
			return nil, CompressionZstd, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, CompressionZstd, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, CompressionZstd, nil
	case bytes.HasPrefix(data, lz4Magic):
		out, err := readLimited(lz4.NewReader(bytes.NewReader(data)))
		return out, CompressionLZ4, err
	}
	return data, CompressionNone, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed input exceeds %d bytes", MaxDecompressedSize)
	}
	return out, nil
}

// compressedExt returns the compression suffix of path, if any.
func compressedExt(path string) string {
	switch ext := filepath.Ext(path); strings.ToLower(ext) {
	case ".gz", ".zst", ".lz4":
		return ext
	}
	return ""
}
