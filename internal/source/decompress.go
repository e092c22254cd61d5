// SPDX-License-Identifier: MIT

package source

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/ManuGH/epgmerge/internal/config"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress undoes the transport compression of a payload. In auto mode the
// gzip magic bytes decide; gzip forces decompression and none passes data
// through. The decompressed size is capped at limit (0 = unlimited).
func Decompress(data []byte, mode string, limit int64) ([]byte, error) {
	switch mode {
	case config.CompressionNone:
		return data, nil
	case config.CompressionGzip:
	case config.CompressionAuto, "":
		if !bytes.HasPrefix(data, gzipMagic) {
			return data, nil
		}
	default:
		return nil, fmt.Errorf("unknown compression mode %q", mode)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := readCapped(zr, limit)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
