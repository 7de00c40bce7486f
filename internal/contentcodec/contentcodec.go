// Package contentcodec compresses and decompresses the opaque
// forwarded context envelope. The store uses it for the
// thread_mappings.last_context column; queue messages carry the
// envelope uncompressed.
package contentcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies the algorithm, if any, applied to a
// forwarded context envelope (§3 WorkMessage.context).
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Package-level encoder/decoder, safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("contentcodec: init zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("contentcodec: init zstd decoder: %v", err))
	}
}

// Compress zstd-compresses data and reports the compression applied.
func Compress(data []byte) ([]byte, Compression) {
	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	return compressed, CompressionZstd
}

// Decompress reverses Compress for the given algorithm.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionZstd:
		return decoder.DecodeAll(data, nil)
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("contentcodec: unsupported compression: %q", compression)
	}
}
