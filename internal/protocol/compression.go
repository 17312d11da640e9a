package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Decompress expands the records section of a record batch according to
// the batch's compression codec. Stored batches are passthrough, so this
// is only needed when the broker itself has to look inside a batch.
func Decompress(codec int8, data []byte) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)

	case CompressionSnappy:
		return snappy.Decode(nil, data)

	case CompressionLz4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	case CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)

	default:
		return nil, fmt.Errorf("unknown compression codec: %d", codec)
	}
}

// BatchCodec extracts the compression codec from a raw record batch.
// The attributes field sits at bytes 21-22 of the batch header.
func BatchCodec(batch []byte) int8 {
	if len(batch) < 23 {
		return CompressionNone
	}
	attrs := int16(batch[21])<<8 | int16(batch[22])
	return int8(attrs & 0x07)
}
