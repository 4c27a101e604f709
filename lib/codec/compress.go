// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a payload. The value
// crosses the wire as one byte next to the payload; changing the
// constants breaks peers.
type Compression uint8

const (
	// CompressionNone leaves payloads as is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression. Cheap enough for
	// high-rate command traffic.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Better ratio for
	// large, text-like payloads.
	CompressionZstd Compression = 2
)

// String returns the configuration name of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string is
// CompressionNone.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// ErrIncompressible is returned by Compress when the compressed form
// would not be smaller than the input. Callers send the payload
// uncompressed instead.
var ErrIncompressible = errors.New("payload does not compress")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with the given algorithm. CompressionNone
// returns data unchanged.
func Compress(data []byte, algorithm Compression) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, ErrIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, ErrIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", uint8(algorithm))
	}
}

// Decompress reverses Compress. originalSize must be the exact length
// of the uncompressed payload.
func Decompress(data []byte, algorithm Compression, originalSize int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(data) != originalSize {
			return nil, fmt.Errorf("uncompressed payload is %d bytes, expected %d", len(data), originalSize)
		}
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, originalSize)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != originalSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, originalSize)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, originalSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != originalSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), originalSize)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", uint8(algorithm))
	}
}

// Payload is a serialized argument or result as carried on the wire.
// Size is the uncompressed length; it is zero-valued for empty
// payloads.
type Payload struct {
	Compression Compression `cbor:"compression,omitempty"`
	Size        int         `cbor:"size,omitempty"`
	Data        []byte      `cbor:"data,omitempty"`
}

// Packer wraps payloads for the wire, compressing those of at least
// Threshold bytes with Algorithm. The zero value never compresses.
type Packer struct {
	Algorithm Compression
	Threshold int
}

// Pack builds a Payload from serialized bytes. Incompressible data is
// sent uncompressed.
func (p Packer) Pack(data []byte) (Payload, error) {
	payload := Payload{Size: len(data), Data: data}
	if p.Algorithm == CompressionNone || len(data) == 0 || len(data) < p.Threshold {
		return payload, nil
	}
	compressed, err := Compress(data, p.Algorithm)
	if errors.Is(err, ErrIncompressible) {
		return payload, nil
	}
	if err != nil {
		return Payload{}, err
	}
	payload.Compression = p.Algorithm
	payload.Data = compressed
	return payload, nil
}

// Unpack returns the uncompressed bytes of a Payload.
func (payload Payload) Unpack() ([]byte, error) {
	if payload.Size == 0 && len(payload.Data) == 0 {
		return nil, nil
	}
	return Decompress(payload.Data, payload.Compression, payload.Size)
}
