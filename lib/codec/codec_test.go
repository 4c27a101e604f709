// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type position struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": "x"}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"process": "P1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["process"] != "P1" {
		t.Errorf("process = %v, want P1", asMap["process"])
	}
}

func TestTypedSerializer(t *testing.T) {
	serializer := For[position]()

	if serializer.TypeName() != "codec.position" {
		t.Errorf("TypeName = %q, want codec.position", serializer.TypeName())
	}

	data, err := serializer.Serialize(position{X: 1.5, Y: -2})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	value, err := serializer.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got, ok := value.(position); !ok || got != (position{X: 1.5, Y: -2}) {
		t.Errorf("Deserialize = %#v", value)
	}

	if _, err := serializer.Serialize(&position{X: 3}); err != nil {
		t.Errorf("Serialize pointer: %v", err)
	}
	if _, err := serializer.Serialize("not a position"); err == nil {
		t.Error("Serialize of wrong type should fail")
	}
	if _, err := serializer.Deserialize([]byte{0xff, 0x00}); err == nil {
		t.Error("Deserialize of garbage should fail")
	}
}

func TestPrototypeDecodesToZeroValue(t *testing.T) {
	serializer := For[position]()
	value, err := serializer.Deserialize(serializer.Prototype())
	if err != nil {
		t.Fatalf("Deserialize(Prototype()): %v", err)
	}
	if value.(position) != (position{}) {
		t.Errorf("prototype decoded to %#v, want zero", value)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("joint position sample ", 400))

	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			compressed, err := Compress(data, algorithm)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Fatalf("compressed %d bytes to %d", len(data), len(compressed))
			}
			restored, err := Decompress(compressed, algorithm, len(data))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Error("round trip changed the payload")
			}
		})
	}
}

func TestCompressIncompressible(t *testing.T) {
	if _, err := Compress([]byte{1, 2, 3}, CompressionZstd); !errors.Is(err, ErrIncompressible) {
		t.Errorf("Compress tiny input: err = %v, want ErrIncompressible", err)
	}
}

func TestPackerThreshold(t *testing.T) {
	packer := Packer{Algorithm: CompressionLZ4, Threshold: 1024}

	small, err := packer.Pack([]byte("short"))
	if err != nil {
		t.Fatalf("Pack small: %v", err)
	}
	if small.Compression != CompressionNone {
		t.Errorf("small payload compressed with %s", small.Compression)
	}

	large := []byte(strings.Repeat("a", 4096))
	packed, err := packer.Pack(large)
	if err != nil {
		t.Fatalf("Pack large: %v", err)
	}
	if packed.Compression != CompressionLZ4 {
		t.Errorf("large payload compression = %s, want lz4", packed.Compression)
	}
	unpacked, err := packed.Unpack()
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !bytes.Equal(unpacked, large) {
		t.Error("Unpack changed the payload")
	}

	empty, err := Payload{}.Unpack()
	if err != nil || empty != nil {
		t.Errorf("empty Unpack = %v, %v", empty, err)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		name    string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"lz4", CompressionLZ4, false},
		{"zstd", CompressionZstd, false},
		{"gzip", 0, true},
	}
	for _, test := range tests {
		got, err := ParseCompression(test.name)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseCompression(%q) error = %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseCompression(%q) = %s, want %s", test.name, got, test.want)
		}
	}
}
