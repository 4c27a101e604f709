// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the mesh's wire encoding: a shared CBOR
// configuration for protocol envelopes, typed per-command serializers
// for command and event payloads, and optional payload compression.
//
// Protocol envelopes (manager and interface proxy requests) are always
// CBOR. The encoder uses Core Deterministic Encoding (RFC 8949 §4.2),
// so the same logical value produces identical bytes on every peer.
// That property matters for interface descriptors, whose digest is
// compared across processes.
//
// Command arguments and results travel as opaque byte strings inside
// those envelopes. A [Serializer] converts between a Go value and those
// bytes; [For] builds one for any CBOR-encodable type:
//
//	serializer := codec.For[Position]()
//	data, err := serializer.Serialize(Position{X: 1})
//	value, err := serializer.Deserialize(data) // value.(Position)
//
// Payloads larger than a configured threshold may be compressed with
// zstd or LZ4 ([Compress], [Decompress]). The algorithm tag travels
// alongside the bytes so a receiver never has to guess.
package codec
