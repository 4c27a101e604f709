// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
)

// Digest is a 32-byte BLAKE3 digest of a descriptor.
type Digest [32]byte

// String returns the digest in hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// providedDomainKey separates descriptor digests from any other BLAKE3
// use of the same bytes. ASCII "mesh.descriptor.provided",
// zero-padded to 32 bytes.
var providedDomainKey = [32]byte{
	'm', 'e', 's', 'h', '.', 'd', 'e', 's', 'c', 'r', 'i', 'p', 't', 'o', 'r', '.',
	'p', 'r', 'o', 'v', 'i', 'd', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the keyed BLAKE3 hash of the canonical encoding of d.
// Command and event order does not affect the digest.
func (d InterfaceProvided) Digest() Digest {
	canonical := InterfaceProvided{
		Name:     d.Name,
		Commands: sortedCommands(d.Commands),
		Events:   sortedEvents(d.Events),
	}
	data, err := codec.Marshal(canonical)
	if err != nil {
		// Every field is a plain string, integer, or byte slice.
		panic("descriptor: encoding provided interface: " + err.Error())
	}
	hasher, err := blake3.NewKeyed(providedDomainKey[:])
	if err != nil {
		panic("descriptor: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func sortedCommands(commands []Command) []Command {
	sorted := make([]Command, 0, len(commands))
	for _, name := range commandNames(commands) {
		command, _ := findCommand(commands, name)
		sorted = append(sorted, command)
	}
	return sorted
}

func sortedEvents(events []Event) []Event {
	sorted := make([]Event, 0, len(events))
	for _, name := range eventNames(events) {
		event, _ := findEvent(events, name)
		sorted = append(sorted, event)
	}
	return sorted
}
