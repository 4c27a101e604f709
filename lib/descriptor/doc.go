// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package descriptor models the shape of component interfaces: the
// commands and events of a provided interface, and the functions and
// event handlers of a required interface.
//
// Descriptors are what the Global Component Manager hands from one
// process to another when it asks a peer to build an interface proxy.
// Argument and result types are carried as a type name plus an opaque
// prototype (the serialized zero value); nothing in this package
// interprets the prototype bytes.
//
// [InterfaceProvided.Digest] is a BLAKE3 keyed hash over the canonical
// CBOR encoding of a provided description. An interface proxy client
// presents the digest of the description it was built from, and the
// server rejects the client if its own interface no longer matches.
package descriptor
