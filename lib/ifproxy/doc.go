// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ifproxy carries the commands and events of one connected
// interface between two processes.
//
// The [Server] runs in the process that owns the provided interface. It
// numbers the interface's commands and event generators, starting at 1
// in name order, and executes commands on behalf of its clients. The
// [Client] runs in the process that owns the required interface: after
// AddClient it resolves command names to ids with
// FetchFunctionProxyPointers and subscribes its event handlers with
// FetchEventGeneratorProxyPointers.
//
// Arguments and results cross the wire as opaque payloads produced by a
// codec.Serializer registered per command or event on both sides. A
// missing serializer is reported as execution.SerializationError, an
// unknown id as execution.InvalidCommandID, and a lost peer as
// execution.NetworkError. Nothing is raised.
//
// Sessions are ordered: commands and events from one peer are handled
// in the order they were sent. Non-blocking commands return
// execution.CommandQueued at once; if the command has a return value it
// arrives later through the client's return handler.
package ifproxy
