// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package execution defines the result of executing a command or
// delivering an event, locally or through an interface proxy.
//
// A [Result] is returned, never raised: a command that cannot run
// because its function is unbound or its peer is unreachable reports
// that through its result, and the caller decides what to do. Results
// cross the wire as a small integer, so the numeric values are part of
// the interface proxy protocol.
package execution

import "fmt"

// Result is the outcome of one command or event execution.
type Result uint8

const (
	// CommandSucceeded means the command ran and, for commands with a
	// result, the result is valid.
	CommandSucceeded Result = 0

	// CommandQueued means a non-blocking command was handed to the
	// transport. Delivery is not confirmed.
	CommandQueued Result = 1

	// FunctionNotBound means the required-interface function has no
	// command behind it (the interface is not connected).
	FunctionNotBound Result = 2

	// NetworkError means the interface proxy could not reach its peer.
	NetworkError Result = 3

	// InvalidCommandID means the receiving proxy has no command for the
	// identifier it was given.
	InvalidCommandID Result = 4

	// InvalidInput means the argument was rejected by the command.
	InvalidInput Result = 5

	// SerializationError means an argument or result could not be
	// serialized or deserialized, or no serializer is registered.
	SerializationError Result = 6

	// CommandFailed means the command ran and reported failure.
	CommandFailed Result = 7

	// CommandDisabled means the command exists but is disabled.
	CommandDisabled Result = 8
)

var names = [...]string{
	CommandSucceeded:   "COMMAND_SUCCEEDED",
	CommandQueued:      "COMMAND_QUEUED",
	FunctionNotBound:   "FUNCTION_NOT_BOUND",
	NetworkError:       "NETWORK_ERROR",
	InvalidCommandID:   "INVALID_COMMAND_ID",
	InvalidInput:       "INVALID_INPUT",
	SerializationError: "SERIALIZATION_ERROR",
	CommandFailed:      "COMMAND_FAILED",
	CommandDisabled:    "COMMAND_DISABLED",
}

// String returns the protocol name of the result.
func (r Result) String() string {
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("RESULT(%d)", uint8(r))
}

// OK reports whether the command ran or was accepted for delivery.
func (r Result) OK() bool {
	return r == CommandSucceeded || r == CommandQueued
}
