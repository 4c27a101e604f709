// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ifproxy

import (
	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/execution"
)

// CommandID identifies a command of the served interface. Ids are
// assigned by the server and start at 1; zero is never valid.
type CommandID uint32

// EventID identifies an event: on the server, an event generator of the
// served interface; on the client, an event handler. Zero is never
// valid.
type EventID uint32

// Serializers converts one command's argument and result. Either may
// be nil when the command kind has no such value.
type Serializers struct {
	Argument codec.Serializer
	Result   codec.Serializer
}

// Actions served by the interface proxy server.
const (
	actionAddClient                         = "add_client"
	actionFetchFunctionProxyPointers        = "fetch_function_proxy_pointers"
	actionFetchEventGeneratorProxyPointers  = "fetch_event_generator_proxy_pointers"
	actionExecuteCommandVoid                = "execute_command_void"
	actionExecuteCommandWriteSerialized     = "execute_command_write"
	actionExecuteCommandReadSerialized      = "execute_command_read"
	actionExecuteCommandQualifiedReadSerial = "execute_command_qualified_read"
	actionExecuteCommandVoidReturnSerial    = "execute_command_void_return"
	actionExecuteCommandWriteReturnSerial   = "execute_command_write_return"
)

// Actions served by the interface proxy client.
const (
	actionExecuteEventVoid             = "execute_event_void"
	actionExecuteEventWriteSerialized  = "execute_event_write"
	actionExecuteEventReturnSerialized = "execute_event_return"
)

type addClientRequest struct {
	Name   string            `cbor:"name"`
	Digest descriptor.Digest `cbor:"digest"`
}

type addClientReply struct {
	ClientID int64 `cbor:"client_id"`
}

type fetchFunctionsRequest struct {
	Names []string `cbor:"names"`
}

type fetchFunctionsReply struct {
	IDs map[string]CommandID `cbor:"ids"`
}

type fetchEventsRequest struct {
	// Handlers maps event generator names to the client's handler ids.
	Handlers map[string]EventID `cbor:"handlers"`
}

type fetchEventsReply struct {
	Missing []string `cbor:"missing,omitempty"`
}

type commandRequest struct {
	ID       CommandID     `cbor:"id"`
	Blocking bool          `cbor:"blocking,omitempty"`
	Argument codec.Payload `cbor:"argument"`
}

type commandReply struct {
	Result execution.Result `cbor:"result"`
	Value  codec.Payload    `cbor:"value"`
}

type eventRequest struct {
	ID       EventID       `cbor:"id"`
	Argument codec.Payload `cbor:"argument"`
}

type returnEvent struct {
	ID     CommandID        `cbor:"id"`
	Result execution.Result `cbor:"result"`
	Value  codec.Payload    `cbor:"value"`
}

// commandKinds maps each execute action to the command kind it runs.
var commandKinds = map[string]descriptor.CommandKind{
	actionExecuteCommandVoid:                descriptor.CommandVoid,
	actionExecuteCommandWriteSerialized:     descriptor.CommandWrite,
	actionExecuteCommandReadSerialized:      descriptor.CommandRead,
	actionExecuteCommandQualifiedReadSerial: descriptor.CommandQualifiedRead,
	actionExecuteCommandVoidReturnSerial:    descriptor.CommandVoidReturn,
	actionExecuteCommandWriteReturnSerial:   descriptor.CommandWriteReturn,
}
