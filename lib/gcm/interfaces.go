// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
)

// Global is the API of the Global Component Manager as seen by a Local
// Component Manager. Every method reports failure through its return
// value; a remote implementation also returns failure when the GCM is
// unreachable.
type Global interface {
	AddProcess(ctx context.Context, name string) bool
	FindProcess(ctx context.Context, name string) bool
	RemoveProcess(ctx context.Context, name string, networkDisconnect bool) bool

	AddComponent(ctx context.Context, process, component string) bool
	FindComponent(ctx context.Context, process, component string) bool
	RemoveComponent(ctx context.Context, process, component string) bool

	AddInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool
	AddInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool
	FindInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool
	FindInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool
	RemoveInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool
	RemoveInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool

	Connect(ctx context.Context, requestProcess string, client, server InterfaceRef) ConnectionID
	ConnectConfirm(ctx context.Context, id ConnectionID) bool
	DisconnectWithID(ctx context.Context, id ConnectionID) bool
	Disconnect(ctx context.Context, client, server InterfaceRef) bool

	SetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server InterfaceRef, endpoint string) bool
	GetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server InterfaceRef) (string, bool)
	GetInterfaceProvidedProxyAccessInfoWithID(ctx context.Context, id ConnectionID) (string, bool)
	InitiateConnect(ctx context.Context, id ConnectionID) bool
	ConnectServerSideInterfaceRequest(ctx context.Context, id ConnectionID) bool

	GetConnectionsOfInterfaceProvidedOrOutput(ctx context.Context, server InterfaceRef) []ConnectedInterfaceInfo
	GetConnectionsOfInterfaceRequiredOrInput(ctx context.Context, client InterfaceRef) []ConnectedInterfaceInfo

	GetNamesOfProcesses(ctx context.Context) []string
	GetNamesOfComponents(ctx context.Context, process string) []string
	GetNamesOfInterfacesProvidedOrOutput(ctx context.Context, process, component string) []string
	GetNamesOfInterfacesRequiredOrInput(ctx context.Context, process, component string) []string
	GetListOfConnections(ctx context.Context) []ConnectionElement

	GetNamesOfCommands(ctx context.Context, ref InterfaceRef) []string
	GetNamesOfEventGenerators(ctx context.Context, ref InterfaceRef) []string
	GetNamesOfFunctions(ctx context.Context, ref InterfaceRef) []string
	GetNamesOfEventHandlers(ctx context.Context, ref InterfaceRef) []string
	GetDescriptionOfCommand(ctx context.Context, ref InterfaceRef, name string) string
	GetDescriptionOfEventGenerator(ctx context.Context, ref InterfaceRef, name string) string
	GetDescriptionOfFunction(ctx context.Context, ref InterfaceRef, name string) string
	GetDescriptionOfEventHandler(ctx context.Context, ref InterfaceRef, name string) string
	GetInterfaceProvidedDescription(ctx context.Context, ref InterfaceRef) (descriptor.InterfaceProvided, bool)
	GetInterfaceRequiredDescription(ctx context.Context, ref InterfaceRef) (descriptor.InterfaceRequired, bool)
}

// Local is what the GCM calls on a Local Component Manager. Remote
// processes are reached through a manager proxy stub implementing
// Local; a process hosting the GCM registers its manager directly.
type Local interface {
	// ProcessName returns the name the process registered under.
	ProcessName(ctx context.Context) string

	// CreateComponentProxy creates a component named
	// "process:component" standing in for a component of another
	// process. Creating an existing proxy succeeds.
	CreateComponentProxy(ctx context.Context, name string) bool
	RemoveComponentProxy(ctx context.Context, name string) bool

	// CreateInterfaceProvidedProxy adds a provided interface matching
	// description to the component proxy. Local required interfaces
	// connect to it as if it were the real one.
	CreateInterfaceProvidedProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceProvided) bool
	// CreateInterfaceRequiredProxy adds a required interface matching
	// description to the component proxy, to be connected to a local
	// provided interface.
	CreateInterfaceRequiredProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceRequired) bool
	RemoveInterfaceProvidedProxy(ctx context.Context, componentProxy, name string) bool
	RemoveInterfaceRequiredProxy(ctx context.Context, componentProxy, name string) bool

	// ConnectServerSideInterface starts the provided side of the
	// connection's interface proxy pair and publishes its endpoint.
	ConnectServerSideInterface(ctx context.Context, id ConnectionID, client, server InterfaceRef) bool
	// ConnectClientSideInterface brings up the required side: it asks
	// for the server side, dials it, and binds the required interface.
	ConnectClientSideInterface(ctx context.Context, id ConnectionID, client, server InterfaceRef) bool
	// Disconnect tears down this process's part of the connection. It
	// does not call back into the GCM.
	Disconnect(ctx context.Context, id ConnectionID) bool

	GetInterfaceProvidedDescription(ctx context.Context, component, name string) (descriptor.InterfaceProvided, bool)
	GetInterfaceRequiredDescription(ctx context.Context, component, name string) (descriptor.InterfaceRequired, bool)
	GetNamesOfCommands(ctx context.Context, component, name string) []string
	GetNamesOfEventGenerators(ctx context.Context, component, name string) []string
	GetNamesOfFunctions(ctx context.Context, component, name string) []string
	GetNamesOfEventHandlers(ctx context.Context, component, name string) []string
	GetDescriptionOfCommand(ctx context.Context, component, name, command string) string
	GetDescriptionOfEventGenerator(ctx context.Context, component, name, event string) string
	GetDescriptionOfFunction(ctx context.Context, component, name, function string) string
	GetDescriptionOfEventHandler(ctx context.Context, component, name, handler string) string
}

var _ Global = (*Manager)(nil)
