// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package managerproxy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/netutil"
	"github.com/jhu-cisst/cisst-sub002/lib/session"
)

// localStub is the GCM's handle on a client process: a gcm.Local whose
// methods are calls over the client's session.
type localStub struct {
	session *session.Session
	name    string
	logger  *slog.Logger
}

var _ gcm.Local = (*localStub)(nil)

// Ping checks the client is alive for the heartbeat monitor.
func (l *localStub) Ping() (time.Duration, error) {
	return l.session.Ping()
}

// call reports whether the client answered. A transport fault closes
// the session, which retires the client through the monitor.
func (l *localStub) call(ctx context.Context, action string, request, result any) bool {
	err := l.session.Call(ctx, action, request, result)
	if err == nil {
		return true
	}
	var remote *session.RemoteError
	if errors.As(err, &remote) {
		l.logger.Warn("client rejected call", "action", action, "error", err)
		return false
	}
	l.logger.Error("call to client failed", "action", action, "error", err)
	if netutil.IsTransportError(err) || netutil.IsExpectedCloseError(err) {
		l.session.Close()
	}
	return false
}

func (l *localStub) callBool(ctx context.Context, action string, request any) bool {
	var ok bool
	return l.call(ctx, action, request, &ok) && ok
}

func (l *localStub) callStrings(ctx context.Context, action string, request any) []string {
	var names []string
	if !l.call(ctx, action, request, &names) {
		return nil
	}
	return names
}

func (l *localStub) callString(ctx context.Context, action string, request any) string {
	var text string
	if !l.call(ctx, action, request, &text) {
		return ""
	}
	return text
}

// ProcessName asks the client for its name, falling back to the name
// it registered with.
func (l *localStub) ProcessName(ctx context.Context) string {
	if name := l.callString(ctx, actionGetProcessName, nil); name != "" {
		return name
	}
	return l.name
}

func (l *localStub) CreateComponentProxy(ctx context.Context, name string) bool {
	return l.callBool(ctx, actionCreateComponentProxy, componentProxyRequest{Name: name})
}

func (l *localStub) RemoveComponentProxy(ctx context.Context, name string) bool {
	return l.callBool(ctx, actionRemoveComponentProxy, componentProxyRequest{Name: name})
}

func (l *localStub) CreateInterfaceProvidedProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceProvided) bool {
	return l.callBool(ctx, actionCreateInterfaceProvidedProxy, providedProxyRequest{ComponentProxy: componentProxy, Description: description})
}

func (l *localStub) CreateInterfaceRequiredProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceRequired) bool {
	return l.callBool(ctx, actionCreateInterfaceRequiredProxy, requiredProxyRequest{ComponentProxy: componentProxy, Description: description})
}

func (l *localStub) RemoveInterfaceProvidedProxy(ctx context.Context, componentProxy, name string) bool {
	return l.callBool(ctx, actionRemoveInterfaceProvidedProxy, interfaceProxyRequest{ComponentProxy: componentProxy, Name: name})
}

func (l *localStub) RemoveInterfaceRequiredProxy(ctx context.Context, componentProxy, name string) bool {
	return l.callBool(ctx, actionRemoveInterfaceRequiredProxy, interfaceProxyRequest{ComponentProxy: componentProxy, Name: name})
}

func (l *localStub) ConnectServerSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	return l.callBool(ctx, actionConnectServerSideInterface, connectionRequest{ID: id, Client: client, Server: server})
}

func (l *localStub) ConnectClientSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	return l.callBool(ctx, actionConnectClientSideInterface, connectionRequest{ID: id, Client: client, Server: server})
}

func (l *localStub) Disconnect(ctx context.Context, id gcm.ConnectionID) bool {
	return l.callBool(ctx, actionLocalDisconnect, idRequest{ID: id})
}

func (l *localStub) GetInterfaceProvidedDescription(ctx context.Context, component, name string) (descriptor.InterfaceProvided, bool) {
	var reply providedDescriptionReply
	if !l.call(ctx, actionGetInterfaceProvidedDescription, localInterfaceRequest{Component: component, Name: name}, &reply) {
		return descriptor.InterfaceProvided{}, false
	}
	return reply.Description, reply.OK
}

func (l *localStub) GetInterfaceRequiredDescription(ctx context.Context, component, name string) (descriptor.InterfaceRequired, bool) {
	var reply requiredDescriptionReply
	if !l.call(ctx, actionGetInterfaceRequiredDescription, localInterfaceRequest{Component: component, Name: name}, &reply) {
		return descriptor.InterfaceRequired{}, false
	}
	return reply.Description, reply.OK
}

func (l *localStub) GetNamesOfCommands(ctx context.Context, component, name string) []string {
	return l.callStrings(ctx, actionGetNamesOfCommands, localInterfaceRequest{Component: component, Name: name})
}

func (l *localStub) GetNamesOfEventGenerators(ctx context.Context, component, name string) []string {
	return l.callStrings(ctx, actionGetNamesOfEventGenerators, localInterfaceRequest{Component: component, Name: name})
}

func (l *localStub) GetNamesOfFunctions(ctx context.Context, component, name string) []string {
	return l.callStrings(ctx, actionGetNamesOfFunctions, localInterfaceRequest{Component: component, Name: name})
}

func (l *localStub) GetNamesOfEventHandlers(ctx context.Context, component, name string) []string {
	return l.callStrings(ctx, actionGetNamesOfEventHandlers, localInterfaceRequest{Component: component, Name: name})
}

func (l *localStub) GetDescriptionOfCommand(ctx context.Context, component, name, command string) string {
	return l.callString(ctx, actionGetDescriptionOfCommand, localInterfaceRequest{Component: component, Name: name, Item: command})
}

func (l *localStub) GetDescriptionOfEventGenerator(ctx context.Context, component, name, event string) string {
	return l.callString(ctx, actionGetDescriptionOfEventGenerator, localInterfaceRequest{Component: component, Name: name, Item: event})
}

func (l *localStub) GetDescriptionOfFunction(ctx context.Context, component, name, function string) string {
	return l.callString(ctx, actionGetDescriptionOfFunction, localInterfaceRequest{Component: component, Name: name, Item: function})
}

func (l *localStub) GetDescriptionOfEventHandler(ctx context.Context, component, name, handler string) string {
	return l.callString(ctx, actionGetDescriptionOfEventHandler, localInterfaceRequest{Component: component, Name: name, Item: handler})
}
