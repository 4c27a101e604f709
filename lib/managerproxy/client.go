// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package managerproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/netutil"
	"github.com/jhu-cisst/cisst-sub002/lib/session"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// State is the connection state of a Client.
type State int

const (
	// StateInactive clients fail every call without touching the
	// network.
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Address of the manager proxy server. Required.
	Address string

	// Dialer defaults to a TCPDialer with a five second timeout.
	Dialer transport.Dialer

	// Local serves the GCM's calls into this process. Required; its
	// ProcessName is the name the client registers.
	Local gcm.Local

	Logger *slog.Logger

	// CallTimeout bounds calls whose context has no deadline.
	CallTimeout time.Duration

	// OnDisconnect is called once when the client loses the server.
	OnDisconnect func()
}

// Client is the LCM side of the manager proxy pair. It implements
// gcm.Global by calling the server, and serves the server's calls into
// this process by forwarding them to a gcm.Local.
//
// Every method returns its failure value when the client is inactive
// or the call fails. A transport failure also moves the client to
// StateInactive and runs OnDisconnect.
type Client struct {
	local        gcm.Local
	logger       *slog.Logger
	session      *session.Session
	onDisconnect func()

	mu    sync.Mutex
	state State

	disconnectOnce sync.Once
}

var _ gcm.Global = (*Client)(nil)

// Dial connects to the server and registers this process with it.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("managerproxy: Address is required")
	}
	if config.Local == nil {
		return nil, errors.New("managerproxy: Local is required")
	}
	if config.Dialer == nil {
		config.Dialer = &transport.TCPDialer{Timeout: 5 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		local:        config.Local,
		logger:       config.Logger,
		onDisconnect: config.OnDisconnect,
	}
	router := session.NewRouter()
	c.registerHandlers(router)

	sess, err := session.Dial(ctx, config.Dialer, config.Address, session.Options{
		Logger:      config.Logger,
		Router:      router,
		CallTimeout: config.CallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to manager proxy server: %w", err)
	}
	c.session = sess
	c.logger = c.logger.With("session_id", sess.ID().String())

	name := config.Local.ProcessName(ctx)
	var clientID int64
	if err := sess.Call(ctx, actionAddClient, addClientRequest{ProcessName: name}, &clientID); err != nil {
		sess.Close()
		return nil, fmt.Errorf("registering process %q: %w", name, err)
	}

	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()
	c.logger.Info("connected to global component manager",
		"address", config.Address,
		"process", name,
		"client_id", clientID,
	)

	go func() {
		<-sess.Done()
		c.handleDisconnect()
	}()
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the client is connected.
func (c *Client) Active() bool {
	return c.State() == StateActive
}

// Close disconnects from the server. OnDisconnect runs.
func (c *Client) Close() error {
	err := c.session.Close()
	c.handleDisconnect()
	return err
}

// Done is closed once the session to the server has ended.
func (c *Client) Done() <-chan struct{} {
	return c.session.Done()
}

// TestMessage sends text to the server, which logs and echoes it.
func (c *Client) TestMessage(ctx context.Context, text string) (string, error) {
	if !c.Active() {
		return "", errors.New("manager proxy client is inactive")
	}
	var reply testMessage
	if err := c.session.Call(ctx, actionTestMessage, testMessage{Text: text}, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (c *Client) handleDisconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		c.state = StateInactive
		c.mu.Unlock()
		c.session.Close()
		c.logger.Warn("disconnected from global component manager")
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	})
}

// call reports whether the server answered.
func (c *Client) call(ctx context.Context, action string, request, result any) bool {
	if !c.Active() {
		c.logger.Debug("call on inactive manager proxy client", "action", action)
		return false
	}
	err := c.session.Call(ctx, action, request, result)
	if err == nil {
		return true
	}
	var remote *session.RemoteError
	if errors.As(err, &remote) {
		c.logger.Warn("global component manager rejected call", "action", action, "error", err)
		return false
	}
	c.logger.Error("call to global component manager failed", "action", action, "error", err)
	if netutil.IsTransportError(err) || netutil.IsExpectedCloseError(err) {
		c.handleDisconnect()
	}
	return false
}

func (c *Client) callBool(ctx context.Context, action string, request any) bool {
	var ok bool
	return c.call(ctx, action, request, &ok) && ok
}

func (c *Client) callStrings(ctx context.Context, action string, request any) []string {
	var names []string
	if !c.call(ctx, action, request, &names) {
		return nil
	}
	return names
}

func (c *Client) callString(ctx context.Context, action string, request any) string {
	var text string
	if !c.call(ctx, action, request, &text) {
		return ""
	}
	return text
}

func (c *Client) AddProcess(ctx context.Context, name string) bool {
	return c.callBool(ctx, actionAddProcess, processRequest{Process: name})
}

func (c *Client) FindProcess(ctx context.Context, name string) bool {
	return c.callBool(ctx, actionFindProcess, processRequest{Process: name})
}

func (c *Client) RemoveProcess(ctx context.Context, name string, networkDisconnect bool) bool {
	return c.callBool(ctx, actionRemoveProcess, processRequest{Process: name, NetworkDisconnect: networkDisconnect})
}

func (c *Client) AddComponent(ctx context.Context, process, component string) bool {
	return c.callBool(ctx, actionAddComponent, componentRequest{Process: process, Component: component})
}

func (c *Client) FindComponent(ctx context.Context, process, component string) bool {
	return c.callBool(ctx, actionFindComponent, componentRequest{Process: process, Component: component})
}

func (c *Client) RemoveComponent(ctx context.Context, process, component string) bool {
	return c.callBool(ctx, actionRemoveComponent, componentRequest{Process: process, Component: component})
}

func (c *Client) AddInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionAddInterfaceProvided, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) AddInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionAddInterfaceRequired, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) FindInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionFindInterfaceProvided, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) FindInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionFindInterfaceRequired, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) RemoveInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionRemoveInterfaceProvided, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) RemoveInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	return c.callBool(ctx, actionRemoveInterfaceRequired, gcm.InterfaceRef{Process: process, Component: component, Interface: name})
}

func (c *Client) Connect(ctx context.Context, requestProcess string, client, server gcm.InterfaceRef) gcm.ConnectionID {
	id := gcm.InvalidConnectionID
	if !c.call(ctx, actionConnect, connectRequest{RequestProcess: requestProcess, Client: client, Server: server}, &id) {
		return gcm.InvalidConnectionID
	}
	return id
}

func (c *Client) ConnectConfirm(ctx context.Context, id gcm.ConnectionID) bool {
	return c.callBool(ctx, actionConnectConfirm, idRequest{ID: id})
}

func (c *Client) DisconnectWithID(ctx context.Context, id gcm.ConnectionID) bool {
	return c.callBool(ctx, actionDisconnectWithID, idRequest{ID: id})
}

func (c *Client) Disconnect(ctx context.Context, client, server gcm.InterfaceRef) bool {
	return c.callBool(ctx, actionDisconnect, pairRequest{Client: client, Server: server})
}

func (c *Client) SetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server gcm.InterfaceRef, endpoint string) bool {
	return c.callBool(ctx, actionSetProvidedProxyAccessInfo, pairRequest{Client: client, Server: server, Endpoint: endpoint})
}

func (c *Client) GetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server gcm.InterfaceRef) (string, bool) {
	var reply accessInfoReply
	if !c.call(ctx, actionGetProvidedProxyAccessInfo, pairRequest{Client: client, Server: server}, &reply) {
		return "", false
	}
	return reply.Endpoint, reply.OK
}

func (c *Client) GetInterfaceProvidedProxyAccessInfoWithID(ctx context.Context, id gcm.ConnectionID) (string, bool) {
	var reply accessInfoReply
	if !c.call(ctx, actionGetProvidedProxyAccessInfoWithID, idRequest{ID: id}, &reply) {
		return "", false
	}
	return reply.Endpoint, reply.OK
}

func (c *Client) InitiateConnect(ctx context.Context, id gcm.ConnectionID) bool {
	return c.callBool(ctx, actionInitiateConnect, idRequest{ID: id})
}

func (c *Client) ConnectServerSideInterfaceRequest(ctx context.Context, id gcm.ConnectionID) bool {
	return c.callBool(ctx, actionConnectServerSideInterfaceRequest, idRequest{ID: id})
}

func (c *Client) GetConnectionsOfInterfaceProvidedOrOutput(ctx context.Context, server gcm.InterfaceRef) []gcm.ConnectedInterfaceInfo {
	var infos []gcm.ConnectedInterfaceInfo
	if !c.call(ctx, actionGetConnectionsOfProvided, refRequest{Ref: server}, &infos) {
		return nil
	}
	return infos
}

func (c *Client) GetConnectionsOfInterfaceRequiredOrInput(ctx context.Context, client gcm.InterfaceRef) []gcm.ConnectedInterfaceInfo {
	var infos []gcm.ConnectedInterfaceInfo
	if !c.call(ctx, actionGetConnectionsOfRequired, refRequest{Ref: client}, &infos) {
		return nil
	}
	return infos
}

func (c *Client) GetNamesOfProcesses(ctx context.Context) []string {
	return c.callStrings(ctx, actionGetNamesOfProcesses, nil)
}

func (c *Client) GetNamesOfComponents(ctx context.Context, process string) []string {
	return c.callStrings(ctx, actionGetNamesOfComponents, processRequest{Process: process})
}

func (c *Client) GetNamesOfInterfacesProvidedOrOutput(ctx context.Context, process, component string) []string {
	return c.callStrings(ctx, actionGetNamesOfInterfacesProvided, componentRequest{Process: process, Component: component})
}

func (c *Client) GetNamesOfInterfacesRequiredOrInput(ctx context.Context, process, component string) []string {
	return c.callStrings(ctx, actionGetNamesOfInterfacesRequired, componentRequest{Process: process, Component: component})
}

func (c *Client) GetListOfConnections(ctx context.Context) []gcm.ConnectionElement {
	var connections []gcm.ConnectionElement
	if !c.call(ctx, actionGetListOfConnections, nil, &connections) {
		return nil
	}
	return connections
}

func (c *Client) GetNamesOfCommands(ctx context.Context, ref gcm.InterfaceRef) []string {
	return c.callStrings(ctx, actionGetNamesOfCommands, refRequest{Ref: ref})
}

func (c *Client) GetNamesOfEventGenerators(ctx context.Context, ref gcm.InterfaceRef) []string {
	return c.callStrings(ctx, actionGetNamesOfEventGenerators, refRequest{Ref: ref})
}

func (c *Client) GetNamesOfFunctions(ctx context.Context, ref gcm.InterfaceRef) []string {
	return c.callStrings(ctx, actionGetNamesOfFunctions, refRequest{Ref: ref})
}

func (c *Client) GetNamesOfEventHandlers(ctx context.Context, ref gcm.InterfaceRef) []string {
	return c.callStrings(ctx, actionGetNamesOfEventHandlers, refRequest{Ref: ref})
}

func (c *Client) GetDescriptionOfCommand(ctx context.Context, ref gcm.InterfaceRef, name string) string {
	return c.callString(ctx, actionGetDescriptionOfCommand, refRequest{Ref: ref, Name: name})
}

func (c *Client) GetDescriptionOfEventGenerator(ctx context.Context, ref gcm.InterfaceRef, name string) string {
	return c.callString(ctx, actionGetDescriptionOfEventGenerator, refRequest{Ref: ref, Name: name})
}

func (c *Client) GetDescriptionOfFunction(ctx context.Context, ref gcm.InterfaceRef, name string) string {
	return c.callString(ctx, actionGetDescriptionOfFunction, refRequest{Ref: ref, Name: name})
}

func (c *Client) GetDescriptionOfEventHandler(ctx context.Context, ref gcm.InterfaceRef, name string) string {
	return c.callString(ctx, actionGetDescriptionOfEventHandler, refRequest{Ref: ref, Name: name})
}

func (c *Client) GetInterfaceProvidedDescription(ctx context.Context, ref gcm.InterfaceRef) (descriptor.InterfaceProvided, bool) {
	var reply providedDescriptionReply
	if !c.call(ctx, actionGetInterfaceProvidedDescription, refRequest{Ref: ref}, &reply) {
		return descriptor.InterfaceProvided{}, false
	}
	return reply.Description, reply.OK
}

func (c *Client) GetInterfaceRequiredDescription(ctx context.Context, ref gcm.InterfaceRef) (descriptor.InterfaceRequired, bool) {
	var reply requiredDescriptionReply
	if !c.call(ctx, actionGetInterfaceRequiredDescription, refRequest{Ref: ref}, &reply) {
		return descriptor.InterfaceRequired{}, false
	}
	return reply.Description, reply.OK
}

// registerHandlers routes the server's calls to the local manager.
func (c *Client) registerHandlers(router *session.Router) {
	session.HandleTyped(router, actionTestMessage, func(ctx context.Context, r testMessage) (any, error) {
		c.logger.Info("test message from global component manager", "text", r.Text)
		return r, nil
	})
	session.HandleTyped(router, actionGetProcessName, func(ctx context.Context, _ struct{}) (any, error) {
		return c.local.ProcessName(ctx), nil
	})
	session.HandleTyped(router, actionCreateComponentProxy, func(ctx context.Context, r componentProxyRequest) (any, error) {
		return c.local.CreateComponentProxy(ctx, r.Name), nil
	})
	session.HandleTyped(router, actionRemoveComponentProxy, func(ctx context.Context, r componentProxyRequest) (any, error) {
		return c.local.RemoveComponentProxy(ctx, r.Name), nil
	})
	session.HandleTyped(router, actionCreateInterfaceProvidedProxy, func(ctx context.Context, r providedProxyRequest) (any, error) {
		return c.local.CreateInterfaceProvidedProxy(ctx, r.ComponentProxy, r.Description), nil
	})
	session.HandleTyped(router, actionCreateInterfaceRequiredProxy, func(ctx context.Context, r requiredProxyRequest) (any, error) {
		return c.local.CreateInterfaceRequiredProxy(ctx, r.ComponentProxy, r.Description), nil
	})
	session.HandleTyped(router, actionRemoveInterfaceProvidedProxy, func(ctx context.Context, r interfaceProxyRequest) (any, error) {
		return c.local.RemoveInterfaceProvidedProxy(ctx, r.ComponentProxy, r.Name), nil
	})
	session.HandleTyped(router, actionRemoveInterfaceRequiredProxy, func(ctx context.Context, r interfaceProxyRequest) (any, error) {
		return c.local.RemoveInterfaceRequiredProxy(ctx, r.ComponentProxy, r.Name), nil
	})
	session.HandleTyped(router, actionConnectServerSideInterface, func(ctx context.Context, r connectionRequest) (any, error) {
		return c.local.ConnectServerSideInterface(ctx, r.ID, r.Client, r.Server), nil
	})
	session.HandleTyped(router, actionConnectClientSideInterface, func(ctx context.Context, r connectionRequest) (any, error) {
		return c.local.ConnectClientSideInterface(ctx, r.ID, r.Client, r.Server), nil
	})
	session.HandleTyped(router, actionLocalDisconnect, func(ctx context.Context, r idRequest) (any, error) {
		return c.local.Disconnect(ctx, r.ID), nil
	})

	session.HandleTyped(router, actionGetInterfaceProvidedDescription, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		description, ok := c.local.GetInterfaceProvidedDescription(ctx, r.Component, r.Name)
		return providedDescriptionReply{Description: description, OK: ok}, nil
	})
	session.HandleTyped(router, actionGetInterfaceRequiredDescription, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		description, ok := c.local.GetInterfaceRequiredDescription(ctx, r.Component, r.Name)
		return requiredDescriptionReply{Description: description, OK: ok}, nil
	})
	session.HandleTyped(router, actionGetNamesOfCommands, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetNamesOfCommands(ctx, r.Component, r.Name), nil
	})
	session.HandleTyped(router, actionGetNamesOfEventGenerators, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetNamesOfEventGenerators(ctx, r.Component, r.Name), nil
	})
	session.HandleTyped(router, actionGetNamesOfFunctions, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetNamesOfFunctions(ctx, r.Component, r.Name), nil
	})
	session.HandleTyped(router, actionGetNamesOfEventHandlers, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetNamesOfEventHandlers(ctx, r.Component, r.Name), nil
	})
	session.HandleTyped(router, actionGetDescriptionOfCommand, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetDescriptionOfCommand(ctx, r.Component, r.Name, r.Item), nil
	})
	session.HandleTyped(router, actionGetDescriptionOfEventGenerator, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetDescriptionOfEventGenerator(ctx, r.Component, r.Name, r.Item), nil
	})
	session.HandleTyped(router, actionGetDescriptionOfFunction, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetDescriptionOfFunction(ctx, r.Component, r.Name, r.Item), nil
	})
	session.HandleTyped(router, actionGetDescriptionOfEventHandler, func(ctx context.Context, r localInterfaceRequest) (any, error) {
		return c.local.GetDescriptionOfEventHandler(ctx, r.Component, r.Name, r.Item), nil
	})
}
