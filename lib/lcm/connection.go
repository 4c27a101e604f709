// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lcm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/ifproxy"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// connection is this process's side of one connection.
type connection struct {
	id     gcm.ConnectionID
	client gcm.InterfaceRef
	server gcm.InterfaceRef

	// required is set on the client side, local or remote.
	required *RequiredInterface
	// cancels undo local event subscriptions.
	cancels []func()

	proxyClient *ifproxy.Client

	proxyServer *ifproxy.Server
	stopServer  context.CancelFunc
	served      chan struct{}
}

func (c *connection) close() error {
	if c.required != nil {
		c.required.unbind(c.id)
	}
	for _, cancel := range c.cancels {
		cancel()
	}
	var err error
	if c.proxyClient != nil {
		err = c.proxyClient.Close()
	}
	if c.proxyServer != nil {
		c.stopServer()
		<-c.served
	}
	return err
}

func (m *Manager) addConnection(conn *connection) {
	m.mu.Lock()
	m.connections[conn.id] = conn
	m.mu.Unlock()
}

// teardown removes and closes this process's side of a connection.
func (m *Manager) teardown(id gcm.ConnectionID) bool {
	m.mu.Lock()
	conn, exists := m.connections[id]
	delete(m.connections, id)
	m.mu.Unlock()
	if !exists {
		return false
	}
	if err := conn.close(); err != nil {
		m.logger.Debug("closing connection side", "connection_id", id, "error", err)
	}
	m.logger.Info("connection side torn down", "connection_id", id)
	return true
}

// peerLost handles the loss of the interface proxy peer of a
// connection: the local side is torn down at once, then the GCM is
// asked to drop the connection. The GCM call is best effort; if the GCM
// is unreachable its own monitoring retires the connection.
func (m *Manager) peerLost(id gcm.ConnectionID) {
	if !m.teardown(id) {
		return
	}
	m.logger.Warn("interface proxy peer lost", "connection_id", id)
	if m.ctx.Err() != nil {
		return
	}
	global, err := m.global()
	if err != nil {
		return
	}
	if !global.DisconnectWithID(m.ctx, id) {
		m.logger.Debug("GCM no longer knows the connection", "connection_id", id)
	}
}

// connectLocal binds a required interface of this process directly to a
// provided interface of this process.
func (m *Manager) connectLocal(id gcm.ConnectionID, client, server gcm.InterfaceRef) error {
	if client.Process != m.name {
		return fmt.Errorf("connection %d belongs to process %s", id, client.Process)
	}
	required, ok := m.required(client.Component, client.Interface)
	if !ok {
		return fmt.Errorf("no required interface %s", client)
	}
	provided, ok := m.provided(server.Component, server.Interface)
	if !ok {
		return fmt.Errorf("no provided interface %s", server)
	}
	if err := descriptor.CheckCompatible(required.Description(), provided.Description()); err != nil {
		return err
	}

	conn := &connection{id: id, client: client, server: server, required: required}
	functions, handlers := required.snapshot()
	for name, function := range functions {
		command, ok := provided.command(name)
		if !ok {
			continue
		}
		function.bind(id, localBinding{function: function, run: command.run})
	}
	for name, handler := range handlers {
		cancel, ok := provided.Subscribe(name, handler.handle)
		if ok {
			conn.cancels = append(conn.cancels, cancel)
		}
	}
	m.addConnection(conn)
	return nil
}

// ConnectServerSideInterface starts an interface proxy server for the
// provided interface of the connection and publishes its address.
func (m *Manager) ConnectServerSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	logger := m.logger.With("connection_id", id, "server", server.UID())
	provided, ok := m.provided(server.Component, server.Interface)
	if !ok {
		logger.Warn("server side: no such provided interface")
		return false
	}
	global, err := m.global()
	if err != nil {
		logger.Warn("server side: no GCM attached")
		return false
	}

	listener, err := transport.NewAdvertisedTCPListener(m.config.BindHost, m.config.AdvertiseHost)
	if err != nil {
		logger.Warn("server side: listening failed", "error", err)
		return false
	}
	proxyServer, err := ifproxy.NewServer(ifproxy.ServerConfig{
		Target:        provided,
		Listener:      listener,
		Logger:        logger,
		Clock:         m.config.Clock,
		RefreshPeriod: m.config.RefreshPeriod,
		CallTimeout:   m.config.CallTimeout,
		Packer:        m.config.Packer,
		Metrics:       m.config.Metrics,
		// The callback runs on the server's own goroutines, which
		// teardown waits for.
		OnClientDisconnect: func(ctx context.Context, name string) {
			go m.peerLost(id)
		},
	})
	if err != nil {
		listener.Close()
		logger.Warn("server side: creating interface proxy server", "error", err)
		return false
	}
	if err := registerServerSerializers(proxyServer, provided); err != nil {
		proxyServer.Close()
		logger.Warn("server side: registering serializers", "error", err)
		return false
	}

	serveCtx, stop := context.WithCancel(m.ctx)
	conn := &connection{
		id:          id,
		client:      client,
		server:      server,
		proxyServer: proxyServer,
		stopServer:  stop,
		served:      make(chan struct{}),
	}
	go func() {
		defer close(conn.served)
		if err := proxyServer.Serve(serveCtx); err != nil {
			logger.Debug("interface proxy server stopped", "error", err)
		}
	}()
	m.addConnection(conn)

	if !global.SetInterfaceProvidedProxyAccessInfo(ctx, client, server, proxyServer.Address()) {
		m.teardown(id)
		logger.Warn("server side: publishing access info failed")
		return false
	}
	logger.Info("interface proxy server started", "address", proxyServer.Address())
	return true
}

func registerServerSerializers(server *ifproxy.Server, provided *ProvidedInterface) error {
	commands, events := provided.serializers()
	for name, serializers := range commands {
		id, ok := server.CommandID(name)
		if !ok {
			return fmt.Errorf("command %q has no id", name)
		}
		if err := server.AddPerCommandSerializer(id, serializers); err != nil {
			return err
		}
	}
	for name, serializer := range events {
		id, ok := server.EventID(name)
		if !ok {
			return fmt.Errorf("event %q has no id", name)
		}
		if err := server.AddPerEventSerializer(id, serializer); err != nil {
			return err
		}
	}
	return nil
}

// ConnectClientSideInterface asks the GCM to start the server side,
// dials it, and binds the required interface of the connection to it.
func (m *Manager) ConnectClientSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	logger := m.logger.With("connection_id", id, "client", client.UID())
	if err := m.connectClientSide(ctx, id, client, server); err != nil {
		logger.Warn("client side failed", "error", err)
		m.teardown(id)
		return false
	}
	logger.Info("interface proxy client connected", "server", server.UID())
	return true
}

func (m *Manager) connectClientSide(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) error {
	required, ok := m.required(client.Component, client.Interface)
	if !ok {
		return errors.New("no such required interface")
	}
	proxy, ok := m.provided(server.ComponentUID(), server.Interface)
	if !ok {
		return fmt.Errorf("no provided interface proxy for %s", server)
	}
	global, err := m.global()
	if err != nil {
		return err
	}

	if !global.ConnectServerSideInterfaceRequest(ctx, id) {
		return errors.New("server side could not be started")
	}
	endpoint, ok := global.GetInterfaceProvidedProxyAccessInfoWithID(ctx, id)
	if !ok {
		return errors.New("server side published no access info")
	}

	proxyClient, err := ifproxy.Dial(ctx, ifproxy.ClientConfig{
		Address:      endpoint,
		Dialer:       m.config.Dialer,
		Logger:       m.logger.With("connection_id", id),
		CallTimeout:  m.config.CallTimeout,
		Packer:       m.config.Packer,
		OnDisconnect: func() { go m.peerLost(id) },
	})
	if err != nil {
		return err
	}
	conn := &connection{id: id, client: client, server: server, required: required, proxyClient: proxyClient}
	m.addConnection(conn)

	if err := proxyClient.AddClient(ctx, client.UID(), proxy.Description().Digest()); err != nil {
		return err
	}
	functions, handlers := required.snapshot()
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	ids, err := proxyClient.FetchFunctionProxyPointers(ctx, names)
	if err != nil {
		return err
	}
	for name, function := range functions {
		commandID, ok := ids[name]
		if !ok {
			return fmt.Errorf("server has no command %q", name)
		}
		if err := proxyClient.AddPerCommandSerializer(commandID, function.serializers); err != nil {
			return err
		}
		proxyClient.SetReturnHandler(commandID, function.deliverReturn)
		function.bind(id, remoteBinding{client: proxyClient, id: commandID, kind: function.description.Kind})
	}

	if len(handlers) == 0 {
		return nil
	}
	subscriptions := make(map[string]ifproxy.EventID, len(handlers))
	for i, name := range required.Description().EventHandlerNames() {
		handler := handlers[name]
		eventID := ifproxy.EventID(i + 1)
		subscriptions[name] = eventID
		proxyClient.HandleEvent(eventID, ifproxy.EventHandler(handler.handle))
		if handler.serializer != nil {
			if err := proxyClient.AddPerEventSerializer(eventID, handler.serializer); err != nil {
				return err
			}
		}
	}
	missing, err := proxyClient.FetchEventGeneratorProxyPointers(ctx, subscriptions)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		logger := m.logger.With("connection_id", id)
		logger.Warn("event handlers without a generator", "handlers", missing)
	}
	return nil
}

// Disconnect tears down this process's side of a connection.
func (m *Manager) Disconnect(ctx context.Context, id gcm.ConnectionID) bool {
	return m.teardown(id)
}
