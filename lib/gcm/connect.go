// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
)

// removedConnection is a connection taken out of the map, with the
// Local handles to notify once the lock is released.
type removedConnection struct {
	element      ConnectionElement
	clientLocal  Local
	serverLocal  Local
	clientExists bool
	serverExists bool
}

// Connect validates that client is a registered required interface and
// server a registered provided interface, allocates a connection id,
// and records an unconfirmed connection. For a cross-process connection
// it then asks both processes to create the proxies that will stand in
// for the peer. Returns InvalidConnectionID on any failure, leaving no
// state behind.
func (m *Manager) Connect(ctx context.Context, requestProcess string, client, server InterfaceRef) ConnectionID {
	m.mu.Lock()
	element, err := m.insertConnectionLocked(requestProcess, client, server)
	var clientLocal, serverLocal Local
	if err == nil {
		clientLocal = m.localOfLocked(client.Process)
		serverLocal = m.localOfLocked(server.Process)
	}
	m.mu.Unlock()

	if err != nil {
		m.metrics.ConnectFailed()
		m.logger.Warn("connect rejected",
			"request_process", requestProcess,
			"client", client.UID(),
			"server", server.UID(),
			"error", err,
		)
		return InvalidConnectionID
	}

	if element.IsRemote() && clientLocal != nil && serverLocal != nil {
		m.proxyMu.Lock()
		err := m.createProxies(ctx, client, server, clientLocal, serverLocal)
		m.proxyMu.Unlock()
		if err != nil {
			m.mu.Lock()
			if _, exists := m.connections[element.ID]; exists {
				m.removeConnectionLocked(element.ID)
			}
			m.recordSizesLocked()
			m.mu.Unlock()
			m.releaseProxies(ctx, []ConnectionElement{element})
			m.metrics.ConnectFailed()
			m.logger.Warn("connect rolled back",
				"connection_id", element.ID,
				"client", client.UID(),
				"server", server.UID(),
				"error", err,
			)
			return InvalidConnectionID
		}
	}

	m.logger.Info("connection allocated",
		"connection_id", element.ID,
		"request_process", requestProcess,
		"client", client.UID(),
		"server", server.UID(),
	)
	return element.ID
}

func (m *Manager) insertConnectionLocked(requestProcess string, client, server InterfaceRef) (ConnectionElement, error) {
	if _, exists := m.processes[requestProcess]; !exists {
		return ConnectionElement{}, fmt.Errorf("requesting process %q is not registered", requestProcess)
	}
	clientRecord, exists := m.required[client.UID()]
	if !exists {
		return ConnectionElement{}, fmt.Errorf("required interface %s is not registered", client.UID())
	}
	serverRecord, exists := m.provided[server.UID()]
	if !exists {
		return ConnectionElement{}, fmt.Errorf("provided interface %s is not registered", server.UID())
	}
	if _, exists := clientRecord.connected[server.UID()]; exists {
		return ConnectionElement{}, errors.New("interfaces are already connected")
	}

	element := &ConnectionElement{
		ID:             m.nextID,
		RequestProcess: requestProcess,
		Client:         client,
		Server:         server,
		CreatedAt:      m.clock.Now(),
	}
	m.nextID++
	m.connections[element.ID] = element

	remote := element.IsRemote()
	clientRecord.connected[server.UID()] = ConnectedInterfaceInfo{Peer: server, ConnectionID: element.ID, IsRemoteConnection: remote}
	serverRecord.connected[client.UID()] = ConnectedInterfaceInfo{Peer: client, ConnectionID: element.ID, IsRemoteConnection: remote}
	m.recordSizesLocked()
	return *element, nil
}

// createProxies asks the client process for a proxy of the server
// component and the server process for a proxy of the client
// component, each holding an interface proxy built from the peer's
// description.
func (m *Manager) createProxies(ctx context.Context, client, server InterfaceRef, clientLocal, serverLocal Local) error {
	providedDescription, ok := serverLocal.GetInterfaceProvidedDescription(ctx, server.Component, server.Interface)
	if !ok {
		return fmt.Errorf("fetching description of %s", server.UID())
	}
	requiredDescription, ok := clientLocal.GetInterfaceRequiredDescription(ctx, client.Component, client.Interface)
	if !ok {
		return fmt.Errorf("fetching description of %s", client.UID())
	}
	if err := descriptor.CheckCompatible(requiredDescription, providedDescription); err != nil {
		return fmt.Errorf("%s cannot serve %s: %w", server.UID(), client.UID(), err)
	}

	if !clientLocal.CreateComponentProxy(ctx, server.ComponentUID()) {
		return fmt.Errorf("creating component proxy %s in process %s", server.ComponentUID(), client.Process)
	}
	if !clientLocal.CreateInterfaceProvidedProxy(ctx, server.ComponentUID(), providedDescription) {
		return fmt.Errorf("creating provided interface proxy %s in process %s", server.UID(), client.Process)
	}
	if !serverLocal.CreateComponentProxy(ctx, client.ComponentUID()) {
		return fmt.Errorf("creating component proxy %s in process %s", client.ComponentUID(), server.Process)
	}
	if !serverLocal.CreateInterfaceRequiredProxy(ctx, client.ComponentUID(), requiredDescription) {
		return fmt.Errorf("creating required interface proxy %s in process %s", client.UID(), server.Process)
	}
	return nil
}

// ConnectConfirm marks the connection established. Fails if the id is
// unknown, including when the timeout sweep already evicted it.
func (m *Manager) ConnectConfirm(ctx context.Context, id ConnectionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	element, exists := m.connections[id]
	if !exists {
		m.logger.Warn("connect confirm: unknown connection", "connection_id", id)
		return false
	}
	if element.Connected {
		return true
	}
	element.Connected = true

	remote := element.IsRemote()
	if record, exists := m.required[element.Client.UID()]; exists {
		record.connected[element.Server.UID()] = ConnectedInterfaceInfo{
			Peer: element.Server, ConnectionID: id, IsRemoteConnection: remote, Endpoint: element.Endpoint,
		}
	}
	if record, exists := m.provided[element.Server.UID()]; exists {
		record.connected[element.Client.UID()] = ConnectedInterfaceInfo{
			Peer: element.Client, ConnectionID: id, IsRemoteConnection: remote,
		}
	}
	m.recordSizesLocked()
	m.logger.Info("connection established",
		"connection_id", id,
		"client", element.Client.UID(),
		"server", element.Server.UID(),
	)
	return true
}

// DisconnectWithID removes the connection and its peer records, then
// tells both processes to tear down their side. Unknown ids fail
// without side effects.
func (m *Manager) DisconnectWithID(ctx context.Context, id ConnectionID) bool {
	m.mu.Lock()
	if _, exists := m.connections[id]; !exists {
		m.mu.Unlock()
		m.logger.Debug("disconnect: unknown connection", "connection_id", id)
		return false
	}
	removed := m.removeConnectionLocked(id)
	m.recordSizesLocked()
	m.mu.Unlock()

	m.logger.Info("connection removed",
		"connection_id", id,
		"client", removed.element.Client.UID(),
		"server", removed.element.Server.UID(),
	)
	m.notifyDisconnected(ctx, []removedConnection{removed}, "request")
	return true
}

// Disconnect removes the connection between client and server.
func (m *Manager) Disconnect(ctx context.Context, client, server InterfaceRef) bool {
	m.mu.Lock()
	id, found := m.findConnectionLocked(client, server)
	m.mu.Unlock()
	if !found {
		m.logger.Debug("disconnect: interfaces are not connected",
			"client", client.UID(),
			"server", server.UID(),
		)
		return false
	}
	return m.DisconnectWithID(ctx, id)
}

func (m *Manager) findConnectionLocked(client, server InterfaceRef) (ConnectionID, bool) {
	for id, element := range m.connections {
		if element.Client == client && element.Server == server {
			return id, true
		}
	}
	return InvalidConnectionID, false
}

// removeConnectionLocked deletes the element and both peer records.
// The caller must know id exists.
func (m *Manager) removeConnectionLocked(id ConnectionID) removedConnection {
	element := m.connections[id]
	delete(m.connections, id)
	if record, exists := m.required[element.Client.UID()]; exists {
		delete(record.connected, element.Server.UID())
	}
	if record, exists := m.provided[element.Server.UID()]; exists {
		delete(record.connected, element.Client.UID())
	}
	removed := removedConnection{element: *element}
	if process, exists := m.processes[element.Client.Process]; exists {
		removed.clientLocal, removed.clientExists = process.local, true
	}
	if process, exists := m.processes[element.Server.Process]; exists {
		removed.serverLocal, removed.serverExists = process.local, true
	}
	return removed
}

// notifyDisconnected tells the surviving processes of removed
// connections to tear down their side, then releases the proxies no
// remaining connection uses. Failures are logged; heartbeat monitoring
// reconciles whatever a lost notification leaves behind.
func (m *Manager) notifyDisconnected(ctx context.Context, removed []removedConnection, reason string) {
	if len(removed) == 0 {
		return
	}
	gone := make([]ConnectionElement, 0, len(removed))
	for _, connection := range removed {
		gone = append(gone, connection.element)
		m.metrics.Disconnected(reason)
		id := connection.element.ID
		if connection.clientExists && connection.clientLocal != nil {
			if !connection.clientLocal.Disconnect(ctx, id) {
				m.logger.Debug("client side had nothing to tear down", "connection_id", id, "process", connection.element.Client.Process)
			}
		}
		if connection.serverExists && connection.serverLocal != nil && connection.element.IsRemote() {
			if !connection.serverLocal.Disconnect(ctx, id) {
				m.logger.Debug("server side had nothing to tear down", "connection_id", id, "process", connection.element.Server.Process)
			}
		}
	}
	m.releaseProxies(ctx, gone)
}

// SetInterfaceProvidedProxyAccessInfo records the endpoint of the
// provided-side interface proxy of the connection between client and
// server.
func (m *Manager) SetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server InterfaceRef, endpoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, found := m.findConnectionLocked(client, server)
	if !found {
		m.logger.Warn("set access info: interfaces are not connected", "client", client.UID(), "server", server.UID())
		return false
	}
	element := m.connections[id]
	element.Endpoint = endpoint
	if record, exists := m.required[client.UID()]; exists {
		if info, exists := record.connected[server.UID()]; exists {
			info.Endpoint = endpoint
			record.connected[server.UID()] = info
		}
	}
	m.logger.Debug("access info published", "connection_id", id, "endpoint", endpoint)
	return true
}

// GetInterfaceProvidedProxyAccessInfo returns the published endpoint of
// the connection between client and server.
func (m *Manager) GetInterfaceProvidedProxyAccessInfo(ctx context.Context, client, server InterfaceRef) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, found := m.findConnectionLocked(client, server)
	if !found {
		return "", false
	}
	endpoint := m.connections[id].Endpoint
	return endpoint, endpoint != ""
}

// GetInterfaceProvidedProxyAccessInfoWithID returns the published
// endpoint of a connection.
func (m *Manager) GetInterfaceProvidedProxyAccessInfoWithID(ctx context.Context, id ConnectionID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	element, exists := m.connections[id]
	if !exists || element.Endpoint == "" {
		return "", false
	}
	return element.Endpoint, true
}

// InitiateConnect asks the client process to bring up the required side
// of a remote connection. The client process in turn triggers the server
// side through ConnectServerSideInterfaceRequest.
func (m *Manager) InitiateConnect(ctx context.Context, id ConnectionID) bool {
	element, local, ok := m.connectionAndLocal(id, true)
	if !ok {
		return false
	}
	if !local.ConnectClientSideInterface(ctx, id, element.Client, element.Server) {
		m.logger.Warn("client side failed to connect",
			"connection_id", id,
			"process", element.Client.Process,
		)
		return false
	}
	return true
}

// ConnectServerSideInterfaceRequest asks the server process to bring up
// the provided side of a remote connection.
func (m *Manager) ConnectServerSideInterfaceRequest(ctx context.Context, id ConnectionID) bool {
	element, local, ok := m.connectionAndLocal(id, false)
	if !ok {
		return false
	}
	if !local.ConnectServerSideInterface(ctx, id, element.Client, element.Server) {
		m.logger.Warn("server side failed to connect",
			"connection_id", id,
			"process", element.Server.Process,
		)
		return false
	}
	return true
}

func (m *Manager) connectionAndLocal(id ConnectionID, clientSide bool) (ConnectionElement, Local, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	element, exists := m.connections[id]
	if !exists {
		m.logger.Warn("unknown connection", "connection_id", id)
		return ConnectionElement{}, nil, false
	}
	process := element.Server.Process
	if clientSide {
		process = element.Client.Process
	}
	local := m.localOfLocked(process)
	if local == nil {
		m.logger.Warn("process has no local manager", "connection_id", id, "process", process)
		return ConnectionElement{}, nil, false
	}
	return *element, local, true
}
