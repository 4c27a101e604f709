// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/config"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// Config configures a Manager.
type Config struct {
	// ProcessName is required.
	ProcessName string

	Logger *slog.Logger
	Clock  clock.Clock

	// BindHost and AdvertiseHost place the interface proxy servers this
	// process starts for its provided interfaces. Both default to
	// 127.0.0.1.
	BindHost      string
	AdvertiseHost string

	// Dialer reaches other processes' interface proxy servers.
	Dialer transport.Dialer

	RefreshPeriod time.Duration
	CallTimeout   time.Duration
	Packer        codec.Packer
	Metrics       *metrics.Registry
}

// ConfigFromProxy returns the Config of process processName built from
// the proxy section of a mesh configuration. Logger, Clock, and Metrics
// are left for the caller.
func ConfigFromProxy(processName string, proxy config.ProxyConfig) (Config, error) {
	packer, err := proxy.Packer()
	if err != nil {
		return Config{}, fmt.Errorf("proxy.compression: %w", err)
	}
	return Config{
		ProcessName:   processName,
		BindHost:      proxy.BindHost,
		AdvertiseHost: proxy.AdvertiseHost,
		Dialer:        &transport.TCPDialer{Timeout: proxy.DialTimeout},
		RefreshPeriod: proxy.RefreshPeriod,
		CallTimeout:   proxy.CallTimeout,
		Packer:        packer,
	}, nil
}

// Component is a component of this process, or a component proxy
// standing in for a component of another process.
type Component struct {
	name  string
	proxy bool

	mu       sync.Mutex
	provided map[string]*ProvidedInterface
	required map[string]*RequiredInterface
}

func newComponent(name string, proxy bool) *Component {
	return &Component{
		name:     name,
		proxy:    proxy,
		provided: make(map[string]*ProvidedInterface),
		required: make(map[string]*RequiredInterface),
	}
}

// Name returns the component name. Component proxies are named
// "process:component".
func (c *Component) Name() string { return c.name }

// IsProxy reports whether the component stands in for a remote one.
func (c *Component) IsProxy() bool { return c.proxy }

// InterfaceProvided returns a provided interface by name.
func (c *Component) InterfaceProvided(name string) (*ProvidedInterface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.provided[name]
	return p, ok
}

// InterfaceRequired returns a required interface by name.
func (c *Component) InterfaceRequired(name string) (*RequiredInterface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.required[name]
	return r, ok
}

// Manager is a Local Component Manager: it owns the components of one
// process, registers them with the GCM, and builds this process's half
// of every connection. Commands run by direct call on the caller's
// goroutine.
type Manager struct {
	name   string
	logger *slog.Logger
	config Config

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	gcm         gcm.Global
	components  map[string]*Component
	connections map[gcm.ConnectionID]*connection
}

var _ gcm.Local = (*Manager)(nil)

// New creates a manager. Attach a GCM before adding components.
func New(config Config) (*Manager, error) {
	if config.ProcessName == "" {
		return nil, errors.New("lcm: ProcessName is required")
	}
	if !gcm.ValidName(config.ProcessName) {
		return nil, fmt.Errorf("lcm: invalid process name %q", config.ProcessName)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.BindHost == "" {
		config.BindHost = "127.0.0.1"
	}
	if config.AdvertiseHost == "" {
		config.AdvertiseHost = config.BindHost
	}
	if config.Dialer == nil {
		config.Dialer = &transport.TCPDialer{Timeout: 5 * time.Second}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		name:        config.ProcessName,
		logger:      config.Logger.With("process", config.ProcessName),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		components:  make(map[string]*Component),
		connections: make(map[gcm.ConnectionID]*connection),
	}, nil
}

// Attach sets the GCM this manager registers with: a
// *managerproxy.Client in a remote process, or the *gcm.Manager itself
// in the process hosting it.
func (m *Manager) Attach(global gcm.Global) {
	m.mu.Lock()
	m.gcm = global
	m.mu.Unlock()
}

func (m *Manager) global() (gcm.Global, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gcm == nil {
		return nil, errors.New("no GCM attached")
	}
	return m.gcm, nil
}

// Name returns the process name.
func (m *Manager) Name() string { return m.name }

// AddComponent creates a component and registers it with the GCM.
func (m *Manager) AddComponent(ctx context.Context, name string) (*Component, error) {
	global, err := m.global()
	if err != nil {
		return nil, err
	}
	if !gcm.ValidName(name) {
		return nil, fmt.Errorf("invalid component name %q", name)
	}
	m.mu.Lock()
	if _, exists := m.components[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("component %q already exists", name)
	}
	component := newComponent(name, false)
	m.components[name] = component
	m.mu.Unlock()

	if !global.AddComponent(ctx, m.name, name) {
		m.mu.Lock()
		delete(m.components, name)
		m.mu.Unlock()
		return nil, fmt.Errorf("GCM refused component %s:%s", m.name, name)
	}
	m.logger.Info("component added", "component", name)
	return component, nil
}

// Component returns a component or component proxy by name.
func (m *Manager) Component(name string) (*Component, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	component, ok := m.components[name]
	return component, ok
}

// RemoveComponent unregisters a component. The GCM disconnects its
// interfaces.
func (m *Manager) RemoveComponent(ctx context.Context, name string) error {
	global, err := m.global()
	if err != nil {
		return err
	}
	m.mu.Lock()
	component, exists := m.components[name]
	if !exists || component.proxy {
		m.mu.Unlock()
		return fmt.Errorf("no component %q", name)
	}
	delete(m.components, name)
	m.mu.Unlock()

	if !global.RemoveComponent(ctx, m.name, name) {
		return fmt.Errorf("GCM could not remove component %s:%s", m.name, name)
	}
	return nil
}

// AddInterfaceProvided adds a provided interface to a component and
// registers it with the GCM. Add its commands and events before
// connecting it.
func (m *Manager) AddInterfaceProvided(ctx context.Context, component *Component, name string) (*ProvidedInterface, error) {
	global, err := m.global()
	if err != nil {
		return nil, err
	}
	if !gcm.ValidName(name) {
		return nil, fmt.Errorf("invalid interface name %q", name)
	}
	component.mu.Lock()
	if _, exists := component.provided[name]; exists {
		component.mu.Unlock()
		return nil, fmt.Errorf("provided interface %q already exists in %s", name, component.name)
	}
	provided := newProvidedInterface(component.name, name)
	component.provided[name] = provided
	component.mu.Unlock()

	if !global.AddInterfaceProvidedOrOutput(ctx, m.name, component.name, name) {
		component.mu.Lock()
		delete(component.provided, name)
		component.mu.Unlock()
		return nil, fmt.Errorf("GCM refused provided interface %s:%s:%s", m.name, component.name, name)
	}
	return provided, nil
}

// AddInterfaceRequired adds a required interface to a component and
// registers it with the GCM.
func (m *Manager) AddInterfaceRequired(ctx context.Context, component *Component, name string) (*RequiredInterface, error) {
	global, err := m.global()
	if err != nil {
		return nil, err
	}
	if !gcm.ValidName(name) {
		return nil, fmt.Errorf("invalid interface name %q", name)
	}
	component.mu.Lock()
	if _, exists := component.required[name]; exists {
		component.mu.Unlock()
		return nil, fmt.Errorf("required interface %q already exists in %s", name, component.name)
	}
	required := newRequiredInterface(component.name, name)
	component.required[name] = required
	component.mu.Unlock()

	if !global.AddInterfaceRequiredOrInput(ctx, m.name, component.name, name) {
		component.mu.Lock()
		delete(component.required, name)
		component.mu.Unlock()
		return nil, fmt.Errorf("GCM refused required interface %s:%s:%s", m.name, component.name, name)
	}
	return required, nil
}

// Connect connects a required interface to a provided interface and
// returns the connection id. A cross-process connection is brought up
// through the GCM: InitiateConnect reaches the client process, which
// starts the interface proxy pair. The connection is confirmed last.
func (m *Manager) Connect(ctx context.Context, client, server gcm.InterfaceRef) (gcm.ConnectionID, error) {
	global, err := m.global()
	if err != nil {
		return gcm.InvalidConnectionID, err
	}
	id := global.Connect(ctx, m.name, client, server)
	if !id.Valid() {
		return gcm.InvalidConnectionID, fmt.Errorf("GCM refused to connect %s to %s", client, server)
	}

	var connected bool
	if client.Process == server.Process {
		err = m.connectLocal(id, client, server)
		connected = err == nil
	} else {
		connected = global.InitiateConnect(ctx, id)
		if !connected {
			err = errors.New("interface proxies could not be started")
		}
	}
	if connected && !global.ConnectConfirm(ctx, id) {
		connected = false
		err = errors.New("GCM did not confirm the connection")
	}
	if !connected {
		if !global.DisconnectWithID(ctx, id) {
			m.teardown(id)
		}
		return gcm.InvalidConnectionID, fmt.Errorf("connecting %s to %s (connection %d): %w", client, server, id, err)
	}
	m.logger.Info("connected", "connection_id", id, "client", client.UID(), "server", server.UID())
	return id, nil
}

// DisconnectConnection removes a connection. The GCM tells both
// processes to tear down their side; if it cannot be reached this
// process tears down its own side anyway.
func (m *Manager) DisconnectConnection(ctx context.Context, id gcm.ConnectionID) error {
	global, err := m.global()
	if err == nil && global.DisconnectWithID(ctx, id) {
		return nil
	}
	if m.teardown(id) {
		return nil
	}
	return fmt.Errorf("no connection %d", id)
}

// Connections returns the ids of connections this process holds a side
// of.
func (m *Manager) Connections() []gcm.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]gcm.ConnectionID, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every connection side without telling the GCM and
// stops every interface proxy server.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	connections := make([]*connection, 0, len(m.connections))
	for id, conn := range m.connections {
		connections = append(connections, conn)
		delete(m.connections, id)
	}
	m.mu.Unlock()

	var err error
	for _, conn := range connections {
		err = multierr.Append(err, conn.close())
	}
	return err
}

func (m *Manager) provided(component, name string) (*ProvidedInterface, bool) {
	owner, ok := m.Component(component)
	if !ok {
		return nil, false
	}
	return owner.InterfaceProvided(name)
}

func (m *Manager) required(component, name string) (*RequiredInterface, bool) {
	owner, ok := m.Component(component)
	if !ok {
		return nil, false
	}
	return owner.InterfaceRequired(name)
}
