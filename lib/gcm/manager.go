// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
)

// DefaultConnectConfirmTimeout is how long a connection may stay
// unconfirmed before the sweep evicts it.
const DefaultConnectConfirmTimeout = 15 * time.Second

// DefaultSweepInterval is how often Run checks for unconfirmed
// connections.
const DefaultSweepInterval = time.Second

// Config holds the Manager's collaborators and tuning.
type Config struct {
	// Logger is required.
	Logger *slog.Logger

	// Clock defaults to the wall clock. Tests inject clock.NewMock().
	Clock clock.Clock

	// ConnectConfirmTimeout defaults to DefaultConnectConfirmTimeout.
	ConnectConfirmTimeout time.Duration

	// SweepInterval defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	// Metrics is optional.
	Metrics *metrics.Registry
}

type processRecord struct {
	name   string
	remote bool
	local  Local
	// components holds component names.
	components map[string]struct{}
}

type componentRecord struct {
	process  string
	name     string
	provided map[string]struct{}
	required map[string]struct{}
}

type interfaceRecord struct {
	ref InterfaceRef
	// connected is keyed by the peer interface UID.
	connected map[string]ConnectedInterfaceInfo
}

// Manager is the Global Component Manager. Create one with New; the
// zero value is not usable.
type Manager struct {
	logger        *slog.Logger
	clock         clock.Clock
	timeout       time.Duration
	sweepInterval time.Duration
	metrics       *metrics.Registry

	// proxyMu serializes proxy creation in Connect with proxy release,
	// so a release never removes a proxy a new connection just asked
	// for. It is taken before mu, never after.
	proxyMu sync.Mutex

	// mu guards every field below.
	mu          sync.Mutex
	processes   map[string]*processRecord
	components  map[string]*componentRecord
	provided    map[string]*interfaceRecord
	required    map[string]*interfaceRecord
	connections map[ConnectionID]*ConnectionElement
	nextID      ConnectionID
}

// New creates an empty registry. Panics if config.Logger is nil.
func New(config Config) *Manager {
	if config.Logger == nil {
		panic("gcm.New: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.ConnectConfirmTimeout <= 0 {
		config.ConnectConfirmTimeout = DefaultConnectConfirmTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	m := &Manager{
		logger:        config.Logger,
		clock:         config.Clock,
		timeout:       config.ConnectConfirmTimeout,
		sweepInterval: config.SweepInterval,
		metrics:       config.Metrics,
	}
	m.resetLocked()
	return m
}

func (m *Manager) resetLocked() {
	m.processes = make(map[string]*processRecord)
	m.components = make(map[string]*componentRecord)
	m.provided = make(map[string]*interfaceRecord)
	m.required = make(map[string]*interfaceRecord)
	m.connections = make(map[ConnectionID]*ConnectionElement)
}

// Cleanup empties the registry and the connection map. Connection ids
// allocated afterwards continue from where they left off.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.recordSizesLocked()
	m.logger.Info("registry cleaned up")
}

// AddProcess registers a process with no Local handle.
func (m *Manager) AddProcess(ctx context.Context, name string) bool {
	return m.addProcess(name, nil, false)
}

// AddProcessObject registers the process managed by local. isRemote is
// true when local is a proxy stub for a manager in another process.
func (m *Manager) AddProcessObject(ctx context.Context, local Local, isRemote bool) bool {
	if local == nil {
		m.logger.Warn("add process object: nil local manager")
		return false
	}
	name := local.ProcessName(ctx)
	return m.addProcess(name, local, isRemote)
}

func (m *Manager) addProcess(name string, local Local, remote bool) bool {
	if !ValidName(name) {
		m.logger.Warn("add process: invalid name", "process", name)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processes[name]; exists {
		m.logger.Warn("add process: already registered", "process", name)
		return false
	}
	m.processes[name] = &processRecord{
		name:       name,
		remote:     remote,
		local:      local,
		components: make(map[string]struct{}),
	}
	m.recordSizesLocked()
	m.logger.Info("process registered", "process", name, "remote", remote)
	return true
}

// SetLocalManager attaches or replaces the Local handle of a registered
// process.
func (m *Manager) SetLocalManager(name string, local Local, isRemote bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	process, exists := m.processes[name]
	if !exists {
		m.logger.Warn("set local manager: no such process", "process", name)
		return false
	}
	process.local = local
	process.remote = isRemote
	return true
}

// FindProcess reports whether the process is registered.
func (m *Manager) FindProcess(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.processes[name]
	return exists
}

// RemoveProcess removes the process, its components and interfaces, and
// every connection touching them. networkDisconnect marks removals
// triggered by a lost peer rather than a shutdown request. Surviving
// peers of removed connections are told to tear down their side.
func (m *Manager) RemoveProcess(ctx context.Context, name string, networkDisconnect bool) bool {
	m.mu.Lock()
	process, exists := m.processes[name]
	if !exists {
		m.mu.Unlock()
		m.logger.Warn("remove process: no such process", "process", name)
		return false
	}
	var removed []removedConnection
	for component := range process.components {
		removed = append(removed, m.removeComponentLocked(name, component)...)
	}
	delete(m.processes, name)
	m.recordSizesLocked()
	m.mu.Unlock()

	// The removed process is not notified about its own connections.
	for i := range removed {
		if removed[i].element.Client.Process == name {
			removed[i].clientExists = false
		}
		if removed[i].element.Server.Process == name {
			removed[i].serverExists = false
		}
	}

	if networkDisconnect {
		m.logger.Warn("process removed after network disconnect",
			"process", name,
			"connections", len(removed),
		)
	} else {
		m.logger.Info("process removed", "process", name, "connections", len(removed))
	}
	m.notifyDisconnected(ctx, removed, "process_removed")
	return true
}

// AddComponent registers a component in an existing process.
func (m *Manager) AddComponent(ctx context.Context, process, component string) bool {
	if !ValidName(component) {
		m.logger.Warn("add component: invalid name", "process", process, "component", component)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	processRecord, exists := m.processes[process]
	if !exists {
		m.logger.Warn("add component: no such process", "process", process, "component", component)
		return false
	}
	key := componentKey(process, component)
	if _, exists := m.components[key]; exists {
		m.logger.Warn("add component: already registered", "process", process, "component", component)
		return false
	}
	m.components[key] = &componentRecord{
		process:  process,
		name:     component,
		provided: make(map[string]struct{}),
		required: make(map[string]struct{}),
	}
	processRecord.components[component] = struct{}{}
	m.recordSizesLocked()
	m.logger.Debug("component registered", "process", process, "component", component)
	return true
}

// FindComponent reports whether the component is registered.
func (m *Manager) FindComponent(ctx context.Context, process, component string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.components[componentKey(process, component)]
	return exists
}

// RemoveComponent removes the component, its interfaces, and their
// connections.
func (m *Manager) RemoveComponent(ctx context.Context, process, component string) bool {
	m.mu.Lock()
	if _, exists := m.components[componentKey(process, component)]; !exists {
		m.mu.Unlock()
		m.logger.Warn("remove component: no such component", "process", process, "component", component)
		return false
	}
	removed := m.removeComponentLocked(process, component)
	m.recordSizesLocked()
	m.mu.Unlock()

	m.logger.Debug("component removed", "process", process, "component", component)
	m.notifyDisconnected(ctx, removed, "component_removed")
	return true
}

func (m *Manager) removeComponentLocked(process, component string) []removedConnection {
	key := componentKey(process, component)
	record, exists := m.components[key]
	if !exists {
		return nil
	}
	var removed []removedConnection
	for name := range record.provided {
		removed = append(removed, m.removeInterfaceLocked(InterfaceRef{process, component, name}, true)...)
	}
	for name := range record.required {
		removed = append(removed, m.removeInterfaceLocked(InterfaceRef{process, component, name}, false)...)
	}
	delete(m.components, key)
	if processRecord, exists := m.processes[process]; exists {
		delete(processRecord.components, component)
	}
	return removed
}

// AddInterfaceProvidedOrOutput registers a provided interface of an
// existing component.
func (m *Manager) AddInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	return m.addInterface(InterfaceRef{process, component, name}, true)
}

// AddInterfaceRequiredOrInput registers a required interface of an
// existing component.
func (m *Manager) AddInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	return m.addInterface(InterfaceRef{process, component, name}, false)
}

func (m *Manager) addInterface(ref InterfaceRef, provided bool) bool {
	kind := interfaceKind(provided)
	if !ValidName(ref.Interface) {
		m.logger.Warn("add interface: invalid name", "kind", kind, "process", ref.Process, "component", ref.Component, "interface", ref.Interface)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	component, exists := m.components[ref.ComponentUID()]
	if !exists {
		m.logger.Warn("add interface: no such component", "kind", kind, "interface", ref.UID())
		return false
	}
	table, names := m.required, component.required
	if provided {
		table, names = m.provided, component.provided
	}
	if _, exists := table[ref.UID()]; exists {
		m.logger.Warn("add interface: already registered", "kind", kind, "interface", ref.UID())
		return false
	}
	table[ref.UID()] = &interfaceRecord{ref: ref, connected: make(map[string]ConnectedInterfaceInfo)}
	names[ref.Interface] = struct{}{}
	m.recordSizesLocked()
	m.logger.Debug("interface registered", "kind", kind, "interface", ref.UID())
	return true
}

// FindInterfaceProvidedOrOutput reports whether the provided interface
// is registered.
func (m *Manager) FindInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.provided[InterfaceRef{process, component, name}.UID()]
	return exists
}

// FindInterfaceRequiredOrInput reports whether the required interface
// is registered.
func (m *Manager) FindInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.required[InterfaceRef{process, component, name}.UID()]
	return exists
}

// RemoveInterfaceProvidedOrOutput removes the provided interface and
// its connections.
func (m *Manager) RemoveInterfaceProvidedOrOutput(ctx context.Context, process, component, name string) bool {
	return m.removeInterface(ctx, InterfaceRef{process, component, name}, true)
}

// RemoveInterfaceRequiredOrInput removes the required interface and its
// connections.
func (m *Manager) RemoveInterfaceRequiredOrInput(ctx context.Context, process, component, name string) bool {
	return m.removeInterface(ctx, InterfaceRef{process, component, name}, false)
}

func (m *Manager) removeInterface(ctx context.Context, ref InterfaceRef, provided bool) bool {
	table := m.required
	if provided {
		table = m.provided
	}
	m.mu.Lock()
	if _, exists := table[ref.UID()]; !exists {
		m.mu.Unlock()
		m.logger.Warn("remove interface: no such interface", "kind", interfaceKind(provided), "interface", ref.UID())
		return false
	}
	removed := m.removeInterfaceLocked(ref, provided)
	m.recordSizesLocked()
	m.mu.Unlock()

	m.notifyDisconnected(ctx, removed, "interface_removed")
	return true
}

// removeInterfaceLocked drops the interface record, its name from its
// component, and every connection using it.
func (m *Manager) removeInterfaceLocked(ref InterfaceRef, provided bool) []removedConnection {
	var removed []removedConnection
	for id, element := range m.connections {
		if (provided && element.Server == ref) || (!provided && element.Client == ref) {
			removed = append(removed, m.removeConnectionLocked(id))
		}
	}
	component := m.components[ref.ComponentUID()]
	if provided {
		delete(m.provided, ref.UID())
		if component != nil {
			delete(component.provided, ref.Interface)
		}
	} else {
		delete(m.required, ref.UID())
		if component != nil {
			delete(component.required, ref.Interface)
		}
	}
	return removed
}

// GetNamesOfProcesses returns the sorted process names.
func (m *Manager) GetNamesOfProcesses(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.processes))
	for name := range m.processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetNamesOfComponents returns the sorted component names of process.
func (m *Manager) GetNamesOfComponents(ctx context.Context, process string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.processes[process]
	if !exists {
		return nil
	}
	return sortedKeys(record.components)
}

// GetNamesOfInterfacesProvidedOrOutput returns the sorted provided
// interface names of a component.
func (m *Manager) GetNamesOfInterfacesProvidedOrOutput(ctx context.Context, process, component string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.components[componentKey(process, component)]
	if !exists {
		return nil
	}
	return sortedKeys(record.provided)
}

// GetNamesOfInterfacesRequiredOrInput returns the sorted required
// interface names of a component.
func (m *Manager) GetNamesOfInterfacesRequiredOrInput(ctx context.Context, process, component string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.components[componentKey(process, component)]
	if !exists {
		return nil
	}
	return sortedKeys(record.required)
}

// GetListOfConnections returns a snapshot of every connection element
// ordered by id.
func (m *Manager) GetListOfConnections(ctx context.Context) []ConnectionElement {
	m.mu.Lock()
	defer m.mu.Unlock()
	elements := make([]ConnectionElement, 0, len(m.connections))
	for _, element := range m.connections {
		elements = append(elements, *element)
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].ID < elements[j].ID })
	return elements
}

// GetConnectionsOfInterfaceProvidedOrOutput returns the peers connected
// to a provided interface, ordered by connection id.
func (m *Manager) GetConnectionsOfInterfaceProvidedOrOutput(ctx context.Context, server InterfaceRef) []ConnectedInterfaceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return connectedInfos(m.provided[server.UID()])
}

// GetConnectionsOfInterfaceRequiredOrInput returns the peers connected
// to a required interface, ordered by connection id.
func (m *Manager) GetConnectionsOfInterfaceRequiredOrInput(ctx context.Context, client InterfaceRef) []ConnectedInterfaceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return connectedInfos(m.required[client.UID()])
}

func connectedInfos(record *interfaceRecord) []ConnectedInterfaceInfo {
	if record == nil {
		return nil
	}
	infos := make([]ConnectedInterfaceInfo, 0, len(record.connected))
	for _, info := range record.connected {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ConnectionID < infos[j].ConnectionID })
	return infos
}

// localOfLocked returns the Local handle of a process, or nil. Caller
// holds m.mu.
func (m *Manager) localOfLocked(process string) Local {
	if record, exists := m.processes[process]; exists {
		return record.local
	}
	return nil
}

func (m *Manager) localOf(process string) Local {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localOfLocked(process)
}

func (m *Manager) recordSizesLocked() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetRegistrySize(len(m.processes), len(m.components), len(m.provided)+len(m.required))
	pending, established := 0, 0
	for _, element := range m.connections {
		if element.Connected {
			established++
		} else {
			pending++
		}
	}
	m.metrics.SetConnections(pending, established)
}

func interfaceKind(provided bool) string {
	if provided {
		return "provided"
	}
	return "required"
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
