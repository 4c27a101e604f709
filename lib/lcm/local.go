// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lcm

import (
	"context"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
)

// The methods below are the GCM's view of this process.

// ProcessName returns the process name.
func (m *Manager) ProcessName(ctx context.Context) string {
	return m.name
}

// CreateComponentProxy creates a component proxy named
// "process:component". Creating an existing proxy succeeds.
func (m *Manager) CreateComponentProxy(ctx context.Context, name string) bool {
	if _, _, ok := gcm.SplitComponentUID(name); !ok {
		m.logger.Warn("invalid component proxy name", "component", name)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, exists := m.components[name]; exists {
		return existing.proxy
	}
	m.components[name] = newComponent(name, true)
	m.logger.Debug("component proxy created", "component", name)
	return true
}

// RemoveComponentProxy removes a component proxy.
func (m *Manager) RemoveComponentProxy(ctx context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	component, exists := m.components[name]
	if !exists || !component.proxy {
		return false
	}
	delete(m.components, name)
	m.logger.Debug("component proxy removed", "component", name)
	return true
}

func (m *Manager) componentProxy(name string) (*Component, bool) {
	component, ok := m.Component(name)
	if !ok || !component.proxy {
		m.logger.Warn("no such component proxy", "component", name)
		return nil, false
	}
	return component, true
}

// CreateInterfaceProvidedProxy adds a provided interface matching
// description to a component proxy. An existing proxy with the same
// description is kept.
func (m *Manager) CreateInterfaceProvidedProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceProvided) bool {
	component, ok := m.componentProxy(componentProxy)
	if !ok {
		return false
	}
	component.mu.Lock()
	defer component.mu.Unlock()
	if existing, exists := component.provided[description.Name]; exists {
		return existing.Description().Digest() == description.Digest()
	}
	provided := newProvidedInterface(componentProxy, description.Name)
	provided.proxy = &description
	component.provided[description.Name] = provided
	return true
}

// CreateInterfaceRequiredProxy adds a required interface matching
// description to a component proxy.
func (m *Manager) CreateInterfaceRequiredProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceRequired) bool {
	component, ok := m.componentProxy(componentProxy)
	if !ok {
		return false
	}
	component.mu.Lock()
	defer component.mu.Unlock()
	if _, exists := component.required[description.Name]; exists {
		return true
	}
	required := newRequiredInterface(componentProxy, description.Name)
	required.proxy = &description
	component.required[description.Name] = required
	return true
}

// RemoveInterfaceProvidedProxy removes a provided interface proxy.
func (m *Manager) RemoveInterfaceProvidedProxy(ctx context.Context, componentProxy, name string) bool {
	component, ok := m.componentProxy(componentProxy)
	if !ok {
		return false
	}
	component.mu.Lock()
	defer component.mu.Unlock()
	if _, exists := component.provided[name]; !exists {
		return false
	}
	delete(component.provided, name)
	return true
}

// RemoveInterfaceRequiredProxy removes a required interface proxy.
func (m *Manager) RemoveInterfaceRequiredProxy(ctx context.Context, componentProxy, name string) bool {
	component, ok := m.componentProxy(componentProxy)
	if !ok {
		return false
	}
	component.mu.Lock()
	defer component.mu.Unlock()
	if _, exists := component.required[name]; !exists {
		return false
	}
	delete(component.required, name)
	return true
}

// GetInterfaceProvidedDescription describes a provided interface of
// this process.
func (m *Manager) GetInterfaceProvidedDescription(ctx context.Context, component, name string) (descriptor.InterfaceProvided, bool) {
	provided, ok := m.provided(component, name)
	if !ok {
		return descriptor.InterfaceProvided{}, false
	}
	return provided.Description(), true
}

// GetInterfaceRequiredDescription describes a required interface of
// this process.
func (m *Manager) GetInterfaceRequiredDescription(ctx context.Context, component, name string) (descriptor.InterfaceRequired, bool) {
	required, ok := m.required(component, name)
	if !ok {
		return descriptor.InterfaceRequired{}, false
	}
	return required.Description(), true
}

// Name and signature queries answer from the interface descriptions.
// An unknown interface or member yields an empty result.

func (m *Manager) GetNamesOfCommands(ctx context.Context, component, name string) []string {
	description, _ := m.GetInterfaceProvidedDescription(ctx, component, name)
	return description.CommandNames()
}

func (m *Manager) GetNamesOfEventGenerators(ctx context.Context, component, name string) []string {
	description, _ := m.GetInterfaceProvidedDescription(ctx, component, name)
	return description.EventNames()
}

func (m *Manager) GetNamesOfFunctions(ctx context.Context, component, name string) []string {
	description, _ := m.GetInterfaceRequiredDescription(ctx, component, name)
	return description.FunctionNames()
}

func (m *Manager) GetNamesOfEventHandlers(ctx context.Context, component, name string) []string {
	description, _ := m.GetInterfaceRequiredDescription(ctx, component, name)
	return description.EventHandlerNames()
}

func (m *Manager) GetDescriptionOfCommand(ctx context.Context, component, name, command string) string {
	description, _ := m.GetInterfaceProvidedDescription(ctx, component, name)
	if found, ok := description.Command(command); ok {
		return found.Describe()
	}
	return ""
}

func (m *Manager) GetDescriptionOfEventGenerator(ctx context.Context, component, name, event string) string {
	description, _ := m.GetInterfaceProvidedDescription(ctx, component, name)
	if found, ok := description.Event(event); ok {
		return found.Describe()
	}
	return ""
}

func (m *Manager) GetDescriptionOfFunction(ctx context.Context, component, name, function string) string {
	description, _ := m.GetInterfaceRequiredDescription(ctx, component, name)
	if found, ok := description.Function(function); ok {
		return found.Describe()
	}
	return ""
}

func (m *Manager) GetDescriptionOfEventHandler(ctx context.Context, component, name, handler string) string {
	description, _ := m.GetInterfaceRequiredDescription(ctx, component, name)
	if found, ok := description.EventHandler(handler); ok {
		return found.Describe()
	}
	return ""
}
