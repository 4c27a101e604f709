// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
)

// The registry only knows names. Everything about the content of an
// interface is asked of the process that owns it.

// GetNamesOfCommands returns the command names of a provided interface.
func (m *Manager) GetNamesOfCommands(ctx context.Context, ref InterfaceRef) []string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetNamesOfCommands(ctx, ref.Component, ref.Interface)
	}
	return nil
}

// GetNamesOfEventGenerators returns the event generator names of a
// provided interface.
func (m *Manager) GetNamesOfEventGenerators(ctx context.Context, ref InterfaceRef) []string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetNamesOfEventGenerators(ctx, ref.Component, ref.Interface)
	}
	return nil
}

// GetNamesOfFunctions returns the function names of a required
// interface.
func (m *Manager) GetNamesOfFunctions(ctx context.Context, ref InterfaceRef) []string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetNamesOfFunctions(ctx, ref.Component, ref.Interface)
	}
	return nil
}

// GetNamesOfEventHandlers returns the event handler names of a required
// interface.
func (m *Manager) GetNamesOfEventHandlers(ctx context.Context, ref InterfaceRef) []string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetNamesOfEventHandlers(ctx, ref.Component, ref.Interface)
	}
	return nil
}

// GetDescriptionOfCommand returns the signature of command name of a
// provided interface, as in "Void Home()". Empty when the process, the
// interface, or the command is unknown.
func (m *Manager) GetDescriptionOfCommand(ctx context.Context, ref InterfaceRef, name string) string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetDescriptionOfCommand(ctx, ref.Component, ref.Interface, name)
	}
	return ""
}

// GetDescriptionOfEventGenerator returns the signature of event
// generator name of a provided interface, or "".
func (m *Manager) GetDescriptionOfEventGenerator(ctx context.Context, ref InterfaceRef, name string) string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetDescriptionOfEventGenerator(ctx, ref.Component, ref.Interface, name)
	}
	return ""
}

// GetDescriptionOfFunction returns the signature of function name of a
// required interface, or "".
func (m *Manager) GetDescriptionOfFunction(ctx context.Context, ref InterfaceRef, name string) string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetDescriptionOfFunction(ctx, ref.Component, ref.Interface, name)
	}
	return ""
}

// GetDescriptionOfEventHandler returns the signature of event handler
// name of a required interface, or "".
func (m *Manager) GetDescriptionOfEventHandler(ctx context.Context, ref InterfaceRef, name string) string {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetDescriptionOfEventHandler(ctx, ref.Component, ref.Interface, name)
	}
	return ""
}

// GetInterfaceProvidedDescription returns the full description of a
// provided interface.
func (m *Manager) GetInterfaceProvidedDescription(ctx context.Context, ref InterfaceRef) (descriptor.InterfaceProvided, bool) {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetInterfaceProvidedDescription(ctx, ref.Component, ref.Interface)
	}
	return descriptor.InterfaceProvided{}, false
}

// GetInterfaceRequiredDescription returns the full description of a
// required interface.
func (m *Manager) GetInterfaceRequiredDescription(ctx context.Context, ref InterfaceRef) (descriptor.InterfaceRequired, bool) {
	if local := m.localOf(ref.Process); local != nil {
		return local.GetInterfaceRequiredDescription(ctx, ref.Component, ref.Interface)
	}
	return descriptor.InterfaceRequired{}, false
}
