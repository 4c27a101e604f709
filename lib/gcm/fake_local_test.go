// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"
	"sync"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
)

// fakeLocal records the calls the GCM makes on a Local and answers
// from canned descriptions.
type fakeLocal struct {
	name string

	mu               sync.Mutex
	provided         map[string]descriptor.InterfaceProvided
	required         map[string]descriptor.InterfaceRequired
	componentProxies []string
	providedProxies  []string
	requiredProxies  []string
	// removed lists proxy removals in call order: "component P2:C2",
	// "provided P2:C2:p1", "required P1:C1:r1".
	removed          []string
	clientSide       []ConnectionID
	serverSide       []ConnectionID
	disconnected     []ConnectionID
	failProxies      bool
	onClientSide     func(id ConnectionID) bool
}

func newFakeLocal(name string) *fakeLocal {
	return &fakeLocal{
		name:     name,
		provided: make(map[string]descriptor.InterfaceProvided),
		required: make(map[string]descriptor.InterfaceRequired),
	}
}

func (f *fakeLocal) ProcessName(ctx context.Context) string { return f.name }

func (f *fakeLocal) CreateComponentProxy(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.componentProxies = append(f.componentProxies, name)
	return true
}

func (f *fakeLocal) RemoveComponentProxy(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, "component "+name)
	return true
}

func (f *fakeLocal) CreateInterfaceProvidedProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceProvided) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failProxies {
		return false
	}
	f.providedProxies = append(f.providedProxies, componentProxy+":"+description.Name)
	return true
}

func (f *fakeLocal) CreateInterfaceRequiredProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceRequired) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failProxies {
		return false
	}
	f.requiredProxies = append(f.requiredProxies, componentProxy+":"+description.Name)
	return true
}

func (f *fakeLocal) RemoveInterfaceProvidedProxy(ctx context.Context, componentProxy, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, "provided "+componentProxy+":"+name)
	return true
}

func (f *fakeLocal) RemoveInterfaceRequiredProxy(ctx context.Context, componentProxy, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, "required "+componentProxy+":"+name)
	return true
}

func (f *fakeLocal) ConnectServerSideInterface(ctx context.Context, id ConnectionID, client, server InterfaceRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serverSide = append(f.serverSide, id)
	return true
}

func (f *fakeLocal) ConnectClientSideInterface(ctx context.Context, id ConnectionID, client, server InterfaceRef) bool {
	f.mu.Lock()
	f.clientSide = append(f.clientSide, id)
	hook := f.onClientSide
	f.mu.Unlock()
	if hook != nil {
		return hook(id)
	}
	return true
}

func (f *fakeLocal) Disconnect(ctx context.Context, id ConnectionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
	return true
}

func (f *fakeLocal) GetInterfaceProvidedDescription(ctx context.Context, component, name string) (descriptor.InterfaceProvided, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	description, ok := f.provided[component+":"+name]
	return description, ok
}

func (f *fakeLocal) GetInterfaceRequiredDescription(ctx context.Context, component, name string) (descriptor.InterfaceRequired, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	description, ok := f.required[component+":"+name]
	return description, ok
}

func (f *fakeLocal) GetNamesOfCommands(ctx context.Context, component, name string) []string {
	description, _ := f.GetInterfaceProvidedDescription(ctx, component, name)
	return description.CommandNames()
}

func (f *fakeLocal) GetNamesOfEventGenerators(ctx context.Context, component, name string) []string {
	description, _ := f.GetInterfaceProvidedDescription(ctx, component, name)
	return description.EventNames()
}

func (f *fakeLocal) GetNamesOfFunctions(ctx context.Context, component, name string) []string {
	description, _ := f.GetInterfaceRequiredDescription(ctx, component, name)
	return description.FunctionNames()
}

func (f *fakeLocal) GetNamesOfEventHandlers(ctx context.Context, component, name string) []string {
	description, _ := f.GetInterfaceRequiredDescription(ctx, component, name)
	return description.EventHandlerNames()
}

func (f *fakeLocal) GetDescriptionOfCommand(ctx context.Context, component, name, command string) string {
	description, _ := f.GetInterfaceProvidedDescription(ctx, component, name)
	found, ok := description.Command(command)
	if !ok {
		return ""
	}
	return found.Describe()
}

func (f *fakeLocal) GetDescriptionOfEventGenerator(ctx context.Context, component, name, event string) string {
	return ""
}

func (f *fakeLocal) GetDescriptionOfFunction(ctx context.Context, component, name, function string) string {
	return ""
}

func (f *fakeLocal) GetDescriptionOfEventHandler(ctx context.Context, component, name, handler string) string {
	return ""
}

func (f *fakeLocal) disconnectedIDs() []ConnectionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConnectionID(nil), f.disconnected...)
}

func (f *fakeLocal) removedProxies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}
