// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lcm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/execution"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/ifproxy"
)

// CommandFunc implements a command. argument is nil for commands that
// take none; the returned value is ignored for commands without a
// result.
type CommandFunc func(ctx context.Context, argument any) (any, execution.Result)

// EventFunc handles an event. argument is nil for void events.
type EventFunc func(ctx context.Context, argument any)

func typeOf(serializer codec.Serializer) descriptor.Type {
	if serializer == nil {
		return descriptor.Type{}
	}
	return descriptor.Type{Name: serializer.TypeName(), Prototype: serializer.Prototype()}
}

func checkSerializers(kind descriptor.CommandKind, serializers ifproxy.Serializers) error {
	if kind.HasArgument() && serializers.Argument == nil {
		return fmt.Errorf("%s command needs an argument serializer", kind)
	}
	if kind.HasResult() && serializers.Result == nil {
		return fmt.Errorf("%s command needs a result serializer", kind)
	}
	return nil
}

type command struct {
	description descriptor.Command
	serializers ifproxy.Serializers
	run         CommandFunc
}

// EventGenerator fires one event of a provided interface to every
// connected handler.
type EventGenerator struct {
	description descriptor.Event
	serializer  codec.Serializer

	mu          sync.Mutex
	subscribers map[int]EventFunc
	nextToken   int
}

// Fire delivers argument to every subscriber in turn.
func (e *EventGenerator) Fire(ctx context.Context, argument any) {
	e.mu.Lock()
	subscribers := make([]EventFunc, 0, len(e.subscribers))
	for _, deliver := range e.subscribers {
		subscribers = append(subscribers, deliver)
	}
	e.mu.Unlock()
	for _, deliver := range subscribers {
		deliver(ctx, argument)
	}
}

func (e *EventGenerator) subscribe(deliver EventFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextToken++
	token := e.nextToken
	e.subscribers[token] = deliver
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, token)
	}
}

// ProvidedInterface is a provided interface of a component. It serves
// directly as the target of an interface proxy server.
type ProvidedInterface struct {
	component string
	name      string

	mu       sync.Mutex
	commands map[string]*command
	events   map[string]*EventGenerator
	// proxy holds the description a provided interface proxy was
	// created from; its commands run remotely.
	proxy *descriptor.InterfaceProvided
}

var _ ifproxy.Target = (*ProvidedInterface)(nil)

func newProvidedInterface(component, name string) *ProvidedInterface {
	return &ProvidedInterface{
		component: component,
		name:      name,
		commands:  make(map[string]*command),
		events:    make(map[string]*EventGenerator),
	}
}

// Name returns the interface name.
func (p *ProvidedInterface) Name() string { return p.name }

// AddCommand adds a command of the given kind. serializers must cover
// the kind's argument and result.
func (p *ProvidedInterface) AddCommand(name string, kind descriptor.CommandKind, serializers ifproxy.Serializers, run CommandFunc) error {
	if name == "" || run == nil {
		return errors.New("command needs a name and a function")
	}
	if err := checkSerializers(kind, serializers); err != nil {
		return fmt.Errorf("command %q: %w", name, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy != nil {
		return fmt.Errorf("interface %s is a proxy", p.name)
	}
	if _, exists := p.commands[name]; exists {
		return fmt.Errorf("command %q already exists in %s", name, p.name)
	}
	p.commands[name] = &command{
		description: descriptor.Command{
			Name:     name,
			Kind:     kind,
			Argument: typeOf(serializers.Argument),
			Result:   typeOf(serializers.Result),
		},
		serializers: serializers,
		run:         run,
	}
	return nil
}

// AddEvent adds an event generator. serializer is required for write
// events and ignored for void ones.
func (p *ProvidedInterface) AddEvent(name string, kind descriptor.EventKind, serializer codec.Serializer) (*EventGenerator, error) {
	if name == "" {
		return nil, errors.New("event needs a name")
	}
	if kind == descriptor.EventWrite && serializer == nil {
		return nil, fmt.Errorf("event %q needs a serializer", name)
	}
	if kind == descriptor.EventVoid {
		serializer = nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy != nil {
		return nil, fmt.Errorf("interface %s is a proxy", p.name)
	}
	if _, exists := p.events[name]; exists {
		return nil, fmt.Errorf("event %q already exists in %s", name, p.name)
	}
	generator := &EventGenerator{
		description: descriptor.Event{Name: name, Kind: kind, Argument: typeOf(serializer)},
		serializer:  serializer,
		subscribers: make(map[int]EventFunc),
	}
	p.events[name] = generator
	return generator, nil
}

// Description returns the interface description.
func (p *ProvidedInterface) Description() descriptor.InterfaceProvided {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proxy != nil {
		return *p.proxy
	}
	description := descriptor.InterfaceProvided{Name: p.name}
	for _, command := range p.commands {
		description.Commands = append(description.Commands, command.description)
	}
	for _, event := range p.events {
		description.Events = append(description.Events, event.description)
	}
	slices.SortFunc(description.Commands, func(a, b descriptor.Command) int { return cmp.Compare(a.Name, b.Name) })
	slices.SortFunc(description.Events, func(a, b descriptor.Event) int { return cmp.Compare(a.Name, b.Name) })
	return description
}

// Executor returns the named command for an interface proxy server.
func (p *ProvidedInterface) Executor(name string) (ifproxy.Executor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	command, ok := p.commands[name]
	if !ok {
		return nil, false
	}
	return ifproxy.ExecutorFunc(command.run), true
}

// Subscribe calls deliver each time the named event fires.
func (p *ProvidedInterface) Subscribe(event string, deliver func(ctx context.Context, argument any)) (func(), bool) {
	p.mu.Lock()
	generator, ok := p.events[event]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	return generator.subscribe(deliver), true
}

func (p *ProvidedInterface) command(name string) (*command, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	command, ok := p.commands[name]
	return command, ok
}

func (p *ProvidedInterface) serializers() (map[string]ifproxy.Serializers, map[string]codec.Serializer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	commands := make(map[string]ifproxy.Serializers, len(p.commands))
	for name, command := range p.commands {
		commands[name] = command.serializers
	}
	events := make(map[string]codec.Serializer)
	for name, event := range p.events {
		if event.serializer != nil {
			events[name] = event.serializer
		}
	}
	return commands, events
}

// binding carries a function's calls to the command it is connected
// to.
type binding interface {
	execute(ctx context.Context, argument any, blocking bool) (any, execution.Result)
}

// localBinding runs a command of the same process directly.
type localBinding struct {
	function *Function
	run      CommandFunc
}

func (b localBinding) execute(ctx context.Context, argument any, blocking bool) (any, execution.Result) {
	value, result := b.run(ctx, argument)
	if blocking {
		return value, result
	}
	if b.function.description.Kind.HasResult() {
		b.function.deliverReturn(ctx, value, result)
	}
	return nil, execution.CommandQueued
}

// remoteBinding runs a command through an interface proxy client.
type remoteBinding struct {
	client *ifproxy.Client
	id     ifproxy.CommandID
	kind   descriptor.CommandKind
}

func (b remoteBinding) execute(ctx context.Context, argument any, blocking bool) (any, execution.Result) {
	switch b.kind {
	case descriptor.CommandVoid:
		return nil, b.client.ExecuteCommandVoid(ctx, b.id, blocking)
	case descriptor.CommandWrite:
		return nil, b.client.ExecuteCommandWriteSerialized(ctx, b.id, argument, blocking)
	case descriptor.CommandRead:
		return b.client.ExecuteCommandReadSerialized(ctx, b.id)
	case descriptor.CommandQualifiedRead:
		return b.client.ExecuteCommandQualifiedReadSerialized(ctx, b.id, argument)
	case descriptor.CommandVoidReturn:
		return b.client.ExecuteCommandVoidReturnSerialized(ctx, b.id, blocking)
	case descriptor.CommandWriteReturn:
		return b.client.ExecuteCommandWriteReturnSerialized(ctx, b.id, argument, blocking)
	}
	return nil, execution.InvalidCommandID
}

// Function is a function of a required interface. It fails with
// execution.FunctionNotBound until the interface is connected.
type Function struct {
	description descriptor.Command
	serializers ifproxy.Serializers

	mu         sync.Mutex
	binding    binding
	connection gcm.ConnectionID
	onReturn   ifproxy.ReturnHandler
}

// Execute runs the connected command and waits for its result.
func (f *Function) Execute(ctx context.Context, argument any) (any, execution.Result) {
	bound := f.bound()
	if bound == nil {
		return nil, execution.FunctionNotBound
	}
	return bound.execute(ctx, argument, true)
}

// Queue runs the connected command without waiting. A command with a
// return value delivers it to the return handler. Reads cannot be
// queued.
func (f *Function) Queue(ctx context.Context, argument any) execution.Result {
	kind := f.description.Kind
	if kind == descriptor.CommandRead || kind == descriptor.CommandQualifiedRead {
		return execution.InvalidInput
	}
	bound := f.bound()
	if bound == nil {
		return execution.FunctionNotBound
	}
	_, result := bound.execute(ctx, argument, false)
	return result
}

// SetReturnHandler sets where queued calls deliver their return value.
func (f *Function) SetReturnHandler(handler ifproxy.ReturnHandler) {
	f.mu.Lock()
	f.onReturn = handler
	f.mu.Unlock()
}

// Bound reports whether the function is connected.
func (f *Function) Bound() bool {
	return f.bound() != nil
}

func (f *Function) bound() binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.binding
}

func (f *Function) bind(connection gcm.ConnectionID, target binding) {
	f.mu.Lock()
	f.binding = target
	f.connection = connection
	f.mu.Unlock()
}

func (f *Function) unbind(connection gcm.ConnectionID) {
	f.mu.Lock()
	if f.connection == connection {
		f.binding = nil
	}
	f.mu.Unlock()
}

func (f *Function) deliverReturn(ctx context.Context, value any, result execution.Result) {
	f.mu.Lock()
	handler := f.onReturn
	f.mu.Unlock()
	if handler != nil {
		handler(ctx, value, result)
	}
}

type eventHandler struct {
	description descriptor.Event
	serializer  codec.Serializer
	handle      EventFunc
}

// RequiredInterface is a required interface of a component.
type RequiredInterface struct {
	component string
	name      string

	mu        sync.Mutex
	functions map[string]*Function
	handlers  map[string]*eventHandler
	proxy     *descriptor.InterfaceRequired
}

func newRequiredInterface(component, name string) *RequiredInterface {
	return &RequiredInterface{
		component: component,
		name:      name,
		functions: make(map[string]*Function),
		handlers:  make(map[string]*eventHandler),
	}
}

// Name returns the interface name.
func (r *RequiredInterface) Name() string { return r.name }

// AddFunction adds a function to be bound to the command of the same
// name on connect.
func (r *RequiredInterface) AddFunction(name string, kind descriptor.CommandKind, serializers ifproxy.Serializers) (*Function, error) {
	if name == "" {
		return nil, errors.New("function needs a name")
	}
	if err := checkSerializers(kind, serializers); err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proxy != nil {
		return nil, fmt.Errorf("interface %s is a proxy", r.name)
	}
	if _, exists := r.functions[name]; exists {
		return nil, fmt.Errorf("function %q already exists in %s", name, r.name)
	}
	function := &Function{
		description: descriptor.Command{
			Name:     name,
			Kind:     kind,
			Argument: typeOf(serializers.Argument),
			Result:   typeOf(serializers.Result),
		},
		serializers: serializers,
		connection:  gcm.InvalidConnectionID,
	}
	r.functions[name] = function
	return function, nil
}

// AddEventHandler adds a handler for the event generator of the same
// name.
func (r *RequiredInterface) AddEventHandler(name string, kind descriptor.EventKind, serializer codec.Serializer, handle EventFunc) error {
	if name == "" || handle == nil {
		return errors.New("event handler needs a name and a function")
	}
	if kind == descriptor.EventWrite && serializer == nil {
		return fmt.Errorf("event handler %q needs a serializer", name)
	}
	if kind == descriptor.EventVoid {
		serializer = nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proxy != nil {
		return fmt.Errorf("interface %s is a proxy", r.name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("event handler %q already exists in %s", name, r.name)
	}
	r.handlers[name] = &eventHandler{
		description: descriptor.Event{Name: name, Kind: kind, Argument: typeOf(serializer)},
		serializer:  serializer,
		handle:      handle,
	}
	return nil
}

// Description returns the interface description.
func (r *RequiredInterface) Description() descriptor.InterfaceRequired {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proxy != nil {
		return *r.proxy
	}
	description := descriptor.InterfaceRequired{Name: r.name}
	for _, function := range r.functions {
		description.Functions = append(description.Functions, function.description)
	}
	for _, handler := range r.handlers {
		description.EventHandlers = append(description.EventHandlers, handler.description)
	}
	slices.SortFunc(description.Functions, func(a, b descriptor.Command) int { return cmp.Compare(a.Name, b.Name) })
	slices.SortFunc(description.EventHandlers, func(a, b descriptor.Event) int { return cmp.Compare(a.Name, b.Name) })
	return description
}

func (r *RequiredInterface) snapshot() (map[string]*Function, map[string]*eventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	functions := make(map[string]*Function, len(r.functions))
	for name, function := range r.functions {
		functions[name] = function
	}
	handlers := make(map[string]*eventHandler, len(r.handlers))
	for name, handler := range r.handlers {
		handlers[name] = handler
	}
	return functions, handlers
}

func (r *RequiredInterface) unbind(connection gcm.ConnectionID) {
	functions, _ := r.snapshot()
	for _, function := range functions {
		function.unbind(connection)
	}
}
