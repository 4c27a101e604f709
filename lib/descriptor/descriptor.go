// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CommandKind is the calling convention of a command (on a provided
// interface) or function (on a required interface).
type CommandKind uint8

const (
	// CommandVoid takes no argument and returns nothing.
	CommandVoid CommandKind = iota
	// CommandWrite takes one argument and returns nothing.
	CommandWrite
	// CommandRead takes no argument and returns a value.
	CommandRead
	// CommandQualifiedRead takes a qualifier argument and returns a
	// value.
	CommandQualifiedRead
	// CommandVoidReturn takes no argument and returns a value. Unlike
	// a read, it may change state.
	CommandVoidReturn
	// CommandWriteReturn takes one argument and returns a value.
	CommandWriteReturn
)

var commandKindNames = [...]string{
	CommandVoid:          "Void",
	CommandWrite:         "Write",
	CommandRead:          "Read",
	CommandQualifiedRead: "QualifiedRead",
	CommandVoidReturn:    "VoidReturn",
	CommandWriteReturn:   "WriteReturn",
}

func (k CommandKind) String() string {
	if int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// HasArgument reports whether commands of this kind take an argument.
func (k CommandKind) HasArgument() bool {
	return k == CommandWrite || k == CommandQualifiedRead || k == CommandWriteReturn
}

// HasResult reports whether commands of this kind produce a value.
func (k CommandKind) HasResult() bool {
	return k == CommandRead || k == CommandQualifiedRead || k == CommandVoidReturn || k == CommandWriteReturn
}

// EventKind is the shape of an event generator or handler.
type EventKind uint8

const (
	// EventVoid carries no payload.
	EventVoid EventKind = iota
	// EventWrite carries one payload value.
	EventWrite
)

func (k EventKind) String() string {
	switch k {
	case EventVoid:
		return "Void"
	case EventWrite:
		return "Write"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Type names a payload type and carries its prototype.
type Type struct {
	Name      string `cbor:"name,omitempty"`
	Prototype []byte `cbor:"prototype,omitempty"`
}

// Command describes a command of a provided interface, or a function
// of a required interface.
type Command struct {
	Name     string      `cbor:"name"`
	Kind     CommandKind `cbor:"kind"`
	Argument Type        `cbor:"argument"`
	Result   Type        `cbor:"result"`
}

// Describe renders the command's signature, e.g.
// "QualifiedRead GetPosition(int) -> robot.Position".
func (c Command) Describe() string {
	var builder strings.Builder
	builder.WriteString(c.Kind.String())
	builder.WriteByte(' ')
	builder.WriteString(c.Name)
	builder.WriteByte('(')
	if c.Kind.HasArgument() {
		builder.WriteString(c.Argument.Name)
	}
	builder.WriteByte(')')
	if c.Kind.HasResult() {
		builder.WriteString(" -> ")
		builder.WriteString(c.Result.Name)
	}
	return builder.String()
}

// Event describes an event generator of a provided interface, or an
// event handler of a required interface.
type Event struct {
	Name     string    `cbor:"name"`
	Kind     EventKind `cbor:"kind"`
	Argument Type      `cbor:"argument"`
}

// Describe renders the event's signature, e.g. "Write Moved(float64)".
func (e Event) Describe() string {
	if e.Kind == EventWrite {
		return fmt.Sprintf("%s %s(%s)", e.Kind, e.Name, e.Argument.Name)
	}
	return fmt.Sprintf("%s %s()", e.Kind, e.Name)
}

// InterfaceProvided describes a provided interface.
type InterfaceProvided struct {
	Name     string    `cbor:"name"`
	Commands []Command `cbor:"commands,omitempty"`
	Events   []Event   `cbor:"events,omitempty"`
}

// InterfaceRequired describes a required interface.
type InterfaceRequired struct {
	Name          string    `cbor:"name"`
	Functions     []Command `cbor:"functions,omitempty"`
	EventHandlers []Event   `cbor:"event_handlers,omitempty"`
}

// Command returns the command with the given name.
func (d InterfaceProvided) Command(name string) (Command, bool) {
	return findCommand(d.Commands, name)
}

// Event returns the event generator with the given name.
func (d InterfaceProvided) Event(name string) (Event, bool) {
	return findEvent(d.Events, name)
}

// CommandNames returns the sorted command names.
func (d InterfaceProvided) CommandNames() []string {
	return commandNames(d.Commands)
}

// EventNames returns the sorted event generator names.
func (d InterfaceProvided) EventNames() []string {
	return eventNames(d.Events)
}

// Validate reports empty or duplicate names.
func (d InterfaceProvided) Validate() error {
	return validate(d.Name, d.Commands, d.Events)
}

// Function returns the function with the given name.
func (d InterfaceRequired) Function(name string) (Command, bool) {
	return findCommand(d.Functions, name)
}

// EventHandler returns the event handler with the given name.
func (d InterfaceRequired) EventHandler(name string) (Event, bool) {
	return findEvent(d.EventHandlers, name)
}

// FunctionNames returns the sorted function names.
func (d InterfaceRequired) FunctionNames() []string {
	return commandNames(d.Functions)
}

// EventHandlerNames returns the sorted event handler names.
func (d InterfaceRequired) EventHandlerNames() []string {
	return eventNames(d.EventHandlers)
}

// Validate reports empty or duplicate names.
func (d InterfaceRequired) Validate() error {
	return validate(d.Name, d.Functions, d.EventHandlers)
}

// CheckCompatible reports every function or event handler of required
// that provided cannot serve. A function matches a command of the same
// name, kind, and payload type names. Event handlers without a
// matching generator are reported too: they would never fire.
func CheckCompatible(required InterfaceRequired, provided InterfaceProvided) error {
	var errs []error
	for _, function := range required.Functions {
		command, ok := provided.Command(function.Name)
		if !ok {
			errs = append(errs, fmt.Errorf("function %q: no such command on %q", function.Name, provided.Name))
			continue
		}
		if command.Kind != function.Kind {
			errs = append(errs, fmt.Errorf("function %q: kind %s, command is %s", function.Name, function.Kind, command.Kind))
			continue
		}
		if function.Kind.HasArgument() && command.Argument.Name != function.Argument.Name {
			errs = append(errs, fmt.Errorf("function %q: argument %s, command takes %s", function.Name, function.Argument.Name, command.Argument.Name))
		}
		if function.Kind.HasResult() && command.Result.Name != function.Result.Name {
			errs = append(errs, fmt.Errorf("function %q: result %s, command returns %s", function.Name, function.Result.Name, command.Result.Name))
		}
	}
	for _, handler := range required.EventHandlers {
		event, ok := provided.Event(handler.Name)
		if !ok {
			errs = append(errs, fmt.Errorf("event handler %q: no such event on %q", handler.Name, provided.Name))
			continue
		}
		if event.Kind != handler.Kind || (event.Kind == EventWrite && event.Argument.Name != handler.Argument.Name) {
			errs = append(errs, fmt.Errorf("event handler %q: %s does not match %s", handler.Name, handler.Describe(), event.Describe()))
		}
	}
	return errors.Join(errs...)
}

func findCommand(commands []Command, name string) (Command, bool) {
	for _, command := range commands {
		if command.Name == name {
			return command, true
		}
	}
	return Command{}, false
}

func findEvent(events []Event, name string) (Event, bool) {
	for _, event := range events {
		if event.Name == name {
			return event, true
		}
	}
	return Event{}, false
}

func commandNames(commands []Command) []string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		names = append(names, command.Name)
	}
	sort.Strings(names)
	return names
}

func eventNames(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.Name)
	}
	sort.Strings(names)
	return names
}

func validate(interfaceName string, commands []Command, events []Event) error {
	var errs []error
	if interfaceName == "" {
		errs = append(errs, errors.New("interface name is required"))
	}
	seen := make(map[string]bool, len(commands))
	for _, command := range commands {
		if command.Name == "" {
			errs = append(errs, fmt.Errorf("interface %q: command with empty name", interfaceName))
			continue
		}
		if seen[command.Name] {
			errs = append(errs, fmt.Errorf("interface %q: duplicate command %q", interfaceName, command.Name))
		}
		seen[command.Name] = true
	}
	seenEvents := make(map[string]bool, len(events))
	for _, event := range events {
		if event.Name == "" {
			errs = append(errs, fmt.Errorf("interface %q: event with empty name", interfaceName))
			continue
		}
		if seenEvents[event.Name] {
			errs = append(errs, fmt.Errorf("interface %q: duplicate event %q", interfaceName, event.Name))
		}
		seenEvents[event.Name] = true
	}
	return errors.Join(errs...)
}
