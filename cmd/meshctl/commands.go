// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
)

// environment is what a command runs against.
type environment struct {
	gcm gcm.Global
	// proxy is nil when the GCM is reached in-process.
	proxy    messenger
	stdout   io.Writer
	renderer *lipgloss.Renderer
}

func (env *environment) table(headers []string, rows [][]string) {
	fmt.Fprint(env.stdout, renderTable(env.renderer, headers, rows))
}

type messenger interface {
	TestMessage(ctx context.Context, text string) (string, error)
}

type command struct {
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"processes":   {"list registered processes", runProcesses},
	"components":  {"list the components of a process", runComponents},
	"interfaces":  {"list the interfaces of a component", runInterfaces},
	"connections": {"list connections and their state", runConnections},
	"describe":    {"describe an interface given as process:component:interface", runDescribe},
	"ping":        {"send a test message through the manager proxy", runPing},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireArgs(args []string, names ...string) error {
	if len(args) != len(names) {
		return fmt.Errorf("expected arguments: %s", strings.Join(names, " "))
	}
	return nil
}

func runProcesses(ctx context.Context, env *environment, args []string) error {
	if err := requireArgs(args); err != nil {
		return err
	}
	var rows [][]string
	for _, process := range env.gcm.GetNamesOfProcesses(ctx) {
		components := env.gcm.GetNamesOfComponents(ctx, process)
		rows = append(rows, []string{process, strconv.Itoa(len(components))})
	}
	env.table([]string{"PROCESS", "COMPONENTS"}, rows)
	return nil
}

func runComponents(ctx context.Context, env *environment, args []string) error {
	if err := requireArgs(args, "<process>"); err != nil {
		return err
	}
	process := args[0]
	if !env.gcm.FindProcess(ctx, process) {
		return fmt.Errorf("process %q is not registered", process)
	}
	var rows [][]string
	for _, component := range env.gcm.GetNamesOfComponents(ctx, process) {
		provided := env.gcm.GetNamesOfInterfacesProvidedOrOutput(ctx, process, component)
		required := env.gcm.GetNamesOfInterfacesRequiredOrInput(ctx, process, component)
		rows = append(rows, []string{component, strconv.Itoa(len(provided)), strconv.Itoa(len(required))})
	}
	env.table([]string{"COMPONENT", "PROVIDED", "REQUIRED"}, rows)
	return nil
}

func runInterfaces(ctx context.Context, env *environment, args []string) error {
	if err := requireArgs(args, "<process>", "<component>"); err != nil {
		return err
	}
	process, component := args[0], args[1]
	if !env.gcm.FindComponent(ctx, process, component) {
		return fmt.Errorf("component %s:%s is not registered", process, component)
	}
	var rows [][]string
	for _, name := range env.gcm.GetNamesOfInterfacesProvidedOrOutput(ctx, process, component) {
		ref := gcm.InterfaceRef{Process: process, Component: component, Interface: name}
		rows = append(rows, []string{name, "provided", peers(env.gcm.GetConnectionsOfInterfaceProvidedOrOutput(ctx, ref))})
	}
	for _, name := range env.gcm.GetNamesOfInterfacesRequiredOrInput(ctx, process, component) {
		ref := gcm.InterfaceRef{Process: process, Component: component, Interface: name}
		rows = append(rows, []string{name, "required", peers(env.gcm.GetConnectionsOfInterfaceRequiredOrInput(ctx, ref))})
	}
	env.table([]string{"INTERFACE", "KIND", "CONNECTED TO"}, rows)
	return nil
}

func peers(infos []gcm.ConnectedInterfaceInfo) string {
	if len(infos) == 0 {
		return "-"
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Peer.UID()
	}
	return strings.Join(names, ", ")
}

func runConnections(ctx context.Context, env *environment, args []string) error {
	if err := requireArgs(args); err != nil {
		return err
	}
	var rows [][]string
	for _, element := range env.gcm.GetListOfConnections(ctx) {
		state := "pending"
		if element.Connected {
			state = "connected"
		}
		endpoint := element.Endpoint
		if !element.IsRemote() {
			endpoint = "local"
		} else if endpoint == "" {
			endpoint = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(int64(element.ID), 10),
			element.Client.UID(),
			element.Server.UID(),
			state,
			endpoint,
		})
	}
	env.table([]string{"ID", "CLIENT", "SERVER", "STATE", "ENDPOINT"}, rows)
	return nil
}

func runDescribe(ctx context.Context, env *environment, args []string) error {
	if err := requireArgs(args, "<process:component:interface>"); err != nil {
		return err
	}
	ref, ok := gcm.ParseInterfaceRef(args[0])
	if !ok {
		return fmt.Errorf("invalid interface %q: expected process:component:interface", args[0])
	}
	var rows [][]string
	switch {
	case env.gcm.FindInterfaceProvidedOrOutput(ctx, ref.Process, ref.Component, ref.Interface):
		for _, name := range env.gcm.GetNamesOfCommands(ctx, ref) {
			rows = append(rows, []string{"command", env.gcm.GetDescriptionOfCommand(ctx, ref, name)})
		}
		for _, name := range env.gcm.GetNamesOfEventGenerators(ctx, ref) {
			rows = append(rows, []string{"event", env.gcm.GetDescriptionOfEventGenerator(ctx, ref, name)})
		}
	case env.gcm.FindInterfaceRequiredOrInput(ctx, ref.Process, ref.Component, ref.Interface):
		for _, name := range env.gcm.GetNamesOfFunctions(ctx, ref) {
			rows = append(rows, []string{"function", env.gcm.GetDescriptionOfFunction(ctx, ref, name)})
		}
		for _, name := range env.gcm.GetNamesOfEventHandlers(ctx, ref) {
			rows = append(rows, []string{"handler", env.gcm.GetDescriptionOfEventHandler(ctx, ref, name)})
		}
	default:
		return fmt.Errorf("interface %s is not registered", ref.UID())
	}
	env.table([]string{"KIND", "SIGNATURE"}, rows)
	return nil
}

func runPing(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errors.New("expected arguments: <text>")
	}
	if env.proxy == nil {
		return errors.New("not connected through a manager proxy")
	}
	reply, err := env.proxy.TestMessage(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, reply)
	return nil
}
