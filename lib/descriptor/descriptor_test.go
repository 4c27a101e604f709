// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"strings"
	"testing"
)

func robotInterface() InterfaceProvided {
	return InterfaceProvided{
		Name: "Robot",
		Commands: []Command{
			{Name: "Home", Kind: CommandVoid},
			{Name: "SetGoal", Kind: CommandWrite, Argument: Type{Name: "float64"}},
			{Name: "GetPosition", Kind: CommandRead, Result: Type{Name: "float64"}},
			{Name: "GetJoint", Kind: CommandQualifiedRead, Argument: Type{Name: "int"}, Result: Type{Name: "float64"}},
		},
		Events: []Event{
			{Name: "Moved", Kind: EventWrite, Argument: Type{Name: "float64"}},
			{Name: "Stopped", Kind: EventVoid},
		},
	}
}

func TestCommandDescribe(t *testing.T) {
	description := robotInterface()
	command, ok := description.Command("GetJoint")
	if !ok {
		t.Fatal("GetJoint not found")
	}
	if got, want := command.Describe(), "QualifiedRead GetJoint(int) -> float64"; got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
	event, _ := description.Event("Stopped")
	if got, want := event.Describe(), "Void Stopped()"; got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestNamesAreSorted(t *testing.T) {
	names := robotInterface().CommandNames()
	want := []string{"GetJoint", "GetPosition", "Home", "SetGoal"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("CommandNames = %v, want %v", names, want)
	}
}

func TestValidate(t *testing.T) {
	if err := robotInterface().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	duplicate := robotInterface()
	duplicate.Commands = append(duplicate.Commands, Command{Name: "Home", Kind: CommandVoid})
	if err := duplicate.Validate(); err == nil || !strings.Contains(err.Error(), `duplicate command "Home"`) {
		t.Errorf("Validate duplicate = %v", err)
	}

	unnamed := InterfaceRequired{Functions: []Command{{Kind: CommandVoid}}}
	err := unnamed.Validate()
	if err == nil {
		t.Fatal("Validate of unnamed interface should fail")
	}
	if !strings.Contains(err.Error(), "interface name is required") || !strings.Contains(err.Error(), "empty name") {
		t.Errorf("Validate = %v", err)
	}
}

func TestDigestIgnoresOrder(t *testing.T) {
	first := robotInterface()
	second := robotInterface()
	second.Commands[0], second.Commands[3] = second.Commands[3], second.Commands[0]
	second.Events[0], second.Events[1] = second.Events[1], second.Events[0]

	if first.Digest() != second.Digest() {
		t.Error("digest depends on command order")
	}
	if first.Digest().IsZero() {
		t.Error("digest is zero")
	}

	changed := robotInterface()
	changed.Commands[1].Argument.Name = "int"
	if first.Digest() == changed.Digest() {
		t.Error("digest did not change with an argument type")
	}
}

func TestCheckCompatible(t *testing.T) {
	provided := robotInterface()

	matching := InterfaceRequired{
		Name: "Controller",
		Functions: []Command{
			{Name: "Home", Kind: CommandVoid},
			{Name: "GetJoint", Kind: CommandQualifiedRead, Argument: Type{Name: "int"}, Result: Type{Name: "float64"}},
		},
		EventHandlers: []Event{{Name: "Moved", Kind: EventWrite, Argument: Type{Name: "float64"}}},
	}
	if err := CheckCompatible(matching, provided); err != nil {
		t.Errorf("CheckCompatible matching: %v", err)
	}

	mismatched := InterfaceRequired{
		Name: "Controller",
		Functions: []Command{
			{Name: "Home", Kind: CommandWrite, Argument: Type{Name: "int"}},
			{Name: "Missing", Kind: CommandVoid},
			{Name: "GetPosition", Kind: CommandRead, Result: Type{Name: "string"}},
		},
		EventHandlers: []Event{{Name: "Stopped", Kind: EventWrite, Argument: Type{Name: "int"}}},
	}
	err := CheckCompatible(mismatched, provided)
	if err == nil {
		t.Fatal("CheckCompatible mismatched should fail")
	}
	for _, fragment := range []string{`"Home": kind Write`, `"Missing": no such command`, `"GetPosition": result string`, `"Stopped"`} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q missing %q", err, fragment)
		}
	}
}
