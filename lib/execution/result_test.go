// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package execution

import "testing"

func TestResultString(t *testing.T) {
	if got := FunctionNotBound.String(); got != "FUNCTION_NOT_BOUND" {
		t.Errorf("FunctionNotBound.String() = %q", got)
	}
	if got := Result(200).String(); got != "RESULT(200)" {
		t.Errorf("Result(200).String() = %q", got)
	}
}

func TestResultOK(t *testing.T) {
	for _, result := range []Result{CommandSucceeded, CommandQueued} {
		if !result.OK() {
			t.Errorf("%s.OK() = false", result)
		}
	}
	for _, result := range []Result{FunctionNotBound, NetworkError, SerializationError, CommandFailed} {
		if result.OK() {
			t.Errorf("%s.OK() = true", result)
		}
	}
}
