// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"strings"
	"time"
)

// ConnectionID identifies one connection between a required and a
// provided interface.
type ConnectionID int64

// InvalidConnectionID is returned by Connect on failure.
const InvalidConnectionID ConnectionID = -1

// Valid reports whether id could have been allocated by Connect.
func (id ConnectionID) Valid() bool {
	return id >= 0
}

// InterfaceRef names an interface by its process, component, and
// interface names.
type InterfaceRef struct {
	Process   string `cbor:"process"`
	Component string `cbor:"component"`
	Interface string `cbor:"interface"`
}

// UID returns "process:component:interface", the registry key of the
// interface.
func (r InterfaceRef) UID() string {
	return r.Process + ":" + r.Component + ":" + r.Interface
}

// ComponentUID returns "process:component". A component proxy standing
// in for this interface's component in another process is named this.
func (r InterfaceRef) ComponentUID() string {
	return componentKey(r.Process, r.Component)
}

func (r InterfaceRef) String() string {
	return r.UID()
}

// ValidName reports whether name can name a process, component, or
// interface. Names are non-empty and must not contain ':', which
// separates the parts of a uid.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, ":")
}

// ParseInterfaceRef parses "process:component:interface".
func ParseInterfaceRef(uid string) (InterfaceRef, bool) {
	parts := strings.Split(uid, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return InterfaceRef{}, false
	}
	return InterfaceRef{Process: parts[0], Component: parts[1], Interface: parts[2]}, true
}

// SplitComponentUID splits a "process:component" name.
func SplitComponentUID(name string) (process, component string, ok bool) {
	process, component, ok = strings.Cut(name, ":")
	if !ok || process == "" || component == "" || strings.Contains(component, ":") {
		return "", "", false
	}
	return process, component, true
}

func componentKey(process, component string) string {
	return process + ":" + component
}

// ConnectedInterfaceInfo is the record an interface keeps about each
// peer it is connected to.
type ConnectedInterfaceInfo struct {
	Peer               InterfaceRef `cbor:"peer"`
	ConnectionID       ConnectionID `cbor:"connection_id"`
	IsRemoteConnection bool         `cbor:"remote"`
	// Endpoint is the access information of the provided-side
	// interface proxy, set for remote connections once published.
	Endpoint string `cbor:"endpoint,omitempty"`
}

// ConnectionElement is the broker's record of one connection, from
// Connect until Disconnect or timeout.
type ConnectionElement struct {
	ID             ConnectionID `cbor:"id"`
	RequestProcess string       `cbor:"request_process"`
	Client         InterfaceRef `cbor:"client"`
	Server         InterfaceRef `cbor:"server"`
	Connected      bool         `cbor:"connected"`
	CreatedAt      time.Time    `cbor:"created_at"`
	Endpoint       string       `cbor:"endpoint,omitempty"`
}

// CheckTimeout reports whether the connection is still unconfirmed more
// than timeout after it was created.
func (e ConnectionElement) CheckTimeout(now time.Time, timeout time.Duration) bool {
	if e.Connected {
		return false
	}
	return now.Sub(e.CreatedAt) > timeout
}

// IsRemote reports whether the two interfaces live in different
// processes.
func (e ConnectionElement) IsRemote() bool {
	return e.Client.Process != e.Server.Process
}
