// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientID identifies a client within one table. Ids start at 1 and
// are never reused.
type ClientID int64

// Pinger is a client stub the monitor can ping.
type Pinger interface {
	Ping() (time.Duration, error)
}

// Record is one connected client.
type Record[S Pinger] struct {
	Name      string
	ClientID  ClientID
	SessionID uuid.UUID
	Stub      S
}

// Table is the client table of one proxy server.
type Table[S Pinger] struct {
	mu        sync.Mutex
	lastID    ClientID
	byID      map[ClientID]Record[S]
	bySession map[uuid.UUID]ClientID
}

// NewTable returns an empty table.
func NewTable[S Pinger]() *Table[S] {
	return &Table[S]{
		byID:      make(map[ClientID]Record[S]),
		bySession: make(map[uuid.UUID]ClientID),
	}
}

var (
	// ErrSessionTaken reports a session that already carries a client.
	ErrSessionTaken = errors.New("session already carries a client")

	// ErrNameTaken reports a name held by a client on another session.
	ErrNameTaken = errors.New("name held by another session")
)

// Add inserts a client reached over session sessionID. It fails if the
// session already carries a client.
func (t *Table[S]) Add(name string, sessionID uuid.UUID, stub S) (Record[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.bySession[sessionID]; exists {
		return Record[S]{}, false
	}
	return t.insertLocked(name, sessionID, stub), true
}

// AddUnique is Add that also fails with ErrNameTaken when a client on
// another session holds name. The check and the insert happen under
// one lock.
func (t *Table[S]) AddUnique(name string, sessionID uuid.UUID, stub S) (Record[S], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.bySession[sessionID]; exists {
		return Record[S]{}, ErrSessionTaken
	}
	for _, record := range t.byID {
		if record.Name == name {
			return Record[S]{}, ErrNameTaken
		}
	}
	return t.insertLocked(name, sessionID, stub), nil
}

func (t *Table[S]) insertLocked(name string, sessionID uuid.UUID, stub S) Record[S] {
	t.lastID++
	record := Record[S]{Name: name, ClientID: t.lastID, SessionID: sessionID, Stub: stub}
	t.byID[record.ClientID] = record
	t.bySession[sessionID] = record.ClientID
	return record
}

// Remove deletes the client and returns its record.
func (t *Table[S]) Remove(id ClientID) (Record[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.byID[id]
	if !exists {
		return Record[S]{}, false
	}
	delete(t.byID, id)
	delete(t.bySession, record.SessionID)
	return record, true
}

// Get returns the client with the given id.
func (t *Table[S]) Get(id ClientID) (Record[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, exists := t.byID[id]
	return record, exists
}

// BySession returns the client reached over the given session.
func (t *Table[S]) BySession(sessionID uuid.UUID) (Record[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, exists := t.bySession[sessionID]
	if !exists {
		return Record[S]{}, false
	}
	return t.byID[id], true
}

// ByName returns the client registered under name. Names are not
// indexed; tables hold few clients.
func (t *Table[S]) ByName(name string) (Record[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, record := range t.byID {
		if record.Name == name {
			return record, true
		}
	}
	return Record[S]{}, false
}

// Snapshot returns every record ordered by client id.
func (t *Table[S]) Snapshot() []Record[S] {
	t.mu.Lock()
	records := make([]Record[S], 0, len(t.byID))
	for _, record := range t.byID {
		records = append(records, record)
	}
	t.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ClientID < records[j].ClientID })
	return records
}

// Len returns the number of clients.
func (t *Table[S]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
