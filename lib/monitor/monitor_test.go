// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/jhu-cisst/cisst-sub002/lib/testutil"
)

type fakeStub struct {
	dead  atomic.Bool
	pings atomic.Int32
}

func (s *fakeStub) Ping() (time.Duration, error) {
	s.pings.Add(1)
	if s.dead.Load() {
		return 0, errors.New("connection reset")
	}
	return time.Millisecond, nil
}

func TestTableIndexes(t *testing.T) {
	table := NewTable[*fakeStub]()
	sessionA, sessionB := uuid.New(), uuid.New()

	a, ok := table.Add("P1", sessionA, &fakeStub{})
	if !ok {
		t.Fatal("Add(P1) failed")
	}
	b, ok := table.Add("P2", sessionB, &fakeStub{})
	if !ok {
		t.Fatal("Add(P2) failed")
	}
	if a.ClientID != 1 || b.ClientID != 2 {
		t.Errorf("client ids = %d, %d; want 1, 2", a.ClientID, b.ClientID)
	}
	if _, ok := table.Add("P3", sessionA, &fakeStub{}); ok {
		t.Error("second client on one session accepted")
	}

	if record, ok := table.BySession(sessionB); !ok || record.Name != "P2" {
		t.Errorf("BySession(B) = %+v, %v", record, ok)
	}
	if record, ok := table.ByName("P1"); !ok || record.SessionID != sessionA {
		t.Errorf("ByName(P1) = %+v, %v", record, ok)
	}

	if _, ok := table.Remove(a.ClientID); !ok {
		t.Fatal("Remove(a) failed")
	}
	if _, ok := table.Remove(a.ClientID); ok {
		t.Error("second Remove(a) succeeded")
	}
	if _, ok := table.BySession(sessionA); ok {
		t.Error("session index kept removed client")
	}

	c, _ := table.Add("P1", uuid.New(), &fakeStub{})
	if c.ClientID != 3 {
		t.Errorf("client id after removal = %d, want 3 (ids are not reused)", c.ClientID)
	}
	snapshot := table.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ClientID != 2 || snapshot[1].ClientID != 3 {
		t.Errorf("Snapshot = %+v", snapshot)
	}
}

func TestAddUniqueRejectsHeldNames(t *testing.T) {
	table := NewTable[*fakeStub]()
	sessionA, sessionB := uuid.New(), uuid.New()

	first, err := table.AddUnique("P1", sessionA, &fakeStub{})
	if err != nil {
		t.Fatalf("AddUnique(P1): %v", err)
	}
	if _, err := table.AddUnique("P1", sessionB, &fakeStub{}); !errors.Is(err, ErrNameTaken) {
		t.Errorf("AddUnique(P1) on a second session = %v, want ErrNameTaken", err)
	}
	if _, err := table.AddUnique("P2", sessionA, &fakeStub{}); !errors.Is(err, ErrSessionTaken) {
		t.Errorf("AddUnique(P2) on a used session = %v, want ErrSessionTaken", err)
	}

	table.Remove(first.ClientID)
	if _, err := table.AddUnique("P1", sessionB, &fakeStub{}); err != nil {
		t.Errorf("AddUnique(P1) after removal: %v", err)
	}
}

func TestAddUniqueAdmitsOneOfConcurrentClaims(t *testing.T) {
	table := NewTable[*fakeStub]()
	const claims = 32

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		admitted atomic.Int32
	)
	for range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := table.AddUnique("P1", uuid.New(), &fakeStub{}); err == nil {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Fatalf("%d concurrent claims of one name admitted, want 1", got)
	}
	if table.Len() != 1 {
		t.Errorf("table holds %d clients, want 1", table.Len())
	}
}

func TestCheckDisconnectsDeadClients(t *testing.T) {
	table := NewTable[*fakeStub]()
	var mu sync.Mutex
	var disconnected []string
	monitor := New(Config[*fakeStub]{
		Table:  table,
		Logger: testutil.Logger(t),
		OnDisconnect: func(ctx context.Context, record Record[*fakeStub]) {
			mu.Lock()
			disconnected = append(disconnected, record.Name)
			mu.Unlock()
		},
	})

	alive := &fakeStub{}
	dead := &fakeStub{}
	dead.dead.Store(true)
	monitor.Add("alive", uuid.New(), alive)
	deadRecord, _ := monitor.Add("dead", uuid.New(), dead)

	if n := monitor.Check(context.Background()); n != 1 {
		t.Fatalf("Check() = %d, want 1", n)
	}
	if alive.pings.Load() != 1 || dead.pings.Load() != 1 {
		t.Errorf("pings = %d, %d; want 1 each", alive.pings.Load(), dead.pings.Load())
	}
	if table.Len() != 1 {
		t.Errorf("table holds %d clients, want 1", table.Len())
	}
	if len(disconnected) != 1 || disconnected[0] != "dead" {
		t.Errorf("disconnected = %v", disconnected)
	}

	if monitor.OnClientDisconnect(context.Background(), deadRecord.ClientID) {
		t.Error("OnClientDisconnect of removed client returned true")
	}
	if len(disconnected) != 1 {
		t.Errorf("callback fired again: %v", disconnected)
	}
}

func TestPeriodIsOneAndAHalfRefresh(t *testing.T) {
	monitor := New(Config[*fakeStub]{Table: NewTable[*fakeStub](), RefreshPeriod: 2 * time.Second})
	if monitor.Period() != 3*time.Second {
		t.Errorf("Period() = %v, want 3s", monitor.Period())
	}
	if New(Config[*fakeStub]{Table: NewTable[*fakeStub]()}).Period() != 1500*time.Millisecond {
		t.Error("default period is not 1.5s")
	}
}

func TestRunPingsEveryPeriod(t *testing.T) {
	mock := clock.NewMock()
	table := NewTable[*fakeStub]()
	disconnected := make(chan string, 1)
	monitor := New(Config[*fakeStub]{
		Table: table,
		Clock: mock,
		OnDisconnect: func(ctx context.Context, record Record[*fakeStub]) {
			disconnected <- record.Name
		},
	})
	stub := &fakeStub{}
	monitor.Add("P1", uuid.New(), stub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	// The ticker is created inside Run; advance until it has fired.
	testutil.Eventually(t, 5*time.Second, func() bool {
		mock.Add(monitor.Period())
		return stub.pings.Load() > 0
	}, "first heartbeat")

	stub.dead.Store(true)
	testutil.Eventually(t, 5*time.Second, func() bool {
		mock.Add(monitor.Period())
		return table.Len() == 0
	}, "dead client removed")
	if name := testutil.RequireReceive(t, disconnected, time.Second, "disconnect callback"); name != "P1" {
		t.Errorf("disconnected %q, want P1", name)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run to return"); err != nil {
		t.Errorf("Run: %v", err)
	}
}
