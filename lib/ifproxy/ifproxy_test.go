// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ifproxy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/execution"
	"github.com/jhu-cisst/cisst-sub002/lib/testutil"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

var robotInterface = descriptor.InterfaceProvided{
	Name: "Robot",
	Commands: []descriptor.Command{
		{Name: "Home", Kind: descriptor.CommandVoid},
		{Name: "SetSpeed", Kind: descriptor.CommandWrite, Argument: descriptor.Type{Name: "float64"}},
		{Name: "GetPosition", Kind: descriptor.CommandRead, Result: descriptor.Type{Name: "int"}},
		{Name: "Scale", Kind: descriptor.CommandQualifiedRead, Argument: descriptor.Type{Name: "int"}, Result: descriptor.Type{Name: "int"}},
		{Name: "Reset", Kind: descriptor.CommandVoidReturn, Result: descriptor.Type{Name: "string"}},
		{Name: "Add", Kind: descriptor.CommandWriteReturn, Argument: descriptor.Type{Name: "int"}, Result: descriptor.Type{Name: "int"}},
	},
	Events: []descriptor.Event{
		{Name: "Moved", Kind: descriptor.EventWrite, Argument: descriptor.Type{Name: "int"}},
		{Name: "Stopped", Kind: descriptor.EventVoid},
	},
}

var robotSerializers = map[string]Serializers{
	"SetSpeed":    {Argument: codec.For[float64]()},
	"GetPosition": {Result: codec.For[int]()},
	"Scale":       {Argument: codec.For[int](), Result: codec.For[int]()},
	"Reset":       {Result: codec.For[string]()},
	"Add":         {Argument: codec.For[int](), Result: codec.For[int]()},
}

// robot is a Target with a position counter.
type robot struct {
	mu          sync.Mutex
	position    int
	speed       float64
	homed       int
	subscribers map[string]map[int]func(context.Context, any)
	nextToken   int
}

func newRobot() *robot {
	return &robot{subscribers: make(map[string]map[int]func(context.Context, any))}
}

func (r *robot) Description() descriptor.InterfaceProvided { return robotInterface }

func (r *robot) Executor(command string) (Executor, bool) {
	var run ExecutorFunc
	switch command {
	case "Home":
		run = func(ctx context.Context, _ any) (any, execution.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.homed++
			r.position = 0
			return nil, execution.CommandSucceeded
		}
	case "SetSpeed":
		run = func(ctx context.Context, argument any) (any, execution.Result) {
			speed := argument.(float64)
			if speed < 0 {
				return nil, execution.InvalidInput
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.speed = speed
			return nil, execution.CommandSucceeded
		}
	case "GetPosition":
		run = func(ctx context.Context, _ any) (any, execution.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.position, execution.CommandSucceeded
		}
	case "Scale":
		run = func(ctx context.Context, argument any) (any, execution.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.position * argument.(int), execution.CommandSucceeded
		}
	case "Reset":
		run = func(ctx context.Context, _ any) (any, execution.Result) {
			return "reset", execution.CommandSucceeded
		}
	case "Add":
		run = func(ctx context.Context, argument any) (any, execution.Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.position += argument.(int)
			return r.position, execution.CommandSucceeded
		}
	default:
		return nil, false
	}
	return run, true
}

func (r *robot) Subscribe(event string, deliver func(context.Context, any)) (func(), bool) {
	if _, ok := robotInterface.Event(event); !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribers[event] == nil {
		r.subscribers[event] = make(map[int]func(context.Context, any))
	}
	r.nextToken++
	token := r.nextToken
	r.subscribers[event][token] = deliver
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers[event], token)
	}, true
}

func (r *robot) fire(event string, argument any) {
	r.mu.Lock()
	var delivers []func(context.Context, any)
	for _, deliver := range r.subscribers[event] {
		delivers = append(delivers, deliver)
	}
	r.mu.Unlock()
	for _, deliver := range delivers {
		deliver(context.Background(), argument)
	}
}

func (r *robot) subscriberCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[event])
}

func (r *robot) homedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.homed
}

type testServer struct {
	server    *Server
	cancel    context.CancelFunc
	done      chan error
	stopOnce  sync.Once
	lostNames chan string
}

func startServer(t *testing.T, target Target) *testServer {
	t.Helper()
	listener, err := transport.NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ts := &testServer{done: make(chan error, 1), lostNames: make(chan string, 4)}
	server, err := NewServer(ServerConfig{
		Target:   target,
		Listener: listener,
		Logger:   testutil.Logger(t),
		Packer:   codec.Packer{Algorithm: codec.CompressionLZ4, Threshold: 64},
		OnClientDisconnect: func(ctx context.Context, name string) {
			ts.lostNames <- name
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	for name, serializers := range robotSerializers {
		id, ok := server.CommandID(name)
		if !ok {
			t.Fatalf("CommandID(%q) not assigned", name)
		}
		if err := server.AddPerCommandSerializer(id, serializers); err != nil {
			t.Fatalf("AddPerCommandSerializer(%q): %v", name, err)
		}
	}
	movedID, _ := server.EventID("Moved")
	if err := server.AddPerEventSerializer(movedID, codec.For[int]()); err != nil {
		t.Fatalf("AddPerEventSerializer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts.server = server
	ts.cancel = cancel
	go func() { ts.done <- server.Serve(ctx) }()
	t.Cleanup(ts.stop)
	return ts
}

func (ts *testServer) stop() {
	ts.stopOnce.Do(func() {
		ts.cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
		}
	})
}

func dialClient(t *testing.T, ts *testServer, onDisconnect func()) *Client {
	t.Helper()
	client, err := Dial(context.Background(), ClientConfig{
		Address:      ts.server.Address(),
		Logger:       testutil.Logger(t),
		OnDisconnect: onDisconnect,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// connectClient registers a client and resolves every command with its
// serializers.
func connectClient(t *testing.T, ts *testServer, onDisconnect func()) (*Client, map[string]CommandID) {
	t.Helper()
	ctx := context.Background()
	client := dialClient(t, ts, onDisconnect)
	if err := client.AddClient(ctx, "P1:C1:r1", robotInterface.Digest()); err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	ids, err := client.FetchFunctionProxyPointers(ctx, robotInterface.CommandNames())
	if err != nil {
		t.Fatalf("FetchFunctionProxyPointers: %v", err)
	}
	for name, serializers := range robotSerializers {
		if err := client.AddPerCommandSerializer(ids[name], serializers); err != nil {
			t.Fatalf("client AddPerCommandSerializer(%q): %v", name, err)
		}
	}
	return client, ids
}

func TestIDsFollowNameOrder(t *testing.T) {
	ts := startServer(t, newRobot())
	want := map[string]CommandID{
		"Add": 1, "GetPosition": 2, "Home": 3, "Reset": 4, "Scale": 5, "SetSpeed": 6,
	}
	for name, id := range want {
		if got, _ := ts.server.CommandID(name); got != id {
			t.Errorf("CommandID(%q) = %d, want %d", name, got, id)
		}
	}
	if got, _ := ts.server.EventID("Stopped"); got != 2 {
		t.Errorf("EventID(Stopped) = %d, want 2", got)
	}
	if _, ok := ts.server.CommandID("Fly"); ok {
		t.Error("CommandID(Fly) reported as assigned")
	}
}

func TestBlockingCommands(t *testing.T) {
	target := newRobot()
	ts := startServer(t, target)
	client, ids := connectClient(t, ts, nil)
	ctx := context.Background()

	if result := client.ExecuteCommandVoid(ctx, ids["Home"], true); result != execution.CommandSucceeded {
		t.Fatalf("Home = %s", result)
	}
	if target.homedCount() != 1 {
		t.Fatalf("homed %d times, want 1", target.homedCount())
	}
	if result := client.ExecuteCommandWriteSerialized(ctx, ids["SetSpeed"], 2.5, true); result != execution.CommandSucceeded {
		t.Fatalf("SetSpeed = %s", result)
	}
	if result := client.ExecuteCommandWriteSerialized(ctx, ids["SetSpeed"], -1.0, true); result != execution.InvalidInput {
		t.Fatalf("SetSpeed(-1) = %s, want INVALID_INPUT", result)
	}

	value, result := client.ExecuteCommandWriteReturnSerialized(ctx, ids["Add"], 4, true)
	if result != execution.CommandSucceeded || value != 4 {
		t.Fatalf("Add(4) = %v, %s; want 4, COMMAND_SUCCEEDED", value, result)
	}
	value, result = client.ExecuteCommandReadSerialized(ctx, ids["GetPosition"])
	if result != execution.CommandSucceeded || value != 4 {
		t.Fatalf("GetPosition = %v, %s; want 4", value, result)
	}
	value, result = client.ExecuteCommandQualifiedReadSerialized(ctx, ids["Scale"], 3)
	if result != execution.CommandSucceeded || value != 12 {
		t.Fatalf("Scale(3) = %v, %s; want 12", value, result)
	}
	value, result = client.ExecuteCommandVoidReturnSerialized(ctx, ids["Reset"], true)
	if result != execution.CommandSucceeded || value != "reset" {
		t.Fatalf("Reset = %v, %s; want reset", value, result)
	}
}

func TestNonBlockingCommands(t *testing.T) {
	target := newRobot()
	ts := startServer(t, target)
	client, ids := connectClient(t, ts, nil)
	ctx := context.Background()

	type returned struct {
		value  any
		result execution.Result
	}
	returns := make(chan returned, 1)
	client.SetReturnHandler(ids["Add"], func(ctx context.Context, value any, result execution.Result) {
		returns <- returned{value, result}
	})

	if result := client.ExecuteCommandVoid(ctx, ids["Home"], false); result != execution.CommandQueued {
		t.Fatalf("non-blocking Home = %s, want COMMAND_QUEUED", result)
	}
	value, result := client.ExecuteCommandWriteReturnSerialized(ctx, ids["Add"], 7, false)
	if result != execution.CommandQueued || value != nil {
		t.Fatalf("non-blocking Add = %v, %s; want nil, COMMAND_QUEUED", value, result)
	}

	got := testutil.RequireReceive(t, returns, 5*time.Second, "waiting for Add return")
	if got.result != execution.CommandSucceeded || got.value != 7 {
		t.Fatalf("Add return = %v, %s; want 7", got.value, got.result)
	}
	testutil.Eventually(t, 5*time.Second, func() bool { return target.homedCount() == 1 }, "Home never ran")
}

func TestEventsDelivered(t *testing.T) {
	target := newRobot()
	ts := startServer(t, target)
	client, _ := connectClient(t, ts, nil)
	ctx := context.Background()

	moved := make(chan any, 1)
	stopped := make(chan struct{}, 1)
	client.HandleEvent(7, func(ctx context.Context, argument any) { moved <- argument })
	client.HandleEvent(8, func(ctx context.Context, argument any) { stopped <- struct{}{} })
	if err := client.AddPerEventSerializer(7, codec.For[int]()); err != nil {
		t.Fatalf("AddPerEventSerializer: %v", err)
	}

	missing, err := client.FetchEventGeneratorProxyPointers(ctx, map[string]EventID{
		"Moved": 7, "Stopped": 8, "Exploded": 9,
	})
	if err != nil {
		t.Fatalf("FetchEventGeneratorProxyPointers: %v", err)
	}
	if len(missing) != 1 || missing[0] != "Exploded" {
		t.Fatalf("missing = %v, want [Exploded]", missing)
	}

	target.fire("Moved", 42)
	if got := testutil.RequireReceive(t, moved, 5*time.Second, "waiting for Moved"); got != 42 {
		t.Fatalf("Moved argument = %v, want 42", got)
	}
	target.fire("Stopped", nil)
	testutil.RequireReceive(t, stopped, 5*time.Second, "waiting for Stopped")

	stoppedID, _ := ts.server.EventID("Stopped")
	if result := ts.server.ExecuteEventVoid(ctx, stoppedID); result != execution.CommandSucceeded {
		t.Fatalf("ExecuteEventVoid = %s", result)
	}
	testutil.RequireReceive(t, stopped, 5*time.Second, "waiting for direct Stopped")

	if result := ts.server.ExecuteEventWriteSerialized(ctx, stoppedID, 1); result != execution.InvalidCommandID {
		t.Fatalf("write to void event = %s, want INVALID_COMMAND_ID", result)
	}
}

func TestDigestMismatchRejected(t *testing.T) {
	ts := startServer(t, newRobot())
	client := dialClient(t, ts, nil)

	other := robotInterface
	other.Commands = robotInterface.Commands[:1]
	if err := client.AddClient(context.Background(), "P1:C1:r1", other.Digest()); err == nil {
		t.Fatal("AddClient with a different interface succeeded")
	}
	if ts.server.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", ts.server.ClientCount())
	}
}

func TestCommandsRequireRegistration(t *testing.T) {
	ts := startServer(t, newRobot())
	client := dialClient(t, ts, nil)
	homeID, _ := ts.server.CommandID("Home")

	if result := client.ExecuteCommandVoid(context.Background(), homeID, true); result != execution.CommandFailed {
		t.Fatalf("Home before AddClient = %s, want COMMAND_FAILED", result)
	}
}

func TestInvalidIDsAndSerializers(t *testing.T) {
	ts := startServer(t, newRobot())
	client, ids := connectClient(t, ts, nil)
	ctx := context.Background()

	if result := client.ExecuteCommandVoid(ctx, 99, true); result != execution.InvalidCommandID {
		t.Errorf("unknown id = %s, want INVALID_COMMAND_ID", result)
	}
	if result := client.ExecuteCommandVoid(ctx, 0, true); result != execution.InvalidCommandID {
		t.Errorf("id 0 = %s, want INVALID_COMMAND_ID", result)
	}
	// Home is a void command; calling it as a write is a kind mismatch.
	if result := client.ExecuteCommandWriteSerialized(ctx, ids["Home"], 1.0, true); result != execution.SerializationError {
		t.Errorf("write to Home without serializer = %s, want SERIALIZATION_ERROR", result)
	}
	if err := client.AddPerCommandSerializer(ids["Home"], Serializers{Argument: codec.For[float64]()}); err != nil {
		t.Fatalf("AddPerCommandSerializer: %v", err)
	}
	if result := client.ExecuteCommandWriteSerialized(ctx, ids["Home"], 1.0, true); result != execution.InvalidCommandID {
		t.Errorf("write to Home = %s, want INVALID_COMMAND_ID", result)
	}
	if result := client.ExecuteCommandWriteSerialized(ctx, ids["SetSpeed"], "fast", true); result != execution.SerializationError {
		t.Errorf("SetSpeed(string) = %s, want SERIALIZATION_ERROR", result)
	}
}

func TestDuplicateSerializerRejected(t *testing.T) {
	ts := startServer(t, newRobot())
	id, _ := ts.server.CommandID("Add")
	if err := ts.server.AddPerCommandSerializer(id, robotSerializers["Add"]); err == nil {
		t.Error("second server AddPerCommandSerializer succeeded")
	}
	if err := ts.server.AddPerCommandSerializer(99, robotSerializers["Add"]); err == nil {
		t.Error("AddPerCommandSerializer for unknown id succeeded")
	}
	movedID, _ := ts.server.EventID("Moved")
	if err := ts.server.AddPerEventSerializer(movedID, codec.For[int]()); err == nil {
		t.Error("second server AddPerEventSerializer succeeded")
	}

	client, ids := connectClient(t, ts, nil)
	if err := client.AddPerCommandSerializer(ids["Add"], robotSerializers["Add"]); err == nil {
		t.Error("second client AddPerCommandSerializer succeeded")
	}
}

func TestServerLossReportsNetworkError(t *testing.T) {
	ts := startServer(t, newRobot())
	var disconnects atomic.Int32
	lost := make(chan struct{})
	client, ids := connectClient(t, ts, func() {
		if disconnects.Add(1) == 1 {
			close(lost)
		}
	})

	ts.stop()
	testutil.RequireClosed(t, lost, 5*time.Second, "client never saw the server go away")

	if result := client.ExecuteCommandVoid(context.Background(), ids["Home"], true); result != execution.NetworkError {
		t.Fatalf("Home after server loss = %s, want NETWORK_ERROR", result)
	}
	if n := disconnects.Load(); n != 1 {
		t.Fatalf("OnDisconnect called %d times, want 1", n)
	}
}

func TestClientLossNotifiesOwner(t *testing.T) {
	target := newRobot()
	ts := startServer(t, target)
	client, _ := connectClient(t, ts, nil)

	client.HandleEvent(1, func(context.Context, any) {})
	if _, err := client.FetchEventGeneratorProxyPointers(context.Background(), map[string]EventID{"Stopped": 1}); err != nil {
		t.Fatalf("FetchEventGeneratorProxyPointers: %v", err)
	}
	if target.subscriberCount("Stopped") != 1 {
		t.Fatalf("target subscribers = %d, want 1", target.subscriberCount("Stopped"))
	}

	client.Close()
	if name := testutil.RequireReceive(t, ts.lostNames, 5*time.Second, "server never retired the client"); name != "P1:C1:r1" {
		t.Fatalf("lost client %q, want P1:C1:r1", name)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return target.subscriberCount("Stopped") == 0 && ts.server.ClientCount() == 0
	}, "subscription outlived the client")
}
