// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package managerproxy

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/testutil"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// recordingLocal answers the GCM's calls from canned descriptions and
// records the proxies and connections it is asked for.
type recordingLocal struct {
	name string

	mu               sync.Mutex
	provided         map[string]descriptor.InterfaceProvided
	required         map[string]descriptor.InterfaceRequired
	componentProxies []string
	requiredProxies  []string
	providedProxies  []string
	disconnected     []gcm.ConnectionID
	onClientSide     func(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool
	onServerSide     func(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool
}

func newRecordingLocal(name string) *recordingLocal {
	return &recordingLocal{
		name:     name,
		provided: make(map[string]descriptor.InterfaceProvided),
		required: make(map[string]descriptor.InterfaceRequired),
	}
}

func (r *recordingLocal) ProcessName(ctx context.Context) string { return r.name }

func (r *recordingLocal) CreateComponentProxy(ctx context.Context, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.componentProxies = append(r.componentProxies, name)
	return true
}

func (r *recordingLocal) RemoveComponentProxy(ctx context.Context, name string) bool { return true }

func (r *recordingLocal) CreateInterfaceProvidedProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceProvided) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providedProxies = append(r.providedProxies, componentProxy+":"+description.Name)
	return true
}

func (r *recordingLocal) CreateInterfaceRequiredProxy(ctx context.Context, componentProxy string, description descriptor.InterfaceRequired) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requiredProxies = append(r.requiredProxies, componentProxy+":"+description.Name)
	return true
}

func (r *recordingLocal) RemoveInterfaceProvidedProxy(ctx context.Context, componentProxy, name string) bool {
	return true
}

func (r *recordingLocal) RemoveInterfaceRequiredProxy(ctx context.Context, componentProxy, name string) bool {
	return true
}

func (r *recordingLocal) ConnectServerSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	r.mu.Lock()
	hook := r.onServerSide
	r.mu.Unlock()
	if hook != nil {
		return hook(ctx, id, client, server)
	}
	return true
}

func (r *recordingLocal) ConnectClientSideInterface(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
	r.mu.Lock()
	hook := r.onClientSide
	r.mu.Unlock()
	if hook != nil {
		return hook(ctx, id, client, server)
	}
	return true
}

func (r *recordingLocal) Disconnect(ctx context.Context, id gcm.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, id)
	return true
}

func (r *recordingLocal) GetInterfaceProvidedDescription(ctx context.Context, component, name string) (descriptor.InterfaceProvided, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	description, ok := r.provided[component+":"+name]
	return description, ok
}

func (r *recordingLocal) GetInterfaceRequiredDescription(ctx context.Context, component, name string) (descriptor.InterfaceRequired, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	description, ok := r.required[component+":"+name]
	return description, ok
}

func (r *recordingLocal) GetNamesOfCommands(ctx context.Context, component, name string) []string {
	description, _ := r.GetInterfaceProvidedDescription(ctx, component, name)
	return description.CommandNames()
}

func (r *recordingLocal) GetNamesOfEventGenerators(ctx context.Context, component, name string) []string {
	description, _ := r.GetInterfaceProvidedDescription(ctx, component, name)
	return description.EventNames()
}

func (r *recordingLocal) GetNamesOfFunctions(ctx context.Context, component, name string) []string {
	description, _ := r.GetInterfaceRequiredDescription(ctx, component, name)
	return description.FunctionNames()
}

func (r *recordingLocal) GetNamesOfEventHandlers(ctx context.Context, component, name string) []string {
	description, _ := r.GetInterfaceRequiredDescription(ctx, component, name)
	return description.EventHandlerNames()
}

func (r *recordingLocal) GetDescriptionOfCommand(ctx context.Context, component, name, command string) string {
	description, _ := r.GetInterfaceProvidedDescription(ctx, component, name)
	found, _ := description.Command(command)
	return found.Describe()
}

func (r *recordingLocal) GetDescriptionOfEventGenerator(ctx context.Context, component, name, event string) string {
	return ""
}

func (r *recordingLocal) GetDescriptionOfFunction(ctx context.Context, component, name, function string) string {
	return ""
}

func (r *recordingLocal) GetDescriptionOfEventHandler(ctx context.Context, component, name, handler string) string {
	return ""
}

func (r *recordingLocal) proxies() (components, provided, required []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.componentProxies), slices.Clone(r.providedProxies), slices.Clone(r.requiredProxies)
}

func (r *recordingLocal) disconnectedIDs() []gcm.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.disconnected)
}

type testServer struct {
	gcm      *gcm.Manager
	server   *Server
	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	listener, err := transport.NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	manager := gcm.New(gcm.Config{Logger: testutil.Logger(t)})
	server, err := NewServer(ServerConfig{GCM: manager, Listener: listener, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{gcm: manager, server: server, cancel: cancel, done: make(chan error, 1)}
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

func dialClient(t *testing.T, ts *testServer, local gcm.Local, onDisconnect func()) *Client {
	t.Helper()
	client, err := Dial(context.Background(), ClientConfig{
		Address:      ts.server.Address(),
		Local:        local,
		Logger:       testutil.Logger(t),
		OnDisconnect: onDisconnect,
	})
	if err != nil {
		t.Fatalf("Dial(%s): %v", local.ProcessName(context.Background()), err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

var (
	clientRef = gcm.InterfaceRef{Process: "P1", Component: "C1", Interface: "r1"}
	serverRef = gcm.InterfaceRef{Process: "P2", Component: "C2", Interface: "p1"}
)

// setupPair registers P1 (C1 requiring r1) and P2 (C2 providing p1)
// through two manager proxy clients.
func setupPair(t *testing.T, ts *testServer) (c1, c2 *Client, p1, p2 *recordingLocal) {
	t.Helper()
	ctx := context.Background()
	p1 = newRecordingLocal("P1")
	p1.required["C1:r1"] = descriptor.InterfaceRequired{
		Name:      "r1",
		Functions: []descriptor.Command{{Name: "Home", Kind: descriptor.CommandVoid}},
	}
	p2 = newRecordingLocal("P2")
	p2.provided["C2:p1"] = descriptor.InterfaceProvided{
		Name:     "p1",
		Commands: []descriptor.Command{{Name: "Home", Kind: descriptor.CommandVoid}},
	}
	c1 = dialClient(t, ts, p1, nil)
	c2 = dialClient(t, ts, p2, nil)

	if !c1.AddComponent(ctx, "P1", "C1") || !c1.AddInterfaceRequiredOrInput(ctx, "P1", "C1", "r1") {
		t.Fatal("registering P1:C1:r1 failed")
	}
	if !c2.AddComponent(ctx, "P2", "C2") || !c2.AddInterfaceProvidedOrOutput(ctx, "P2", "C2", "p1") {
		t.Fatal("registering P2:C2:p1 failed")
	}
	return c1, c2, p1, p2
}

func TestClientRegistersProcess(t *testing.T) {
	ts := startServer(t)
	client := dialClient(t, ts, newRecordingLocal("P1"), nil)
	ctx := context.Background()

	if !client.Active() {
		t.Fatalf("client state = %s, want active", client.State())
	}
	if !ts.gcm.FindProcess(ctx, "P1") {
		t.Fatal("GCM does not know P1 after Dial")
	}
	if names := ts.server.ClientNames(); !slices.Equal(names, []string{"P1"}) {
		t.Errorf("ClientNames() = %v", names)
	}
	if client.AddProcess(ctx, "P1") {
		t.Error("AddProcess(P1) succeeded for an already registered process")
	}
	if !client.FindProcess(ctx, "P1") {
		t.Error("FindProcess(P1) through the client = false")
	}
}

func TestDuplicateProcessNameRejected(t *testing.T) {
	ts := startServer(t)
	dialClient(t, ts, newRecordingLocal("P1"), nil)

	_, err := Dial(context.Background(), ClientConfig{
		Address: ts.server.Address(),
		Local:   newRecordingLocal("P1"),
	})
	if err == nil {
		t.Fatal("second client named P1 was accepted")
	}
}

func TestConcurrentClientsClaimingOneNameAdmitOne(t *testing.T) {
	ts := startServer(t)
	const claims = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*Client
	)
	for range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := Dial(context.Background(), ClientConfig{
				Address: ts.server.Address(),
				Local:   newRecordingLocal("P1"),
				Logger:  testutil.Logger(t),
			})
			if err != nil {
				return
			}
			mu.Lock()
			admitted = append(admitted, client)
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, client := range admitted {
		t.Cleanup(func() { client.Close() })
	}

	if len(admitted) != 1 {
		t.Fatalf("%d clients named P1 admitted, want 1", len(admitted))
	}
	if names := ts.server.ClientNames(); !slices.Equal(names, []string{"P1"}) {
		t.Errorf("ClientNames() = %v, want [P1]", names)
	}
}

func TestInvalidProcessNameRejected(t *testing.T) {
	ts := startServer(t)
	_, err := Dial(context.Background(), ClientConfig{
		Address: ts.server.Address(),
		Local:   newRecordingLocal("P1:x"),
	})
	if err == nil {
		t.Fatal("client named P1:x was accepted")
	}
	if ts.gcm.FindProcess(context.Background(), "P1:x") {
		t.Error("GCM registered P1:x")
	}
}

func TestRegistryOperationsThroughClient(t *testing.T) {
	ts := startServer(t)
	c1, _, _, _ := setupPair(t, ts)
	ctx := context.Background()

	if got := c1.GetNamesOfProcesses(ctx); !slices.Equal(got, []string{"P1", "P2"}) {
		t.Errorf("GetNamesOfProcesses = %v", got)
	}
	if got := c1.GetNamesOfComponents(ctx, "P2"); !slices.Equal(got, []string{"C2"}) {
		t.Errorf("GetNamesOfComponents(P2) = %v", got)
	}
	if got := c1.GetNamesOfInterfacesProvidedOrOutput(ctx, "P2", "C2"); !slices.Equal(got, []string{"p1"}) {
		t.Errorf("GetNamesOfInterfacesProvidedOrOutput = %v", got)
	}
	if !c1.FindInterfaceProvidedOrOutput(ctx, "P2", "C2", "p1") {
		t.Error("FindInterfaceProvidedOrOutput(P2:C2:p1) = false")
	}
	if c1.FindInterfaceRequiredOrInput(ctx, "P2", "C2", "p1") {
		t.Error("provided interface found in the required table")
	}
	if c1.AddComponent(ctx, "P9", "C1") {
		t.Error("AddComponent on unregistered process succeeded")
	}

	if got := c1.GetNamesOfCommands(ctx, serverRef); !slices.Equal(got, []string{"Home"}) {
		t.Errorf("GetNamesOfCommands(%s) = %v", serverRef, got)
	}
	if got := c1.GetDescriptionOfCommand(ctx, serverRef, "Home"); got != "Void Home()" {
		t.Errorf("GetDescriptionOfCommand = %q", got)
	}
	description, ok := c1.GetInterfaceProvidedDescription(ctx, serverRef)
	if !ok || description.Name != "p1" || len(description.Commands) != 1 {
		t.Errorf("GetInterfaceProvidedDescription = %+v, %v", description, ok)
	}

	if !c1.RemoveInterfaceRequiredOrInput(ctx, "P1", "C1", "r1") {
		t.Error("RemoveInterfaceRequiredOrInput failed")
	}
	if c1.RemoveInterfaceRequiredOrInput(ctx, "P1", "C1", "r1") {
		t.Error("second RemoveInterfaceRequiredOrInput succeeded")
	}
	if !c1.RemoveComponent(ctx, "P1", "C1") || c1.FindComponent(ctx, "P1", "C1") {
		t.Error("RemoveComponent(P1, C1) did not remove it")
	}
}

func TestConnectAcrossProcesses(t *testing.T) {
	ts := startServer(t)
	c1, c2, p1, p2 := setupPair(t, ts)
	ctx := context.Background()

	// The client side asks the GCM for the server side, then looks up
	// the endpoint the server side published.
	var endpoint atomic.Value
	p2.mu.Lock()
	p2.onServerSide = func(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
		return c2.SetInterfaceProvidedProxyAccessInfo(ctx, client, server, "127.0.0.1:4242")
	}
	p2.mu.Unlock()
	p1.mu.Lock()
	p1.onClientSide = func(ctx context.Context, id gcm.ConnectionID, client, server gcm.InterfaceRef) bool {
		if !c1.ConnectServerSideInterfaceRequest(ctx, id) {
			return false
		}
		published, ok := c1.GetInterfaceProvidedProxyAccessInfoWithID(ctx, id)
		endpoint.Store(published)
		return ok
	}
	p1.mu.Unlock()

	id := c1.Connect(ctx, "P1", clientRef, serverRef)
	if !id.Valid() {
		t.Fatalf("Connect = %d", id)
	}
	components, providedProxies, _ := p1.proxies()
	if !slices.Equal(components, []string{"P2:C2"}) || !slices.Equal(providedProxies, []string{"P2:C2:p1"}) {
		t.Errorf("P1 proxies = %v / %v", components, providedProxies)
	}
	components, _, requiredProxies := p2.proxies()
	if !slices.Equal(components, []string{"P1:C1"}) || !slices.Equal(requiredProxies, []string{"P1:C1:r1"}) {
		t.Errorf("P2 proxies = %v / %v", components, requiredProxies)
	}

	if !c1.InitiateConnect(ctx, id) {
		t.Fatal("InitiateConnect failed")
	}
	if got, _ := endpoint.Load().(string); got != "127.0.0.1:4242" {
		t.Errorf("client side saw endpoint %q", got)
	}
	if got, ok := c1.GetInterfaceProvidedProxyAccessInfo(ctx, clientRef, serverRef); !ok || got != "127.0.0.1:4242" {
		t.Errorf("GetInterfaceProvidedProxyAccessInfo = %q, %v", got, ok)
	}
	if !c1.ConnectConfirm(ctx, id) {
		t.Fatal("ConnectConfirm failed")
	}

	required := c1.GetConnectionsOfInterfaceRequiredOrInput(ctx, clientRef)
	if len(required) != 1 || required[0].Peer != serverRef || required[0].ConnectionID != id || !required[0].IsRemoteConnection {
		t.Errorf("connections of %s = %+v", clientRef, required)
	}
	provided := c2.GetConnectionsOfInterfaceProvidedOrOutput(ctx, serverRef)
	if len(provided) != 1 || provided[0].Peer != clientRef {
		t.Errorf("connections of %s = %+v", serverRef, provided)
	}
	connections := c1.GetListOfConnections(ctx)
	if len(connections) != 1 || !connections[0].Connected || connections[0].Endpoint != "127.0.0.1:4242" {
		t.Errorf("GetListOfConnections = %+v", connections)
	}

	if !c1.DisconnectWithID(ctx, id) {
		t.Fatal("DisconnectWithID failed")
	}
	if c1.DisconnectWithID(ctx, id) {
		t.Error("second DisconnectWithID succeeded")
	}
	if !slices.Equal(p2.disconnectedIDs(), []gcm.ConnectionID{id}) {
		t.Errorf("P2 told to disconnect %v, want [%d]", p2.disconnectedIDs(), id)
	}
	if len(c1.GetConnectionsOfInterfaceRequiredOrInput(ctx, clientRef)) != 0 {
		t.Error("required interface still connected after Disconnect")
	}
}

func TestLostClientIsRetired(t *testing.T) {
	ts := startServer(t)
	c1, c2, p1, _ := setupPair(t, ts)
	ctx := context.Background()

	id := c1.Connect(ctx, "P1", clientRef, serverRef)
	if !id.Valid() || !c1.ConnectConfirm(ctx, id) {
		t.Fatalf("connecting failed: id %d", id)
	}

	c2.Close()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return !ts.gcm.FindProcess(ctx, "P2") && len(p1.disconnectedIDs()) == 1
	}, "P2 removed after its session closed")

	if !slices.Equal(p1.disconnectedIDs(), []gcm.ConnectionID{id}) {
		t.Errorf("P1 told to disconnect %v, want [%d]", p1.disconnectedIDs(), id)
	}
	if names := ts.server.ClientNames(); !slices.Equal(names, []string{"P1"}) {
		t.Errorf("ClientNames() = %v", names)
	}
	if len(c1.GetListOfConnections(ctx)) != 0 {
		t.Error("connection survived the loss of its server process")
	}
}

func TestClientFailsClosedAfterServerLoss(t *testing.T) {
	ts := startServer(t)
	var disconnects atomic.Int32
	client := dialClient(t, ts, newRecordingLocal("P1"), func() { disconnects.Add(1) })
	ctx := context.Background()

	ts.stop()
	testutil.RequireClosed(t, client.Done(), 5*time.Second, "client session ends with the server")
	testutil.Eventually(t, 5*time.Second, func() bool { return !client.Active() }, "client inactive")

	if client.AddProcess(ctx, "P9") {
		t.Error("AddProcess succeeded on an inactive client")
	}
	if id := client.Connect(ctx, "P1", clientRef, serverRef); id != gcm.InvalidConnectionID {
		t.Errorf("Connect on inactive client = %d", id)
	}
	if names := client.GetNamesOfProcesses(ctx); names != nil {
		t.Errorf("GetNamesOfProcesses on inactive client = %v", names)
	}
	client.Close()
	if n := disconnects.Load(); n != 1 {
		t.Errorf("OnDisconnect ran %d times, want 1", n)
	}
}

func TestTestMessages(t *testing.T) {
	ts := startServer(t)
	client := dialClient(t, ts, newRecordingLocal("P1"), nil)
	ctx := context.Background()

	reply, err := client.TestMessage(ctx, "hello server")
	if err != nil || reply != "hello server" {
		t.Errorf("TestMessage = %q, %v", reply, err)
	}
	reply, err = ts.server.SendTestMessage(ctx, "P1", "hello client")
	if err != nil || reply != "hello client" {
		t.Errorf("SendTestMessage = %q, %v", reply, err)
	}
	if _, err := ts.server.SendTestMessage(ctx, "P9", "nobody"); err == nil {
		t.Error("SendTestMessage to unknown client succeeded")
	}
}
