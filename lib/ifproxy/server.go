// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ifproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/execution"
	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
	"github.com/jhu-cisst/cisst-sub002/lib/monitor"
	"github.com/jhu-cisst/cisst-sub002/lib/session"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// metricsProxy labels this proxy's collectors.
const metricsProxy = "interface"

// Executor runs one command of the served interface.
type Executor interface {
	Execute(ctx context.Context, argument any) (any, execution.Result)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, argument any) (any, execution.Result)

func (f ExecutorFunc) Execute(ctx context.Context, argument any) (any, execution.Result) {
	return f(ctx, argument)
}

// Target is the provided interface a Server exposes.
type Target interface {
	// Description is the interface as the client expects it. Its
	// digest must match the one the client presents.
	Description() descriptor.InterfaceProvided

	// Executor resolves a command by name.
	Executor(command string) (Executor, bool)

	// Subscribe calls deliver each time the named event fires, until
	// cancel is called.
	Subscribe(event string, deliver func(ctx context.Context, argument any)) (cancel func(), ok bool)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Target and Listener are required.
	Target   Target
	Listener transport.Listener

	Logger *slog.Logger
	Clock  clock.Clock

	// RefreshPeriod sets the heartbeat period (1.5x).
	RefreshPeriod time.Duration
	CallTimeout   time.Duration

	// Packer compresses serialized results and event payloads.
	Packer codec.Packer

	Metrics *metrics.Registry

	// OnClientDisconnect is called for each client lost to a failed
	// heartbeat or a closed session.
	OnClientDisconnect func(ctx context.Context, name string)
}

type commandEntry struct {
	name     string
	kind     descriptor.CommandKind
	executor Executor
}

type eventEntry struct {
	name string
	kind descriptor.EventKind
}

// clientStub is a connected interface proxy client.
type clientStub struct {
	session *session.Session
}

func (c *clientStub) Ping() (time.Duration, error) {
	return c.session.Ping()
}

// subscription routes one server event to one client handler.
type subscription struct {
	clientID monitor.ClientID
	session  *session.Session
	handler  EventID
}

// Server serves one provided interface to the interface proxy clients
// of one connection.
type Server struct {
	target             Target
	listener           transport.Listener
	logger             *slog.Logger
	packer             codec.Packer
	metrics            *metrics.Registry
	options            session.Options
	monitor            *monitor.Monitor[*clientStub]
	onClientDisconnect func(ctx context.Context, name string)

	// The command and event tables are fixed at construction.
	digest     descriptor.Digest
	commands   map[CommandID]commandEntry
	commandIDs map[string]CommandID
	events     map[EventID]eventEntry
	eventIDs   map[string]EventID

	mu                 sync.Mutex
	commandSerializers map[CommandID]Serializers
	eventSerializers   map[EventID]codec.Serializer
	subscriptions      map[EventID][]subscription
	targetCancels      map[EventID]func()
	sessions           map[uuid.UUID]*session.Session
}

// NewServer creates a server for target. Command ids are assigned in
// command name order starting at 1, and likewise event ids.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Target == nil {
		return nil, errors.New("ifproxy: Target is required")
	}
	if config.Listener == nil {
		return nil, errors.New("ifproxy: Listener is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	description := config.Target.Description()
	s := &Server{
		target:             config.Target,
		listener:           config.Listener,
		logger:             config.Logger.With("interface", description.Name),
		packer:             config.Packer,
		metrics:            config.Metrics,
		onClientDisconnect: config.OnClientDisconnect,
		digest:             description.Digest(),
		commands:           make(map[CommandID]commandEntry),
		commandIDs:         make(map[string]CommandID),
		events:             make(map[EventID]eventEntry),
		eventIDs:           make(map[string]EventID),
		commandSerializers: make(map[CommandID]Serializers),
		eventSerializers:   make(map[EventID]codec.Serializer),
		subscriptions:      make(map[EventID][]subscription),
		targetCancels:      make(map[EventID]func()),
		sessions:           make(map[uuid.UUID]*session.Session),
	}
	for i, name := range description.CommandNames() {
		command, _ := description.Command(name)
		executor, _ := config.Target.Executor(name)
		id := CommandID(i + 1)
		s.commands[id] = commandEntry{name: name, kind: command.Kind, executor: executor}
		s.commandIDs[name] = id
	}
	for i, name := range description.EventNames() {
		event, _ := description.Event(name)
		id := EventID(i + 1)
		s.events[id] = eventEntry{name: name, kind: event.Kind}
		s.eventIDs[name] = id
	}

	s.monitor = monitor.New(monitor.Config[*clientStub]{
		Table:         monitor.NewTable[*clientStub](),
		Logger:        s.logger,
		Clock:         config.Clock,
		RefreshPeriod: config.RefreshPeriod,
		OnDisconnect:  s.clientDisconnected,
		Metrics:       config.Metrics,
		Proxy:         metricsProxy,
	})

	router := session.NewRouter()
	session.HandleTyped(router, actionAddClient, s.addClient)
	session.HandleTyped(router, actionFetchFunctionProxyPointers, s.fetchFunctions)
	session.HandleTyped(router, actionFetchEventGeneratorProxyPointers, s.fetchEvents)
	for action, kind := range commandKinds {
		session.HandleTyped(router, action, func(ctx context.Context, request commandRequest) (any, error) {
			return s.handleCommand(ctx, action, kind, request)
		})
	}
	s.options = session.Options{
		Logger:      s.logger,
		Router:      router,
		Ordered:     true,
		CallTimeout: config.CallTimeout,
	}
	return s, nil
}

// Address returns the access information clients dial.
func (s *Server) Address() string {
	return s.listener.Address()
}

// CommandID returns the id assigned to a command.
func (s *Server) CommandID(name string) (CommandID, bool) {
	id, ok := s.commandIDs[name]
	return id, ok
}

// EventID returns the id assigned to an event generator.
func (s *Server) EventID(name string) (EventID, bool) {
	id, ok := s.eventIDs[name]
	return id, ok
}

// AddPerCommandSerializer registers the serializers of a command. Each
// command accepts one registration.
func (s *Server) AddPerCommandSerializer(id CommandID, serializers Serializers) error {
	if _, ok := s.commands[id]; !ok {
		return fmt.Errorf("no command with id %d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commandSerializers[id]; exists {
		return fmt.Errorf("command %d already has serializers", id)
	}
	s.commandSerializers[id] = serializers
	return nil
}

// AddPerEventSerializer registers the payload serializer of an event
// generator. Each event accepts one registration.
func (s *Server) AddPerEventSerializer(id EventID, serializer codec.Serializer) error {
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("no event with id %d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.eventSerializers[id]; exists {
		return fmt.Errorf("event %d already has a serializer", id)
	}
	s.eventSerializers[id] = serializer
	return nil
}

// ClientCount returns the number of registered clients.
func (s *Server) ClientCount() int {
	return s.monitor.Table().Len()
}

// Serve accepts clients and runs the heartbeat monitor until ctx is
// cancelled, then closes every session.
func (s *Server) Serve(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return session.Serve(groupCtx, s.listener, s.options, s.established)
	})
	group.Go(func() error {
		return s.monitor.Run(groupCtx)
	})
	err := group.Wait()
	if closeErr := s.Close(); closeErr != nil {
		s.logger.Debug("closing interface proxy server", "error", closeErr)
	}
	return err
}

// Close stops the server, closes every session, and cancels event
// subscriptions on the target.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	cancels := make([]func(), 0, len(s.targetCancels))
	for id, cancel := range s.targetCancels {
		cancels = append(cancels, cancel)
		delete(s.targetCancels, id)
	}
	clear(s.subscriptions)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, sess := range sessions {
		err = multierr.Append(err, sess.Close())
	}
	return err
}

// ExecuteEventVoid fires a void event to every subscribed client.
func (s *Server) ExecuteEventVoid(ctx context.Context, id EventID) execution.Result {
	entry, ok := s.events[id]
	if !ok || entry.kind != descriptor.EventVoid {
		return execution.InvalidCommandID
	}
	return s.broadcast(ctx, actionExecuteEventVoid, id, codec.Payload{})
}

// ExecuteEventWriteSerialized fires an event carrying argument to every
// subscribed client.
func (s *Server) ExecuteEventWriteSerialized(ctx context.Context, id EventID, argument any) execution.Result {
	entry, ok := s.events[id]
	if !ok || entry.kind != descriptor.EventWrite {
		return execution.InvalidCommandID
	}
	s.mu.Lock()
	serializer := s.eventSerializers[id]
	s.mu.Unlock()
	if serializer == nil {
		s.logger.Warn("no serializer for event", "event", entry.name)
		return execution.SerializationError
	}
	data, err := serializer.Serialize(argument)
	if err != nil {
		s.logger.Warn("serializing event payload", "event", entry.name, "error", err)
		return execution.SerializationError
	}
	payload, err := s.packer.Pack(data)
	if err != nil {
		s.logger.Warn("compressing event payload", "event", entry.name, "error", err)
		return execution.SerializationError
	}
	return s.broadcast(ctx, actionExecuteEventWriteSerialized, id, payload)
}

func (s *Server) broadcast(ctx context.Context, action string, id EventID, payload codec.Payload) execution.Result {
	s.mu.Lock()
	subscribers := append([]subscription(nil), s.subscriptions[id]...)
	s.mu.Unlock()

	result := execution.CommandSucceeded
	for _, sub := range subscribers {
		if err := sub.session.Notify(ctx, action, eventRequest{ID: sub.handler, Argument: payload}); err != nil {
			s.logger.Warn("delivering event failed",
				"event", s.events[id].name,
				"client_id", sub.clientID,
				"error", err,
			)
			sub.session.Close()
			result = execution.NetworkError
		}
	}
	return result
}

func (s *Server) established(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	go func() {
		<-sess.Done()
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		if record, ok := s.monitor.Table().BySession(sess.ID()); ok {
			s.monitor.OnClientDisconnect(context.Background(), record.ClientID)
		}
	}()
}

func (s *Server) clientDisconnected(ctx context.Context, record monitor.Record[*clientStub]) {
	record.Stub.session.Close()
	s.unsubscribe(record.ClientID)
	if s.onClientDisconnect != nil {
		s.onClientDisconnect(ctx, record.Name)
	}
}

func (s *Server) unsubscribe(clientID monitor.ClientID) {
	var cancels []func()
	s.mu.Lock()
	for id, subscribers := range s.subscriptions {
		kept := subscribers[:0]
		for _, sub := range subscribers {
			if sub.clientID != clientID {
				kept = append(kept, sub)
			}
		}
		if len(kept) > 0 {
			s.subscriptions[id] = kept
			continue
		}
		delete(s.subscriptions, id)
		if cancel, ok := s.targetCancels[id]; ok {
			cancels = append(cancels, cancel)
			delete(s.targetCancels, id)
		}
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// caller resolves the registered client behind an inbound call.
func (s *Server) caller(ctx context.Context) (monitor.Record[*clientStub], error) {
	sess := session.FromContext(ctx)
	record, ok := s.monitor.Table().BySession(sess.ID())
	if !ok {
		return record, errors.New("client has not called add_client")
	}
	return record, nil
}

func (s *Server) addClient(ctx context.Context, request addClientRequest) (any, error) {
	if request.Digest != s.digest {
		s.logger.Warn("client expects a different interface",
			"client", request.Name,
			"client_digest", request.Digest.String(),
			"digest", s.digest.String(),
		)
		return nil, fmt.Errorf("interface description mismatch: client %s, server %s", request.Digest, s.digest)
	}
	sess := session.FromContext(ctx)
	record, ok := s.monitor.Add(request.Name, sess.ID(), &clientStub{session: sess})
	if !ok {
		return nil, errors.New("session already registered a client")
	}
	return addClientReply{ClientID: int64(record.ClientID)}, nil
}

func (s *Server) fetchFunctions(ctx context.Context, request fetchFunctionsRequest) (any, error) {
	if _, err := s.caller(ctx); err != nil {
		return nil, err
	}
	ids := make(map[string]CommandID, len(request.Names))
	for _, name := range request.Names {
		if id, ok := s.commandIDs[name]; ok {
			ids[name] = id
		}
	}
	return fetchFunctionsReply{IDs: ids}, nil
}

func (s *Server) fetchEvents(ctx context.Context, request fetchEventsRequest) (any, error) {
	record, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	var reply fetchEventsReply
	for name, handler := range request.Handlers {
		id, ok := s.eventIDs[name]
		if !ok {
			reply.Missing = append(reply.Missing, name)
			continue
		}
		s.mu.Lock()
		s.subscriptions[id] = append(s.subscriptions[id], subscription{
			clientID: record.ClientID,
			session:  record.Stub.session,
			handler:  handler,
		})
		_, subscribed := s.targetCancels[id]
		if !subscribed {
			// Placeholder so a concurrent fetch does not subscribe twice.
			s.targetCancels[id] = func() {}
		}
		s.mu.Unlock()
		if subscribed {
			continue
		}

		entry := s.events[id]
		cancel, ok := s.target.Subscribe(name, func(ctx context.Context, argument any) {
			if entry.kind == descriptor.EventVoid {
				s.ExecuteEventVoid(ctx, id)
			} else {
				s.ExecuteEventWriteSerialized(ctx, id, argument)
			}
		})
		s.mu.Lock()
		if ok {
			s.targetCancels[id] = cancel
		} else {
			delete(s.targetCancels, id)
			reply.Missing = append(reply.Missing, name)
		}
		s.mu.Unlock()
	}
	return reply, nil
}

func (s *Server) handleCommand(ctx context.Context, action string, kind descriptor.CommandKind, request commandRequest) (any, error) {
	if _, err := s.caller(ctx); err != nil {
		return nil, err
	}
	reply := s.execute(ctx, kind, request)
	s.metrics.CallHandled(metricsProxy, action, reply.Result.OK())

	if !request.Blocking && (kind == descriptor.CommandVoidReturn || kind == descriptor.CommandWriteReturn) {
		sess := session.FromContext(ctx)
		event := returnEvent{ID: request.ID, Result: reply.Result, Value: reply.Value}
		if err := sess.Notify(ctx, actionExecuteEventReturnSerialized, event); err != nil {
			s.logger.Warn("delivering command return failed", "command_id", request.ID, "error", err)
		}
	}
	return reply, nil
}

func (s *Server) execute(ctx context.Context, kind descriptor.CommandKind, request commandRequest) commandReply {
	entry, ok := s.commands[request.ID]
	if !ok || entry.kind != kind {
		return commandReply{Result: execution.InvalidCommandID}
	}
	if entry.executor == nil {
		return commandReply{Result: execution.FunctionNotBound}
	}
	s.mu.Lock()
	serializers := s.commandSerializers[request.ID]
	s.mu.Unlock()

	var argument any
	if kind.HasArgument() {
		if serializers.Argument == nil {
			s.logger.Warn("no argument serializer", "command", entry.name)
			return commandReply{Result: execution.SerializationError}
		}
		data, err := request.Argument.Unpack()
		if err != nil {
			s.logger.Warn("decompressing argument", "command", entry.name, "error", err)
			return commandReply{Result: execution.SerializationError}
		}
		argument, err = serializers.Argument.Deserialize(data)
		if err != nil {
			s.logger.Warn("deserializing argument", "command", entry.name, "error", err)
			return commandReply{Result: execution.SerializationError}
		}
	}

	value, result := entry.executor.Execute(ctx, argument)
	if !kind.HasResult() || !result.OK() {
		return commandReply{Result: result}
	}
	if serializers.Result == nil {
		s.logger.Warn("no result serializer", "command", entry.name)
		return commandReply{Result: execution.SerializationError}
	}
	data, err := serializers.Result.Serialize(value)
	if err != nil {
		s.logger.Warn("serializing result", "command", entry.name, "error", err)
		return commandReply{Result: execution.SerializationError}
	}
	payload, err := s.packer.Pack(data)
	if err != nil {
		s.logger.Warn("compressing result", "command", entry.name, "error", err)
		return commandReply{Result: execution.SerializationError}
	}
	return commandReply{Result: result, Value: payload}
}
