// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ifproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/descriptor"
	"github.com/jhu-cisst/cisst-sub002/lib/execution"
	"github.com/jhu-cisst/cisst-sub002/lib/netutil"
	"github.com/jhu-cisst/cisst-sub002/lib/session"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Address is the server's access information.
	Address string
	// Dialer defaults to a TCPDialer with a five second timeout.
	Dialer transport.Dialer
	Logger *slog.Logger

	CallTimeout time.Duration

	// Packer compresses serialized arguments.
	Packer codec.Packer

	// OnDisconnect is called once when the session to the server ends
	// for any reason other than Close.
	OnDisconnect func()
}

// EventHandler receives one event delivered by the server. argument is
// nil for void events.
type EventHandler func(ctx context.Context, argument any)

// ReturnHandler receives the result of a non-blocking command with a
// return value.
type ReturnHandler func(ctx context.Context, value any, result execution.Result)

// Client executes the commands of a remote provided interface and
// receives its events.
type Client struct {
	session      *session.Session
	logger       *slog.Logger
	packer       codec.Packer
	onDisconnect func()

	closing        chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once

	mu                 sync.Mutex
	clientID           int64
	commandSerializers map[CommandID]Serializers
	eventSerializers   map[EventID]codec.Serializer
	eventHandlers      map[EventID]EventHandler
	returnHandlers     map[CommandID]ReturnHandler
}

// Dial connects to an interface proxy server. Call AddClient before
// anything else.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Dialer == nil {
		config.Dialer = &transport.TCPDialer{Timeout: 5 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		logger:             config.Logger.With("server", config.Address),
		packer:             config.Packer,
		onDisconnect:       config.OnDisconnect,
		closing:            make(chan struct{}),
		commandSerializers: make(map[CommandID]Serializers),
		eventSerializers:   make(map[EventID]codec.Serializer),
		eventHandlers:      make(map[EventID]EventHandler),
		returnHandlers:     make(map[CommandID]ReturnHandler),
	}

	router := session.NewRouter()
	session.HandleTyped(router, actionExecuteEventVoid, c.handleEventVoid)
	session.HandleTyped(router, actionExecuteEventWriteSerialized, c.handleEventWrite)
	session.HandleTyped(router, actionExecuteEventReturnSerialized, c.handleReturn)

	sess, err := session.Dial(ctx, config.Dialer, config.Address, session.Options{
		Logger:      c.logger,
		Router:      router,
		Ordered:     true,
		CallTimeout: config.CallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to interface proxy server %s: %w", config.Address, err)
	}
	c.session = sess

	go func() {
		<-sess.Done()
		select {
		case <-c.closing:
		default:
			c.disconnected()
		}
	}()
	return c, nil
}

// Close ends the session without running OnDisconnect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	return c.session.Close()
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.session.Done()
}

// ClientID returns the id the server assigned in AddClient, or zero.
func (c *Client) ClientID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) disconnected() {
	c.disconnectOnce.Do(func() {
		c.logger.Warn("interface proxy server lost")
		c.session.Close()
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	})
}

// call wraps a blocking call. Transport failures end the session.
func (c *Client) call(ctx context.Context, action string, request, result any) error {
	err := c.session.Call(ctx, action, request, result)
	if err != nil && netutil.IsTransportError(err) {
		c.disconnected()
	}
	return err
}

// AddClient registers with the server under name. digest is the digest
// of the provided interface description the client expects; a server
// serving anything else refuses.
func (c *Client) AddClient(ctx context.Context, name string, digest descriptor.Digest) error {
	var reply addClientReply
	if err := c.call(ctx, actionAddClient, addClientRequest{Name: name, Digest: digest}, &reply); err != nil {
		return fmt.Errorf("registering interface proxy client %q: %w", name, err)
	}
	c.mu.Lock()
	c.clientID = reply.ClientID
	c.mu.Unlock()
	return nil
}

// FetchFunctionProxyPointers resolves command names to the server's
// command ids. Names the server does not provide are absent from the
// result.
func (c *Client) FetchFunctionProxyPointers(ctx context.Context, names []string) (map[string]CommandID, error) {
	var reply fetchFunctionsReply
	if err := c.call(ctx, actionFetchFunctionProxyPointers, fetchFunctionsRequest{Names: names}, &reply); err != nil {
		return nil, fmt.Errorf("fetching command ids: %w", err)
	}
	if reply.IDs == nil {
		reply.IDs = map[string]CommandID{}
	}
	return reply.IDs, nil
}

// FetchEventGeneratorProxyPointers subscribes the client's handler ids
// to the named event generators and returns the sorted names the server
// could not subscribe.
func (c *Client) FetchEventGeneratorProxyPointers(ctx context.Context, handlers map[string]EventID) ([]string, error) {
	var reply fetchEventsReply
	if err := c.call(ctx, actionFetchEventGeneratorProxyPointers, fetchEventsRequest{Handlers: handlers}, &reply); err != nil {
		return nil, fmt.Errorf("subscribing events: %w", err)
	}
	sort.Strings(reply.Missing)
	return reply.Missing, nil
}

// AddPerCommandSerializer registers the serializers of a command. Each
// command accepts one registration.
func (c *Client) AddPerCommandSerializer(id CommandID, serializers Serializers) error {
	if id == 0 {
		return errors.New("command id 0 is invalid")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.commandSerializers[id]; exists {
		return fmt.Errorf("command %d already has serializers", id)
	}
	c.commandSerializers[id] = serializers
	return nil
}

// AddPerEventSerializer registers the payload serializer of an event
// handler. Each handler accepts one registration.
func (c *Client) AddPerEventSerializer(id EventID, serializer codec.Serializer) error {
	if id == 0 {
		return errors.New("event id 0 is invalid")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.eventSerializers[id]; exists {
		return fmt.Errorf("event %d already has a serializer", id)
	}
	c.eventSerializers[id] = serializer
	return nil
}

// HandleEvent sets the handler for an event handler id.
func (c *Client) HandleEvent(id EventID, handler EventHandler) {
	c.mu.Lock()
	c.eventHandlers[id] = handler
	c.mu.Unlock()
}

// SetReturnHandler sets where the results of non-blocking calls to a
// command with a return value are delivered.
func (c *Client) SetReturnHandler(id CommandID, handler ReturnHandler) {
	c.mu.Lock()
	c.returnHandlers[id] = handler
	c.mu.Unlock()
}

// ExecuteCommandVoid runs a void command.
func (c *Client) ExecuteCommandVoid(ctx context.Context, id CommandID, blocking bool) execution.Result {
	_, result := c.execute(ctx, actionExecuteCommandVoid, descriptor.CommandVoid, id, nil, blocking)
	return result
}

// ExecuteCommandWriteSerialized runs a write command with argument.
func (c *Client) ExecuteCommandWriteSerialized(ctx context.Context, id CommandID, argument any, blocking bool) execution.Result {
	_, result := c.execute(ctx, actionExecuteCommandWriteSerialized, descriptor.CommandWrite, id, argument, blocking)
	return result
}

// ExecuteCommandReadSerialized runs a read command. Reads always block.
func (c *Client) ExecuteCommandReadSerialized(ctx context.Context, id CommandID) (any, execution.Result) {
	return c.execute(ctx, actionExecuteCommandReadSerialized, descriptor.CommandRead, id, nil, true)
}

// ExecuteCommandQualifiedReadSerialized runs a qualified read command.
func (c *Client) ExecuteCommandQualifiedReadSerialized(ctx context.Context, id CommandID, argument any) (any, execution.Result) {
	return c.execute(ctx, actionExecuteCommandQualifiedReadSerial, descriptor.CommandQualifiedRead, id, argument, true)
}

// ExecuteCommandVoidReturnSerialized runs a void-return command. When
// blocking is false the result goes to the command's return handler.
func (c *Client) ExecuteCommandVoidReturnSerialized(ctx context.Context, id CommandID, blocking bool) (any, execution.Result) {
	return c.execute(ctx, actionExecuteCommandVoidReturnSerial, descriptor.CommandVoidReturn, id, nil, blocking)
}

// ExecuteCommandWriteReturnSerialized runs a write-return command. When
// blocking is false the result goes to the command's return handler.
func (c *Client) ExecuteCommandWriteReturnSerialized(ctx context.Context, id CommandID, argument any, blocking bool) (any, execution.Result) {
	return c.execute(ctx, actionExecuteCommandWriteReturnSerial, descriptor.CommandWriteReturn, id, argument, blocking)
}

func (c *Client) execute(ctx context.Context, action string, kind descriptor.CommandKind, id CommandID, argument any, blocking bool) (any, execution.Result) {
	if id == 0 {
		return nil, execution.InvalidCommandID
	}
	if c.session.Closed() {
		return nil, execution.NetworkError
	}
	c.mu.Lock()
	serializers := c.commandSerializers[id]
	c.mu.Unlock()

	request := commandRequest{ID: id, Blocking: blocking}
	if kind.HasArgument() {
		if serializers.Argument == nil {
			c.logger.Warn("no argument serializer", "command_id", id)
			return nil, execution.SerializationError
		}
		data, err := serializers.Argument.Serialize(argument)
		if err != nil {
			c.logger.Warn("serializing argument", "command_id", id, "error", err)
			return nil, execution.SerializationError
		}
		request.Argument, err = c.packer.Pack(data)
		if err != nil {
			c.logger.Warn("compressing argument", "command_id", id, "error", err)
			return nil, execution.SerializationError
		}
	}
	if kind.HasResult() && serializers.Result == nil {
		c.logger.Warn("no result serializer", "command_id", id)
		return nil, execution.SerializationError
	}

	if !blocking {
		if err := c.session.Notify(ctx, action, request); err != nil {
			c.logger.Warn("queueing command failed", "command_id", id, "error", err)
			if netutil.IsTransportError(err) {
				c.disconnected()
			}
			return nil, execution.NetworkError
		}
		return nil, execution.CommandQueued
	}

	var reply commandReply
	if err := c.call(ctx, action, request, &reply); err != nil {
		var remote *session.RemoteError
		if errors.As(err, &remote) {
			c.logger.Warn("server refused command", "command_id", id, "error", err)
			return nil, execution.CommandFailed
		}
		c.logger.Warn("executing command failed", "command_id", id, "error", err)
		return nil, execution.NetworkError
	}
	if !kind.HasResult() || !reply.Result.OK() {
		return nil, reply.Result
	}
	value, err := decodePayload(serializers.Result, reply.Value)
	if err != nil {
		c.logger.Warn("deserializing result", "command_id", id, "error", err)
		return nil, execution.SerializationError
	}
	return value, reply.Result
}

func decodePayload(serializer codec.Serializer, payload codec.Payload) (any, error) {
	data, err := payload.Unpack()
	if err != nil {
		return nil, err
	}
	return serializer.Deserialize(data)
}

func (c *Client) handleEventVoid(ctx context.Context, request eventRequest) (any, error) {
	c.mu.Lock()
	handler := c.eventHandlers[request.ID]
	c.mu.Unlock()
	if handler == nil {
		c.logger.Warn("event for unknown handler", "event_id", request.ID)
		return nil, nil
	}
	handler(ctx, nil)
	return nil, nil
}

func (c *Client) handleEventWrite(ctx context.Context, request eventRequest) (any, error) {
	c.mu.Lock()
	handler := c.eventHandlers[request.ID]
	serializer := c.eventSerializers[request.ID]
	c.mu.Unlock()
	if handler == nil {
		c.logger.Warn("event for unknown handler", "event_id", request.ID)
		return nil, nil
	}
	if serializer == nil {
		c.logger.Warn("no serializer for event", "event_id", request.ID)
		return nil, nil
	}
	argument, err := decodePayload(serializer, request.Argument)
	if err != nil {
		c.logger.Warn("deserializing event payload", "event_id", request.ID, "error", err)
		return nil, nil
	}
	handler(ctx, argument)
	return nil, nil
}

func (c *Client) handleReturn(ctx context.Context, event returnEvent) (any, error) {
	c.mu.Lock()
	handler := c.returnHandlers[event.ID]
	serializers := c.commandSerializers[event.ID]
	c.mu.Unlock()
	if handler == nil {
		c.logger.Debug("return value with no handler", "command_id", event.ID, "result", event.Result)
		return nil, nil
	}
	if !event.Result.OK() || serializers.Result == nil {
		if event.Result.OK() {
			event.Result = execution.SerializationError
		}
		handler(ctx, nil, event.Result)
		return nil, nil
	}
	value, err := decodePayload(serializers.Result, event.Value)
	if err != nil {
		c.logger.Warn("deserializing return value", "command_id", event.ID, "error", err)
		handler(ctx, nil, execution.SerializationError)
		return nil, nil
	}
	handler(ctx, value, event.Result)
	return nil, nil
}
