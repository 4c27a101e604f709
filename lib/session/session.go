// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
	"github.com/jhu-cisst/cisst-sub002/lib/netutil"
	"github.com/jhu-cisst/cisst-sub002/lib/version"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// DefaultCallTimeout bounds a call whose context carries no deadline.
const DefaultCallTimeout = 5 * time.Second

// Options configures a session.
type Options struct {
	Logger *slog.Logger

	// Router resolves inbound calls. A nil router answers every
	// inbound call with an unknown-action error.
	Router *Router

	// Ordered dispatches inbound calls one at a time in arrival order.
	Ordered bool

	// CallTimeout bounds outbound calls whose context has no deadline.
	// Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// KeepAliveInterval overrides the multiplexer's keepalive period.
	KeepAliveInterval time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Options) muxConfig() *yamux.Config {
	config := yamux.DefaultConfig()
	config.AcceptBacklog = 256
	config.ConnectionWriteTimeout = writeTimeout
	config.LogOutput = io.Discard
	if o.KeepAliveInterval > 0 {
		config.KeepAliveInterval = o.KeepAliveInterval
	}
	return config
}

// Session is one end of an established multiplexed connection.
type Session struct {
	id          uuid.UUID
	mux         *yamux.Session
	router      *Router
	logger      *slog.Logger
	ordered     bool
	callTimeout time.Duration
	remoteAddr  string

	// ctx is passed to inbound handlers. It carries the session and is
	// cancelled when the session ends.
	ctx    context.Context
	cancel context.CancelFunc

	handlers sync.WaitGroup
	done     chan struct{}
}

type contextKey struct{}

// FromContext returns the session an inbound handler is serving, or
// nil outside a handler.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Dial connects to a listening peer, performs the handshake, and starts
// serving inbound calls. The returned session's ID was chosen here.
func Dial(ctx context.Context, dialer transport.Dialer, address string, options Options) (*Session, error) {
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}

	id := uuid.New()
	if err := clientHandshake(ctx, conn, id); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	}

	mux, err := yamux.Client(conn, options.muxConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting multiplexer: %w", err)
	}
	return start(id, mux, conn.RemoteAddr().String(), options), nil
}

func clientHandshake(ctx context.Context, conn net.Conn, id uuid.UUID) error {
	deadline := time.Now().Add(handshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, Handshake{
		SessionID:       id.String(),
		ProtocolVersion: version.ProtocolVersion,
	}); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}
	var reply HandshakeReply
	if err := readFrame(conn, &reply); err != nil {
		return fmt.Errorf("reading handshake reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("refused: %s", reply.Error)
	}
	return nil
}

// Accept performs the handshake on an inbound connection and starts
// serving it. conn is closed if the handshake fails.
func Accept(ctx context.Context, conn net.Conn, options Options) (*Session, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var handshake Handshake
	if err := readFrame(conn, &handshake); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading handshake: %w", err)
	}

	refuse := func(err error) (*Session, error) {
		writeFrame(conn, HandshakeReply{Error: err.Error(), ProtocolVersion: version.ProtocolVersion})
		conn.Close()
		return nil, err
	}
	id, err := uuid.Parse(handshake.SessionID)
	if err != nil {
		return refuse(fmt.Errorf("invalid session id %q: %w", handshake.SessionID, err))
	}
	if err := version.CheckProtocol(handshake.ProtocolVersion); err != nil {
		return refuse(err)
	}
	if err := writeFrame(conn, HandshakeReply{OK: true, ProtocolVersion: version.ProtocolVersion}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing handshake reply: %w", err)
	}
	conn.SetDeadline(time.Time{})

	mux, err := yamux.Server(conn, options.muxConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting multiplexer: %w", err)
	}
	return start(id, mux, conn.RemoteAddr().String(), options), nil
}

func start(id uuid.UUID, mux *yamux.Session, remoteAddr string, options Options) *Session {
	callTimeout := options.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	s := &Session{
		id:          id,
		mux:         mux,
		router:      options.Router,
		logger:      options.logger().With("session_id", id.String()),
		ordered:     options.Ordered,
		callTimeout: callTimeout,
		remoteAddr:  remoteAddr,
		done:        make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithValue(context.Background(), contextKey{}, s))
	go s.serve()
	return s
}

// Serve accepts connections from listener until ctx is cancelled or the
// listener is closed. Each connection that completes the handshake is
// passed to established on its own goroutine. Serve waits for pending
// handshakes before returning.
func Serve(ctx context.Context, listener transport.Listener, options Options, established func(*Session)) error {
	logger := options.logger()
	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		pending.Add(1)
		go func() {
			defer pending.Done()
			s, err := Accept(ctx, conn, options)
			if err != nil {
				logger.Warn("session handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
				return
			}
			established(s)
		}()
	}
}

// ID returns the session identifier chosen by the dialing side.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// RemoteAddr returns the peer's network address.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Done is closed once the session has ended and every inbound handler
// has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	return s.mux.IsClosed()
}

// Close ends the session. Calls in flight on either side fail.
func (s *Session) Close() error {
	s.cancel()
	return s.mux.Close()
}

// Ping measures the round trip to the peer. An error means the peer did
// not answer within the write timeout.
func (s *Session) Ping() (time.Duration, error) {
	return s.mux.Ping()
}

// Call invokes action on the peer and decodes the response data into
// result (which may be nil). A handler failure on the peer is returned
// as a *RemoteError; every other error is a transport or encoding
// fault.
func (s *Session) Call(ctx context.Context, action string, request, result any) error {
	response, err := s.roundTrip(ctx, action, request, false)
	if err != nil {
		return fmt.Errorf("calling %q: %w", action, err)
	}
	if !response.OK {
		return &RemoteError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Notify invokes action on the peer without waiting for it to run.
// Notifications on an ordered peer are handled in the order sent,
// interleaved correctly with calls.
func (s *Session) Notify(ctx context.Context, action string, request any) error {
	if _, err := s.roundTrip(ctx, action, request, true); err != nil {
		return fmt.Errorf("notifying %q: %w", action, err)
	}
	return nil
}

func (s *Session) roundTrip(ctx context.Context, action string, request any, oneway bool) (*Response, error) {
	envelope := Request{Action: action, Oneway: oneway}
	if request != nil {
		body, err := codec.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		envelope.Body = body
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.callTimeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := s.mux.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()
	stream.SetDeadline(deadline)

	if err := codec.NewEncoder(stream).Encode(envelope); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if oneway {
		return nil, nil
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(stream, maxMessageSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// serve runs the inbound accept loop until the session ends.
func (s *Session) serve() {
	defer close(s.done)
	for {
		stream, err := s.mux.AcceptStream()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Debug("session ended", "error", err)
			}
			break
		}
		if s.ordered {
			s.handleStream(stream)
			continue
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleStream(stream)
		}()
	}
	s.cancel()
	s.mux.Close()
	s.handlers.Wait()
}

// handleStream processes one inbound request.
func (s *Session) handleStream(stream *yamux.Stream) {
	defer stream.Close()

	stream.SetReadDeadline(time.Now().Add(readTimeout))
	var request Request
	if err := codec.NewDecoder(io.LimitReader(stream, maxMessageSize)).Decode(&request); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeResponse(stream, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if request.Action == "" {
		if !request.Oneway {
			s.writeResponse(stream, Response{Error: "missing required field: action"})
		}
		return
	}

	handler, exists := s.router.lookup(request.Action)
	if !exists {
		s.logger.Debug("unknown action", "action", request.Action)
		if !request.Oneway {
			s.writeResponse(stream, Response{Error: fmt.Sprintf("unknown action %q", request.Action)})
		}
		return
	}

	result, err := handler(s.ctx, request.Body)
	if err != nil {
		s.logger.Debug("action failed", "action", request.Action, "error", err)
	}
	if request.Oneway {
		return
	}
	if err != nil {
		s.writeResponse(stream, Response{Error: err.Error()})
		return
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeResponse(stream, Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		response.Data = data
	}
	s.writeResponse(stream, response)
}

func (s *Session) writeResponse(stream *yamux.Stream, response Response) {
	stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(stream).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
