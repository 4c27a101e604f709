// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package managerproxy

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

	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
	"github.com/jhu-cisst/cisst-sub002/lib/monitor"
	"github.com/jhu-cisst/cisst-sub002/lib/session"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

// metricsProxy labels this proxy's collectors.
const metricsProxy = "manager"

// ServerConfig configures a Server.
type ServerConfig struct {
	// GCM and Listener are required.
	GCM      *gcm.Manager
	Listener transport.Listener

	Logger *slog.Logger
	Clock  clock.Clock

	// RefreshPeriod sets the heartbeat period (1.5x).
	RefreshPeriod time.Duration

	// CallTimeout bounds calls the GCM makes into client processes.
	CallTimeout time.Duration

	Metrics *metrics.Registry
}

// Server is the GCM side of the manager proxy pair. It accepts
// sessions from manager proxy clients, forwards their requests to the
// GCM, and gives the GCM a gcm.Local stub for each registered process.
type Server struct {
	gcm      *gcm.Manager
	listener transport.Listener
	logger   *slog.Logger
	metrics  *metrics.Registry
	options  session.Options
	monitor  *monitor.Monitor[*localStub]

	// sessionsMu guards sessions, which holds every established
	// session whether or not it has registered a client.
	sessionsMu sync.Mutex
	sessions   map[uuid.UUID]*session.Session
}

// NewServer creates a server. Call Serve to start accepting clients.
func NewServer(config ServerConfig) (*Server, error) {
	if config.GCM == nil {
		return nil, errors.New("managerproxy: GCM is required")
	}
	if config.Listener == nil {
		return nil, errors.New("managerproxy: Listener is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		gcm:      config.GCM,
		listener: config.Listener,
		logger:   config.Logger,
		metrics:  config.Metrics,
		sessions: make(map[uuid.UUID]*session.Session),
	}
	s.monitor = monitor.New(monitor.Config[*localStub]{
		Table:         monitor.NewTable[*localStub](),
		Logger:        config.Logger,
		Clock:         config.Clock,
		RefreshPeriod: config.RefreshPeriod,
		OnDisconnect:  s.clientDisconnected,
		Metrics:       config.Metrics,
		Proxy:         metricsProxy,
	})

	router := session.NewRouter()
	s.registerHandlers(router)
	s.options = session.Options{
		Logger:      config.Logger,
		Router:      router,
		CallTimeout: config.CallTimeout,
	}
	return s, nil
}

// Address returns the address clients dial.
func (s *Server) Address() string {
	return s.listener.Address()
}

// Serve accepts clients and runs the heartbeat monitor until ctx is
// cancelled. Every session is closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return session.Serve(groupCtx, s.listener, s.options, s.established)
	})
	group.Go(func() error {
		return s.monitor.Run(groupCtx)
	})
	s.logger.Info("manager proxy server listening", "address", s.listener.Address())

	err := group.Wait()
	if closeErr := s.Close(); closeErr != nil {
		s.logger.Debug("closing manager proxy server", "error", closeErr)
	}
	return err
}

// Close stops accepting clients and closes every session.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.sessionsMu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()

	for _, sess := range sessions {
		err = multierr.Append(err, sess.Close())
	}
	return err
}

// ClientNames returns the names of registered client processes.
func (s *Server) ClientNames() []string {
	records := s.monitor.Table().Snapshot()
	names := make([]string, len(records))
	for i, record := range records {
		names[i] = record.Name
	}
	return names
}

// CheckClients pings every client once, retiring the dead ones.
// Returns the number retired.
func (s *Server) CheckClients(ctx context.Context) int {
	return s.monitor.Check(ctx)
}

// SendTestMessage sends text to the named client, which echoes it.
func (s *Server) SendTestMessage(ctx context.Context, client, text string) (string, error) {
	record, ok := s.monitor.Table().ByName(client)
	if !ok {
		return "", fmt.Errorf("no client named %q", client)
	}
	var reply testMessage
	if err := record.Stub.session.Call(ctx, actionTestMessage, testMessage{Text: text}, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (s *Server) established(sess *session.Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()
	s.logger.Debug("manager proxy session established",
		"session_id", sess.ID().String(),
		"remote", sess.RemoteAddr(),
	)

	go func() {
		<-sess.Done()
		s.sessionsMu.Lock()
		delete(s.sessions, sess.ID())
		s.sessionsMu.Unlock()
		if record, ok := s.monitor.Table().BySession(sess.ID()); ok {
			s.monitor.OnClientDisconnect(context.Background(), record.ClientID)
		}
	}()
}

// clientDisconnected retires a lost client's process from the GCM.
func (s *Server) clientDisconnected(ctx context.Context, record monitor.Record[*localStub]) {
	record.Stub.session.Close()
	if s.gcm.FindProcess(ctx, record.Name) {
		s.gcm.RemoveProcess(ctx, record.Name, true)
	}
}

// addClient registers the calling session's process. The process is
// added to the GCM if it is not registered yet; otherwise the stub
// replaces its Local handle.
func (s *Server) addClient(ctx context.Context, request addClientRequest) (any, error) {
	sess := session.FromContext(ctx)
	if request.ProcessName == "" {
		return nil, errors.New("missing process name")
	}
	if !gcm.ValidName(request.ProcessName) {
		return nil, fmt.Errorf("invalid process name %q", request.ProcessName)
	}
	stub := &localStub{
		session: sess,
		name:    request.ProcessName,
		logger:  s.logger.With("process", request.ProcessName),
	}
	record, err := s.monitor.AddUnique(request.ProcessName, sess.ID(), stub)
	switch {
	case errors.Is(err, monitor.ErrNameTaken):
		return nil, fmt.Errorf("process %q is already connected", request.ProcessName)
	case err != nil:
		return nil, fmt.Errorf("registering client %q: %w", request.ProcessName, err)
	}

	if s.gcm.FindProcess(ctx, request.ProcessName) {
		s.gcm.SetLocalManager(request.ProcessName, stub, true)
	} else if !s.gcm.AddProcessObject(ctx, stub, true) {
		s.monitor.Table().Remove(record.ClientID)
		return nil, fmt.Errorf("registering process %q failed", request.ProcessName)
	}
	return int64(record.ClientID), nil
}

func (s *Server) testMessage(ctx context.Context, request testMessage) (any, error) {
	sess := session.FromContext(ctx)
	client := "unregistered"
	if record, ok := s.monitor.Table().BySession(sess.ID()); ok {
		client = record.Name
	}
	s.logger.Info("test message", "client", client, "text", request.Text)
	return request, nil
}

// route registers a typed handler and counts its calls.
func route[T any](s *Server, router *session.Router, action string, handler func(ctx context.Context, request T) (any, error)) {
	session.HandleTyped(router, action, func(ctx context.Context, request T) (any, error) {
		result, err := handler(ctx, request)
		s.metrics.CallHandled(metricsProxy, action, err == nil)
		return result, err
	})
}

func (s *Server) registerHandlers(router *session.Router) {
	route(s, router, actionAddClient, s.addClient)
	route(s, router, actionTestMessage, s.testMessage)

	route(s, router, actionAddProcess, func(ctx context.Context, r processRequest) (any, error) {
		return s.gcm.AddProcess(ctx, r.Process), nil
	})
	route(s, router, actionFindProcess, func(ctx context.Context, r processRequest) (any, error) {
		return s.gcm.FindProcess(ctx, r.Process), nil
	})
	route(s, router, actionRemoveProcess, func(ctx context.Context, r processRequest) (any, error) {
		return s.gcm.RemoveProcess(ctx, r.Process, r.NetworkDisconnect), nil
	})

	route(s, router, actionAddComponent, func(ctx context.Context, r componentRequest) (any, error) {
		return s.gcm.AddComponent(ctx, r.Process, r.Component), nil
	})
	route(s, router, actionFindComponent, func(ctx context.Context, r componentRequest) (any, error) {
		return s.gcm.FindComponent(ctx, r.Process, r.Component), nil
	})
	route(s, router, actionRemoveComponent, func(ctx context.Context, r componentRequest) (any, error) {
		return s.gcm.RemoveComponent(ctx, r.Process, r.Component), nil
	})

	route(s, router, actionAddInterfaceProvided, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.AddInterfaceProvidedOrOutput(ctx, r.Process, r.Component, r.Interface), nil
	})
	route(s, router, actionAddInterfaceRequired, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.AddInterfaceRequiredOrInput(ctx, r.Process, r.Component, r.Interface), nil
	})
	route(s, router, actionFindInterfaceProvided, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.FindInterfaceProvidedOrOutput(ctx, r.Process, r.Component, r.Interface), nil
	})
	route(s, router, actionFindInterfaceRequired, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.FindInterfaceRequiredOrInput(ctx, r.Process, r.Component, r.Interface), nil
	})
	route(s, router, actionRemoveInterfaceProvided, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.RemoveInterfaceProvidedOrOutput(ctx, r.Process, r.Component, r.Interface), nil
	})
	route(s, router, actionRemoveInterfaceRequired, func(ctx context.Context, r gcm.InterfaceRef) (any, error) {
		return s.gcm.RemoveInterfaceRequiredOrInput(ctx, r.Process, r.Component, r.Interface), nil
	})

	route(s, router, actionConnect, func(ctx context.Context, r connectRequest) (any, error) {
		return s.gcm.Connect(ctx, r.RequestProcess, r.Client, r.Server), nil
	})
	route(s, router, actionConnectConfirm, func(ctx context.Context, r idRequest) (any, error) {
		return s.gcm.ConnectConfirm(ctx, r.ID), nil
	})
	route(s, router, actionDisconnectWithID, func(ctx context.Context, r idRequest) (any, error) {
		return s.gcm.DisconnectWithID(ctx, r.ID), nil
	})
	route(s, router, actionDisconnect, func(ctx context.Context, r pairRequest) (any, error) {
		return s.gcm.Disconnect(ctx, r.Client, r.Server), nil
	})
	route(s, router, actionSetProvidedProxyAccessInfo, func(ctx context.Context, r pairRequest) (any, error) {
		return s.gcm.SetInterfaceProvidedProxyAccessInfo(ctx, r.Client, r.Server, r.Endpoint), nil
	})
	route(s, router, actionGetProvidedProxyAccessInfo, func(ctx context.Context, r pairRequest) (any, error) {
		endpoint, ok := s.gcm.GetInterfaceProvidedProxyAccessInfo(ctx, r.Client, r.Server)
		return accessInfoReply{Endpoint: endpoint, OK: ok}, nil
	})
	route(s, router, actionGetProvidedProxyAccessInfoWithID, func(ctx context.Context, r idRequest) (any, error) {
		endpoint, ok := s.gcm.GetInterfaceProvidedProxyAccessInfoWithID(ctx, r.ID)
		return accessInfoReply{Endpoint: endpoint, OK: ok}, nil
	})
	route(s, router, actionInitiateConnect, func(ctx context.Context, r idRequest) (any, error) {
		return s.gcm.InitiateConnect(ctx, r.ID), nil
	})
	route(s, router, actionConnectServerSideInterfaceRequest, func(ctx context.Context, r idRequest) (any, error) {
		return s.gcm.ConnectServerSideInterfaceRequest(ctx, r.ID), nil
	})

	route(s, router, actionGetConnectionsOfProvided, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetConnectionsOfInterfaceProvidedOrOutput(ctx, r.Ref), nil
	})
	route(s, router, actionGetConnectionsOfRequired, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetConnectionsOfInterfaceRequiredOrInput(ctx, r.Ref), nil
	})

	route(s, router, actionGetNamesOfProcesses, func(ctx context.Context, _ struct{}) (any, error) {
		return s.gcm.GetNamesOfProcesses(ctx), nil
	})
	route(s, router, actionGetNamesOfComponents, func(ctx context.Context, r processRequest) (any, error) {
		return s.gcm.GetNamesOfComponents(ctx, r.Process), nil
	})
	route(s, router, actionGetNamesOfInterfacesProvided, func(ctx context.Context, r componentRequest) (any, error) {
		return s.gcm.GetNamesOfInterfacesProvidedOrOutput(ctx, r.Process, r.Component), nil
	})
	route(s, router, actionGetNamesOfInterfacesRequired, func(ctx context.Context, r componentRequest) (any, error) {
		return s.gcm.GetNamesOfInterfacesRequiredOrInput(ctx, r.Process, r.Component), nil
	})
	route(s, router, actionGetListOfConnections, func(ctx context.Context, _ struct{}) (any, error) {
		return s.gcm.GetListOfConnections(ctx), nil
	})

	route(s, router, actionGetNamesOfCommands, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetNamesOfCommands(ctx, r.Ref), nil
	})
	route(s, router, actionGetNamesOfEventGenerators, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetNamesOfEventGenerators(ctx, r.Ref), nil
	})
	route(s, router, actionGetNamesOfFunctions, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetNamesOfFunctions(ctx, r.Ref), nil
	})
	route(s, router, actionGetNamesOfEventHandlers, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetNamesOfEventHandlers(ctx, r.Ref), nil
	})
	route(s, router, actionGetDescriptionOfCommand, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetDescriptionOfCommand(ctx, r.Ref, r.Name), nil
	})
	route(s, router, actionGetDescriptionOfEventGenerator, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetDescriptionOfEventGenerator(ctx, r.Ref, r.Name), nil
	})
	route(s, router, actionGetDescriptionOfFunction, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetDescriptionOfFunction(ctx, r.Ref, r.Name), nil
	})
	route(s, router, actionGetDescriptionOfEventHandler, func(ctx context.Context, r refRequest) (any, error) {
		return s.gcm.GetDescriptionOfEventHandler(ctx, r.Ref, r.Name), nil
	})
	route(s, router, actionGetInterfaceProvidedDescription, func(ctx context.Context, r refRequest) (any, error) {
		description, ok := s.gcm.GetInterfaceProvidedDescription(ctx, r.Ref)
		return providedDescriptionReply{Description: description, OK: ok}, nil
	})
	route(s, router, actionGetInterfaceRequiredDescription, func(ctx context.Context, r refRequest) (any, error) {
		description, ok := s.gcm.GetInterfaceRequiredDescription(ctx, r.Ref)
		return requiredDescriptionReply{Description: description, OK: ok}, nil
	})
}
