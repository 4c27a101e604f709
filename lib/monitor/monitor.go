// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
)

// DefaultRefreshPeriod is the proxy refresh period when none is
// configured. The monitor runs at 1.5x this.
const DefaultRefreshPeriod = time.Second

// maxConcurrentPings bounds the pings one check runs at once. A ping to
// a dead peer blocks until the session write timeout.
const maxConcurrentPings = 16

// Config configures a Monitor.
type Config[S Pinger] struct {
	Table  *Table[S]
	Logger *slog.Logger
	Clock  clock.Clock

	// RefreshPeriod sets the heartbeat period to 1.5x its value.
	RefreshPeriod time.Duration

	// OnDisconnect is called once for every record removed through
	// OnClientDisconnect, after it has left the table.
	OnDisconnect func(ctx context.Context, record Record[S])

	// Metrics and Proxy label the heartbeat collectors. Metrics may
	// be nil.
	Metrics *metrics.Registry
	Proxy   string
}

// Monitor pings the clients of a table and retires the dead ones.
type Monitor[S Pinger] struct {
	table        *Table[S]
	logger       *slog.Logger
	clock        clock.Clock
	period       time.Duration
	onDisconnect func(ctx context.Context, record Record[S])
	metrics      *metrics.Registry
	proxy        string

	// checking serializes Check so overlapping ticks do not ping the
	// same client twice.
	checking sync.Mutex
}

// New creates a monitor. Panics if Table is nil.
func New[S Pinger](config Config[S]) *Monitor[S] {
	if config.Table == nil {
		panic("monitor.New: Table is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.RefreshPeriod <= 0 {
		config.RefreshPeriod = DefaultRefreshPeriod
	}
	return &Monitor[S]{
		table:        config.Table,
		logger:       config.Logger,
		clock:        config.Clock,
		period:       config.RefreshPeriod * 3 / 2,
		onDisconnect: config.OnDisconnect,
		metrics:      config.Metrics,
		proxy:        config.Proxy,
	}
}

// Period returns the heartbeat period.
func (m *Monitor[S]) Period() time.Duration {
	return m.period
}

// Table returns the monitored client table.
func (m *Monitor[S]) Table() *Table[S] {
	return m.table
}

// Add registers a client with the table.
func (m *Monitor[S]) Add(name string, sessionID uuid.UUID, stub S) (Record[S], bool) {
	record, added := m.table.Add(name, sessionID, stub)
	if added {
		m.clientAdded(record)
	}
	return record, added
}

// AddUnique registers a client whose name must not be held by another
// session. See Table.AddUnique.
func (m *Monitor[S]) AddUnique(name string, sessionID uuid.UUID, stub S) (Record[S], error) {
	record, err := m.table.AddUnique(name, sessionID, stub)
	if err != nil {
		return record, err
	}
	m.clientAdded(record)
	return record, nil
}

func (m *Monitor[S]) clientAdded(record Record[S]) {
	m.metrics.SetClients(m.proxy, m.table.Len())
	m.logger.Info("client connected",
		"client", record.Name,
		"client_id", record.ClientID,
		"session_id", record.SessionID.String(),
	)
}

// Check pings every client once and disconnects those that fail.
// Returns the number disconnected.
func (m *Monitor[S]) Check(ctx context.Context) int {
	m.checking.Lock()
	defer m.checking.Unlock()

	records := m.table.Snapshot()
	var (
		mu     sync.Mutex
		failed []Record[S]
	)
	var group errgroup.Group
	group.SetLimit(maxConcurrentPings)
	for _, record := range records {
		group.Go(func() error {
			if _, err := record.Stub.Ping(); err != nil {
				m.logger.Warn("heartbeat failed",
					"client", record.Name,
					"client_id", record.ClientID,
					"session_id", record.SessionID.String(),
					"error", err,
				)
				mu.Lock()
				failed = append(failed, record)
				mu.Unlock()
			}
			return nil
		})
	}
	group.Wait()

	disconnected := 0
	for _, record := range failed {
		m.metrics.HeartbeatFailed(m.proxy)
		if m.OnClientDisconnect(ctx, record.ClientID) {
			disconnected++
		}
	}
	return disconnected
}

// OnClientDisconnect removes the client from the table and invokes the
// owner's callback. It returns false, without calling back, if the
// client was already gone.
func (m *Monitor[S]) OnClientDisconnect(ctx context.Context, id ClientID) bool {
	record, removed := m.table.Remove(id)
	if !removed {
		return false
	}
	m.metrics.SetClients(m.proxy, m.table.Len())
	m.logger.Info("client disconnected",
		"client", record.Name,
		"client_id", record.ClientID,
		"session_id", record.SessionID.String(),
	)
	if m.onDisconnect != nil {
		m.onDisconnect(ctx, record)
	}
	return true
}

// Run checks every period until ctx is cancelled.
func (m *Monitor[S]) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
