// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"
	"sort"
)

// CheckConnectConfirmTimeout evicts every connection that has stayed
// unconfirmed for longer than the confirm timeout and returns how many
// were evicted. Both processes of an evicted connection are told to
// tear down whatever they built for it.
func (m *Manager) CheckConnectConfirmTimeout(ctx context.Context) int {
	m.mu.Lock()
	now := m.clock.Now()
	var expired []ConnectionID
	for id, element := range m.connections {
		if element.CheckTimeout(now, m.timeout) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	removed := make([]removedConnection, 0, len(expired))
	for _, id := range expired {
		removed = append(removed, m.removeConnectionLocked(id))
	}
	if len(removed) > 0 {
		m.recordSizesLocked()
	}
	m.mu.Unlock()

	for _, connection := range removed {
		m.metrics.ConnectTimedOut()
		m.logger.Warn("connection not confirmed in time, removed",
			"connection_id", connection.element.ID,
			"client", connection.element.Client.UID(),
			"server", connection.element.Server.UID(),
			"age", now.Sub(connection.element.CreatedAt),
			"timeout", m.timeout,
		)
	}
	m.notifyDisconnected(ctx, removed, "timeout")
	return len(removed)
}

// Run sweeps for unconfirmed connections every sweep interval until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckConnectConfirmTimeout(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
