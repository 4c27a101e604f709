// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors exported by the
// Global Component Manager and the proxy servers.
//
// All recording methods are safe to call on a nil *Registry, in which
// case they do nothing. Components take an optional *Registry and call
// it unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mesh"

// Registry holds every collector. Create one per process with New.
type Registry struct {
	processes              prometheus.Gauge
	components             prometheus.Gauge
	interfaces             prometheus.Gauge
	pendingConnections     prometheus.Gauge
	establishedConnections prometheus.Gauge
	connectFailures        prometheus.Counter
	connectTimeouts        prometheus.Counter
	disconnects            *prometheus.CounterVec
	proxyClients           *prometheus.GaugeVec
	heartbeatFailures      *prometheus.CounterVec
	proxyCalls             *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer. Pass
// prometheus.NewRegistry() in tests to avoid the global default.
func New(registerer prometheus.Registerer) *Registry {
	r := &Registry{
		processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "processes",
			Help: "Processes registered with the Global Component Manager.",
		}),
		components: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "components",
			Help: "Components registered across all processes.",
		}),
		interfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "interfaces",
			Help: "Provided and required interfaces registered across all components.",
		}),
		pendingConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "pending_connections",
			Help: "Connections allocated but not yet confirmed.",
		}),
		establishedConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "established_connections",
			Help: "Confirmed connections.",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "connect_failures_total",
			Help: "Connect requests rejected or rolled back.",
		}),
		connectTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "connect_timeouts_total",
			Help: "Connections evicted because ConnectConfirm did not arrive in time.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gcm", Name: "disconnects_total",
			Help: "Connections removed, by reason.",
		}, []string{"reason"}),
		proxyClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "clients",
			Help: "Client proxies currently in a proxy server's client table.",
		}, []string{"proxy"}),
		heartbeatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "heartbeat_failures_total",
			Help: "Client proxies removed after a failed heartbeat.",
		}, []string{"proxy"}),
		proxyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "calls_total",
			Help: "Requests handled by proxy servers, by action and outcome.",
		}, []string{"proxy", "action", "outcome"}),
	}
	registerer.MustRegister(
		r.processes, r.components, r.interfaces,
		r.pendingConnections, r.establishedConnections,
		r.connectFailures, r.connectTimeouts, r.disconnects,
		r.proxyClients, r.heartbeatFailures, r.proxyCalls,
	)
	return r
}

// SetRegistrySize records the current registry table sizes.
func (r *Registry) SetRegistrySize(processes, components, interfaces int) {
	if r == nil {
		return
	}
	r.processes.Set(float64(processes))
	r.components.Set(float64(components))
	r.interfaces.Set(float64(interfaces))
}

// SetConnections records the current connection counts.
func (r *Registry) SetConnections(pending, established int) {
	if r == nil {
		return
	}
	r.pendingConnections.Set(float64(pending))
	r.establishedConnections.Set(float64(established))
}

// ConnectFailed counts a rejected or rolled-back Connect.
func (r *Registry) ConnectFailed() {
	if r == nil {
		return
	}
	r.connectFailures.Inc()
}

// ConnectTimedOut counts a connection evicted by the timeout sweep.
func (r *Registry) ConnectTimedOut() {
	if r == nil {
		return
	}
	r.connectTimeouts.Inc()
}

// Disconnected counts a removed connection. Reasons in use: "request",
// "timeout", "process_removed", "interface_removed".
func (r *Registry) Disconnected(reason string) {
	if r == nil {
		return
	}
	r.disconnects.WithLabelValues(reason).Inc()
}

// SetClients records the size of a proxy server's client table.
func (r *Registry) SetClients(proxy string, count int) {
	if r == nil {
		return
	}
	r.proxyClients.WithLabelValues(proxy).Set(float64(count))
}

// HeartbeatFailed counts a client removed by the connection monitor.
func (r *Registry) HeartbeatFailed(proxy string) {
	if r == nil {
		return
	}
	r.heartbeatFailures.WithLabelValues(proxy).Inc()
}

// CallHandled counts one request handled by a proxy server.
func (r *Registry) CallHandled(proxy, action string, ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.proxyCalls.WithLabelValues(proxy, action, outcome).Inc()
}
