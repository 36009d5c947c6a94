// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smart_agent"

// Metrics holds the runtime's collectors and the registry they are
// registered with.
type Metrics struct {
	Registry *prometheus.Registry

	reconnectAttempts prometheus.Counter
	connectionOpen    prometheus.Gauge
	rpcCalls          *prometheus.CounterVec
	parkedCalls       prometheus.Gauge
	eventsHandled     *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	paymentChecks     *prometheus.CounterVec
	channelOperations *prometheus.CounterVec
	authFailures      *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Dial attempts made by the reconnect loop.",
		}),
		connectionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connection_open",
			Help:      "1 while the current connection handle is open.",
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		parkedCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "parked_calls",
			Help:      "Calls waiting for a reconnect to complete.",
		}),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "events_handled_total",
			Help:      "Contract events processed by agent queues.",
		}, []string{"agent", "outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "queue_depth",
			Help:      "Events waiting in an agent's processing queue.",
		}, []string{"agent"}),
		paymentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "checks_total",
			Help:      "Payment channel checks by outcome.",
		}, []string{"agent", "outcome"}),
		channelOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "channel_operations_total",
			Help:      "On-chain channel operations (open, topup).",
		}, []string{"agent", "operation"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "auth_failures_total",
			Help:      "Rejected requests by failure kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconnectAttempts,
		m.connectionOpen,
		m.rpcCalls,
		m.parkedCalls,
		m.eventsHandled,
		m.queueDepth,
		m.paymentChecks,
		m.channelOperations,
		m.authFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) SetConnectionOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.connectionOpen.Set(1)
	} else {
		m.connectionOpen.Set(0)
	}
}

func (m *Metrics) RPCCall(method string, err error) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, outcome(err)).Inc()
}

func (m *Metrics) SetParkedCalls(n int) {
	if m == nil {
		return
	}
	m.parkedCalls.Set(float64(n))
}

func (m *Metrics) EventHandled(agent string, err error) {
	if m == nil {
		return
	}
	m.eventsHandled.WithLabelValues(agent, outcome(err)).Inc()
}

func (m *Metrics) SetQueueDepth(agent string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(agent).Set(float64(depth))
}

func (m *Metrics) PaymentCheck(agent string, err error) {
	if m == nil {
		return
	}
	m.paymentChecks.WithLabelValues(agent, outcome(err)).Inc()
}

// ChannelOperation counts an on-chain channel operation ("open" or
// "topup").
func (m *Metrics) ChannelOperation(agent, operation string) {
	if m == nil {
		return
	}
	m.channelOperations.WithLabelValues(agent, operation).Inc()
}

// AuthFailure counts a rejected request ("authentication" or
// "authorization").
func (m *Metrics) AuthFailure(kind string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(kind).Inc()
}
