// Package metrics declares the Prometheus instrumentation surface for a
// running Client: connection counts, frame throughput, breaker state, and
// reconciliation backlog. Naming follows namespace_subsystem_name, as in
// the teacher codebase's metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatango",
		Subsystem: "connection",
		Name:      "active",
		Help:      "Current number of connected rooms/PMs.",
	}, []string{"kind"})

	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatango",
		Subsystem: "connection",
		Name:      "reconnects_total",
		Help:      "Total reconnect attempts performed by listen loops.",
	}, []string{"room"})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatango",
		Subsystem: "protocol",
		Name:      "frames_received_total",
		Help:      "Total inbound frames dispatched, labeled by verb.",
	}, []string{"verb"})

	FramesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatango",
		Subsystem: "protocol",
		Name:      "frames_sent_total",
		Help:      "Total outbound frames written, labeled by verb.",
	}, []string{"verb"})

	HandlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatango",
		Subsystem: "protocol",
		Name:      "handler_errors_total",
		Help:      "Total handler panics/errors recovered, labeled by verb.",
	}, []string{"verb"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatango",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Dial circuit breaker state per host: 0 closed, 1 open, 2 half-open.",
	}, []string{"host"})

	ReconcilePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatango",
		Subsystem: "reconciler",
		Name:      "pending",
		Help:      "Size of the message reconciler's pending queues.",
	}, []string{"room", "queue"})
)
