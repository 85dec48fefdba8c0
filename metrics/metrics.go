// Package metrics holds the prometheus collectors of the device and the
// shadow service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tracklink"

	KindLabel   = "kind"
	RadioLabel  = "radio"
	ResultLabel = "result"
	RouteLabel  = "route"

	ResultOK    = "ok"
	ResultError = "error"
)

var (
	EventCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_total",
			Help:      "The total number of scheduler lifecycle events",
		},
		[]string{KindLabel, ResultLabel},
	)

	AttemptCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_total",
			Help:      "The total number of radio connections",
		},
		[]string{RadioLabel, ResultLabel},
	)

	BackoffGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cellular_backoff_seconds",
			Help:      "The last cellular retry delay reaching the ceiling",
		},
	)

	NextPassGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_satellite_tx_timestamp",
			Help:      "The planned satellite transmission time",
		},
	)

	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shadow_request_total",
			Help:      "The total number of shadow service requests",
		},
		[]string{RouteLabel},
	)

	ErrorCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_total",
			Help:      "The total number of errors occurring",
		},
	)

	InsertCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insert_total",
			Help:      "The total number of statuses stored in db",
		},
	)

	LogBytesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_received_bytes_total",
			Help:      "The total number of log bytes received",
		},
	)

	FrameCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "argos_frame_total",
			Help:      "The total number of ARGOS frames received by the ground station",
		},
		[]string{ResultLabel},
	)

	ReceivedEventCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_event_total",
			Help:      "The total number of tracker events received over NATS",
		},
		[]string{KindLabel, ResultLabel},
	)
)
