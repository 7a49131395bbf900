// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSyncedTotal counts complete frames delivered by the synchronizer
	FramesSyncedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_frames_synced_total",
			Help: "Total number of frames synchronized and reassembled",
		},
		[]string{"command"},
	)

	// PayloadBytesTotal counts payload bytes handed to decoders
	PayloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_payload_bytes_total",
			Help: "Total number of payload bytes decoded",
		},
		[]string{"kind"},
	)

	// DecodeErrorsTotal counts decode failures by stage
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_decode_errors_total",
			Help: "Total number of decode errors",
		},
		[]string{"stage"},
	)

	// SessionsTotal counts finished sessions by kind and result
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_sessions_total",
			Help: "Total number of sessions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// SessionDurationSeconds measures request/response cycle latency
	SessionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "busctl_session_duration_seconds",
			Help:    "Duration of request/response cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"kind"},
	)

	// InspectMessagesTotal counts decoded inspect messages by command
	InspectMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_inspect_messages_total",
			Help: "Total number of inspect messages decoded",
		},
		[]string{"command"},
	)

	// ReporterErrorsTotal counts reporter errors by name
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busctl_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter"},
	)
)

// Session result label values
const (
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultError   = "error"
)
