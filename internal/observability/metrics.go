package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringdht",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ringdht",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	pdus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringdht",
			Subsystem: "pdu",
			Name:      "messages_total",
			Help:      "PDUs read or written, by direction and type.",
		},
		[]string{"node", "direction", "type"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringdht",
			Subsystem: "pdu",
			Name:      "decode_errors_total",
			Help:      "Connections dropped on a decode failure.",
		},
		[]string{"node", "reason"},
	)
	forwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringdht",
			Subsystem: "ring",
			Name:      "forwards_total",
			Help:      "Requests relayed to the successor.",
		},
		[]string{"node", "type", "success"},
	)
	dialDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ringdht",
			Subsystem: "ring",
			Name:      "dial_duration_seconds",
			Help:      "Outbound dial duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "success"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ringdht",
			Subsystem: "node",
			Name:      "open_connections",
			Help:      "Inbound connections currently served.",
		},
		[]string{"node"},
	)
	records = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ringdht",
			Subsystem: "store",
			Name:      "records",
			Help:      "Records held by the local store.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			pdus, decodeErrors,
			forwards, dialDuration,
			connections, records,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordPDU counts one message; direction is "in" or "out".
func RecordPDU(node, direction, typ string) {
	RegisterMetrics()
	pdus.WithLabelValues(node, direction, typ).Inc()
}

func RecordDecodeError(node, reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(node, reason).Inc()
}

func RecordForward(node, typ string, success bool) {
	RegisterMetrics()
	forwards.WithLabelValues(node, typ, strconv.FormatBool(success)).Inc()
}

func RecordDial(node string, duration time.Duration, success bool) {
	RegisterMetrics()
	dialDuration.WithLabelValues(node, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func ConnectionOpened(node string) {
	RegisterMetrics()
	connections.WithLabelValues(node).Inc()
}

func ConnectionClosed(node string) {
	RegisterMetrics()
	connections.WithLabelValues(node).Dec()
}

func SetRecordCount(node string, n int) {
	RegisterMetrics()
	records.WithLabelValues(node).Set(float64(n))
}
