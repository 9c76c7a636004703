package observability

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Frames received from the daemon and delivered to the handler.",
		},
		[]string{"type"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "frames_sent_total",
			Help:      "Frames written to the daemon.",
		},
		[]string{"type"},
	)
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "send_failures_total",
			Help:      "Frame writes that returned an error.",
		},
	)
	staleFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "stale_frames_total",
			Help:      "Frames read by a retired receive loop and not delivered.",
		},
	)
	daemonDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "daemon_disconnects_total",
			Help:      "Connections closed by the daemon side.",
		},
	)
	connectionEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "epoch",
			Help:      "Current connection epoch.",
		},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "btlink",
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while a transport is attached.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived,
			framesSent,
			sendFailures,
			staleFrames,
			daemonDisconnects,
			connectionEpoch,
			connected,
		)
	})
}

func RecordFrameReceived(packetType string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(packetType).Inc()
}

func RecordFrameSent(packetType string, err error) {
	RegisterMetrics()
	if err != nil {
		sendFailures.Inc()
		return
	}
	framesSent.WithLabelValues(packetType).Inc()
}

func RecordStaleFrame() {
	RegisterMetrics()
	staleFrames.Inc()
}

func RecordDaemonDisconnect() {
	RegisterMetrics()
	daemonDisconnects.Inc()
}

func RecordEpoch(epoch uint64) {
	RegisterMetrics()
	connectionEpoch.Set(float64(epoch))
}

func RecordConnected(up bool) {
	RegisterMetrics()
	if up {
		connected.Set(1)
		return
	}
	connected.Set(0)
}

// Router serves /metrics and /healthz. healthy may be nil.
func Router(healthy func() bool) http.Handler {
	RegisterMetrics()
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("disconnected\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
