package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "editorbridge_build_info",
			Help: "Build information",
		},
		[]string{"date", "sha", "version"},
	)

	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "editorbridge_connection_state",
			Help: "Current connection state (1 for the active state)",
		},
		[]string{"state"},
	)

	reconnectPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "editorbridge_reconnect_phase",
			Help: "Current reconnect phase (1 for the active phase)",
		},
		[]string{"phase"},
	)

	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorbridge_connect_attempts_total",
			Help: "Connection attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	maxAttemptsReached = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editorbridge_max_attempts_reached_total",
		Help: "Times the reconnect attempt limit was reached",
	})

	framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editorbridge_frames_received_total",
		Help: "Complete frames received from the server",
	})

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorbridge_frames_sent_total",
			Help: "Frames sent to the server by frame type and outcome",
		},
		[]string{"type", "outcome"},
	)

	decodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "editorbridge_decode_errors_total",
		Help: "Inbound frames dropped because they could not be decoded",
	})

	messagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorbridge_messages_dispatched_total",
			Help: "Messages drained from the inbound queue by kind",
		},
		[]string{"kind"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorbridge_operations_total",
			Help: "Executed operations by outcome",
		},
		[]string{"outcome"},
	)

	operationsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "editorbridge_operations_in_flight",
		Help: "Operations currently executing",
	})

	operationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "editorbridge_operation_duration_seconds",
		Help:    "Duration of operations in seconds",
		Buckets: prometheus.DefBuckets,
	})

	lifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorbridge_lifecycle_events_total",
			Help: "Host lifecycle events handled",
		},
		[]string{"event"},
	)
)

var collectors = []prometheus.Collector{
	buildInfo, connectionState, reconnectPhase, connectAttempts, maxAttemptsReached,
	framesReceived, framesSent, decodeErrors, messagesDispatched, operations,
	operationsInFlight, operationDuration, lifecycleEvents,
}

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(collectors...)
}

// StartMetricsServer serves the bridge metrics on /metrics from a private
// registry and returns the address it listens on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	Register(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("metrics server error")
		}
	}()
	return actual, nil
}

// SetBuildInfo publishes the binary version.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetConnectionState marks state as the only active connection state.
func SetConnectionState(state string, all []string) {
	for _, s := range all {
		connectionState.WithLabelValues(s).Set(0)
	}
	connectionState.WithLabelValues(state).Set(1)
}

// SetReconnectPhase marks phase as the only active reconnect phase.
func SetReconnectPhase(phase string, all []string) {
	for _, p := range all {
		reconnectPhase.WithLabelValues(p).Set(0)
	}
	reconnectPhase.WithLabelValues(phase).Set(1)
}

// RecordConnectAttempt counts one open or probe attempt.
func RecordConnectAttempt(action string, success bool) {
	connectAttempts.WithLabelValues(action, outcome(success)).Inc()
}

// RecordMaxAttemptsReached counts a max-attempts notification.
func RecordMaxAttemptsReached() {
	maxAttemptsReached.Inc()
}

// RecordFrameReceived counts one complete inbound frame.
func RecordFrameReceived() {
	framesReceived.Inc()
}

// RecordFrameSent counts one outbound frame.
func RecordFrameSent(frameType string, success bool) {
	framesSent.WithLabelValues(frameType, outcome(success)).Inc()
}

// RecordDecodeError counts one dropped inbound frame.
func RecordDecodeError() {
	decodeErrors.Inc()
}

// RecordDispatched counts one drained message.
func RecordDispatched(kind string) {
	messagesDispatched.WithLabelValues(kind).Inc()
}

// OperationStarted tracks an operation entering execution.
func OperationStarted() {
	operationsInFlight.Inc()
}

// OperationCompleted records the outcome and duration of an operation.
func OperationCompleted(success bool, d time.Duration) {
	operationsInFlight.Dec()
	operations.WithLabelValues(outcome(success)).Inc()
	operationDuration.Observe(d.Seconds())
}

// RecordLifecycleEvent counts one handled host lifecycle event.
func RecordLifecycleEvent(event string) {
	lifecycleEvents.WithLabelValues(event).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
