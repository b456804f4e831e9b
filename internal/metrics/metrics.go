// Package metrics holds the Prometheus collectors of the relay server and of
// the desktop daemon. Each process owns its own registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay holds the relay server metrics.
type Relay struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	TranscriptionsTotal *prometheus.CounterVec
	WakeChecksTotal     *prometheus.CounterVec
	TokensTotal         *prometheus.CounterVec
	ArtifactsActive     prometheus.Gauge
}

func NewRelay(namespace string) *Relay {
	if namespace == "" {
		namespace = "assistant_relay"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of failed upstream calls",
		},
		[]string{"route", "stage"},
	)

	transcriptionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of transcriptions by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	wakeChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_checks_total",
			Help:      "Total number of wake-word checks by result",
		},
		[]string{"detected"},
	)

	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total chat completion tokens",
		},
		[]string{"model", "direction"},
	)

	artifactsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_active",
			Help:      "Number of persisted speech artifacts awaiting expiry",
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		errorsTotal,
		transcriptionsTotal,
		wakeChecksTotal,
		tokensTotal,
		artifactsActive,
	)

	return &Relay{
		registry:            registry,
		RequestsTotal:       requestsTotal,
		RequestDuration:     requestDuration,
		ErrorsTotal:         errorsTotal,
		TranscriptionsTotal: transcriptionsTotal,
		WakeChecksTotal:     wakeChecksTotal,
		TokensTotal:         tokensTotal,
		ArtifactsActive:     artifactsActive,
	}
}

func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Relay) RecordRequest(route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Relay) RecordError(route, stage string) {
	m.ErrorsTotal.WithLabelValues(route, stage).Inc()
}

func (m *Relay) RecordTranscription(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TranscriptionsTotal.WithLabelValues(backend, outcome).Inc()
}

func (m *Relay) RecordWakeCheck(detected bool) {
	m.WakeChecksTotal.WithLabelValues(strconv.FormatBool(detected)).Inc()
}

func (m *Relay) RecordTokens(model string, prompt, completion int64) {
	if prompt > 0 {
		m.TokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.TokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// Daemon holds the desktop daemon metrics. It satisfies session.Observer.
type Daemon struct {
	registry *prometheus.Registry

	ProbesTotal   *prometheus.CounterVec
	RelaysTotal   *prometheus.CounterVec
	PlaybackTotal *prometheus.CounterVec
	FeedViewers   prometheus.Gauge
}

func NewDaemon(namespace string) *Daemon {
	if namespace == "" {
		namespace = "assistant"
	}

	registry := prometheus.NewRegistry()

	probesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_probes_total",
			Help:      "Total number of completed wake-word probes",
		},
		[]string{"detected"},
	)

	relaysTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_cycles_total",
			Help:      "Total number of main recording cycles by outcome",
		},
		[]string{"outcome"},
	)

	playbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_total",
			Help:      "Total number of spoken replies by outcome",
		},
		[]string{"outcome"},
	)

	feedViewers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_viewers",
			Help:      "Number of connected event feed viewers",
		},
	)

	registry.MustRegister(probesTotal, relaysTotal, playbackTotal, feedViewers)

	return &Daemon{
		registry:      registry,
		ProbesTotal:   probesTotal,
		RelaysTotal:   relaysTotal,
		PlaybackTotal: playbackTotal,
		FeedViewers:   feedViewers,
	}
}

func (m *Daemon) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Daemon) Probe(detected bool) {
	m.ProbesTotal.WithLabelValues(strconv.FormatBool(detected)).Inc()
}

func (m *Daemon) Relay(outcome string) {
	m.RelaysTotal.WithLabelValues(outcome).Inc()
}

func (m *Daemon) Playback(outcome string) {
	m.PlaybackTotal.WithLabelValues(outcome).Inc()
}

// StatusRecorder captures the status code written by a handler.
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rw *StatusRecorder) WriteHeader(code int) {
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *StatusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
