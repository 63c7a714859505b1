// Package metrics exposes the service's Prometheus collectors behind a small
// recording interface so callers can run without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services report to.
type Recorder interface {
	StreamOpened(transport string)
	StreamClosed(transport string)
	StreamPush(kind string)
	Submission(kind, outcome string)
	RateLimitDenied(action string)
	RateLimitStoreError(op string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) StreamOpened(string)        {}
func (Nop) StreamClosed(string)        {}
func (Nop) StreamPush(string)          {}
func (Nop) Submission(string, string)  {}
func (Nop) RateLimitDenied(string)     {}
func (Nop) RateLimitStoreError(string) {}

// Prometheus records into collectors registered on its own registry.
type Prometheus struct {
	registry      *prometheus.Registry
	streams       *prometheus.GaugeVec
	pushes        *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	denials       *prometheus.CounterVec
	limiterErrors *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Prometheus{
		registry: reg,
		streams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "livetrivia",
			Name:      "stream_connections",
			Help:      "Open live event stream connections.",
		}, []string{"transport"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrivia",
			Name:      "stream_pushes_total",
			Help:      "Messages written to stream connections, by kind.",
		}, []string{"kind"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrivia",
			Name:      "submissions_total",
			Help:      "Participant submissions by kind and outcome code.",
		}, []string{"kind", "outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrivia",
			Name:      "rate_limit_denials_total",
			Help:      "Requests rejected by the rate limiter, by action.",
		}, []string{"action"}),
		limiterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrivia",
			Name:      "rate_limit_store_errors_total",
			Help:      "Rate limit store failures that were allowed through.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.streams, m.pushes, m.submissions, m.denials, m.limiterErrors)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Prometheus) StreamOpened(transport string) {
	m.streams.WithLabelValues(transport).Inc()
}

func (m *Prometheus) StreamClosed(transport string) {
	m.streams.WithLabelValues(transport).Dec()
}

func (m *Prometheus) StreamPush(kind string) {
	m.pushes.WithLabelValues(kind).Inc()
}

func (m *Prometheus) Submission(kind, outcome string) {
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

func (m *Prometheus) RateLimitDenied(action string) {
	m.denials.WithLabelValues(action).Inc()
}

func (m *Prometheus) RateLimitStoreError(op string) {
	m.limiterErrors.WithLabelValues(op).Inc()
}
