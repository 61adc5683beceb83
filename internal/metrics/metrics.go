// Package metrics provides Prometheus metrics for monitoring.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	IngestRuns      *prometheus.CounterVec
	RecordsUpserted prometheus.Counter
	ChangesHandled  *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Subscriptions   *prometheus.CounterVec
	DeadLetters     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all metrics on reg. A nil reg uses a fresh private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "cryptowatch"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		IngestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingest invocations by result",
		}, []string{"result"}),
		RecordsUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_upserted_total",
			Help:      "Price records written to the store",
		}),
		ChangesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "changes_total",
			Help:      "Change events evaluated by outcome",
		}, []string{"outcome"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "publish_total",
			Help:      "Publish attempts by channel and result",
		}, []string{"channel", "result"}),
		Subscriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "requests_total",
			Help:      "Subscription requests by result",
		}, []string{"result"}),
		DeadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deadletter",
			Name:      "messages_total",
			Help:      "Invocations moved to the dead-letter store by source",
		}, []string{"source"}),
		gatherer: reg,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IngestRun(result string) {
	if m != nil {
		m.IngestRuns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RecordUpserted() {
	if m != nil {
		m.RecordsUpserted.Inc()
	}
}

func (m *Metrics) ChangeHandled(outcome string) {
	if m != nil {
		m.ChangesHandled.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Published(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) Subscription(result string) {
	if m != nil {
		m.Subscriptions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DeadLetter(source string) {
	if m != nil {
		m.DeadLetters.WithLabelValues(source).Inc()
	}
}
