// Package metrics exposes Prometheus counters and histograms for the auth
// service on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mail delivery outcomes.
const (
	MailSent    = "sent"
	MailFailed  = "failed"
	MailDropped = "dropped"
	MailRetried = "retried"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry     *prometheus.Registry
	AuthOps      *prometheus.CounterVec
	MailEvents   *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, with the standard Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		AuthOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophauth_auth_operations_total",
				Help: "Auth service operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		MailEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophauth_mail_deliveries_total",
				Help: "Outbound mail delivery events by outcome",
			},
			[]string{"outcome"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gophauth_http_request_duration_seconds",
				Help:    "HTTP request latency by method, route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(m.AuthOps, m.MailEvents, m.HTTPDuration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAuth counts one operation, labelled with the status class of err.
func (m *Metrics) ObserveAuth(operation string, err error) {
	m.AuthOps.WithLabelValues(operation, string(common.Classify(err))).Inc()
}

// RecordMailDelivery counts one mail event.
func (m *Metrics) RecordMailDelivery(outcome string) {
	m.MailEvents.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records the latency of one request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
