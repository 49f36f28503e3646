// Package metrics expone métricas Prometheus del servicio.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa todas las métricas de la app.
type Metrics struct {
	reg *prometheus.Registry

	DoseActionsRecorded  *prometheus.CounterVec
	DoseActionsRejected  *prometheus.CounterVec
	OccurrencesEmitted   *prometheus.CounterVec
	ReconcileDuration    prometheus.Histogram
	RemindersDispatched  prometheus.Counter
	RemindersFailed      prometheus.Counter
	DispatchSweepSeconds prometheus.Histogram
	HTTPRequests         *prometheus.CounterVec
	AuthFailures         *prometheus.CounterVec
}

// New crea un registry propio (no el global) para poder instanciar varios
// routers en tests sin colisiones de registro.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		DoseActionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dose_actions_recorded_total",
			Help: "Dose actions appended to the log, by action",
		}, []string{"action"}),
		DoseActionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dose_actions_rejected_total",
			Help: "Dose actions rejected by the log, by reason",
		}, []string{"reason"}),
		OccurrencesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occurrences_emitted_total",
			Help: "Occurrences returned by reconciliation, by kind (scheduled|postponed)",
		}, []string{"kind"}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Time to fetch catalog + today's log and reconcile occurrences",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		RemindersDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_dispatched_total",
			Help: "Reminders handed to the notifier",
		}),
		RemindersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Reminders the notifier failed to accept",
		}),
		DispatchSweepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_dispatch_sweep_seconds",
			Help:    "Duration of a full dispatcher sweep",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Requests whose credentials were rejected, by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.DoseActionsRecorded,
		m.DoseActionsRejected,
		m.OccurrencesEmitted,
		m.ReconcileDuration,
		m.RemindersDispatched,
		m.RemindersFailed,
		m.DispatchSweepSeconds,
		m.HTTPRequests,
		m.AuthFailures,
	)

	return m
}

// Registry para tests (testutil) o para registrar collectors extra.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler devuelve el handler HTTP de /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
