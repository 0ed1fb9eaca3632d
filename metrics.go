package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// metrics owns its registry so several servers can live in one process (tests).
// It implements matching.Observer.
type metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	evaluated    prometheus.Counter
	excluded     *prometheus.CounterVec
	eligible     prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	liveClients  prometheus.Gauge
	breakerState prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &metrics{
		registry: reg,
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studymatch_ranking_passes_total",
			Help: "Ranking passes by outcome",
		}, []string{"outcome"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "studymatch_ranking_pass_duration_seconds",
			Help:    "Duration of ranking passes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		evaluated: f.NewCounter(prometheus.CounterOpts{
			Name: "studymatch_candidates_evaluated_total",
			Help: "Candidates run through the filter",
		}),
		excluded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studymatch_candidates_excluded_total",
			Help: "Candidates excluded by the filter, by reason",
		}, []string{"reason"}),
		eligible: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "studymatch_eligible_candidates",
			Help:    "Eligible candidates per successful pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studymatch_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studymatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		liveClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "studymatch_live_clients",
			Help: "Connected live feed websockets",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "studymatch_store_breaker_state",
			Help: "Record store circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}
}

func (m *metrics) CandidateExcluded(reason matching.ExclusionReason) {
	m.excluded.WithLabelValues(string(reason)).Inc()
}

func (m *metrics) PassFinished(outcome string, evaluated, eligible int, elapsed time.Duration) {
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(elapsed.Seconds())
	m.evaluated.Add(float64(evaluated))
	if outcome == matching.OutcomeOK {
		m.eligible.Observe(float64(eligible))
	}
}

// breakerChanged is the store.StateListener feeding the breaker gauge.
func (m *metrics) breakerChanged(_ string, _, to gobreaker.State) {
	m.breakerState.Set(float64(to))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// instrument records request counts and latency per chi route pattern.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
