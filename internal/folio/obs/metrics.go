// Package obs exposes perimeter metrics in Prometheus format.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/folio/pkg/httpx"
)

// Login outcomes.
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	logins          *prometheus.CounterVec
	csrfRejections  prometheus.Counter
	unauthenticated prometheus.Counter
	reaped          *prometheus.CounterVec
	auditWrites     *prometheus.CounterVec
	invitations     *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "folio_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "class", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "class"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		csrfRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "folio_csrf_rejections_total",
			Help: "State-changing requests rejected for a missing or mismatched CSRF token.",
		}),
		unauthenticated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "folio_unauthenticated_requests_total",
			Help: "Protected requests without a valid session.",
		}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_reaped_rows_total",
			Help: "Rows deleted by opportunistic cleanup.",
		}, []string{"kind"}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_audit_writes_total",
			Help: "Audit entry writes by result.",
		}, []string{"result"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_invitations_total",
			Help: "Invitation lifecycle events.",
		}, []string{"event"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "folio_build_info",
			Help: "Folio build information.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		m.inFlight, m.requests, m.duration,
		m.logins, m.csrfRejections, m.unauthenticated,
		m.reaped, m.auditWrites, m.invitations, m.buildInfo,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SetBuildInfo publishes folio_build_info{version} 1.
func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version).Set(1)
}

// Instrument measures requests. classify maps a request to a low
// cardinality label such as "api" or "uploads".
func (m *Metrics) Instrument(classify func(*http.Request) string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := classify(r)
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			m.duration.WithLabelValues(r.Method, class).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(r.Method, class, strconv.Itoa(sw.code)).Inc()
		})
	}
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CSRFRejected() {
	if m == nil {
		return
	}
	m.csrfRejections.Inc()
}

func (m *Metrics) Unauthenticated() {
	if m == nil {
		return
	}
	m.unauthenticated.Inc()
}

// Reaped records one cleanup pass.
func (m *Metrics) Reaped(sessions, invitations int64) {
	if m == nil {
		return
	}
	m.reaped.WithLabelValues("session").Add(float64(sessions))
	m.reaped.WithLabelValues("invitation").Add(float64(invitations))
}

func (m *Metrics) AuditWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.auditWrites.WithLabelValues(result).Inc()
}

// Invitation counts lifecycle events: delivered, undelivered, accepted, revoked.
func (m *Metrics) Invitation(event string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(event).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
