package obs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"worktrack.org/internal/auth"
	"worktrack.org/internal/ids"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktrack_authz_decisions_total",
			Help: "Authorization decisions by action, outcome and reason.",
		},
		[]string{"action", "outcome", "reason"},
	)

	tokenOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktrack_token_operations_total",
			Help: "Token issue, refresh and revoke operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
)

// Init registers the metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authzDecisions, tokenOperations)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one authorization decision.
func ObserveDecision(action, outcome, reason string) {
	authzDecisions.WithLabelValues(action, outcome, reason).Inc()
}

// ObserveToken counts one token operation. It matches auth.TokenObserver.
func ObserveToken(op string, err error) {
	tokenOperations.WithLabelValues(op, tokenOutcome(err)).Inc()
}

func tokenOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenReused):
		return "reused"
	case errors.Is(err, auth.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, auth.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// CanonicalPath collapses identifiers in a request path so metric label
// cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i, p := range parts {
		if ids.Valid(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// Instrument measures in-flight requests, counts and latency.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// StatusWriter records the response code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}
