package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики аутентификации
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	resolveFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_resolve_failures_total",
			Help: "Bearer token resolutions that failed, by error kind.",
		},
		[]string{"kind"},
	)

	revocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Logout revocations by result.",
		},
		[]string{"result"},
	)

	revokedPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revoked_tokens_purged_total",
		Help: "Revoked tokens deleted by the sweeper.",
	})

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocation_sweeps_total",
			Help: "Revocation sweeper runs by status.",
		},
		[]string{"status"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginsTotal, resolveFailuresTotal, revocationsTotal, revokedPurgedTotal, sweepsTotal,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts a login attempt; outcome is "success" or an error kind.
func ObserveLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolveFailure counts a failed token resolution.
func ObserveResolveFailure(kind string) {
	resolveFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRevocation counts a logout.
func ObserveRevocation(alreadyRevoked bool) {
	result := "revoked"
	if alreadyRevoked {
		result = "already_revoked"
	}
	revocationsTotal.WithLabelValues(result).Inc()
}

// ObserveSweep records one sweeper run.
func ObserveSweep(purged int64, err error) {
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return
	}
	sweepsTotal.WithLabelValues("ok").Inc()
	revokedPurgedTotal.Add(float64(purged))
}

// CanonicalPath returns the matched route template so ids do not explode
// label cardinality.
func CanonicalPath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Instrument - middleware для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// statusWriter - локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
