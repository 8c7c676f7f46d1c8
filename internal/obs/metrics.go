package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "accounts_ready",
		Help: "1 when the readiness probe last succeeded.",
	})

	sessionsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_sessions_issued_total",
			Help: "Sessions minted, by entry point.",
		},
		[]string{"source"},
	)

	digestsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_digests_issued_total",
			Help: "Single-use tokens issued, by kind.",
		},
		[]string{"kind"},
	)

	digestsRedeemed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_digests_redeemed_total",
			Help: "Single-use token redemption attempts, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	emailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_emails_total",
			Help: "Outbound emails, by template and result.",
		},
		[]string{"template", "result"},
	)

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			readyGauge, sessionsIssued, digestsIssued, digestsRedeemed, emailsSent,
		)
		prometheus.MustRegister(buildCollectors()...)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// SessionIssued counts a minted session.
func SessionIssued(source string) { sessionsIssued.WithLabelValues(source).Inc() }

// DigestIssued counts an issued single-use token.
func DigestIssued(kind string) { digestsIssued.WithLabelValues(kind).Inc() }

// DigestRedeemed counts a redemption attempt; result is "ok" or a short failure reason.
func DigestRedeemed(kind, result string) { digestsRedeemed.WithLabelValues(kind, result).Inc() }

// EmailSent counts an outbound email delivery attempt.
func EmailSent(template string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	emailsSent.WithLabelValues(template, result).Inc()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath strips the query and collapses identifier segments so label
// cardinality stays bounded when no route pattern is known.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// looksLikeID matches ULIDs (26 chars) and opaque tokens (43 chars).
func looksLikeID(seg string) bool {
	if len(seg) != 26 && len(seg) != 43 {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
