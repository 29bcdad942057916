package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Pipeline metrics
	movementsInvalid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movements_invalid_total",
			Help: "Total number of movements discarded during normalization",
		},
		[]string{"reason"},
	)

	staysSegmented = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_segmented_total",
			Help: "Total number of stays produced by segmentation",
		},
	)

	staysFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_filtered_total",
			Help: "Total number of stays rejected by an eligibility predicate",
		},
		[]string{"reason"},
	)

	staysEligible = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_eligible_total",
			Help: "Total number of stays admitted to the cohort",
		},
	)

	orderingAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ordering_anomalies_total",
			Help: "Total number of negative gaps beyond tolerance",
		},
	)

	groupsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groups_skipped_total",
			Help: "Total number of patient/episode groups skipped after a failure",
		},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohort_run_duration_seconds",
			Help:    "Cohort derivation duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"stage"},
	)

	// Source and store metrics
	sourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_query_duration_seconds",
			Help:    "Warehouse feed query duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"feed"},
	)

	sourceRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_rows_total",
			Help: "Total number of rows read from the warehouse",
		},
		[]string{"feed"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Results store query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses run ids so the path label stays bounded.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if len(p) == 36 && strings.Count(p, "-") == 4 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// --- Pipeline metric helpers ---

// RecordInvalidMovements adds n discarded movements for a reason.
func RecordInvalidMovements(reason string, n int) {
	movementsInvalid.WithLabelValues(reason).Add(float64(n))
}

// RecordStaysSegmented adds n segmented stays.
func RecordStaysSegmented(n int) {
	staysSegmented.Add(float64(n))
}

// RecordStaysFiltered adds n rejected stays for a reason.
func RecordStaysFiltered(reason string, n int) {
	staysFiltered.WithLabelValues(reason).Add(float64(n))
}

// RecordStaysEligible adds n cohort stays.
func RecordStaysEligible(n int) {
	staysEligible.Add(float64(n))
}

// RecordOrderingAnomalies adds n ordering anomalies.
func RecordOrderingAnomalies(n int) {
	orderingAnomalies.Add(float64(n))
}

// RecordGroupSkipped records a skipped patient/episode group.
func RecordGroupSkipped() {
	groupsSkipped.Inc()
}

// RecordStage records the duration of a pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	runDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSourceQuery records a warehouse feed query.
func RecordSourceQuery(feed string, rows int, duration time.Duration) {
	sourceQueryDuration.WithLabelValues(feed).Observe(duration.Seconds())
	sourceRows.WithLabelValues(feed).Add(float64(rows))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
