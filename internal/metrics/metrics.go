package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "availability_queries_total",
			Help:      "Count of availability resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	resolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "prenota",
			Name:      "availability_resolve_duration_seconds",
			Help:      "Time to load configuration and resolve availability for one date.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	ambiguousSelections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "ambiguous_version_selections_total",
			Help:      "Count of resolutions where more than one active version covered the date.",
		},
	)

	adminWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "schedule_admin_writes_total",
			Help:      "Count of administrative schedule writes by entity and result.",
		},
		[]string{"entity", "result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "availability_cache_lookups_total",
			Help:      "Count of availability cache lookups by result.",
		},
		[]string{"result"},
	)

	scheduleSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "schedule_syncs_total",
			Help:      "Count of schedules.yaml syncs by status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prenota",
			Name:      "http_rate_limited_total",
			Help:      "Count of API requests rejected by the rate limiter.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(availabilityQueries, resolveDuration, ambiguousSelections,
			adminWrites, cacheLookups, scheduleSyncs, httpRequests, rateLimited)
	})
}

// ObserveResolve records one resolution: outcome is "open", a closed reason, or "error".
func ObserveResolve(outcome string, took time.Duration) {
	availabilityQueries.WithLabelValues(outcome).Inc()
	resolveDuration.Observe(took.Seconds())
}

func IncAmbiguousSelection() {
	ambiguousSelections.Inc()
}

func IncAdminWrite(entity, result string) {
	adminWrites.WithLabelValues(entity, result).Inc()
}

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func IncScheduleSync(status string) {
	scheduleSyncs.WithLabelValues(status).Inc()
}

// IncHTTP counts one API response.
func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}
