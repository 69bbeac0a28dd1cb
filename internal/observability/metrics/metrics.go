// Package metrics provides Prometheus instrumentation for the verification service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// StorageFetcher metrics
	fetchAttemptsTotal *prometheus.CounterVec

	// CompilerDriver metrics
	compilerInvocationsTotal *prometheus.CounterVec

	// BytecodeMatcher outcome metrics
	matchOutcomeTotal *prometheus.CounterVec

	// VerificationCoordinator single-flight metrics
	singleFlightRejectedTotal prometheus.Counter

	// MatchStore metrics
	storeWritesTotal *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StorageFetcher gateway attempt counter, labeled by origin and outcome.
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total number of decentralized-storage fetch attempts",
		},
		[]string{"origin", "outcome"},
	)

	// CompilerDriver invocation counter, labeled by backend and outcome.
	compilerInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_invocations_total",
			Help: "Total number of compiler invocations",
		},
		[]string{"backend", "outcome"},
	)

	// BytecodeMatcher outcome counter.
	matchOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_outcome_total",
			Help: "Total number of bytecode match outcomes",
		},
		[]string{"outcome"},
	)

	// Single-flight contention counter: verifyDeployed calls rejected
	// because the (chainId, address) key was already in progress.
	singleFlightRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "single_flight_rejected_total",
			Help: "Total number of verification requests rejected due to an in-progress verification for the same chain/address",
		},
	)

	// MatchStore write counter, labeled by quality (full_match/partial_match).
	storeWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Total number of MatchStore writes",
		},
		[]string{"quality"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// RecordFetchAttempt records one StorageFetcher gateway attempt.
func RecordFetchAttempt(origin, outcome string) {
	if !enabled {
		return
	}
	fetchAttemptsTotal.WithLabelValues(origin, outcome).Inc()
}

// RecordCompilerInvocation records one CompilerDriver invocation.
func RecordCompilerInvocation(backend, outcome string) {
	if !enabled {
		return
	}
	compilerInvocationsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordMatchOutcome records one BytecodeMatcher verdict.
func RecordMatchOutcome(outcome string) {
	if !enabled {
		return
	}
	matchOutcomeTotal.WithLabelValues(outcome).Inc()
}

// RecordSingleFlightRejected records a verifyDeployed call rejected
// because of an in-progress verification for the same key.
func RecordSingleFlightRejected() {
	if !enabled {
		return
	}
	singleFlightRejectedTotal.Inc()
}

// RecordStoreWrite records one MatchStore write at the given quality.
func RecordStoreWrite(quality string) {
	if !enabled {
		return
	}
	storeWritesTotal.WithLabelValues(quality).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
