// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ipu-results/result-engine/internal/domain/shared"
)

const namespace = "result_engine"

// =============================================================================
// Portal
// =============================================================================

var (
	// portalRequests counts outbound portal calls.
	// Labels: operation (captcha, login, credits), outcome (see Outcome)
	portalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "requests_total",
		Help:      "Outbound result portal calls by operation and outcome",
	}, []string{"operation", "outcome"})

	portalLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "request_duration_seconds",
		Help:      "Outbound result portal call latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 15},
	}, []string{"operation"})

	// logins counts login attempts that reached the portal, by outcome.
	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "logins_total",
		Help:      "Login attempts by outcome",
	}, []string{"outcome"})

	// circuitState is 0 closed, 1 open, 2 half-open.
	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portal",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})
)

// =============================================================================
// Credits
// =============================================================================

var (
	// creditLookups counts paper codes looked up per source.
	// Labels: source (cache, postgres, portal), result (hit, miss, error)
	creditLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credits",
		Name:      "lookups_total",
		Help:      "Paper code credit lookups by source and result",
	}, []string{"source", "result"})

	recordsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "records",
		Name:      "built_total",
		Help:      "Processed records built, by credit completeness",
	}, []string{"complete"})
)

// =============================================================================
// HTTP
// =============================================================================

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, shared.ErrInvalidCaptcha):
		return "invalid_captcha"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrNoResultsFound):
		return "no_results"
	case errors.Is(err, shared.ErrMalformedUpstreamData):
		return "malformed"
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// ObservePortal records one outbound portal call.
func ObservePortal(operation string, start time.Time, err error) {
	portalRequests.WithLabelValues(operation, Outcome(err)).Inc()
	portalLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// LoginOutcome counts one login attempt.
func LoginOutcome(err error) {
	logins.WithLabelValues(Outcome(err)).Inc()
}

// SetCircuitState publishes a breaker state.
func SetCircuitState(name string, state int) {
	circuitState.WithLabelValues(name).Set(float64(state))
}

// CreditLookups records n lookups for a source and result.
func CreditLookups(source, result string, n int) {
	if n <= 0 {
		return
	}
	creditLookups.WithLabelValues(source, result).Add(float64(n))
}

// RecordBuilt counts a built record.
func RecordBuilt(complete bool) {
	label := "false"
	if complete {
		label = "true"
	}
	recordsBuilt.WithLabelValues(label).Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
