// Package metrics exposes Prometheus counters for session operations,
// guard decisions and HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple servers do not collide
// on the global one. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	sessionOps     *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	providerCalls  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "travelplanner_auth_operations_total",
			Help: "Session operations by operation and outcome",
		}, []string{"op", "outcome"}),
		guardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "travelplanner_guard_decisions_total",
			Help: "Access guard decisions by outcome",
		}, []string{"outcome"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "travelplanner_social_verifications_total",
			Help: "Social token verifications by provider and outcome",
		}, []string{"provider", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "travelplanner_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "travelplanner_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Outcome maps an error to a bounded label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrEmailAlreadyExists):
		return "email_exists"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, common.ErrInvalidProviderToken):
		return "invalid_provider_token"
	case errors.Is(err, common.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, common.ErrRefreshTokenRevoked):
		return "revoked"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenSignatureInvalid), errors.Is(err, common.ErrTokenKindMismatch):
		return "invalid_token"
	case errors.Is(err, common.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, common.ErrForbidden):
		return "forbidden"
	case errors.Is(err, common.ErrValidation):
		return "invalid_input"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (m *Metrics) SessionOp(op string, err error) {
	if m == nil {
		return
	}
	m.sessionOps.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) GuardDecision(err error) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) ProviderCall(provider string, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, Outcome(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
