package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "licensegate_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_login_attempts_total",
		Help: "Count of login attempts by result",
	}, []string{"result"})

	signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_signups_total",
		Help: "Count of signup attempts by result",
	}, []string{"result"})

	licenseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_license_operations_total",
		Help: "Count of license lifecycle operations by operation and result",
	}, []string{"operation", "result"})

	authzDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licensegate_authz_denials_total",
		Help: "Count of authorization denials by action and reason",
	}, []string{"action", "reason"})

	activeLicenses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "licensegate_licenses",
		Help: "Number of licenses in the ledger by status",
	}, []string{"status"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin records a login attempt with a result label
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveSignup records a signup attempt with a result label
func ObserveSignup(result string) {
	signups.WithLabelValues(result).Inc()
}

// ObserveLicenseOperation records an activate/revoke/clear/list outcome
func ObserveLicenseOperation(operation, result string) {
	licenseOperations.WithLabelValues(operation, result).Inc()
}

// ObserveAuthzDenial records an authorization denial
func ObserveAuthzDenial(action, reason string) {
	authzDenials.WithLabelValues(action, reason).Inc()
}

// SetLicenseCount sets the license gauge for one status
func SetLicenseCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	activeLicenses.WithLabelValues(status).Set(float64(count))
}
