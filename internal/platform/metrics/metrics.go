package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the auth core.
type Metrics struct {
	LoginAttempts        *prometheus.CounterVec
	TokensIssued         prometheus.Counter
	RevocationChecks     *prometheus.CounterVec
	RevocationLatency    prometheus.Histogram
	PermissionCache      *prometheus.CounterVec
	OTPVerifications     *prometheus.CounterVec
	SessionsEvicted      prometheus.Counter
	SessionTrackingFails prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// registers nothing, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "authority_credential_tuples_issued_total",
			Help: "Credential tuples (access, refresh, session) issued",
		}),
		RevocationChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_revocation_checks_total",
			Help: "Revocation registry lookups by shape and result",
		}, []string{"shape", "result"}),
		RevocationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "authority_revocation_check_duration_seconds",
			Help:    "Time spent checking a token against the revocation registry",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PermissionCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_permission_cache_total",
			Help: "Permission cache lookups by result",
		}, []string{"result"}),
		OTPVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_otp_verifications_total",
			Help: "OTP verifications by outcome",
		}, []string{"outcome"}),
		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "authority_sessions_evicted_total",
			Help: "Active sessions evicted to honor the per-user cap",
		}),
		SessionTrackingFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "authority_session_tracking_failures_total",
			Help: "Session tracking updates that failed after a successful login",
		}),
	}
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) IncrementLogin(outcome string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementTokensIssued() {
	if m != nil {
		m.TokensIssued.Inc()
	}
}

func (m *Metrics) IncrementRevocationCheck(shape, result string) {
	if m != nil {
		m.RevocationChecks.WithLabelValues(shape, result).Inc()
	}
}

func (m *Metrics) ObserveRevocationLatency(d time.Duration) {
	if m != nil {
		m.RevocationLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementPermissionCache(result string) {
	if m != nil {
		m.PermissionCache.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementOTPVerification(outcome string) {
	if m != nil {
		m.OTPVerifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementSessionsEvicted(n int) {
	if m != nil && n > 0 {
		m.SessionsEvicted.Add(float64(n))
	}
}

func (m *Metrics) IncrementSessionTrackingFailure() {
	if m != nil {
		m.SessionTrackingFails.Inc()
	}
}
