package casauth

import "github.com/prometheus/client_golang/prometheus"

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordAuthAttempt records a ticket validation attempt.
	RecordAuthAttempt(success bool)

	// RecordSessionCreated records a new session creation.
	RecordSessionCreated()

	// RecordSessionValidation records a session validation result.
	RecordSessionValidation(valid bool)

	// RecordSingleLogout records a single-logout notification.
	RecordSingleLogout(success bool)
}

// NoopMetricsRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordAuthAttempt is a no-op.
func (n *NoopMetricsRecorder) RecordAuthAttempt(success bool) {}

// RecordSessionCreated is a no-op.
func (n *NoopMetricsRecorder) RecordSessionCreated() {}

// RecordSessionValidation is a no-op.
func (n *NoopMetricsRecorder) RecordSessionValidation(valid bool) {}

// RecordSingleLogout is a no-op.
func (n *NoopMetricsRecorder) RecordSingleLogout(success bool) {}

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	authAttemptsTotal       *prometheus.CounterVec
	sessionsCreatedTotal    prometheus.Counter
	sessionValidationsTotal *prometheus.CounterVec
	singleLogoutTotal       *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	authAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cas_auth_attempts_total",
		Help: "Total CAS ticket validation attempts",
	}, []string{"result"})

	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cas_auth_sessions_created_total",
		Help: "Total sessions created",
	})

	sessionValidationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cas_auth_session_validations_total",
		Help: "Total session validation attempts",
	}, []string{"result"})

	singleLogoutTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cas_auth_single_logout_total",
		Help: "Total single-logout notifications received",
	}, []string{"result"})

	reg.MustRegister(
		authAttemptsTotal,
		sessionsCreatedTotal,
		sessionValidationsTotal,
		singleLogoutTotal,
	)

	return &PrometheusMetricsRecorder{
		authAttemptsTotal:       authAttemptsTotal,
		sessionsCreatedTotal:    sessionsCreatedTotal,
		sessionValidationsTotal: sessionValidationsTotal,
		singleLogoutTotal:       singleLogoutTotal,
	}
}

// RecordAuthAttempt records a ticket validation attempt.
func (p *PrometheusMetricsRecorder) RecordAuthAttempt(success bool) {
	p.authAttemptsTotal.WithLabelValues(resultLabel(success, "success", "failure")).Inc()
}

// RecordSessionCreated records a new session creation.
func (p *PrometheusMetricsRecorder) RecordSessionCreated() {
	p.sessionsCreatedTotal.Inc()
}

// RecordSessionValidation records a session validation result.
func (p *PrometheusMetricsRecorder) RecordSessionValidation(valid bool) {
	p.sessionValidationsTotal.WithLabelValues(resultLabel(valid, "valid", "invalid")).Inc()
}

// RecordSingleLogout records a single-logout notification.
func (p *PrometheusMetricsRecorder) RecordSingleLogout(success bool) {
	p.singleLogoutTotal.WithLabelValues(resultLabel(success, "success", "failure")).Inc()
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
