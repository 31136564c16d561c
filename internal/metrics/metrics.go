// Package metrics exposes Prometheus counters for the account and
// verification flows. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeThrottled = "throttled"
	OutcomeConflict  = "conflict"
	OutcomeInvalid   = "invalid"
	OutcomeExpired   = "expired"
	OutcomeNotFound  = "not_found"
)

// Code purposes.
const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	gatherer prometheus.Gatherer

	codesIssued       *prometheus.CounterVec
	codeVerifications *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	logins            *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	passwordResets    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil
// creates a private registry with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		gatherer: reg,
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_codes_issued_total",
			Help: "Verification code requests by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		codeVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_code_verifications_total",
			Help: "Verification code checks by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_notifications_total",
			Help: "Outbound notification deliveries by outcome",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbinix_password_resets_total",
			Help: "Password reset attempts by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.codesIssued,
		m.codeVerifications,
		m.notifications,
		m.logins,
		m.registrations,
		m.passwordResets,
	)
	return m
}

func (m *Metrics) CodeIssued(purpose, outcome string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) CodeVerified(outcome string) {
	if m == nil {
		return
	}
	m.codeVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationSent(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PasswordReset(outcome string) {
	if m == nil {
		return
	}
	m.passwordResets.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
