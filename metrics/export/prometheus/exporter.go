package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authgate "github.com/atrium-labs/authgate"
)

type metricsSource interface {
	MetricsSnapshot() authgate.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authgate.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authgate.MetricLoginSuccess, "authgate_login_success_total", "Successful logins."},
	{authgate.MetricLoginFailure, "authgate_login_failure_total", "Failed logins."},
	{authgate.MetricLoginThrottled, "authgate_login_throttled_total", "Logins denied by the per-user throttler."},
	{authgate.MetricRegisterSuccess, "authgate_register_success_total", "Successful registrations."},
	{authgate.MetricRegisterDuplicate, "authgate_register_duplicate_total", "Registrations rejected for an existing email."},
	{authgate.MetricSessionCreated, "authgate_session_created_total", "Created sessions."},
	{authgate.MetricSessionValidated, "authgate_session_validated_total", "Successful session validations."},
	{authgate.MetricSessionRenewed, "authgate_session_renewed_total", "Sessions extended inside the renewal window."},
	{authgate.MetricSessionExpired, "authgate_session_expired_total", "Validations that found an absent or expired session."},
	{authgate.MetricSessionInvalidated, "authgate_session_invalidated_total", "Sessions invalidated outside normal expiry."},
	{authgate.MetricLogout, "authgate_logout_total", "Single-session logouts."},
	{authgate.MetricLogoutAll, "authgate_logout_all_total", "Logout-all operations."},
	{authgate.MetricVerificationRequested, "authgate_verification_requested_total", "Email verification codes issued."},
	{authgate.MetricVerificationSuccess, "authgate_verification_success_total", "Successful email verifications."},
	{authgate.MetricVerificationFailure, "authgate_verification_failure_total", "Failed email verification attempts."},
	{authgate.MetricVerificationRateLimited, "authgate_verification_rate_limited_total", "Rate-limited email verification operations."},
	{authgate.MetricPasswordResetRequested, "authgate_password_reset_requested_total", "Password reset sessions created."},
	{authgate.MetricPasswordResetCompleted, "authgate_password_reset_completed_total", "Completed password resets."},
	{authgate.MetricPasswordResetFailure, "authgate_password_reset_failure_total", "Failed password reset steps."},
	{authgate.MetricPasswordResetRateLimited, "authgate_password_reset_rate_limited_total", "Rate-limited password reset operations."},
	{authgate.MetricTOTPSuccess, "authgate_totp_success_total", "Successful TOTP verifications."},
	{authgate.MetricTOTPFailure, "authgate_totp_failure_total", "Failed TOTP verifications."},
	{authgate.MetricTOTPRateLimited, "authgate_totp_rate_limited_total", "Rate-limited TOTP verifications."},
	{authgate.MetricRecoveryCodeUsed, "authgate_recovery_code_used_total", "Successful recovery code uses."},
	{authgate.MetricRecoveryCodeFailed, "authgate_recovery_code_failed_total", "Failed recovery code attempts."},
	{authgate.MetricRequestRateLimited, "authgate_request_rate_limited_total", "Operations denied by a rate limiter."},
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an exporter that reads from the given engine.
func NewExporter(engine *authgate.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an exporter from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in text exposition format.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(4096)

	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}
	writeCounter(&b, "authgate_audit_dropped_total", "Audit events dropped by dispatcher backpressure.", p.source.AuditDropped())

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
