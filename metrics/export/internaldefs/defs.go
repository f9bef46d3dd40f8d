package internaldefs

import (
	"github.com/sportsprop/authcore"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins, including unknown identities."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Failures that locked an account."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Administrative account unlocks."},
	{ID: authcore.MetricTOTPRequired, Name: "authcore_totp_required_total", Help: "Logins that stopped for a missing second factor."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: authcore.MetricTOTPSuccess, Name: "authcore_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: authcore.MetricTOTPEnrolled, Name: "authcore_totp_enrolled_total", Help: "Confirmed TOTP enrolments."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Logins completed with a backup code."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: authcore.MetricBackupCodeRegenerated, Name: "authcore_backup_code_regenerated_total", Help: "Backup code sets issued."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions evicted by the concurrency limit."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricSessionRejected, Name: "authcore_session_rejected_total", Help: "Unknown or expired session tokens presented."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Issued bearer tokens."},
	{ID: authcore.MetricTokenRejected, Name: "authcore_token_rejected_total", Help: "Bearer tokens rejected as invalid."},
	{ID: authcore.MetricTokenExpired, Name: "authcore_token_expired_total", Help: "Bearer tokens rejected as expired."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Authorization checks denied."},
	{ID: authcore.MetricPasswordRehashed, Name: "authcore_password_rehashed_total", Help: "Stored digests upgraded on login."},
	{ID: authcore.MetricPasswordReset, Name: "authcore_password_reset_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetRejected, Name: "authcore_password_reset_rejected_total", Help: "Password resets rejected by the strength policy."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Token validation latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

	SessionsActiveName = "authcore_sessions_active"
	SessionsActiveHelp = "Sessions held in the session table, including expired ones not yet swept."
)

// SessionCounter is implemented by sources that can report the size of the
// session table. *authcore.Engine does.
type SessionCounter interface {
	SessionCount() int
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
