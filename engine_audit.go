package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/session"
)

// AuditErrorCode is the stable error label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrTOTPRequired       AuditErrorCode = "totp_required"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit queues one event. The client IP and user agent come from ctx.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType, identity, e.clock.Now())
	event.SessionID = sessionID
	event.IP = clientIPFromContext(ctx)
	event.Success = success
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// onSessionEvicted runs outside the session table lock for every session
// dropped to honour the concurrency limit.
func (e *Engine) onSessionEvicted(sess session.Session) {
	e.metricInc(MetricSessionEvicted)
	e.emitAudit(context.Background(), internalaudit.EventSessionEvicted, true, sess.Identity, sess.Token, nil, nil)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrTOTPRequired):
		return auditErrTOTPRequired
	case errors.Is(err, ErrInvalidTOTP):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRedisUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
