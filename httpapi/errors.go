package httpapi

import (
	"errors"
	"net/http"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
)

// mapError converts engine and store errors to a status, a stable code and
// a client-safe message.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"
	case errors.Is(err, authcore.ErrAccountLocked):
		return http.StatusTooManyRequests, "ACCOUNT_LOCKED", "account temporarily locked"
	case errors.Is(err, authcore.ErrTOTPRequired):
		return http.StatusUnauthorized, "TOTP_REQUIRED", "second factor required"
	case errors.Is(err, authcore.ErrInvalidTOTP):
		return http.StatusUnauthorized, "INVALID_TOTP", "invalid second factor"
	case errors.Is(err, authcore.ErrExpiredToken), errors.Is(err, authcore.ErrInvalidToken),
		errors.Is(err, authcore.ErrSessionInvalid):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, authcore.ErrPermissionDenied):
		return http.StatusForbidden, "FORBIDDEN", "permission denied"
	case errors.Is(err, authcore.ErrPasswordPolicy):
		return http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet the strength policy"
	case errors.Is(err, authcore.ErrTOTPNotEnrolled):
		return http.StatusConflict, "TOTP_NOT_ENROLLED", "two-factor authentication is not enabled"
	case errors.Is(err, authcore.ErrTOTPAlreadyEnrolled):
		return http.StatusConflict, "TOTP_ALREADY_ENROLLED", "two-factor authentication is already enabled"
	case errors.Is(err, authcore.ErrTOTPNotConfigured):
		return http.StatusNotImplemented, "TOTP_UNAVAILABLE", "two-factor authentication is not available"
	case errors.Is(err, credstore.ErrUserExists):
		return http.StatusConflict, "CONFLICT", "user already exists"
	case errors.Is(err, credstore.ErrEmptyIdentity):
		return http.StatusBadRequest, "VALIDATION_ERROR", "identity is required"
	case errors.Is(err, authcore.ErrUserNotFound):
		return http.StatusNotFound, "NOT_FOUND", "user not found"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
