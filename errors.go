package authcore

import (
	"errors"

	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/session"
)

var (
	// ErrInvalidToken is returned for malformed or tampered bearer tokens.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrExpiredToken is returned for a correctly signed token past its exp.
	ErrExpiredToken = jwt.ErrExpiredToken
	// ErrPermissionDenied is returned when a valid token lacks the required permission.
	ErrPermissionDenied = jwt.ErrPermissionDenied
	// ErrAccountLocked is returned by Login while the attempt tracker holds a lock.
	// It never carries the remaining attempt count.
	ErrAccountLocked = errors.New("account locked")
	// ErrSessionInvalid means "not authenticated": the session is unknown or expired.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrInvalidCredentials covers both an unknown identity and a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTOTPRequired is returned when the identity is enrolled and no code was supplied.
	ErrTOTPRequired = errors.New("totp required")
	ErrInvalidTOTP  = errors.New("invalid totp code")
	// ErrUserNotFound is returned by credential collaborators. Login maps it
	// to ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is returned by ResetPassword when the new password
	// fails the policy assessment.
	ErrPasswordPolicy = errors.New("password does not satisfy policy")
	// ErrTOTPNotConfigured is returned when an operation needs a TOTPStore.
	ErrTOTPNotConfigured = errors.New("totp store not configured")
	ErrTOTPNotEnrolled   = errors.New("totp not enrolled")
	ErrEngineNotReady    = errors.New("engine not initialized")
	// ErrTOTPAlreadyEnrolled is returned by EnrollTOTP and ConfirmTOTP while a
	// secret is active. DisableTOTP must run first.
	ErrTOTPAlreadyEnrolled = errors.New("totp already enrolled")
	// ErrRedisUnavailable wraps failures of the Redis session mirror.
	ErrRedisUnavailable = session.ErrRedisUnavailable
)
