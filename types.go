package authcore

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/totp"
)

// CredentialStore is the credential lookup collaborator. Implementations
// return ErrUserNotFound for an unknown identity; any other error is treated
// as an infrastructure failure and propagated unchanged.
type CredentialStore interface {
	FetchPasswordHash(ctx context.Context, identity string) (string, error)
	FetchRoles(ctx context.Context, identity string) ([]string, error)
	UpdatePasswordHash(ctx context.Context, identity, hash string) error
}

// TOTPStore persists second-factor enrolment. FetchTOTPSecret returns an
// empty secret for identities that have not enrolled.
//
// Backup codes are stored hashed (see totp.HashBackupCode). ConsumeBackupCode
// marks the matching unused, unexpired record as used and reports whether one
// existed; it must be atomic per record.
type TOTPStore interface {
	FetchTOTPSecret(ctx context.Context, identity string) (string, error)
	SaveTOTPSecret(ctx context.Context, identity, secret string) error
	ReplaceBackupCodes(ctx context.Context, identity string, codes []totp.BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, identity, hash string, now time.Time) (bool, error)
}

// ProfileStore supplies the profile values the per-user password check
// compares against.
type ProfileStore interface {
	FetchProfile(ctx context.Context, identity string) (password.Profile, error)
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	Identity     string
	Roles        []string
	SessionToken string
	AccessToken  string
	ExpiresAt    time.Time
	// UsedBackupCode is set when the second factor was a backup code.
	UsedBackupCode bool
}

// TOTPEnrollment is returned by [Engine.EnrollTOTP]. Nothing is stored
// until [Engine.ConfirmTOTP] succeeds.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// AuditEvent is the canonical audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher worker.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink writes events to a zap logger, failures at warn level.
type ZapSink = internalaudit.ZapSink

// MultiSink fans an event out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
