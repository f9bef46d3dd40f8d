package authcore

import (
	"context"
	"strconv"
	"strings"

	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/totp"
)

// EnrollTOTP generates a fresh secret and its provisioning URI for identity.
// The secret is not stored; pass it back to ConfirmTOTP with a code from
// the authenticator app to activate it.
func (e *Engine) EnrollTOTP(ctx context.Context, identity string) (*TOTPEnrollment, error) {
	if e.totpStore == nil {
		return nil, ErrTOTPNotConfigured
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrUserNotFound
	}
	if err := e.requireNotEnrolled(ctx, identity); err != nil {
		return nil, err
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := e.totp.ProvisioningURI(identity, secret, e.config.TOTP.Issuer)
	if err != nil {
		return nil, err
	}
	return &TOTPEnrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmTOTP activates secret for identity once code verifies against it,
// and issues the first set of backup codes. The plaintext codes are only
// returned here; the store keeps hashes. An active secret is never
// replaced: identities already enrolled get ErrTOTPAlreadyEnrolled.
func (e *Engine) ConfirmTOTP(ctx context.Context, identity, secret, code string) ([]totp.BackupCode, error) {
	if e.totpStore == nil {
		return nil, ErrTOTPNotConfigured
	}
	if err := e.requireNotEnrolled(ctx, identity); err != nil {
		return nil, err
	}
	if !e.totp.VerifyDefault(secret, code) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, internalaudit.EventTOTPFailed, false, identity, "", ErrInvalidTOTP, func() map[string]string {
			return map[string]string{"stage": "enrolment"}
		})
		return nil, ErrInvalidTOTP
	}

	if err := e.totpStore.SaveTOTPSecret(ctx, identity, secret); err != nil {
		return nil, err
	}
	codes, err := e.issueBackupCodes(ctx, identity)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTOTPEnrolled)
	e.emitAudit(ctx, internalaudit.EventTOTPEnrolled, true, identity, "", nil, nil)
	return codes, nil
}

func (e *Engine) requireNotEnrolled(ctx context.Context, identity string) error {
	active, err := e.totpStore.FetchTOTPSecret(ctx, identity)
	if err != nil {
		return err
	}
	if active != "" {
		return ErrTOTPAlreadyEnrolled
	}
	return nil
}

// RegenerateBackupCodes replaces every backup code of an enrolled identity.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identity string) ([]totp.BackupCode, error) {
	if e.totpStore == nil {
		return nil, ErrTOTPNotConfigured
	}
	secret, err := e.totpStore.FetchTOTPSecret(ctx, identity)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrTOTPNotEnrolled
	}

	codes, err := e.issueBackupCodes(ctx, identity)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricBackupCodeRegenerated)
	return codes, nil
}

// DisableTOTP removes the secret and backup codes of identity.
func (e *Engine) DisableTOTP(ctx context.Context, identity string) error {
	if e.totpStore == nil {
		return ErrTOTPNotConfigured
	}
	if err := e.totpStore.SaveTOTPSecret(ctx, identity, ""); err != nil {
		return err
	}
	return e.totpStore.ReplaceBackupCodes(ctx, identity, nil)
}

func (e *Engine) issueBackupCodes(ctx context.Context, identity string) ([]totp.BackupCode, error) {
	codes, err := e.totp.GenerateBackupCodes(e.config.TOTP.BackupCodeCount, e.config.TOTP.BackupCodeValidity)
	if err != nil {
		return nil, err
	}
	records := make([]totp.BackupCodeRecord, len(codes))
	for i, c := range codes {
		records[i] = c.Record(identity)
	}
	if err := e.totpStore.ReplaceBackupCodes(ctx, identity, records); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, internalaudit.EventBackupCodesIssued, true, identity, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(codes))}
	})
	return codes, nil
}
