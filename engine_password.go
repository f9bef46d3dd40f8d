package authcore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/password"
)

// AssessPassword runs the generic policy checks. It never fails; render
// PasswordFeedback of the result for registration forms.
func (e *Engine) AssessPassword(pw string) password.Assessment {
	return e.policy.Assess(pw)
}

// AssessPasswordFor also compares pw against the identity's profile values
// when a ProfileStore is configured. Without one, only the identity string
// itself is treated as personal information.
func (e *Engine) AssessPasswordFor(ctx context.Context, identity, pw string) (password.Assessment, error) {
	profile := password.Profile{Username: identity}
	if e.profiles != nil {
		p, err := e.profiles.FetchProfile(ctx, identity)
		if err != nil {
			return password.Assessment{}, err
		}
		if p.Username == "" {
			p.Username = identity
		}
		profile = p
	}
	return e.policy.AssessFor(pw, profile), nil
}

// AssessPasswordForProfile checks pw against a profile that is not stored
// yet, as during account creation.
func (e *Engine) AssessPasswordForProfile(pw string, profile password.Profile) password.Assessment {
	return e.policy.AssessFor(pw, profile)
}

func (e *Engine) PasswordFeedback(a password.Assessment) []string {
	return e.policy.Feedback(a)
}

// HashPassword hashes pw with the configured algorithm, for account
// provisioning outside Login.
func (e *Engine) HashPassword(pw string) (string, error) {
	return e.hasher.Hash(pw)
}

// ResetPassword replaces the password of identity. The new password must
// pass the per-user assessment; on success the attempt history is cleared
// and every session of identity is invalidated.
func (e *Engine) ResetPassword(ctx context.Context, identity, newPassword string) error {
	assessment, err := e.AssessPasswordFor(ctx, identity, newPassword)
	if err != nil {
		return err
	}
	if !assessment.Overall {
		e.metricInc(MetricPasswordResetRejected)
		e.emitAudit(ctx, internalaudit.EventPasswordReset, false, identity, "", ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(e.policy.Feedback(assessment), "; "))
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.credentials.UpdatePasswordHash(ctx, identity, hash); err != nil {
		return err
	}

	e.attempts.Reset(identity)
	n, err := e.sessions.InvalidateAll(ctx, identity)
	if err != nil {
		e.logger.Warn("session invalidation after password reset incomplete",
			zap.String("identity", identity),
			zap.Error(err))
	}

	e.metricInc(MetricPasswordReset)
	e.emitAudit(ctx, internalaudit.EventPasswordReset, true, identity, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(n)}
	})
	return err
}

// upgradeHash rehashes a verified password whose digest uses an older
// algorithm or weaker parameters. Failures are logged and never fail the
// login.
func (e *Engine) upgradeHash(ctx context.Context, identity, pw, stored string) {
	needs, err := e.hasher.NeedsRehash(stored)
	if err != nil || !needs {
		return
	}
	fresh, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, identity, fresh); err != nil {
		e.logger.Warn("password rehash not stored", zap.String("identity", identity), zap.Error(err))
		return
	}
	e.metricInc(MetricPasswordRehashed)
	e.emitAudit(ctx, internalaudit.EventPasswordRehashed, true, identity, "", nil, func() map[string]string {
		return map[string]string{"algorithm": e.hasher.Algorithm()}
	})
}
