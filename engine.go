package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sportsprop/authcore/internal"
	internalaudit "github.com/sportsprop/authcore/internal/audit"
	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/lockout"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/permission"
	"github.com/sportsprop/authcore/session"
	"github.com/sportsprop/authcore/totp"
)

// Engine coordinates the login flow over the session store, attempt
// tracker, token manager, password hasher and TOTP authenticator. All
// shared state lives in those components; Engine itself is immutable after
// Build and safe for concurrent use.
type Engine struct {
	config Config
	clock  clockwork.Clock
	logger *zap.Logger

	sessions *session.Store
	durable  session.Durable
	attempts *lockout.Tracker
	tokens   *jwt.Manager
	hasher   *password.Hasher
	policy   *password.Policy
	totp     *totp.Authenticator

	credentials CredentialStore
	totpStore   TOTPStore
	profiles    ProfileStore

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	dummyHash string

	stop      chan struct{}
	sweepers  sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the sweeper and drains queued audit events. Safe to call
// repeatedly.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.stop)
		e.sweepers.Wait()
		e.audit.Close()
	})
}

// Config returns a copy of the active configuration without the signing
// secret.
func (e *Engine) Config() Config {
	cfg := cloneConfig(e.config)
	cfg.Token.Secret = nil
	return cfg
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) startSweeper(interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	e.sweepers.Add(1)
	go func() {
		defer e.sweepers.Done()
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.Chan():
				e.Sweep()
			}
		}
	}()
}

// Sweep purges expired sessions and stale attempt history. It runs on
// Config.Session.SweepInterval and can be called directly.
func (e *Engine) Sweep() {
	removed := e.sessions.Sweep()
	tracked := e.attempts.Sweep()
	if removed > 0 {
		e.logger.Debug("swept expired sessions",
			zap.Int("removed", removed),
			zap.Int("tracked_identities", tracked))
	}
}

// RestoreSessions reloads the session table from the durable mirror. It is
// a startup operation and returns 0 when the mirror cannot be read back.
func (e *Engine) RestoreSessions(ctx context.Context) (int, error) {
	loader, ok := e.durable.(session.Loader)
	if !ok {
		return 0, nil
	}
	n, err := e.sessions.Restore(ctx, loader)
	if err != nil {
		return 0, err
	}
	e.logger.Info("sessions restored", zap.Int("count", n))
	return n, nil
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates identity with secret and, when the identity has
// enrolled a second factor, totpCode (a TOTP code or an unused backup code).
//
// The order of checks is fixed: lockout, credential lookup, password,
// second factor, roles, then session and token. A locked identity gets
// ErrAccountLocked without touching the credential store. Unknown
// identities and wrong secrets both return ErrInvalidCredentials and both
// count as failed attempts. Collaborator errors are returned unchanged.
func (e *Engine) Login(ctx context.Context, identity, secret, totpCode string) (*LoginResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}()
	}

	identity = strings.TrimSpace(identity)
	if identity == "" || secret == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	attempt := e.attempts.Acquire(identity)
	if attempt == nil {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, internalaudit.EventLoginLocked, false, identity, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	// Released uncounted unless settled below.
	defer attempt.Cancel()

	hash, err := e.credentials.FetchPasswordHash(ctx, identity)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		// Keep the response time of unknown identities in line with
		// known ones.
		_, _ = e.hasher.Verify(secret, e.dummyHash)
		e.recordFailure(ctx, attempt, identity, "unknown_identity")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(secret, hash)
	if err != nil {
		e.logger.Error("stored password digest unusable",
			zap.String("identity", identity),
			zap.Error(err))
		return nil, err
	}
	if !ok {
		e.recordFailure(ctx, attempt, identity, "bad_password")
		return nil, ErrInvalidCredentials
	}

	usedBackup, err := e.checkSecondFactor(ctx, identity, totpCode)
	if errors.Is(err, ErrInvalidTOTP) {
		e.recordFailure(ctx, attempt, identity, "bad_totp")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	attempt.Succeed()

	rawRoles, err := e.credentials.FetchRoles(ctx, identity)
	if err != nil {
		return nil, err
	}
	roles := e.canonicalRoles(identity, rawRoles)

	md := requestMetadata(ctx)
	if usedBackup {
		if md == nil {
			md = map[string]string{}
		}
		md["mfa"] = "backup_code"
	}
	sessionToken, err := e.sessions.Create(ctx, identity, md)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)

	accessToken, err := e.tokens.Issue(identity, roles)
	if err != nil {
		if invErr := e.sessions.Invalidate(ctx, sessionToken); invErr != nil {
			e.logger.Warn("session rollback failed", zap.Error(invErr))
		}
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, identity, secret, hash)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.EventLoginSuccess, true, identity, sessionToken, nil, func() map[string]string {
		return map[string]string{"roles": strings.Join(roles, ",")}
	})
	e.logger.Info("login succeeded", zap.String("identity", identity))

	return &LoginResult{
		Identity:       identity,
		Roles:          roles,
		SessionToken:   sessionToken,
		AccessToken:    accessToken,
		ExpiresAt:      e.clock.Now().Add(e.tokens.TTL()),
		UsedBackupCode: usedBackup,
	}, nil
}

// checkSecondFactor returns whether a backup code was consumed. Identities
// without a TOTP secret pass through.
func (e *Engine) checkSecondFactor(ctx context.Context, identity, code string) (bool, error) {
	if e.totpStore == nil {
		return false, nil
	}
	secret, err := e.totpStore.FetchTOTPSecret(ctx, identity)
	if err != nil {
		return false, err
	}
	if secret == "" {
		return false, nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, internalaudit.EventTOTPRequired, false, identity, "", ErrTOTPRequired, nil)
		return false, ErrTOTPRequired
	}

	if e.totp.VerifyDefault(secret, code) {
		e.metricInc(MetricTOTPSuccess)
		return false, nil
	}

	consumed, err := e.totpStore.ConsumeBackupCode(ctx, identity, totp.HashBackupCode(identity, code), e.clock.Now())
	if err != nil {
		return false, err
	}
	if consumed {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, internalaudit.EventBackupCodeUsed, true, identity, "", nil, nil)
		return true, nil
	}

	e.metricInc(MetricTOTPFailure)
	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, internalaudit.EventTOTPFailed, false, identity, "", ErrInvalidTOTP, nil)
	return false, ErrInvalidTOTP
}

// recordFailure counts a failed attempt and reports the transition into
// lockout once, on the failure that crosses the threshold.
func (e *Engine) recordFailure(ctx context.Context, attempt *lockout.Reservation, identity, reason string) {
	failures := attempt.Fail()
	e.metricInc(MetricLoginFailure)

	e.emitAudit(ctx, internalaudit.EventLoginFailed, false, identity, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	e.logger.Warn("login failed",
		zap.String("identity", identity),
		zap.String("reason", reason))

	if failures == e.config.Lockout.MaxAttempts {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, internalaudit.EventAccountLocked, false, identity, "", ErrAccountLocked, nil)
		e.logger.Warn("account locked", zap.String("identity", identity))
	}
}

// canonicalRoles keeps the known role names in canonical spelling. Unknown
// names are dropped so they grant nothing.
func (e *Engine) canonicalRoles(identity string, names []string) []string {
	roles, unknown := permission.RolesOf(names)
	if len(unknown) > 0 {
		e.logger.Warn("ignoring unknown roles",
			zap.String("identity", identity),
			zap.Strings("roles", unknown))
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}
	return out
}

/*
====================================
TOKENS
====================================
*/

// VerifyToken checks a bearer token. ErrExpiredToken and ErrInvalidToken
// stay distinct here so monitoring can tell tampering from expiry; HTTP
// layers should still answer both with a uniform 401.
func (e *Engine) VerifyToken(ctx context.Context, token string) (*jwt.Claims, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.tokens.Verify(token)
	if err != nil {
		e.tokenRejected(ctx, err)
		return nil, err
	}
	return claims, nil
}

// Authorize verifies token and requires its roles to grant at least one of
// required. With no required permissions any valid token passes. On
// ErrPermissionDenied the verified claims are returned as well.
func (e *Engine) Authorize(ctx context.Context, token string, required ...permission.Permission) (*jwt.Claims, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.tokens.Authorize(token, required...)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, internalaudit.EventPermissionDenied, false, claims.UserID, "", err, func() map[string]string {
			return map[string]string{"required": permission.NewSet(required...).String()}
		})
		return claims, err
	}
	e.tokenRejected(ctx, err)
	return nil, err
}

func (e *Engine) tokenRejected(ctx context.Context, err error) {
	if errors.Is(err, ErrExpiredToken) {
		e.metricInc(MetricTokenExpired)
		return
	}
	e.metricInc(MetricTokenRejected)
	e.emitAudit(ctx, internalaudit.EventTokenRejected, false, "", "", err, nil)
}

/*
====================================
SESSIONS
====================================
*/

// ValidateSession returns the live session for sessionToken or
// ErrSessionInvalid. Malformed tokens are rejected before the table lock.
func (e *Engine) ValidateSession(ctx context.Context, sessionToken string) (session.Session, error) {
	if _, err := internal.ParseSessionID(sessionToken); err != nil {
		e.metricInc(MetricSessionRejected)
		return session.Session{}, ErrSessionInvalid
	}
	sess, ok := e.sessions.Validate(ctx, sessionToken)
	if !ok {
		e.metricInc(MetricSessionRejected)
		return session.Session{}, ErrSessionInvalid
	}
	return sess, nil
}

// Logout invalidates one session. Unknown tokens are a no-op.
func (e *Engine) Logout(ctx context.Context, sessionToken string) error {
	sess, ok := e.sessions.Peek(sessionToken)
	if err := e.sessions.Invalidate(ctx, sessionToken); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, internalaudit.EventLogout, true, sess.Identity, sessionToken, nil, nil)
	return nil
}

// LogoutAll invalidates every session of identity and returns how many
// were live.
func (e *Engine) LogoutAll(ctx context.Context, identity string) (int, error) {
	n, err := e.sessions.InvalidateAll(ctx, identity)
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, internalaudit.EventLogoutAll, err == nil, identity, "", err, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, err
}

// ActiveSessions lists the live sessions of identity, oldest first.
func (e *Engine) ActiveSessions(identity string) []session.Session {
	return e.sessions.List(identity)
}

// SessionCount returns the number of sessions in the table across all
// identities, including expired ones the sweeper has not removed yet.
func (e *Engine) SessionCount() int {
	return e.sessions.Len()
}

func (e *Engine) CountActiveSessions(identity string) int {
	return e.sessions.CountActive(identity)
}

/*
====================================
LOCKOUT
====================================
*/

// IsLocked is intended for login-form gating.
func (e *Engine) IsLocked(identity string) bool {
	return e.attempts.IsLocked(identity)
}

// UnlockAccount clears the attempt history of identity.
func (e *Engine) UnlockAccount(ctx context.Context, identity string) {
	e.attempts.Reset(identity)
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, internalaudit.EventAccountUnlocked, true, identity, "", nil, nil)
}

/*
====================================
ROLES
====================================
*/

// CanUpgrade reports whether role from may be raised to role to. Unknown
// names never upgrade.
func (e *Engine) CanUpgrade(from, to string) bool {
	return permission.CanUpgradeNames(from, to)
}

// HasPermission reports whether the named role grants perm.
func (e *Engine) HasPermission(role string, perm permission.Permission) bool {
	r, ok := permission.ParseRole(role)
	if !ok {
		return false
	}
	return permission.HasPermission(r, perm)
}
