package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sportsprop/authcore/internal"
)

const (
	DefaultTimeout       = 2 * time.Hour
	DefaultMaxConcurrent = 3
)

// Config bounds session lifetime and the number of live sessions one
// identity may hold.
type Config struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("session Timeout must be > 0")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("session MaxConcurrent must be > 0")
	}
	return nil
}

// Durable receives every change to the session table. Calls are made
// outside the table lock.
type Durable interface {
	Save(ctx context.Context, sess Session, ttl time.Duration) error
	Delete(ctx context.Context, identity, token string) error
}

// Loader returns previously persisted sessions for Restore.
type Loader interface {
	LoadAll(ctx context.Context) ([]Session, error)
}

// Option configures a Store.
type Option func(*Store)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDurable mirrors creates and deletes into d.
func WithDurable(d Durable) Option {
	return func(s *Store) {
		s.durable = d
	}
}

// WithEvictHook registers fn to run, outside the lock, for every session
// evicted to make room under the concurrency limit.
func WithEvictHook(fn func(Session)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the authoritative in-process session table. A single mutex
// guards it, so purge, evict and insert for one Create are atomic and the
// per-identity limit is exact.
type Store struct {
	cfg     Config
	clock   clockwork.Clock
	durable Durable
	onEvict func(Session)
	logger  *zap.Logger

	mu         sync.Mutex
	sessions   map[string]*Session
	byIdentity map[string]map[string]struct{}
}

// NewStore builds an empty table. Invalid cfg values fall back to defaults.
func NewStore(cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	s := &Store{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active limits.
func (s *Store) Config() Config {
	return s.cfg
}

// Create opens a session for identity. Expired sessions of identity are
// purged first; if the identity still holds MaxConcurrent live sessions the
// ones with the oldest CreatedAt are evicted. With a durable mirror the new
// session is saved before the table changes, so a failed save returns the
// error with nothing evicted, and a token is always saved before any delete
// of it can run.
func (s *Store) Create(ctx context.Context, identity string, metadata map[string]string) (string, error) {
	if identity == "" {
		return "", errors.New("session: empty identity")
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	token := sid.String()

	now := s.clock.Now()
	sess := &Session{
		Token:          token,
		Identity:       identity,
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       copyMetadata(metadata),
	}

	if s.durable != nil {
		if err := s.durable.Save(ctx, sess.clone(), s.cfg.Timeout); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.purgeIdentityLocked(identity, now)
	evicted := s.evictForLocked(identity)
	s.insertLocked(sess)
	s.mu.Unlock()

	for _, ev := range evicted {
		s.logger.Debug("session evicted",
			zap.String("identity", ev.Identity),
			zap.Time("created_at", ev.CreatedAt))
		s.deleteDurable(ctx, ev)
		if s.onEvict != nil {
			s.onEvict(ev)
		}
	}

	return token, nil
}

// Validate returns the session for token, or false when the token is
// unknown or the session is older than Timeout. A hit refreshes
// LastActivityAt, which is informational only: expiry is absolute.
func (s *Store) Validate(ctx context.Context, token string) (Session, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return Session{}, false
	}
	if sess.Expired(now, s.cfg.Timeout) {
		expired := sess.clone()
		s.removeLocked(token)
		s.mu.Unlock()
		s.deleteDurable(ctx, expired)
		return Session{}, false
	}
	sess.LastActivityAt = now
	out := sess.clone()
	s.mu.Unlock()

	return out, true
}

// Peek returns the live session for token without touching LastActivityAt.
func (s *Store) Peek(token string) (Session, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || sess.Expired(now, s.cfg.Timeout) {
		return Session{}, false
	}
	return sess.clone(), true
}

// Invalidate removes token. Unknown tokens are a no-op; an error can only
// come from the durable mirror.
func (s *Store) Invalidate(ctx context.Context, token string) error {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	removed := sess.clone()
	s.removeLocked(token)
	s.mu.Unlock()

	if s.durable != nil {
		return s.durable.Delete(ctx, removed.Identity, removed.Token)
	}
	return nil
}

// InvalidateAll removes every session of identity and returns how many
// were live.
func (s *Store) InvalidateAll(ctx context.Context, identity string) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	var removed []Session
	live := 0
	for token := range s.byIdentity[identity] {
		sess := s.sessions[token]
		if !sess.Expired(now, s.cfg.Timeout) {
			live++
		}
		removed = append(removed, sess.clone())
		s.removeLocked(token)
	}
	s.mu.Unlock()

	if s.durable != nil {
		var errs []error
		for _, sess := range removed {
			if err := s.durable.Delete(ctx, sess.Identity, sess.Token); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return live, errors.Join(errs...)
		}
	}
	return live, nil
}

// CountActive returns the number of non-expired sessions held by identity.
func (s *Store) CountActive(identity string) int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token := range s.byIdentity[identity] {
		if !s.sessions[token].Expired(now, s.cfg.Timeout) {
			n++
		}
	}
	return n
}

// List returns copies of the live sessions of identity, oldest first.
func (s *Store) List(identity string) []Session {
	now := s.clock.Now()

	s.mu.Lock()
	out := make([]Session, 0, len(s.byIdentity[identity]))
	for token := range s.byIdentity[identity] {
		sess := s.sessions[token]
		if !sess.Expired(now, s.cfg.Timeout) {
			out = append(out, sess.clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the total number of sessions in the table, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops every expired session and returns how many were removed.
// The durable mirror expires its copies by TTL, so Sweep does no I/O.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if sess.Expired(now, s.cfg.Timeout) {
			s.removeLocked(token)
			removed++
		}
	}
	return removed
}

// Restore loads sessions from l into the table, skipping expired ones and
// enforcing the per-identity limit (newest kept). It returns the number of
// sessions restored.
func (s *Store) Restore(ctx context.Context, l Loader) (int, error) {
	loaded, err := l.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})

	now := s.clock.Now()
	var evicted []Session

	s.mu.Lock()
	for i := range loaded {
		sess := loaded[i].clone()
		if sess.Token == "" || sess.Identity == "" || sess.Expired(now, s.cfg.Timeout) {
			continue
		}
		if _, exists := s.sessions[sess.Token]; exists {
			continue
		}
		s.purgeIdentityLocked(sess.Identity, now)
		evicted = append(evicted, s.evictForLocked(sess.Identity)...)
		s.insertLocked(&sess)
	}
	restored := 0
	for i := range loaded {
		if cur, ok := s.sessions[loaded[i].Token]; ok && cur.Identity == loaded[i].Identity {
			restored++
		}
	}
	s.mu.Unlock()

	for _, ev := range evicted {
		s.deleteDurable(ctx, ev)
	}
	return restored, nil
}

func (s *Store) deleteDurable(ctx context.Context, sess Session) {
	if s.durable == nil {
		return
	}
	if err := s.durable.Delete(ctx, sess.Identity, sess.Token); err != nil {
		s.logger.Warn("durable session delete failed",
			zap.String("identity", sess.Identity),
			zap.Error(err))
	}
}

// purgeIdentityLocked drops expired sessions of identity. Callers must hold s.mu.
func (s *Store) purgeIdentityLocked(identity string, now time.Time) {
	for token := range s.byIdentity[identity] {
		if s.sessions[token].Expired(now, s.cfg.Timeout) {
			s.removeLocked(token)
		}
	}
}

// evictForLocked removes the oldest sessions of identity until one more
// fits under MaxConcurrent. Callers must hold s.mu.
func (s *Store) evictForLocked(identity string) []Session {
	var evicted []Session
	for len(s.byIdentity[identity]) >= s.cfg.MaxConcurrent {
		var oldest *Session
		for token := range s.byIdentity[identity] {
			sess := s.sessions[token]
			if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
				oldest = sess
			}
		}
		evicted = append(evicted, oldest.clone())
		s.removeLocked(oldest.Token)
	}
	return evicted
}

func (s *Store) insertLocked(sess *Session) {
	s.sessions[sess.Token] = sess
	set, ok := s.byIdentity[sess.Identity]
	if !ok {
		set = make(map[string]struct{})
		s.byIdentity[sess.Identity] = set
	}
	set[sess.Token] = struct{}{}
}

func (s *Store) removeLocked(token string) {
	sess, ok := s.sessions[token]
	if !ok {
		return
	}
	delete(s.sessions, token)
	set := s.byIdentity[sess.Identity]
	delete(set, token)
	if len(set) == 0 {
		delete(s.byIdentity, sess.Identity)
	}
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
