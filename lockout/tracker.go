package lockout

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Config holds the lockout threshold and the trailing window failures are
// counted over.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig returns the 5 failures / 15 minutes policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Window:      DefaultWindow,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("lockout MaxAttempts must be > 0")
	}
	if c.Window <= 0 {
		return errors.New("lockout Window must be > 0")
	}
	return nil
}

// Attempt is one recorded login attempt.
type Attempt struct {
	At      time.Time
	Success bool
}

// Tracker records login attempts per identity and derives lockout state from
// the raw history on every check. Nothing is persisted: a lock clears as
// soon as enough failures age out of the window.
type Tracker struct {
	cfg   Config
	clock clockwork.Clock

	mu      sync.Mutex
	history map[string][]Attempt
	pending map[string]int
}

// NewTracker builds a tracker. A nil clock selects the real clock.
func NewTracker(cfg Config, clock clockwork.Clock) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		cfg:     cfg,
		clock:   clock,
		history: make(map[string][]Attempt),
		pending: make(map[string]int),
	}, nil
}

// Record appends an attempt for identity and drops entries that fell out of
// the window.
func (t *Tracker) Record(identity string, success bool) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(identity, now)
	t.history[identity] = append(kept, Attempt{At: now, Success: success})
}

// IsLocked reports whether identity has at least MaxAttempts failures inside
// the trailing window. Successful attempts never offset failures.
func (t *Tracker) IsLocked(identity string) bool {
	return t.Failures(identity) >= t.cfg.MaxAttempts
}

// Failures counts failed attempts for identity inside the window.
func (t *Tracker) Failures(identity string) int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	failed := 0
	for _, a := range t.pruneLocked(identity, now) {
		if !a.Success {
			failed++
		}
	}
	return failed
}

// Acquire checks the lock and reserves one pending failure for identity in
// the same critical section. In-flight reservations count toward the
// threshold, so at most MaxAttempts attempts can be past the gate at once.
// It returns nil when identity is locked. The caller must settle the
// reservation exactly once.
func (t *Tracker) Acquire(identity string) *Reservation {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	failed := t.pending[identity]
	for _, a := range t.pruneLocked(identity, now) {
		if !a.Success {
			failed++
		}
	}
	if failed >= t.cfg.MaxAttempts {
		return nil
	}
	t.pending[identity]++
	return &Reservation{tracker: t, identity: identity}
}

// Reservation is a pending attempt handed out by Acquire.
type Reservation struct {
	tracker  *Tracker
	identity string
	once     sync.Once
}

// Fail records a failed attempt and returns the failure count inside the
// window after recording it.
func (r *Reservation) Fail() int {
	failed := 0
	r.settle(func(now time.Time) {
		kept := r.tracker.pruneLocked(r.identity, now)
		kept = append(kept, Attempt{At: now, Success: false})
		r.tracker.history[r.identity] = kept
		failed = 0
		for _, a := range kept {
			if !a.Success {
				failed++
			}
		}
	})
	return failed
}

// Succeed records a successful attempt.
func (r *Reservation) Succeed() {
	r.settle(func(now time.Time) {
		kept := r.tracker.pruneLocked(r.identity, now)
		r.tracker.history[r.identity] = append(kept, Attempt{At: now, Success: true})
	})
}

// Cancel releases the reservation without recording anything.
func (r *Reservation) Cancel() {
	r.settle(nil)
}

func (r *Reservation) settle(record func(now time.Time)) {
	r.once.Do(func() {
		t := r.tracker
		now := t.clock.Now()

		t.mu.Lock()
		defer t.mu.Unlock()

		if t.pending[r.identity] <= 1 {
			delete(t.pending, r.identity)
		} else {
			t.pending[r.identity]--
		}
		if record != nil {
			record(now)
		}
	})
}

// Reset clears all history for identity.
func (t *Tracker) Reset(identity string) {
	t.mu.Lock()
	delete(t.history, identity)
	t.mu.Unlock()
}

// Sweep prunes every identity and forgets those left with no history.
// It returns the number of identities still tracked.
func (t *Tracker) Sweep() int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for identity := range t.history {
		t.pruneLocked(identity, now)
	}
	return len(t.history)
}

// Config returns the active policy.
func (t *Tracker) Config() Config {
	return t.cfg
}

// pruneLocked keeps attempts with now-At < Window and stores the result.
// Callers must hold t.mu.
func (t *Tracker) pruneLocked(identity string, now time.Time) []Attempt {
	attempts, ok := t.history[identity]
	if !ok {
		return nil
	}

	kept := attempts[:0]
	for _, a := range attempts {
		if now.Sub(a.At) < t.cfg.Window {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(t.history, identity)
		return nil
	}
	t.history[identity] = kept
	return kept
}
