package session

import (
	"context"
	"sync"
	"time"
)

// State is the tracker lifecycle position.
type State int

const (
	StateInactive State = iota
	StateActive
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "inactive"
	}
}

// ActivityStore persists the last-activity marker so a restart does not
// reset the idle clock.
type ActivityStore interface {
	LastActivity(ctx context.Context, key string) (time.Time, bool, error)
	Touch(ctx context.Context, key string, at time.Time, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

// Tracker watches for inactivity and fires warning and expiry callbacks.
// It is an explicit state object with paired Start/Stop lifecycle; all
// methods are safe to call from any goroutine.
type Tracker struct {
	mu           sync.Mutex
	profile      Profile
	store        ActivityStore
	key          string
	onWarning    func(remaining time.Duration)
	onExpired    func()
	lastActivity time.Time
	warningShown bool
	state        State
	done         chan struct{}
	now          func() time.Time
}

// New builds a tracker for one session key. Callbacks may be nil.
func New(profile Profile, st ActivityStore, key string, onWarning func(time.Duration), onExpired func()) *Tracker {
	return &Tracker{
		profile:   profile,
		store:     st,
		key:       key,
		onWarning: onWarning,
		onExpired: onExpired,
		state:     StateInactive,
		now:       time.Now,
	}
}

// Start records the current time as last activity (or restores a newer
// persisted marker) and begins periodic checking.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateInactive {
		t.mu.Unlock()
		return
	}
	now := t.now()
	t.lastActivity = now
	if t.store != nil {
		if at, ok, err := t.store.LastActivity(ctx, t.key); err == nil && ok && at.Before(now) {
			t.lastActivity = at
		}
		_ = t.store.Touch(ctx, t.key, t.lastActivity, t.profile.Timeout)
	}
	t.warningShown = false
	t.state = StateActive
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.profile.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if t.check(ctx) {
					return
				}
			}
		}
	}()
}

// RecordActivity resets the idle clock. It is cheap, idempotent and inert
// once the tracker has expired or stopped.
func (t *Tracker) RecordActivity(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateActive && t.state != StateWarning {
		t.mu.Unlock()
		return
	}
	t.lastActivity = t.now()
	t.warningShown = false
	t.state = StateActive
	at := t.lastActivity
	t.mu.Unlock()
	if t.store != nil {
		_ = t.store.Touch(ctx, t.key, at, t.profile.Timeout)
	}
}

// Extend runs the supplied server refresh. On success the local activity
// state resets; on failure it is left untouched and false is returned.
// Expired and stopped trackers cannot be extended.
func (t *Tracker) Extend(ctx context.Context, refresh func(context.Context) error) bool {
	t.mu.Lock()
	if t.state != StateActive && t.state != StateWarning {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()
	if refresh != nil {
		if err := refresh(ctx); err != nil {
			return false
		}
	}
	t.RecordActivity(ctx)
	return true
}

// Stop tears the tracker down: periodic checks end and the persisted
// marker is cleared. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	alreadyInactive := t.state == StateInactive
	t.state = StateInactive
	t.warningShown = false
	t.mu.Unlock()
	if !alreadyInactive && t.store != nil {
		_ = t.store.Clear(context.Background(), t.key)
	}
}

// State reports the current lifecycle position.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining reports time left before expiry; zero once expired or stopped.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive && t.state != StateWarning {
		return 0
	}
	remaining := t.profile.Timeout - t.now().Sub(t.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// check evaluates elapsed idle time. Returns true when the tracker reached
// its terminal state and the loop should stop.
func (t *Tracker) check(ctx context.Context) bool {
	t.mu.Lock()
	if t.state != StateActive && t.state != StateWarning {
		t.mu.Unlock()
		return true
	}
	elapsed := t.now().Sub(t.lastActivity)
	if elapsed >= t.profile.Timeout {
		t.state = StateExpired
		if t.done != nil {
			close(t.done)
			t.done = nil
		}
		onExpired := t.onExpired
		t.mu.Unlock()
		if t.store != nil {
			_ = t.store.Clear(ctx, t.key)
		}
		if onExpired != nil {
			onExpired()
		}
		return true
	}
	remaining := t.profile.Timeout - elapsed
	if remaining <= t.profile.WarningWindow && !t.warningShown {
		t.warningShown = true
		t.state = StateWarning
		onWarning := t.onWarning
		t.mu.Unlock()
		if onWarning != nil {
			onWarning(remaining)
		}
		return false
	}
	t.mu.Unlock()
	return false
}
