package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// testProfile uses a long check interval so the background loop never
// fires during a test; checks are driven by hand.
var testProfile = Profile{
	Name:          "test",
	Timeout:       10 * time.Minute,
	WarningWindow: 2 * time.Minute,
	CheckInterval: time.Hour,
}

type clock struct{ at time.Time }

func (c *clock) now() time.Time          { return c.at }
func (c *clock) advance(d time.Duration) { c.at = c.at.Add(d) }

// newClock anchors at the real time so store TTLs behave.
func newClock() *clock { return &clock{at: time.Now()} }

func TestTrackerExpiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	var expired int32
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", nil, func() {
		atomic.AddInt32(&expired, 1)
	})
	tr.now = ck.now
	tr.Start(ctx)

	ck.advance(testProfile.Timeout)
	if done := tr.check(ctx); !done {
		t.Fatalf("expected check to report terminal state")
	}
	tr.check(ctx)
	tr.check(ctx)

	if n := atomic.LoadInt32(&expired); n != 1 {
		t.Fatalf("expected expiry callback once, got %d", n)
	}
	if tr.State() != StateExpired {
		t.Fatalf("expected expired state, got %s", tr.State())
	}
}

func TestTrackerExpiredIsTerminal(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", nil, nil)
	tr.now = ck.now
	tr.Start(ctx)

	ck.advance(testProfile.Timeout)
	tr.check(ctx)
	if tr.State() != StateExpired {
		t.Fatalf("expected expired, got %s", tr.State())
	}

	// activity after expiry must not resurrect the session
	tr.RecordActivity(ctx)
	if tr.State() != StateExpired {
		t.Fatalf("activity resurrected an expired tracker: %s", tr.State())
	}
	if tr.Remaining() != 0 {
		t.Fatalf("expected zero remaining after expiry, got %s", tr.Remaining())
	}
}

func TestTrackerWarningFiresOncePerExcursion(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	var warnings int32
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", func(time.Duration) {
		atomic.AddInt32(&warnings, 1)
	}, nil)
	tr.now = ck.now
	tr.Start(ctx)

	// move inside the warning window
	ck.advance(testProfile.Timeout - testProfile.WarningWindow)
	tr.check(ctx)
	tr.check(ctx)
	if n := atomic.LoadInt32(&warnings); n != 1 {
		t.Fatalf("expected one warning, got %d", n)
	}
	if tr.State() != StateWarning {
		t.Fatalf("expected warning state, got %s", tr.State())
	}

	// activity returns the tracker to active and re-arms the warning
	tr.RecordActivity(ctx)
	if tr.State() != StateActive {
		t.Fatalf("expected active after activity, got %s", tr.State())
	}
	ck.advance(testProfile.Timeout - testProfile.WarningWindow)
	tr.check(ctx)
	if n := atomic.LoadInt32(&warnings); n != 2 {
		t.Fatalf("expected warning to re-fire after activity, got %d", n)
	}
}

func TestTrackerExtend(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", nil, nil)
	tr.now = ck.now
	tr.Start(ctx)
	defer tr.Stop()

	ck.advance(5 * time.Minute)
	if !tr.Extend(ctx, func(context.Context) error { return nil }) {
		t.Fatalf("expected extend to succeed")
	}
	if got := tr.Remaining(); got != testProfile.Timeout {
		t.Fatalf("expected extend to reset remaining, got %s", got)
	}

	// a failed server refresh leaves the idle clock untouched
	ck.advance(5 * time.Minute)
	if tr.Extend(ctx, func(context.Context) error { return context.DeadlineExceeded }) {
		t.Fatalf("expected extend to fail when refresh fails")
	}
	if got := tr.Remaining(); got != testProfile.Timeout-5*time.Minute {
		t.Fatalf("expected remaining untouched after failed refresh, got %s", got)
	}
}

func TestTrackerExtendAfterExpiry(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", nil, nil)
	tr.now = ck.now
	tr.Start(ctx)

	ck.advance(testProfile.Timeout)
	tr.check(ctx)
	if tr.Extend(ctx, func(context.Context) error { return nil }) {
		t.Fatalf("expected extend on an expired tracker to fail")
	}
}

func TestTrackerRemaining(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	tr := New(testProfile, NewInMemoryActivityStore(), "u1", nil, nil)
	tr.now = ck.now
	tr.Start(ctx)
	defer tr.Stop()

	if got := tr.Remaining(); got != testProfile.Timeout {
		t.Fatalf("expected full timeout remaining, got %s", got)
	}
	ck.advance(3 * time.Minute)
	if got := tr.Remaining(); got != testProfile.Timeout-3*time.Minute {
		t.Fatalf("unexpected remaining: %s", got)
	}
	tr.RecordActivity(ctx)
	if got := tr.Remaining(); got != testProfile.Timeout {
		t.Fatalf("expected activity to reset remaining, got %s", got)
	}
}

func TestTrackerStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryActivityStore()
	tr := New(testProfile, st, "u1", nil, nil)
	tr.Start(ctx)
	tr.Stop()
	tr.Stop()
	if tr.State() != StateInactive {
		t.Fatalf("expected inactive after stop, got %s", tr.State())
	}
	if _, ok, _ := st.LastActivity(ctx, "u1"); ok {
		t.Fatalf("expected persisted marker cleared on stop")
	}
}

func TestTrackerRestoresPersistedMarker(t *testing.T) {
	ctx := context.Background()
	ck := newClock()
	st := NewInMemoryActivityStore()
	earlier := ck.now().Add(-4 * time.Minute)
	if err := st.Touch(ctx, "u1", earlier, testProfile.Timeout); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	tr := New(testProfile, st, "u1", nil, nil)
	tr.now = ck.now
	tr.Start(ctx)
	defer tr.Stop()

	if got := tr.Remaining(); got != testProfile.Timeout-4*time.Minute {
		t.Fatalf("expected restored marker to shorten remaining, got %s", got)
	}
}

func TestInMemoryActivityStoreTTL(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryActivityStore()
	if err := st.Touch(ctx, "u1", time.Now(), time.Nanosecond); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := st.LastActivity(ctx, "u1"); ok {
		t.Fatalf("expected marker to expire with its ttl")
	}
}

func TestManagerTouchAndEnd(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testProfile, NewInMemoryActivityStore(), nil, nil)
	defer m.StopAll()

	if !m.Touch(ctx, "u1") {
		t.Fatalf("expected first touch to start a session")
	}
	if !m.Touch(ctx, "u1") {
		t.Fatalf("expected repeat touch to succeed")
	}
	m.End("u1")
	if !m.Touch(ctx, "u1") {
		t.Fatalf("expected touch after logout to start a new session")
	}
}

func TestManagerExtendWithoutTrackerRunsRefresh(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testProfile, NewInMemoryActivityStore(), nil, nil)
	defer m.StopAll()

	// no tracker exists yet (fresh process); the server refresh must
	// still happen before the extend counts as a success
	var refreshed bool
	if !m.Extend(ctx, "u1", func(context.Context) error { refreshed = true; return nil }) {
		t.Fatalf("expected extend to succeed")
	}
	if !refreshed {
		t.Fatalf("expected refresh to run before a fresh tracker is started")
	}
	if !m.Touch(ctx, "u1") {
		t.Fatalf("expected extend to have started a tracker")
	}
}

func TestManagerExtendWithoutTrackerFailedRefresh(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testProfile, NewInMemoryActivityStore(), nil, nil)
	defer m.StopAll()

	if m.Extend(ctx, "u1", func(context.Context) error { return context.DeadlineExceeded }) {
		t.Fatalf("expected extend to fail when the refresh fails")
	}
	m.mu.Lock()
	_, ok := m.trackers["u1"]
	m.mu.Unlock()
	if ok {
		t.Fatalf("expected no tracker after a failed refresh")
	}
}

func TestManagerTouchAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testProfile, NewInMemoryActivityStore(), nil, nil)
	defer m.StopAll()

	m.Touch(ctx, "u1")
	m.mu.Lock()
	tr := m.trackers["u1"]
	m.mu.Unlock()

	ck := newClock()
	tr.mu.Lock()
	tr.now = ck.now
	tr.lastActivity = ck.now().Add(-testProfile.Timeout)
	tr.mu.Unlock()
	tr.check(ctx)

	if m.Touch(ctx, "u1") {
		t.Fatalf("expected touch on an expired session to fail")
	}
	// a fresh login goes through End and starts over
	m.End("u1")
	if !m.Touch(ctx, "u1") {
		t.Fatalf("expected touch after End to start over")
	}
}

func TestProfileForAndOverride(t *testing.T) {
	if ProfileFor("development").Name != "development" {
		t.Fatalf("expected development profile")
	}
	if ProfileFor("production").Name != "production" {
		t.Fatalf("expected production profile")
	}
	if ProfileFor("").Name != "production" {
		t.Fatalf("expected unknown env to default to production")
	}
	p := Production.Override(time.Hour, 0, time.Second)
	if p.Timeout != time.Hour || p.WarningWindow != Production.WarningWindow || p.CheckInterval != time.Second {
		t.Fatalf("override applied wrong fields: %+v", p)
	}
}
