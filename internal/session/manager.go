package session

import (
	"context"
	"sync"
	"time"
)

// Manager owns one Tracker per session key so the server can enforce idle
// expiry across requests. Trackers are created lazily on first touch and
// discarded on expiry or logout.
type Manager struct {
	mu        sync.Mutex
	profile   Profile
	store     ActivityStore
	trackers  map[string]*Tracker
	onWarning func(key string, remaining time.Duration)
	onExpired func(key string)
}

func NewManager(profile Profile, st ActivityStore, onWarning func(string, time.Duration), onExpired func(string)) *Manager {
	return &Manager{
		profile:   profile,
		store:     st,
		trackers:  make(map[string]*Tracker),
		onWarning: onWarning,
		onExpired: onExpired,
	}
}

// Touch records activity for a session, creating its tracker on first use.
// It returns false when the session has idled out; the caller should treat
// the session as ended.
func (m *Manager) Touch(ctx context.Context, key string) bool {
	m.mu.Lock()
	t, ok := m.trackers[key]
	if !ok {
		t = New(m.profile, m.store, key,
			func(remaining time.Duration) {
				if m.onWarning != nil {
					m.onWarning(key, remaining)
				}
			},
			func() {
				// The tracker stays in the map so later touches keep
				// reporting the session as ended until a fresh login.
				if m.onExpired != nil {
					m.onExpired(key)
				}
			})
		m.trackers[key] = t
		m.mu.Unlock()
		t.Start(ctx)
		return t.State() != StateExpired
	}
	m.mu.Unlock()
	if t.State() == StateExpired {
		return false
	}
	t.RecordActivity(ctx)
	return true
}

// Extend refreshes a session through the supplied server round trip. With
// no tracker yet (first call after a restart) the refresh still has to
// succeed before a fresh tracker is started.
func (m *Manager) Extend(ctx context.Context, key string, refresh func(context.Context) error) bool {
	m.mu.Lock()
	t, ok := m.trackers[key]
	m.mu.Unlock()
	if !ok {
		if refresh != nil {
			if err := refresh(ctx); err != nil {
				return false
			}
		}
		return m.Touch(ctx, key)
	}
	return t.Extend(ctx, refresh)
}

// End stops and removes a session's tracker (logout).
func (m *Manager) End(key string) {
	m.mu.Lock()
	t, ok := m.trackers[key]
	delete(m.trackers, key)
	m.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// StopAll tears down every tracker (shutdown).
func (m *Manager) StopAll() {
	m.mu.Lock()
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	m.trackers = make(map[string]*Tracker)
	m.mu.Unlock()
	for _, t := range trackers {
		t.Stop()
	}
}
