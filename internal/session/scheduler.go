package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateLoggedOut is the terminal state; no timers are armed.
	StateLoggedOut State = iota
	// StateActive is a live session with the idle warning armed.
	StateActive
	// StateWarning is the pre-expiry countdown; activity no longer resets it.
	StateWarning
	// StateExpired is entered when any expiry policy fires.
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
		return "logged-out"
	}
}

// ExpireReason records which policy ended the session.
type ExpireReason string

const (
	ExpireIdle          ExpireReason = "idle"
	ExpireCap           ExpireReason = "session-cap"
	ExpireRefreshFailed ExpireReason = "refresh-failed"
)

// SchedulerHooks are the scheduler's outbound notifications. They are invoked
// outside the scheduler lock, from timer goroutines, and must be safe to call
// from there.
type SchedulerHooks struct {
	// OnWarning fires when the idle warning window opens.
	OnWarning func(remaining time.Duration)

	// OnExpire fires once when the session expires, with the policy that
	// ended it.
	OnExpire func(reason ExpireReason)

	// OnProactiveRefresh fires when the access token is close enough to
	// expiry that it should be renewed.
	OnProactiveRefresh func()
}

// Scheduler owns the three timer categories of a session: the idle timer
// (warning then expiry, rescheduled on activity), the absolute cap timer
// (armed once at start, never rescheduled), and the proactive refresh timer
// (rescheduled after every successful renewal).
//
// Every armed timer belongs to a generation. Cancellation bumps the
// generation, so a timer that was already firing when it was cancelled
// observes the stale generation and does nothing: no timer can fire after
// cancellation and cause a spurious transition.
type Scheduler struct {
	mu    sync.Mutex
	cfg   Config
	hooks SchedulerHooks

	state        State
	gen          uint64
	sessionStart time.Time

	idleTimer    *time.Timer
	capTimer     *time.Timer
	refreshTimer *time.Timer
}

// NewScheduler creates a scheduler in the LoggedOut state.
func NewScheduler(cfg Config, hooks SchedulerHooks) *Scheduler {
	return &Scheduler{cfg: cfg, hooks: hooks}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CapElapsed reports whether the absolute session cap has passed.
func (s *Scheduler) CapElapsed(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateLoggedOut && !now.Before(s.sessionStart.Add(s.cfg.AbsoluteCap))
}

// Start arms all three timer categories for a session. lastActivity seeds the
// idle timer (it differs from now when restoring a persisted session), and
// accessIssued/accessTTL seed the proactive refresh timer.
func (s *Scheduler) Start(sessionStart, lastActivity, accessIssued time.Time, accessTTL time.Duration) {
	now := time.Now()

	s.mu.Lock()
	s.cancelLocked()
	s.state = StateActive
	s.sessionStart = sessionStart
	gen := s.gen

	s.idleTimer = time.AfterFunc(until(now, lastActivity.Add(s.cfg.IdleTimeout-s.cfg.WarningWindow)), func() {
		s.fireWarning(gen)
	})
	s.capTimer = time.AfterFunc(until(now, sessionStart.Add(s.cfg.AbsoluteCap)), func() {
		s.fireCap(gen)
	})
	s.refreshTimer = time.AfterFunc(until(now, accessIssued.Add(accessTTL-s.cfg.RefreshBuffer)), func() {
		s.fireRefresh(gen)
	})
	s.mu.Unlock()

	log.Debug().
		Time("session_start", sessionStart).
		Dur("idle_timeout", s.cfg.IdleTimeout).
		Dur("absolute_cap", s.cfg.AbsoluteCap).
		Msg("session timers armed")
}

// ResetIdle pushes the idle warning out after user activity. It is a no-op
// outside the Active state: activity during a warning must not silently
// dismiss it.
func (s *Scheduler) ResetIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}
	s.idleTimer.Stop()
	gen := s.gen
	s.idleTimer = time.AfterFunc(until(now, now.Add(s.cfg.IdleTimeout-s.cfg.WarningWindow)), func() {
		s.fireWarning(gen)
	})
}

// RescheduleRefresh re-arms the proactive refresh timer after a successful
// renewal. The idle and cap timers are not touched.
func (s *Scheduler) RescheduleRefresh(accessIssued time.Time, accessTTL time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateWarning {
		return
	}
	s.refreshTimer.Stop()
	gen := s.gen
	s.refreshTimer = time.AfterFunc(until(time.Now(), accessIssued.Add(accessTTL-s.cfg.RefreshBuffer)), func() {
		s.fireRefresh(gen)
	})
}

// ResumeActive returns from Warning to Active after a successful
// stay-logged-in renewal and restarts the idle timer.
func (s *Scheduler) ResumeActive(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWarning {
		return
	}
	s.state = StateActive
	s.idleTimer.Stop()
	gen := s.gen
	s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout-s.cfg.WarningWindow, func() {
		s.fireWarning(gen)
	})
}

// ForceExpire expires the session immediately, e.g. when a renewal is
// rejected by the server. No-op unless the session is live.
func (s *Scheduler) ForceExpire(reason ExpireReason) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateWarning {
		s.mu.Unlock()
		return
	}
	s.expireLocked(reason)
}

// Stop cancels every timer and enters the LoggedOut state. After Stop
// returns, no hook will fire for the stopped session.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.state = StateLoggedOut
}

// cancelLocked bumps the generation and stops all timers. Callers hold s.mu.
func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.capTimer != nil {
		s.capTimer.Stop()
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
}

// fireWarning transitions Active -> Warning and starts the countdown.
func (s *Scheduler) fireWarning(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateActive {
		s.mu.Unlock()
		return
	}

	// The cap can elapse in the same instant; it wins.
	if !time.Now().Before(s.sessionStart.Add(s.cfg.AbsoluteCap)) {
		s.expireLocked(ExpireCap)
		return
	}

	s.state = StateWarning
	window := s.cfg.WarningWindow
	s.idleTimer = time.AfterFunc(window, func() {
		s.fireIdleExpiry(gen)
	})
	hook := s.hooks.OnWarning
	s.mu.Unlock()

	log.Debug().Dur("window", window).Msg("session idle warning")
	if hook != nil {
		hook(window)
	}
}

// fireIdleExpiry ends the warning countdown.
func (s *Scheduler) fireIdleExpiry(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateWarning {
		s.mu.Unlock()
		return
	}
	s.expireLocked(ExpireIdle)
}

// fireCap ends the session regardless of activity.
func (s *Scheduler) fireCap(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || (s.state != StateActive && s.state != StateWarning) {
		s.mu.Unlock()
		return
	}
	s.expireLocked(ExpireCap)
}

// fireRefresh triggers a proactive renewal, unless the cap has already
// elapsed, in which case it short-circuits straight to Expired.
func (s *Scheduler) fireRefresh(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || (s.state != StateActive && s.state != StateWarning) {
		s.mu.Unlock()
		return
	}

	if !time.Now().Before(s.sessionStart.Add(s.cfg.AbsoluteCap)) {
		s.expireLocked(ExpireCap)
		return
	}

	hook := s.hooks.OnProactiveRefresh
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// expireLocked cancels all timers and enters Expired. Called with s.mu held;
// unlocks before invoking the hook.
func (s *Scheduler) expireLocked(reason ExpireReason) {
	s.cancelLocked()
	s.state = StateExpired
	hook := s.hooks.OnExpire
	s.mu.Unlock()

	log.Debug().Str("reason", string(reason)).Msg("session expired")
	if hook != nil {
		hook(reason)
	}
}

// until clamps a deadline to a non-negative timer duration.
func until(now, deadline time.Time) time.Duration {
	d := deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
