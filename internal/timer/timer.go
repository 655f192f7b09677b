// Package timer implements the per-session Timer Registry (C4): named,
// one-shot deadlines the workflow engine arms and polls, built on
// time.AfterFunc rather than a per-tick goroutine.
package timer

import (
	"sync"
	"time"

	"github.com/openstack-archive/fenix/internal/logger"
)

// Registry tracks named timers for one session. It satisfies
// session.TimerRegistry.
type Registry struct {
	sessionID string

	mu     sync.Mutex
	timers map[string]*time.Timer // present => armed and not yet fired
}

// New constructs an empty Registry for sessionID.
func New(sessionID string) *Registry {
	return &Registry{
		sessionID: sessionID,
		timers:    make(map[string]*time.Timer),
	}
}

// Start arms a named timer. Per §4.4, starting a timer under a name that
// is already armed and unfired is an idempotent failure: it is logged and
// the existing deadline is left untouched, matching
// fenix/workflow/workflow.py's start_timer, which logs "timer exist!" and
// skips re-arming rather than resetting it. A delay of zero or less fires
// immediately.
func (r *Registry) Start(name string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.timers[name]; exists {
		logger.Timer().Error().Str("session_id", r.sessionID).Str("timer", name).Msg("timer exist")
		return
	}

	if delay <= 0 {
		logger.Timer().Debug().Str("session_id", r.sessionID).Str("timer", name).Msg("timer fired immediately")
		return
	}

	r.timers[name] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
		logger.Timer().Debug().Str("session_id", r.sessionID).Str("timer", name).Msg("timer fired")
	})
}

// Stop cancels a named timer without it firing, if it hasn't already.
func (r *Registry) Stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

// IsExpired reports whether the named timer has fired (or was never
// armed, or was already stopped): its name is no longer tracked as
// pending.
func (r *Registry) IsExpired(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, pending := r.timers[name]
	return !pending
}

// StopAll cancels every outstanding timer.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}
