// Package pacing provides the keyed debounce and cooldown primitives
// shared by the reconciliation flows. Keys are opaque strings; the
// package knows nothing about what they identify.
package pacing

import (
	"sync"
	"time"
)

// Debouncer keeps at most one pending callback per key. Arming a key
// that already has a callback scheduled replaces it, so only the last
// caller within the delay window wins.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	stopped bool
}

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[string]*pendingCall)}
}

// Debounce schedules fn to run after delay, replacing any callback
// already pending for key. fn runs on the timer goroutine with no
// locks held, so it may re-arm the same key.
func (d *Debouncer) Debounce(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		cur, ok := d.pending[key]
		if !ok || cur != call || d.stopped {
			// Replaced, cancelled or flushed after this timer fired.
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = call
}

// Cancel drops the pending callback for key and reports whether one
// was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	call, ok := d.pending[key]
	if !ok {
		return false
	}
	call.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether key currently has a callback scheduled.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Flush runs every pending callback immediately, on the caller's
// goroutine, and clears the set. A callback that re-arms its key
// schedules a fresh timer as usual.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	calls := make([]func(), 0, len(d.pending))
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
		calls = append(calls, call.fn)
	}
	d.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// Stop cancels every pending callback and rejects all further work.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// Cooldowns tracks the last recorded success per key so flows can
// refuse to re-fire inside a configured window. Successes only;
// failed attempts leave the window open for retry.
type Cooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source used for stamping and window
// checks.
func (c *Cooldowns) WithClock(now func() time.Time) *Cooldowns {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Within reports whether key's last success is younger than window.
func (c *Cooldowns) Within(key string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[key]
	if !ok {
		return false
	}
	return c.now().Sub(last) < window
}

// Record stamps key with the current time.
func (c *Cooldowns) Record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = c.now()
}

// Clear forgets the stamp for key.
func (c *Cooldowns) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, key)
}

// Reset forgets every stamp.
func (c *Cooldowns) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
