package timer

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu        sync.Mutex
	now       time.Duration
	timers    []*manualTimer
	scheduled []time.Duration
}

type manualTimer struct {
	m      *Manual
	due    time.Duration
	period time.Duration
	delay  time.Duration
	fn     func()
	active bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{m: m, due: m.now + d, delay: d, fn: f, active: true}
	m.timers = append(m.timers, t)
	m.scheduled = append(m.scheduled, d)
	return t
}

func (m *Manual) Every(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{m: m, due: m.now + d, period: d, delay: d, fn: f, active: true}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

// Advance moves time forward by d, firing every timer that falls due in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		m.now = next.due
		if next.period > 0 {
			next.due += next.period
		} else {
			next.active = false
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.compactLocked()
	m.mu.Unlock()
}

func (m *Manual) nextDueLocked(limit time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if !t.active || t.due > limit {
			continue
		}
		if next == nil || t.due < next.due {
			next = t
		}
	}
	return next
}

func (m *Manual) compactLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.active {
			live = append(live, t)
		}
	}
	m.timers = live
}

// Pending returns the original delays of the one-shot timers still armed.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.timers {
		if t.active && t.period == 0 {
			out = append(out, t.delay)
		}
	}
	return out
}

// ActivePeriodic counts armed periodic timers.
func (m *Manual) ActivePeriodic() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if t.active && t.period > 0 {
			n++
		}
	}
	return n
}

// Scheduled returns every one-shot delay requested so far, in order.
func (m *Manual) Scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.scheduled...)
}
