// Package timeutil provides a testable abstraction over time operations.
//
// The control loops pace themselves with tickers and measure pulse and
// debounce windows with Now/Since; routing all of that through a Clock lets
// tests drive timing-sensitive behaviour deterministically.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations used by the control loops.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTimer creates a Timer that sends the current time on its channel
	// after at least duration d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a Ticker whose channel delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single event timer.
type Timer interface {
	// C returns the channel on which the time is delivered.
	C() <-chan time.Time

	// Stop prevents the Timer from firing.
	Stop() bool
}

// Ticker holds a channel that delivers ticks of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep pauses the current goroutine for at least the duration d.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer creates a new Timer.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }
func (t *realTimer) Stop() bool          { return t.timer.Stop() }

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// FakeClock is a manually advanced Clock for tests. Timers and tickers
// created from it fire only when Advance or Set moves the clock past their
// deadlines; Sleep records the requested duration and returns immediately.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	waiters []*fakeWaiter
}

// fakeWaiter is a pending timer or ticker deadline. period == 0 marks a
// one-shot timer; expired one-shots are dropped from the waiter list.
type fakeWaiter struct {
	when   time.Time
	period time.Duration
	ch     chan time.Time
	done   bool
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the sleep duration but returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

// Sleeps returns all recorded sleep durations.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// After returns a channel that receives the time once d has been advanced past.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer creates a one-shot fake timer.
func (c *FakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{
		when: c.now.Add(d),
		ch:   make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, w)
	return &fakeTimer{clock: c, w: w}
}

// NewTicker creates a periodic fake ticker.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{
		when:   c.now.Add(d),
		period: d,
		ch:     make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, w)
	return &fakeTicker{clock: c, w: w}
}

// Set jumps the clock to t, firing everything due on the way.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceToLocked(t)
}

// Advance moves the clock forward by d. Deadlines that fall inside the window
// fire in chronological order, and periodic waiters re-arm as they fire, so a
// single large Advance delivers at most one tick per waiter per period that
// fits in its channel buffer.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceToLocked(c.now.Add(d))
}

func (c *FakeClock) advanceToLocked(target time.Time) {
	for {
		w := c.earliestDueLocked(target)
		if w == nil {
			break
		}
		c.now = w.when
		select {
		case w.ch <- w.when:
		default:
			// consumer has not drained the previous tick; drop, as time.Ticker does
		}
		if w.period > 0 {
			w.when = w.when.Add(w.period)
		} else {
			w.done = true
		}
	}
	c.now = target
	c.compactLocked()
}

func (c *FakeClock) earliestDueLocked(limit time.Time) *fakeWaiter {
	var due *fakeWaiter
	for _, w := range c.waiters {
		if w.done || w.when.After(limit) {
			continue
		}
		if due == nil || w.when.Before(due.when) {
			due = w
		}
	}
	return due
}

func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.done {
			live = append(live, w)
		}
	}
	c.waiters = live
}

// Waiters reports the number of armed timers and tickers. Tests use it to
// wait for a loop goroutine to register its ticker before advancing the clock.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.done {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock *FakeClock
	w     *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time { return t.w.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.w.done
	t.w.done = true
	return wasActive
}

type fakeTicker struct {
	clock *FakeClock
	w     *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.done = true
}
