// Package clock provides a wrapping millisecond tick counter.
// Ticks behave like a free-running hardware counter: they wrap modulo 2^32,
// so elapsed time must always be computed with Diff, never by subtraction.
package clock

import (
	"sync"
	"time"
)

// Ticks is a millisecond counter value. It wraps after ~49.7 days.
type Ticks uint32

// Clock is a monotonic millisecond clock.
type Clock interface {
	// Now returns the current tick count.
	Now() Ticks

	// Diff returns the elapsed milliseconds from b to a, wraparound safe.
	Diff(a, b Ticks) int64
}

// Diff returns the signed distance from b to a, computed modulo 2^32.
// The result lies in [-2^31, 2^31), so a counter that wrapped between b and a
// still yields the small positive difference.
func Diff(a, b Ticks) int64 {
	return int64(int32(uint32(a) - uint32(b)))
}

// Elapsed returns the milliseconds from since to now, assuming now is not
// earlier than since. The result lies in [0, 2^32), so an interval longer
// than 2^31 ms is still reported as elapsed rather than negative.
func Elapsed(now, since Ticks) int64 {
	return int64(uint32(now) - uint32(since))
}

// Monotonic is a Clock backed by the Go runtime's monotonic clock.
type Monotonic struct {
	start  time.Time
	offset Ticks
}

// NewMonotonic returns a clock whose tick 0 is the moment of the call.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NewMonotonicAt returns a clock that reports offset at the moment of the call.
func NewMonotonicAt(offset Ticks) *Monotonic {
	return &Monotonic{start: time.Now(), offset: offset}
}

// Now returns milliseconds since creation plus the offset, truncated to 32 bits.
func (m *Monotonic) Now() Ticks {
	return m.offset + Ticks(uint32(time.Since(m.start).Milliseconds()))
}

// Diff implements Clock.
func (m *Monotonic) Diff(a, b Ticks) int64 {
	return Diff(a, b)
}

// Fake is a Clock whose time only moves when told to.
type Fake struct {
	mu  sync.Mutex
	now Ticks
}

// NewFake creates a Fake clock reading now.
func NewFake(now Ticks) *Fake {
	return &Fake{now: now}
}

// Now returns the current fake tick count.
func (f *Fake) Now() Ticks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Diff implements Clock.
func (f *Fake) Diff(a, b Ticks) int64 {
	return Diff(a, b)
}

// Set moves the clock to t.
func (f *Fake) Set(t Ticks) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by ms milliseconds, wrapping as needed.
func (f *Fake) Advance(ms uint32) {
	f.mu.Lock()
	f.now += Ticks(ms)
	f.mu.Unlock()
}
