package button

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sweeney/button-sensor/internal/clock"
	"github.com/sweeney/button-sensor/internal/gpio"
)

// DefaultDebounceMs is the debounce interval used when none is configured.
const DefaultDebounceMs = 50

// ErrInvalidConfiguration is returned by New for a bad Config.
var ErrInvalidConfiguration = errors.New("invalid button configuration")

// Config describes one physical button.
type Config struct {
	Pin        int
	Pull       gpio.Pull
	ActiveLow  bool // true if pressed == electrical low
	DebounceMs int  // minimum time between two accepted transitions

	// OnPress and OnRelease are optional. They run synchronously on the
	// interrupt delivery goroutine and must not block.
	OnPress   func()
	OnRelease func()
}

// Validate checks the parts of c that do not need hardware.
func (c Config) Validate() error {
	if c.DebounceMs < 0 {
		return fmt.Errorf("%w: debounce_ms must be a non-negative integer, got %d", ErrInvalidConfiguration, c.DebounceMs)
	}
	if !c.Pull.Valid() {
		return fmt.Errorf("%w: pull must be none, up or down, got %v", ErrInvalidConfiguration, c.Pull)
	}
	return nil
}

// StateFor maps a raw electrical level to a logical state.
func StateFor(level gpio.Level, activeLow bool) State {
	if pressedFor(level, activeLow) {
		return StatePressed
	}
	return StateReleased
}

func pressedFor(level gpio.Level, activeLow bool) bool {
	return (level == gpio.Low) == activeLow
}

// Button is a debounced push button.
//
// The edge handler is serialised by mu; everything queries read is stored
// atomically so queries never block and callbacks may call them.
type Button struct {
	pin       gpio.Pin
	clock     clock.Clock
	activeLow bool
	debounce  int64
	onPress   func()
	onRelease func()

	mu      sync.Mutex
	changed bool // at least one transition accepted; guarded by mu

	pressed    atomic.Bool
	lastChange atomic.Uint32
	armed      atomic.Bool
	closed     atomic.Bool

	presses    atomic.Int64
	releases   atomic.Int64
	bounces    atomic.Int64
	glitches   atomic.Int64
	readErrors atomic.Int64
}

// New opens the pin, derives the initial state from one raw read, and arms
// interrupts on both edges. The resting state never produces a callback.
func New(opener gpio.Opener, clk clock.Clock, cfg Config) (*Button, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pin, err := opener.Open(cfg.Pin, cfg.Pull)
	if err != nil {
		return nil, fmt.Errorf("open pin %d: %w", cfg.Pin, err)
	}

	b := &Button{
		pin:       pin,
		clock:     clk,
		activeLow: cfg.ActiveLow,
		debounce:  int64(cfg.DebounceMs),
		onPress:   cfg.OnPress,
		onRelease: cfg.OnRelease,
	}

	level, err := pin.Read()
	if err != nil {
		pin.Close()
		return nil, fmt.Errorf("read initial level of pin %d: %w", cfg.Pin, err)
	}
	b.pressed.Store(pressedFor(level, b.activeLow))

	if err := pin.SetIRQ(gpio.EdgeBoth, b.handleEdge); err != nil {
		pin.Close()
		return nil, fmt.Errorf("arm pin %d: %w", cfg.Pin, err)
	}
	b.armed.Store(true)

	return b, nil
}

// handleEdge is the debounce filter. It runs for every raw edge.
func (b *Button) handleEdge(gpio.Pin) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.changed && clock.Elapsed(now, clock.Ticks(b.lastChange.Load())) < b.debounce {
		b.bounces.Add(1)
		return
	}

	// Sample after the window check: the settled level wins over the level
	// that raised the interrupt.
	level, err := b.pin.Read()
	if err != nil {
		b.readErrors.Add(1)
		return
	}

	pressed := pressedFor(level, b.activeLow)
	if pressed == b.pressed.Load() {
		b.glitches.Add(1)
		return
	}

	b.lastChange.Store(uint32(now))
	b.changed = true
	b.pressed.Store(pressed)

	if pressed {
		b.presses.Add(1)
		if b.onPress != nil {
			b.onPress()
		}
		return
	}
	b.releases.Add(1)
	if b.onRelease != nil {
		b.onRelease()
	}
}

// Pressed reports whether the debounced state is PRESSED.
func (b *Button) Pressed() bool {
	return b.pressed.Load()
}

// Released reports whether the debounced state is RELEASED.
func (b *Button) Released() bool {
	return !b.pressed.Load()
}

// State returns the debounced state.
func (b *Button) State() State {
	if b.pressed.Load() {
		return StatePressed
	}
	return StateReleased
}

// LastChange returns the tick of the last accepted transition, or 0 if none.
func (b *Button) LastChange() clock.Ticks {
	return clock.Ticks(b.lastChange.Load())
}

// Counts returns a snapshot of the filter counters.
func (b *Button) Counts() Counts {
	return Counts{
		Presses:    int(b.presses.Load()),
		Releases:   int(b.releases.Load()),
		Bounces:    int(b.bounces.Load()),
		Glitches:   int(b.glitches.Load()),
		ReadErrors: int(b.readErrors.Load()),
	}
}

// Pin returns the number of the pin the button is wired to.
func (b *Button) Pin() int {
	return b.pin.Number()
}

// Deinit disarms interrupt delivery. The state freezes at its last value.
// Calling it again is a no-op. An edge already being handled may still
// complete after Deinit returns.
func (b *Button) Deinit() error {
	if !b.armed.Swap(false) {
		return nil
	}
	if err := b.pin.ClearIRQ(); err != nil {
		return fmt.Errorf("disarm pin %d: %w", b.pin.Number(), err)
	}
	return nil
}

// Close disarms the button and releases the pin.
func (b *Button) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	var errs []error
	if err := b.Deinit(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", b.pin.Number(), err))
	}
	return errors.Join(errs...)
}
