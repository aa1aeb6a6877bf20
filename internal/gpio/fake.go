package gpio

import (
	"errors"
	"sync"
)

// FakeOpener is a test double that hands out FakePins.
type FakeOpener struct {
	mu sync.Mutex

	// Pins holds every pin opened so far, keyed by number.
	Pins map[int]*FakePin

	// Initial is the level newly opened pins start at.
	Initial Level

	// OpenError, if set, will be returned by Open.
	OpenError error
}

// NewFakeOpener creates a FakeOpener whose pins start at the given level.
func NewFakeOpener(initial Level) *FakeOpener {
	return &FakeOpener{Pins: map[int]*FakePin{}, Initial: initial}
}

// Open returns a new FakePin at the configured initial level.
func (o *FakeOpener) Open(pin int, pull Pull) (Pin, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.OpenError != nil {
		return nil, o.OpenError
	}
	p := NewFakePin(pin, o.Initial)
	p.pull = pull
	o.Pins[pin] = p
	return p, nil
}

// Pin returns the fake opened for pin n, or nil.
func (o *FakeOpener) Pin(n int) *FakePin {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Pins[n]
}

// FakePin is a scriptable Pin. Interrupts are delivered synchronously by Fire.
type FakePin struct {
	mu      sync.Mutex
	number  int
	level   Level
	pull    Pull
	edge    Edge
	handler Handler

	arms   int
	clears int
	closed bool

	// ReadError, if set, will be returned by Read.
	ReadError error

	// SetIRQError, if set, will be returned by SetIRQ.
	SetIRQError error
}

// NewFakePin creates a disarmed FakePin at the given level.
func NewFakePin(number int, level Level) *FakePin {
	return &FakePin{number: number, level: level}
}

// Number implements Pin.
func (p *FakePin) Number() int { return p.number }

// Read returns the scripted level.
func (p *FakePin) Read() (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadError != nil {
		return Low, p.ReadError
	}
	return p.level, nil
}

// SetIRQ records the mask and handler.
func (p *FakePin) SetIRQ(edge Edge, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetIRQError != nil {
		return p.SetIRQError
	}
	if p.closed {
		return errors.New("pin closed")
	}
	p.edge = edge
	p.handler = h
	p.arms++
	return nil
}

// ClearIRQ drops the handler.
func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge = EdgeNone
	p.handler = nil
	p.clears++
	return nil
}

// Close marks the pin as closed and disarms it.
func (p *FakePin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.handler = nil
	p.edge = EdgeNone
	return nil
}

// SetLevel changes the level without raising an interrupt.
func (p *FakePin) SetLevel(l Level) {
	p.mu.Lock()
	p.level = l
	p.mu.Unlock()
}

// Fire simulates an edge interrupt. It reports whether a handler ran.
// The handler is called without the pin lock held, so it may call Read.
func (p *FakePin) Fire() bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(p)
	return true
}

// Toggle sets the level and fires an interrupt if the edge matches the armed mask.
func (p *FakePin) Toggle(l Level) bool {
	p.mu.Lock()
	prev := p.level
	p.level = l
	edge := p.edge
	p.mu.Unlock()

	var e Edge
	switch {
	case prev == Low && l == High:
		e = EdgeRising
	case prev == High && l == Low:
		e = EdgeFalling
	default:
		return false
	}
	if edge&e == 0 {
		return false
	}
	return p.Fire()
}

// Pull returns the pull mode the pin was opened with.
func (p *FakePin) Pull() Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Edge returns the currently armed trigger mask.
func (p *FakePin) Edge() Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edge
}

// Armed reports whether a handler is installed.
func (p *FakePin) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// Arms returns how many times SetIRQ succeeded.
func (p *FakePin) Arms() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arms
}

// Clears returns how many times ClearIRQ was called.
func (p *FakePin) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Closed reports whether Close was called.
func (p *FakePin) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
