//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the gpiochip carrying the Raspberry Pi header pins.
const DefaultChip = "gpiochip0"

// Chip opens pins on a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// NewChip opens the named gpiochip, e.g. "gpiochip0".
func NewChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Open requests the line as an input with the given bias.
// Edge detection stays off until SetIRQ.
func (c *Chip) Open(pin int, pull Pull) (Pin, error) {
	bias, err := biasOption(pull)
	if err != nil {
		return nil, err
	}

	p := &chipPin{number: pin}
	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		bias,
		gpiocdev.WithEventHandler(p.dispatch),
	)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	p.line = line
	return p, nil
}

// Close releases the chip. Lines opened from it must be closed separately.
func (c *Chip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

func biasOption(pull Pull) (gpiocdev.LineReqOption, error) {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp, nil
	case PullDown:
		return gpiocdev.WithPullDown, nil
	case PullNone:
		return gpiocdev.WithBiasDisabled, nil
	}
	return nil, fmt.Errorf("unsupported pull %v", pull)
}

func edgeOption(edge Edge) gpiocdev.LineConfigOption {
	switch edge {
	case EdgeRising:
		return gpiocdev.WithRisingEdge
	case EdgeFalling:
		return gpiocdev.WithFallingEdge
	case EdgeBoth:
		return gpiocdev.WithBothEdges
	}
	return gpiocdev.WithoutEdges
}

type chipPin struct {
	number  int
	line    *gpiocdev.Line
	handler atomic.Pointer[Handler]

	mu     sync.Mutex // serialises reconfiguration
	closed bool
}

// dispatch runs on the gpiocdev event goroutine.
func (p *chipPin) dispatch(gpiocdev.LineEvent) {
	if h := p.handler.Load(); h != nil {
		(*h)(p)
	}
}

func (p *chipPin) Number() int { return p.number }

func (p *chipPin) Read() (Level, error) {
	v, err := p.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", p.number, err)
	}
	return Level(v != 0), nil
}

func (p *chipPin) SetIRQ(edge Edge, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pin %d closed", p.number)
	}
	if h == nil || edge == EdgeNone {
		return p.clearLocked()
	}
	p.handler.Store(&h)
	if err := p.line.Reconfigure(edgeOption(edge)); err != nil {
		p.handler.Store(nil)
		return fmt.Errorf("arm pin %d: %w", p.number, err)
	}
	return nil
}

func (p *chipPin) ClearIRQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.clearLocked()
}

func (p *chipPin) clearLocked() error {
	if p.handler.Swap(nil) == nil {
		return nil
	}
	if err := p.line.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return fmt.Errorf("disarm pin %d: %w", p.number, err)
	}
	return nil
}

func (p *chipPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.handler.Store(nil)
	if err := p.line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", p.number, err)
	}
	return nil
}
