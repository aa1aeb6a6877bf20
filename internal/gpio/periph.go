package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWaitTimeout bounds each WaitForEdge call of the edge goroutine.
const edgeWaitTimeout = 100 * time.Millisecond

// Periph opens pins through the periph.io host drivers.
type Periph struct{}

// NewPeriph initialises the periph.io host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &Periph{}, nil
}

// Open looks the pin up by its GPIO number.
func (h *Periph) Open(pin int, pull Pull) (Pin, error) {
	return h.open(strconv.Itoa(pin), pull)
}

// OpenName looks the pin up by name or alias, e.g. "GPIO17".
func (h *Periph) OpenName(name string, pull Pull) (Pin, error) {
	return h.open(name, pull)
}

func (h *Periph) open(name string, pull Pull) (Pin, error) {
	pp, err := periphPull(pull)
	if err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no such pin %q", name)
	}
	if err := p.In(pp, pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure pin %s: %w", name, err)
	}
	return &periphPin{pin: p, pull: pp}, nil
}

func periphPull(pull Pull) (pgpio.Pull, error) {
	switch pull {
	case PullUp:
		return pgpio.PullUp, nil
	case PullDown:
		return pgpio.PullDown, nil
	case PullNone:
		return pgpio.Float, nil
	}
	return pgpio.PullNoChange, fmt.Errorf("unsupported pull %v", pull)
}

func periphEdge(edge Edge) pgpio.Edge {
	switch edge {
	case EdgeRising:
		return pgpio.RisingEdge
	case EdgeFalling:
		return pgpio.FallingEdge
	case EdgeBoth:
		return pgpio.BothEdges
	}
	return pgpio.NoEdge
}

type periphPin struct {
	pin  pgpio.PinIO
	pull pgpio.Pull

	mu   sync.Mutex
	stop chan struct{} // closed to end the current watcher; nil when disarmed
}

func (p *periphPin) Number() int { return p.pin.Number() }

func (p *periphPin) Read() (Level, error) {
	return Level(p.pin.Read() == pgpio.High), nil
}

func (p *periphPin) SetIRQ(edge Edge, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if h == nil || edge == EdgeNone {
		return p.disarmLocked()
	}
	if err := p.pin.In(p.pull, periphEdge(edge)); err != nil {
		return fmt.Errorf("arm pin %s: %w", p.pin, err)
	}
	p.stop = make(chan struct{})
	go p.watch(h, p.stop)
	return nil
}

// watch forwards edges until stop is closed. A stopped watcher may linger
// for up to edgeWaitTimeout; an edge already being delivered still completes.
func (p *periphPin) watch(h Handler, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if p.pin.WaitForEdge(edgeWaitTimeout) {
			select {
			case <-stop:
				return
			default:
			}
			h(p)
		}
	}
}

func (p *periphPin) ClearIRQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return nil
	}
	p.stopLocked()
	return p.disarmLocked()
}

// stopLocked signals the watcher without joining it, so the handler itself
// may disarm or close the pin.
func (p *periphPin) stopLocked() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

func (p *periphPin) disarmLocked() error {
	if err := p.pin.In(p.pull, pgpio.NoEdge); err != nil {
		return fmt.Errorf("disarm pin %s: %w", p.pin, err)
	}
	return nil
}

func (p *periphPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if err := p.pin.Halt(); err != nil {
		return fmt.Errorf("halt pin %s: %w", p.pin, err)
	}
	return nil
}
