// Package gpio provides digital input pins with edge interrupts, behind a
// hardware abstraction.
// The Chip implementation uses the Linux GPIO character device, Periph uses
// the periph.io host drivers, and the fake allows testing without hardware.
package gpio

import (
	"fmt"
	"strings"
)

// Level is the electrical level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Pull selects the internal bias resistor of an input.
type Pull int

const (
	PullNone Pull = iota // external resistor, internal bias disabled
	PullUp
	PullDown
)

// Valid reports whether p is one of the recognised pull modes.
func (p Pull) Valid() bool {
	return p == PullNone || p == PullUp || p == PullDown
}

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	}
	return fmt.Sprintf("Pull(%d)", int(p))
}

// ParsePull converts "none", "up" or "down" into a Pull.
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	}
	return 0, fmt.Errorf("unknown pull mode %q (want none, up or down)", s)
}

// Edge is a trigger mask for edge interrupts.
type Edge uint8

const (
	EdgeNone    Edge = 0
	EdgeRising  Edge = 1 << 0
	EdgeFalling Edge = 1 << 1
	EdgeBoth         = EdgeRising | EdgeFalling
)

// Handler is invoked on every triggering edge with the pin that fired.
// It runs on the backend's delivery goroutine and must return quickly.
type Handler func(Pin)

// Pin is a digital input line.
type Pin interface {
	// Number returns the pin identifier the line was opened with.
	Number() int

	// Read samples the current electrical level.
	Read() (Level, error)

	// SetIRQ arms edge delivery for the given mask, replacing any previous handler.
	SetIRQ(edge Edge, h Handler) error

	// ClearIRQ disarms edge delivery. Pull and direction are left unchanged.
	// Calling it on a disarmed pin is not an error. It may be called from the
	// pin's own handler.
	ClearIRQ() error

	// Close releases the line.
	Close() error
}

// Opener opens pins as inputs.
type Opener interface {
	Open(pin int, pull Pull) (Pin, error)
}

// Default pin (BCM numbering)
const DefaultPin = 17
