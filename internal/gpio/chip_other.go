//go:build !linux

package gpio

import "errors"

// DefaultChip is the gpiochip carrying the Raspberry Pi header pins.
const DefaultChip = "gpiochip0"

// Chip is not available on non-Linux platforms.
type Chip struct{}

// NewChip returns an error on non-Linux platforms.
func NewChip(name string) (*Chip, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// Open is not implemented on non-Linux platforms.
func (c *Chip) Open(pin int, pull Pull) (Pin, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
