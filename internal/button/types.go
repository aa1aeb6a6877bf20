// Package button debounces a single mechanical push button wired to a GPIO
// input and reports confirmed press/release transitions.
// Edge interrupts from the gpio package drive the filter; time comes from an
// injected clock.Clock, so the filter is fully deterministic under test.
package button

import "time"

// State represents the debounced logical state of the button.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// EventType represents an accepted transition.
type EventType string

const (
	EventPress   EventType = "PRESS"
	EventRelease EventType = "RELEASE"
)

// Event represents an accepted transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
}

// NewEvent builds the event for a transition into s.
func NewEvent(s State, at time.Time) Event {
	t := EventRelease
	if s == StatePressed {
		t = EventPress
	}
	return Event{Timestamp: at, Type: t, State: s}
}

// Counts tracks what the filter did with the edges it saw.
type Counts struct {
	Presses    int // accepted transitions into PRESSED
	Releases   int // accepted transitions into RELEASED
	Bounces    int // edges rejected inside the debounce interval
	Glitches   int // edges whose re-sampled level matched the current state
	ReadErrors int // edges dropped because the pin could not be read
}
