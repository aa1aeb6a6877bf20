// Package status provides a thread-safe status tracker for the button-sensor daemon.
// It is read by HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/button"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Pin         int
	Pull        string
	ActiveLow   bool
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	State         button.State
	Counts        button.Counts
	Dropped       int // events lost because the event queue was full
	LastEvent     *button.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the button state, filter counters and queue drops.
func (t *Tracker) Update(state button.State, counts button.Counts, dropped int) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Counts = counts
	t.snap.Dropped = dropped
	t.mu.Unlock()
}

// RecordEvent remembers the most recent published transition.
func (t *Tracker) RecordEvent(e button.Event) {
	t.mu.Lock()
	t.snap.LastEvent = &e
	t.snap.State = e.State
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastEvent != nil {
		e := *s.LastEvent
		s.LastEvent = &e
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
