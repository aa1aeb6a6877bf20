package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/button-sensor/internal/button"
)

var testConfig = Config{
	Backend:     "gpiocdev",
	Pin:         17,
	Pull:        "up",
	ActiveLow:   true,
	DebounceMs:  50,
	HeartbeatMs: 900000,
	Broker:      "tcp://localhost:1883",
	HTTPAddr:    ":80",
}

func fixedTracker(start, now time.Time) *Tracker {
	tr := NewTracker(start, testConfig)
	tr.now = func() time.Time { return now }
	return tr
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config != testConfig {
		t.Errorf("Config: got %+v, want %+v", snap.Config, testConfig)
	}
	if snap.State != "" {
		t.Errorf("State: got %q, want empty", snap.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.LastEvent != nil {
		t.Error("expected no last event initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(button.StatePressed, button.Counts{Presses: 3, Bounces: 12}, 1)

	snap := tr.Snapshot()
	if snap.State != button.StatePressed {
		t.Errorf("State: got %q, want PRESSED", snap.State)
	}
	if snap.Counts.Presses != 3 || snap.Counts.Bounces != 12 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.Dropped != 1 {
		t.Errorf("Dropped: got %d, want 1", snap.Dropped)
	}
}

func TestRecordEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.RecordEvent(button.NewEvent(button.StateReleased, at))

	snap := tr.Snapshot()
	if snap.LastEvent == nil {
		t.Fatal("expected LastEvent")
	}
	if snap.LastEvent.Type != button.EventRelease {
		t.Errorf("LastEvent.Type: got %s, want RELEASE", snap.LastEvent.Type)
	}
	if snap.State != button.StateReleased {
		t.Errorf("State: got %s, want RELEASED", snap.State)
	}

	// Mutating the snapshot must not leak into the tracker.
	snap.LastEvent.Type = button.EventPress
	if tr.Snapshot().LastEvent.Type != button.EventRelease {
		t.Error("snapshot LastEvent aliases tracker state")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := fixedTracker(start, start.Add(90*time.Minute))

	if got := tr.Snapshot().Uptime(); got != 90*time.Minute {
		t.Errorf("Uptime: got %v, want 1h30m", got)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := fixedTracker(start, start.Add(65*time.Second+500*time.Millisecond))
	tr.Update(button.StatePressed, button.Counts{Presses: 2, Releases: 1, Bounces: 7, Glitches: 1}, 0)
	tr.RecordEvent(button.NewEvent(button.StatePressed, start.Add(time.Minute)))
	tr.SetMQTTConnected(true)

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := sj.Status
	if s.State != "PRESSED" {
		t.Errorf("State: got %q, want PRESSED", s.State)
	}
	if s.UptimeSeconds != 65 {
		t.Errorf("UptimeSeconds: got %d, want 65", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("StartTime: got %q", s.StartTime)
	}
	if s.LastEvent == nil || s.LastEvent.Event != "PRESS" || s.LastEvent.Timestamp != "2026-01-01T00:01:00Z" {
		t.Errorf("LastEvent: got %+v", s.LastEvent)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != testConfig.Broker {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Counts.Presses != 2 || s.Counts.Releases != 1 || s.Counts.Bounces != 7 || s.Counts.Glitches != 1 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Config.Pin != 17 || s.Config.Pull != "up" || !s.Config.ActiveLow || s.Config.DebounceMs != 50 {
		t.Errorf("Config: got %+v", s.Config)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := NewTracker(time.Now(), Config{}).Snapshot()

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", sj.Status.State)
	}
	if sj.Status.LastEvent != nil {
		t.Error("last_event should be omitted before the first transition")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := fixedTracker(start, start)
	tr.Update(button.StateReleased, button.Counts{}, 0)

	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")
	if strings.Contains(string(data), "\n") {
		t.Error("MQTT payload should be compact JSON")
	}

	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.State != "RELEASED" {
		t.Errorf("State: got %q, want RELEASED", sj.Status.State)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(NewTracker(time.Now(), Config{}).Snapshot(), "STARTUP", "")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := parsed["status"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
	if parsed["status"]["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", parsed["status"]["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update(button.StatePressed, button.Counts{Presses: i + j}, j)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordEvent(button.NewEvent(button.StateReleased, time.Now()))
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}
