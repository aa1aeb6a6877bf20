// Command button-sensor debounces a push button on a GPIO input and publishes
// its press/release transitions to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/button-sensor/internal/button"
	"github.com/sweeney/button-sensor/internal/clock"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/web"
)

// options holds the parsed command line.
type options struct {
	backend    string
	chip       string
	pin        int
	pinName    string
	pull       gpio.Pull
	activeLow  bool
	debounceMs int
	broker     string
	heartbeat  time.Duration
	httpAddr   string
	printState bool
	queue      int
}

func main() {
	backend := flag.String("backend", "gpiocdev", "GPIO backend: gpiocdev or periph")
	chip := flag.String("chip", gpio.DefaultChip, "GPIO chip device (gpiocdev backend)")
	pin := flag.Int("pin", gpio.DefaultPin, "BCM pin number of the button")
	pinName := flag.String("pin-name", "", "pin name or alias, e.g. GPIO17 (periph backend, overrides --pin)")
	pull := flag.String("pull", "up", "internal pull resistor: up, down or none")
	activeLow := flag.Bool("active-low", true, "pressed pulls the line low")
	debounceMs := flag.Int("debounce-ms", button.DefaultDebounceMs, "minimum milliseconds between accepted transitions")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	printOnly := flag.Bool("print-state", false, "Print current state and exit")
	queue := flag.Int("queue", 64, "events buffered between the edge handler and the publisher")

	flag.Parse()

	pullMode, err := gpio.ParsePull(*pull)
	if err != nil {
		log.Fatalf("fatal: %v: %v", button.ErrInvalidConfiguration, err)
	}

	opts := options{
		backend:    *backend,
		chip:       *chip,
		pin:        *pin,
		pinName:    *pinName,
		pull:       pullMode,
		activeLow:  *activeLow,
		debounceMs: *debounceMs,
		broker:     *broker,
		heartbeat:  *heartbeat,
		httpAddr:   *httpAddr,
		printState: *printOnly,
		queue:      *queue,
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options) error {
	opener, closeBackend, err := openBackend(opts)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeBackend()

	// Print state mode
	if opts.printState {
		return printState(os.Stdout, opener, opts)
	}

	events := newEventQueue(opts.queue, time.Now)
	btn, err := button.New(opener, clock.NewMonotonic(), button.Config{
		Pin:        opts.pin,
		Pull:       opts.pull,
		ActiveLow:  opts.activeLow,
		DebounceMs: opts.debounceMs,
		OnPress:    func() { events.push(button.StatePressed) },
		OnRelease:  func() { events.push(button.StateReleased) },
	})
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer func() {
		if err := btn.Close(); err != nil {
			log.Printf("close button: %v", err)
		}
	}()

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(opts.broker)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(opts, btn.Pin()))
	tracker.Update(btn.State(), btn.Counts(), 0)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	log.Printf("started: backend=%s pin=%d pull=%s active_low=%v debounce=%dms state=%s broker=%s heartbeat=%v",
		opts.backend, btn.Pin(), opts.pull, opts.activeLow, opts.debounceMs, btn.State(), opts.broker, opts.heartbeat)

	var heartbeat <-chan time.Time
	if opts.heartbeat > 0 {
		ticker := time.NewTicker(opts.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(events, btn, publisher, publisher, tracker, time.Now, heartbeat, sigCh)
}

// statusConfig describes the running daemon. pin is the line actually opened,
// which differs from opts.pin when the pin was chosen by name.
func statusConfig(opts options, pin int) status.Config {
	return status.Config{
		Backend:     opts.backend,
		Pin:         pin,
		Pull:        opts.pull.String(),
		ActiveLow:   opts.activeLow,
		DebounceMs:  int64(opts.debounceMs),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		HTTPAddr:    opts.httpAddr,
	}
}

// openBackend returns the pin opener for the selected backend and a func that
// releases it.
func openBackend(opts options) (gpio.Opener, func() error, error) {
	switch opts.backend {
	case "gpiocdev":
		chip, err := gpio.NewChip(opts.chip)
		if err != nil {
			return nil, nil, err
		}
		return chip, chip.Close, nil
	case "periph":
		host, err := gpio.NewPeriph()
		if err != nil {
			return nil, nil, err
		}
		noop := func() error { return nil }
		if opts.pinName != "" {
			return namedOpener{host: host, name: opts.pinName}, noop, nil
		}
		return host, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q (want gpiocdev or periph)", opts.backend)
}

// namedOpener opens a periph pin by name, ignoring the numeric pin.
type namedOpener struct {
	host *gpio.Periph
	name string
}

func (o namedOpener) Open(_ int, pull gpio.Pull) (gpio.Pin, error) {
	return o.host.OpenName(o.name, pull)
}

func printState(w io.Writer, opener gpio.Opener, opts options) error {
	pin, err := opener.Open(opts.pin, opts.pull)
	if err != nil {
		return fmt.Errorf("open pin %d: %w", opts.pin, err)
	}
	defer pin.Close()

	level, err := pin.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Fprintf(w, "Button: %s\n", button.StateFor(level, opts.activeLow))
	return nil
}

// eventQueue hands transitions from the edge handler to runLoop.
// push never blocks; events that do not fit are counted and dropped.
type eventQueue struct {
	ch      chan button.Event
	now     func() time.Time
	dropped atomic.Int64
}

func newEventQueue(size int, now func() time.Time) *eventQueue {
	if size < 1 {
		size = 1
	}
	return &eventQueue{ch: make(chan button.Event, size), now: now}
}

func (q *eventQueue) push(s button.State) {
	select {
	case q.ch <- button.NewEvent(s, q.now()):
	default:
		q.dropped.Add(1)
	}
}

func (q *eventQueue) Dropped() int {
	return int(q.dropped.Load())
}

// stateSource is the part of button.Button the loop reads.
type stateSource interface {
	State() button.State
	Counts() button.Counts
}

func runLoop(events *eventQueue, btn stateSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	reportedDrops := 0

	refresh := func() {
		tracker.Update(btn.State(), btn.Counts(), events.Dropped())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	publish := func(event button.Event) {
		log.Printf("event: %s (state=%s)", event.Type, event.State)
		if err := publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
		tracker.RecordEvent(event)
		if d := events.Dropped(); d > reportedDrops {
			log.Printf("event queue full: %d events dropped", d-reportedDrops)
			reportedDrops = d
		}
		refresh()
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)

			// Flush transitions accepted before the signal.
			for pending := true; pending; {
				select {
				case event := <-events.ch:
					publish(event)
				default:
					pending = false
				}
			}

			reason := signalName(s)
			refresh()
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case event := <-events.ch:
			publish(event)

		case <-heartbeat:
			refresh()
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v state=%s presses=%d releases=%d bounces=%d glitches=%d",
				snap.Uptime().Truncate(time.Second), snap.State, snap.Counts.Presses, snap.Counts.Releases,
				snap.Counts.Bounces, snap.Counts.Glitches)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
