package gpio

import (
	"testing"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

const periphWait = 2 * time.Second

func newTestPeriphPin() (*periphPin, *gpiotest.Pin) {
	tp := &gpiotest.Pin{N: "GPIO17", Num: 17, L: pgpio.High, EdgesChan: make(chan pgpio.Level)}
	return &periphPin{pin: tp, pull: pgpio.PullUp}, tp
}

func TestPeriphPinRead(t *testing.T) {
	p, tp := newTestPeriphPin()
	if p.Number() != 17 {
		t.Errorf("Number: got %d, want 17", p.Number())
	}

	tp.Out(pgpio.Low)
	if l, err := p.Read(); err != nil || l != Low {
		t.Errorf("Read: got %v, %v; want LOW, nil", l, err)
	}
	tp.Out(pgpio.High)
	if l, err := p.Read(); err != nil || l != High {
		t.Errorf("Read: got %v, %v; want HIGH, nil", l, err)
	}
}

func TestPeriphPinForwardsEdges(t *testing.T) {
	p, tp := newTestPeriphPin()
	levels := make(chan Level, 4)
	if err := p.SetIRQ(EdgeBoth, func(pin Pin) {
		l, _ := pin.Read()
		levels <- l
	}); err != nil {
		t.Fatalf("SetIRQ: %v", err)
	}
	defer p.Close()

	tp.EdgesChan <- pgpio.Low
	select {
	case l := <-levels:
		if l != Low {
			t.Errorf("handler saw %v, want LOW", l)
		}
	case <-time.After(periphWait):
		t.Fatal("edge not delivered")
	}
}

func TestPeriphPinNoDeliveryAfterClearIRQ(t *testing.T) {
	p, tp := newTestPeriphPin()
	calls := make(chan struct{}, 4)
	if err := p.SetIRQ(EdgeBoth, func(Pin) { calls <- struct{}{} }); err != nil {
		t.Fatalf("SetIRQ: %v", err)
	}
	if err := p.ClearIRQ(); err != nil {
		t.Fatalf("ClearIRQ: %v", err)
	}
	if err := p.ClearIRQ(); err != nil {
		t.Errorf("second ClearIRQ: %v", err)
	}

	// A lingering watcher may still take the edge, but must not deliver it.
	select {
	case tp.EdgesChan <- pgpio.Low:
	case <-time.After(2 * edgeWaitTimeout):
	}
	select {
	case <-calls:
		t.Error("handler called after ClearIRQ")
	case <-time.After(2 * edgeWaitTimeout):
	}
}

func TestPeriphPinHandlerMayDisarm(t *testing.T) {
	tests := []struct {
		name     string
		teardown func(Pin) error
	}{
		{"ClearIRQ", func(pin Pin) error { return pin.ClearIRQ() }},
		{"Close", func(pin Pin) error { return pin.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, tp := newTestPeriphPin()
			returned := make(chan error, 1)
			if err := p.SetIRQ(EdgeBoth, func(pin Pin) {
				returned <- tt.teardown(pin)
			}); err != nil {
				t.Fatalf("SetIRQ: %v", err)
			}

			tp.EdgesChan <- pgpio.Low
			select {
			case err := <-returned:
				if err != nil {
					t.Errorf("%s from handler: %v", tt.name, err)
				}
			case <-time.After(periphWait):
				t.Fatalf("%s from handler did not return", tt.name)
			}
		})
	}
}

func TestPeriphPinRearm(t *testing.T) {
	p, tp := newTestPeriphPin()
	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)
	if err := p.SetIRQ(EdgeBoth, func(Pin) { first <- struct{}{} }); err != nil {
		t.Fatalf("SetIRQ: %v", err)
	}
	if err := p.SetIRQ(EdgeFalling, func(Pin) { second <- struct{}{} }); err != nil {
		t.Fatalf("SetIRQ: %v", err)
	}
	defer p.Close()

	// The replaced watcher may consume edges without delivering them, so
	// keep sending until the new handler fires.
	deadline := time.After(periphWait)
	for delivered := false; !delivered; {
		select {
		case tp.EdgesChan <- pgpio.Low:
		case <-second:
			delivered = true
		case <-deadline:
			t.Fatal("new handler never called")
		}
	}
	select {
	case <-first:
		t.Error("replaced handler still called")
	default:
	}
}

func TestPeriphPull(t *testing.T) {
	tests := []struct {
		in      Pull
		want    pgpio.Pull
		wantErr bool
	}{
		{PullUp, pgpio.PullUp, false},
		{PullDown, pgpio.PullDown, false},
		{PullNone, pgpio.Float, false},
		{Pull(9), pgpio.PullNoChange, true},
	}

	for _, tt := range tests {
		got, err := periphPull(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("periphPull(%v): err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("periphPull(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPeriphEdge(t *testing.T) {
	tests := []struct {
		in   Edge
		want pgpio.Edge
	}{
		{EdgeNone, pgpio.NoEdge},
		{EdgeRising, pgpio.RisingEdge},
		{EdgeFalling, pgpio.FallingEdge},
		{EdgeBoth, pgpio.BothEdges},
	}

	for _, tt := range tests {
		if got := periphEdge(tt.in); got != tt.want {
			t.Errorf("periphEdge(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
