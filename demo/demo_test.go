package demo

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jangala-dev/tinygo-circbuf/circbuf"
	"github.com/jangala-dev/tinygo-circbuf/uartx"
)

func newPolledUART(t *testing.T) (*uartx.UART, *uartx.SimBus) {
	t.Helper()
	bus := uartx.NewSimBus(nil)
	u := uartx.New(bus)
	if err := u.Configure(uartx.Config{Polled: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return u, bus
}

func TestEcho_LineDiscipline(t *testing.T) {
	u, bus := newPolledUART(t)
	bus.Feed([]byte("xab\x7f\rc\x03")...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Echo(ctx, u, u); !errors.Is(err, ErrEndOfText) {
		t.Fatalf("Echo returned %v; want ErrEndOfText", err)
	}
	want := Banner + "ab\b \b\r\nc"
	if got := string(bus.Transmitted()); got != want {
		t.Fatalf("transmitted %q; want %q", got, want)
	}
}

func TestEcho_StopsOnContext(t *testing.T) {
	u, bus := newPolledUART(t)
	bus.Feed('x', 'y')

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := Echo(ctx, u, u); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Echo returned %v; want DeadlineExceeded", err)
	}
	if got := string(bus.Transmitted()); got != Banner+"y" {
		t.Fatalf("transmitted %q", got)
	}
}

func TestToUpper(t *testing.T) {
	in := []byte("Hello, world! az AZ {`@[")
	want := []byte("HELLO, WORLD! AZ AZ {`@[")
	for i, c := range in {
		if got := ToUpper(c); got != want[i] {
			t.Fatalf("ToUpper(%q) = %q; want %q", c, got, want[i])
		}
	}
}

func TestUpper_OverInterruptFedRing(t *testing.T) {
	bus := uartx.NewSimBus(nil)
	u := uartx.New(bus)
	if err := u.Configure(uartx.Config{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Upper(ctx, u, u) }()

	// Producer: feed at most what the ring can hold between foreground
	// passes, firing the ISR as the hardware would.
	in := []byte("the quick brown fox jumps over the lazy dog 0123456789")
	for p := in; len(p) > 0; {
		k := min(len(p), 8)
		if u.Buffered()+k > circbuf.Capacity {
			time.Sleep(time.Millisecond)
			continue
		}
		n := bus.Feed(p[:k]...)
		p = p[n:]
		for bus.IRQ() {
			u.HandleInterrupt()
		}
	}

	want := bytes.ToUpper(in)
	var got []byte
	deadline := time.After(time.Second)
	for len(got) < len(want) {
		select {
		case <-deadline:
			t.Fatalf("timeout; got %q", got)
		default:
		}
		got = append(got, bus.Transmitted()...)
		time.Sleep(time.Millisecond)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q; want %q", got, want)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Upper returned %v; want Canceled", err)
	}
}

type byteLog struct{ b []byte }

func (l *byteLog) WriteByte(c byte) error {
	l.b = append(l.b, c)
	return nil
}

func TestTicker_OneBytePerTick(t *testing.T) {
	var tk Ticker
	for i := 0; i < 300; i++ {
		tk.Tick()
	}

	var out byteLog
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tk.Run(ctx, &out, 300); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.b) != 300 {
		t.Fatalf("sent %d bytes; want 300", len(out.b))
	}
	for i, c := range out.b {
		if c != byte(i) {
			t.Fatalf("byte %d = %#x; want %#x", i, c, byte(i))
		}
	}
}

func TestTicker_WaitsForTicks(t *testing.T) {
	var tk Ticker
	tk.Tick()
	tk.Tick()

	var out byteLog
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tk.Run(ctx, &out, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v; want DeadlineExceeded", err)
	}
	if !bytes.Equal(out.b, []byte{0, 1}) || tk.Ticks() != 2 {
		t.Fatalf("sent %v after %d ticks", out.b, tk.Ticks())
	}
}
