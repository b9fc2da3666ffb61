// cmd/uartsim/main.go
// Host simulator for the UART demos. stdin is the receive line, stdout the
// transmit line. The simulated 16550 raises its interrupt through a simulated
// PLIC; a goroutine plays the interrupt handler (ring producer) while the
// selected demo runs as the foreground loop (ring consumer).
//
//	uartsim -demo echo      polled echo terminal, Ctrl-C ends the session
//	uartsim -demo upper     interrupt-fed uppercase filter
//	uartsim -demo ticker    one byte per timer tick

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/jangala-dev/tinygo-circbuf/demo"
	"github.com/jangala-dev/tinygo-circbuf/plic"
	"github.com/jangala-dev/tinygo-circbuf/uartx"
)

var log = logging.Logger("uartsim")

/*** Tunables ***/
const (
	irqPoll    = 100 * time.Microsecond // interrupt line sampling period
	eofGrace   = 200 * time.Millisecond // time left for the demo to drain after stdin EOF
	readChunk  = 64                     // bytes per stdin read
	etx        = 0x03
	defaultLvl = "warn"
)

type options struct {
	demo     string
	baud     uint
	clock    uint
	tick     time.Duration
	count    int
	raw      bool
	logLevel string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.demo, "demo", "upper", "demo to run: echo, upper or ticker")
	flag.UintVar(&o.baud, "baud", 115200, "simulated line rate")
	flag.UintVar(&o.clock, "clock", 0, "UART input clock in Hz (0 = 16 x baud)")
	flag.DurationVar(&o.tick, "tick", 100*time.Millisecond, "timer period for the ticker demo")
	flag.IntVar(&o.count, "count", 0, "bytes the ticker demo sends (0 = unlimited)")
	flag.BoolVar(&o.raw, "raw", true, "put the terminal in raw mode")
	flag.StringVar(&o.logLevel, "log-level", defaultLvl, "log level (debug, info, warn, error)")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()
	if err := logging.SetLogLevel("uartsim", o.logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "uartsim:", err)
		os.Exit(2)
	}
	if err := run(o); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(o options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if o.raw {
		restore, err := makeRaw(int(os.Stdin.Fd()))
		if err != nil {
			log.Warnf("raw mode unavailable: %v", err)
		} else {
			defer restore()
		}
	}

	bus := uartx.NewSimBus(os.Stdout)
	u := uartx.New(bus)
	cfg := uartx.Config{
		BaudRate:  uint32(o.baud),
		ClockFreq: uint32(o.clock),
		Polled:    o.demo == "echo",
	}
	if err := u.Configure(cfg); err != nil {
		return err
	}
	defer u.Close()
	log.Infow("uart configured", "baud", u.BaudRate(), "divisor", bus.Divisor(), "polled", cfg.Polled)
	reportRegisters(bus)

	sim := plic.NewSim()
	ctrl := plic.New(sim)
	if err := ctrl.SetPriority(plic.SourceUART, 1); err != nil {
		return err
	}
	ctrl.SetThreshold(plic.TargetM0, 0)
	if err := ctrl.Enable(plic.TargetM0, plic.SourceUART); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go feedLine(ctx, cancel, bus, os.Stdin, charTime(o.baud), o.demo != "echo")
	go serveInterrupts(ctx, bus, sim, ctrl, u)

	var err error
	switch o.demo {
	case "echo":
		err = demo.Echo(ctx, u, u)
	case "upper":
		err = demo.Upper(ctx, u, u)
	case "ticker":
		var tk demo.Ticker
		go runTimer(ctx, &tk, o.tick)
		err = tk.Run(ctx, u, o.count)
	default:
		return fmt.Errorf("unknown demo %q", o.demo)
	}

	s := u.Stats()
	log.Infow("done", "isr", s.ISRCount, "bytes", s.ISRBytes, "drops", s.RingDrops,
		"overruns", s.ErrOverrun, "ring_max", s.RingMaxUsed)

	switch {
	case err == nil, errors.Is(err, demo.ErrEndOfText), errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// reportRegisters logs the line and interrupt registers at debug level.
func reportRegisters(bus *uartx.SimBus) {
	hex := func(off uint8) string { return fmt.Sprintf("0x%02x", bus.Read8(off)) }
	log.Debugw("registers",
		"LCR", hex(uartx.RegLCR),
		"IER", hex(uartx.RegIER),
		"ISR", hex(uartx.RegISR),
		"MCR", hex(uartx.RegMCR),
		"LSR", hex(uartx.RegLSR),
	)
}

// charTime is the duration of one 8N1 character at baud.
func charTime(baud uint) time.Duration {
	if baud == 0 {
		return 0
	}
	return 10 * time.Second / time.Duration(baud)
}

// feedLine moves stdin onto the simulated receive line, one character time
// per byte, waiting while the RX FIFO is full. With stopOnETX set, an ETX
// byte ends the run instead of being delivered.
func feedLine(ctx context.Context, cancel context.CancelFunc, bus *uartx.SimBus, r io.Reader, perChar time.Duration, stopOnETX bool) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if stopOnETX && b == etx {
				cancel()
				return
			}
			for bus.Feed(b) == 0 {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(perChar)
			}
			if perChar > 0 {
				time.Sleep(perChar)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warnf("stdin: %v", err)
			}
			log.Debugf("stdin closed")
			select {
			case <-time.After(eofGrace):
			case <-ctx.Done():
			}
			cancel()
			return
		}
	}
}

// serveInterrupts mirrors the UART interrupt line into the PLIC and runs the
// claim/complete cycle, calling the UART handler for its source.
func serveInterrupts(ctx context.Context, bus *uartx.SimBus, sim *plic.Sim, ctrl *plic.Controller, u *uartx.UART) {
	t := time.NewTicker(irqPoll)
	defer t.Stop()

	handler := func(src uint32) {
		if src != plic.SourceUART {
			log.Warnf("unexpected interrupt source %d", src)
			return
		}
		u.HandleInterrupt()
		if !bus.IRQ() {
			sim.Lower(plic.SourceUART)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if bus.IRQ() {
			sim.Raise(plic.SourceUART)
		}
		for ctrl.Serve(plic.TargetM0, handler) {
		}
	}
}

// runTimer plays the machine timer interrupt for the ticker demo.
func runTimer(ctx context.Context, tk *demo.Ticker, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tk.Tick()
		}
	}
}
