// demo/demo.go

// Package demo holds the foreground programs that run on top of the UART
// driver: a polled echo terminal, an interrupt-fed uppercase filter and a
// timer-tick counter. They depend only on small byte-level interfaces so the
// same loops run against hardware or the host simulator.
package demo

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// Sink transmits one byte, blocking until the transmitter accepts it.
type Sink interface {
	WriteByte(c byte) error
}

// Source receives one byte straight from the device, blocking until one
// arrives or ctx is done.
type Source interface {
	ReadBytePolled(ctx context.Context) (byte, error)
}

// Popper is the consumer side of the RX ring.
type Popper interface {
	TryRead(p []byte) int
}

// ErrEndOfText is returned by Echo when the peer sends ETX (Ctrl-C).
var ErrEndOfText = errors.New("end of text")

const (
	etx = 0x03
	del = 0x7f
)

// Banner is printed by Echo after the first byte arrives.
const Banner = "This program will echo user's input.\r\nPress CTRL+C to exit.\r\n"

// popBatch is how many bytes Upper pops per iteration.
const popBatch = 16

func writeAll(sink Sink, s string) error {
	for i := 0; i < len(s); i++ {
		if err := sink.WriteByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// Echo waits for any byte, prints Banner and then echoes input until ETX
// (returns ErrEndOfText), a read error or ctx is done. DEL erases the last
// character on the terminal and CR is expanded to CRLF.
func Echo(ctx context.Context, src Source, sink Sink) error {
	if _, err := src.ReadBytePolled(ctx); err != nil {
		return err
	}
	if err := writeAll(sink, Banner); err != nil {
		return err
	}

	for {
		c, err := src.ReadBytePolled(ctx)
		if err != nil {
			return err
		}
		switch c {
		case etx:
			return ErrEndOfText
		case del:
			err = writeAll(sink, "\b \b")
		case '\r':
			err = writeAll(sink, "\r\n")
		default:
			err = sink.WriteByte(c)
		}
		if err != nil {
			return err
		}
	}
}

// ToUpper maps ASCII a-z to A-Z and leaves every other byte unchanged.
func ToUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Upper polls the RX ring, uppercases each byte and transmits it. It runs
// until ctx is done or the sink fails.
func Upper(ctx context.Context, q Popper, sink Sink) error {
	var buf [popBatch]byte
	for {
		n := q.TryRead(buf[:])
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
			continue
		}
		for _, c := range buf[:n] {
			if err := sink.WriteByte(ToUpper(c)); err != nil {
				return err
			}
		}
	}
}

// Ticker counts timer interrupts and lets the foreground send one byte per
// tick. Tick is the interrupt side; Run is the foreground.
type Ticker struct {
	ticks atomic.Uint32
	sent  uint32
}

// Tick records one timer interrupt.
func (t *Ticker) Tick() { t.ticks.Add(1) }

// Ticks returns the number of interrupts seen so far.
func (t *Ticker) Ticks() uint32 { return t.ticks.Load() }

// Run sends byte(sent) each time the tick count moves past the sent count,
// so the stream is 0x00, 0x01, ... wrapping at 0xff. It returns after limit
// bytes (0 means no limit) or when ctx is done.
func (t *Ticker) Run(ctx context.Context, sink Sink, limit int) error {
	for n := 0; limit == 0 || n < limit; n++ {
		for t.sent == t.ticks.Load() {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
		}
		if err := sink.WriteByte(byte(t.sent)); err != nil {
			return err
		}
		t.sent++
	}
	return nil
}
