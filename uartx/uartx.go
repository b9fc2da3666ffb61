// uartx/uartx.go

// Package uartx is an interrupt-driven driver for a 16550-compatible UART.
// The receive interrupt drains the hardware FIFO into a circbuf.RingBuffer
// (the single producer); foreground code reads from the ring with TryRead or
// the blocking helpers (the single consumer). Transmission is polled: each
// byte waits for THR empty before it is written.
package uartx

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/jangala-dev/tinygo-circbuf/circbuf"
)

var (
	ErrBufferEmpty  = errors.New("UART buffer empty")
	ErrClosed       = errors.New("UART closed")
	ErrInvalidBaud  = errors.New("baud rate and clock must be non-zero")
	ErrDivisorRange = errors.New("baud divisor out of range")
)

// RxBatch bounds how many bytes one interrupt drains and pushes. It matches
// the deepest FIFO trigger level so a data-ready interrupt is serviced in one
// pass.
const RxBatch = 14

// Config holds the line settings applied by Configure. Zero fields take
// defaults: 115200 baud, a clock of 16x the baud rate, 8N1 and the RX data
// ready interrupt enabled. Without TriggerSet the trigger level is 14, or 1
// for Polled configs.
type Config struct {
	BaudRate    uint32
	ClockFreq   uint32
	LineControl uint8 // LCR value without DLAB; 0 means LCRDefault
	Trigger     uint8 // one of FCRTrig*; ignored unless TriggerSet
	TriggerSet  bool  // apply Trigger as given (FCRTrig1 is zero)
	Polled      bool  // leave IER at zero (no receive interrupts)
}

// UART is a single 16550 instance.
type UART struct {
	Bus    Bus
	Buffer *circbuf.RingBuffer // RX queue; producer is HandleInterrupt

	notify chan struct{} // coalesced RX readiness notifications
	closed chan struct{} // close signal

	trigger int    // RX FIFO trigger level in bytes
	baud    uint32 // last configured baud
	stats   Stats
}

// New returns a UART driving bus. Configure must be called before the
// interrupt source is enabled.
func New(bus Bus) *UART {
	return &UART{
		Bus:     bus,
		Buffer:  circbuf.NewRingBuffer(),
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
		trigger: 1,
	}
}

// BaudDivisor returns the 16x-oversampling divisor for baud at clock Hz,
// rounded to nearest.
func BaudDivisor(baud, clock uint32) (uint16, error) {
	if baud == 0 || clock == 0 {
		return 0, ErrInvalidBaud
	}
	div := (uint64(clock) + 8*uint64(baud)) / (16 * uint64(baud))
	if div == 0 || div > 0xffff {
		return 0, fmt.Errorf("%w: %d baud at %d Hz gives %d", ErrDivisorRange, baud, clock, div)
	}
	return uint16(div), nil
}

// Configure resets the RX ring and programs divisor, line format, FIFOs and
// interrupt enables. The ring is reset first, while the receive interrupt is
// still masked.
func (u *UART) Configure(cfg Config) error {
	u.Bus.Write8(RegIER, 0)
	u.Buffer.Init()

	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ClockFreq == 0 {
		cfg.ClockFreq = 16 * cfg.BaudRate
	}
	if cfg.LineControl == 0 {
		cfg.LineControl = LCRDefault
	}
	if !cfg.TriggerSet {
		cfg.Trigger = FCRTrig14
		if cfg.Polled {
			cfg.Trigger = FCRTrig1
		}
	}

	if _, err := u.SetBaudRate(cfg.BaudRate, cfg.ClockFreq); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	u.SetLineControl(cfg.LineControl)
	u.SetFIFOControl(FCRFIFOEnable | FCRRxReset | FCRTxReset | cfg.Trigger)

	if !cfg.Polled {
		u.Bus.Write8(RegIER, IERRxDataReady)
	}
	return nil
}

// SetBaudRate programs the divisor latch and returns the divisor used. The
// line control register is restored with DLAB cleared.
func (u *UART) SetBaudRate(baud, clock uint32) (uint16, error) {
	div, err := BaudDivisor(baud, clock)
	if err != nil {
		return 0, err
	}
	lcr := u.Bus.Read8(RegLCR) &^ LCRDLAB
	u.Bus.Write8(RegLCR, lcr|LCRDLAB)
	u.Bus.Write8(RegDLL, uint8(div))
	u.Bus.Write8(RegDLM, uint8(div>>8))
	u.Bus.Write8(RegLCR, lcr)
	u.baud = baud
	return div, nil
}

// SetLineControl writes LCR (word length, stop bits, parity, break).
func (u *UART) SetLineControl(lcr uint8) { u.Bus.Write8(RegLCR, lcr) }

// SetFIFOControl writes FCR and records the RX trigger level.
func (u *UART) SetFIFOControl(fcr uint8) {
	u.Bus.Write8(RegFCR, fcr)
	u.trigger = triggerLevel(fcr)
}

// SetModemControl writes MCR (e.g. MCRLoopback).
func (u *UART) SetModemControl(mcr uint8) { u.Bus.Write8(RegMCR, mcr) }

// BaudRate returns the last configured baud rate.
func (u *UART) BaudRate() uint32 { return u.baud }

// ---------------- TX (polled) ----------------

// WriteByte waits for THR empty and sends c.
func (u *UART) WriteByte(c byte) error {
	for u.Bus.Read8(RegLSR)&LSRTHREmpty == 0 {
		runtime.Gosched()
	}
	u.Bus.Write8(RegTHR, c)
	return nil
}

// Write implements io.Writer. It returns once every byte has been handed to
// the transmitter.
func (u *UART) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := u.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// WriteString sends s byte by byte.
func (u *UART) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if err := u.WriteByte(s[i]); err != nil {
			return i, err
		}
	}
	return len(s), nil
}

// ---------------- RX without interrupts ----------------

// ReadBytePolled spins on LSR data ready and reads one byte straight from
// the hardware FIFO. It bypasses the ring and is meant for Polled configs.
func (u *UART) ReadBytePolled(ctx context.Context) (byte, error) {
	for u.Bus.Read8(RegLSR)&LSRDataReady == 0 {
		select {
		case <-u.closed:
			return 0, ErrClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return u.Bus.Read8(RegRHR), nil
}

// ---------------- Producer ----------------

// HandleInterrupt services one UART interrupt. It drains at most RxBatch
// bytes from the RX FIFO and pushes them into the ring with a single Push.
// Bytes the ring cannot take are dropped and counted. It reports whether the
// interrupt was an RX condition this driver owns.
func (u *UART) HandleInterrupt() bool {
	var scratch [RxBatch]byte
	n := 0

	switch u.Bus.Read8(RegISR) & ISRIntMask {
	case ISRIntRxDataReady:
		// At least trigger bytes are waiting; no need to poll LSR for those.
		for n < min(u.trigger, RxBatch) {
			scratch[n] = u.Bus.Read8(RegRHR)
			n++
		}
		n = u.drain(scratch[:], n)
	case ISRIntRxTimeout:
		n = u.drain(scratch[:], 0)
	default:
		return false
	}

	pushed := u.Buffer.Push(scratch[:n])
	u.statISR(n, pushed)
	if pushed > 0 {
		u.wake()
	}
	return true
}

// drain reads while LSR reports data, up to len(buf).
func (u *UART) drain(buf []byte, n int) int {
	for n < len(buf) {
		lsr := u.Bus.Read8(RegLSR)
		if lsr&LSROverrunErr != 0 {
			u.statOverrun()
		}
		if lsr&LSRDataReady == 0 {
			break
		}
		buf[n] = u.Bus.Read8(RegRHR)
		n++
	}
	return n
}

// edge-triggered notify
func (u *UART) wake() {
	select {
	case u.notify <- struct{}{}:
		u.statNotify(true)
	default:
		u.statNotify(false)
	}
}

// ---------------- Consumer ----------------

// Readable returns a coalesced notification for RX readiness. Callers must
// re-check state after waking.
func (u *UART) Readable() <-chan struct{} { return u.notify }

// TryRead copies up to len(p) buffered bytes and returns immediately.
// A return value of 0 means "no data now".
func (u *UART) TryRead(p []byte) int {
	return u.Buffer.Pop(p)
}

// Read implements io.Reader without blocking: it returns 0, nil when the
// ring is empty.
func (u *UART) Read(p []byte) (int, error) {
	return u.TryRead(p), nil
}

// ReadByte reads one byte from the ring or returns ErrBufferEmpty.
func (u *UART) ReadByte() (byte, error) {
	var b [1]byte
	if u.Buffer.Pop(b[:]) == 0 {
		return 0, ErrBufferEmpty
	}
	return b[0], nil
}

// Buffered returns the number of bytes waiting in the ring.
func (u *UART) Buffered() int { return u.Buffer.Used() }

// WaitReadable blocks until the ring holds data, the UART is closed or ctx
// is done.
func (u *UART) WaitReadable(ctx context.Context) error {
	if u.Buffered() > 0 {
		return nil
	}
	for {
		u.statReadWait()
		select {
		case <-u.notify:
			if u.Buffered() > 0 {
				return nil
			}
			u.statSpuriousWake()
		case <-u.closed:
			return ErrClosed
		case <-ctx.Done():
			u.statTimeout()
			return ctx.Err()
		}
	}
}

// ReadBlocking blocks until at least one byte is available, then reads up to
// len(p).
func (u *UART) ReadBlocking(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := u.TryRead(p); n > 0 {
			return n, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadFullBlocking blocks until len(p) bytes have been read or ctx is done.
func (u *UART) ReadFullBlocking(ctx context.Context, p []byte) (int, error) {
	read := 0
	for read < len(p) {
		if n := u.TryRead(p[read:]); n > 0 {
			read += n
			continue
		}
		if err := u.WaitReadable(ctx); err != nil {
			return read, err
		}
	}
	return read, nil
}

// ReadByteBlocking blocks for a single byte or until ctx is done.
func (u *UART) ReadByteBlocking(ctx context.Context) (byte, error) {
	for {
		if b, err := u.ReadByte(); err == nil {
			return b, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadWithTimeout is ReadBlocking bounded by d.
func (u *UART) ReadWithTimeout(p []byte, d time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return u.ReadBlocking(ctx, p)
}

// Close masks UART interrupts and unblocks waiters.
func (u *UART) Close() error {
	select {
	case <-u.closed:
	default:
		close(u.closed)
	}
	u.Bus.Write8(RegIER, 0)
	return nil
}
