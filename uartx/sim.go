// uartx/sim.go

package uartx

import (
	"io"
	"sync"
)

// SimBus is an in-memory 16550 register model for host builds and tests.
// Transmission completes instantly; THR writes go to the configured sink, or
// back into the RX FIFO when MCR loopback is set.
//
// The model has no notion of time, so an RX FIFO holding fewer bytes than the
// trigger level reports the character-timeout condition straight away.
type SimBus struct {
	mu sync.Mutex

	rx      []byte // RX FIFO, at most FIFODepth bytes
	overrun bool   // sticky until LSR is read
	tx      []byte // captured output when sink is nil
	sink    io.Writer

	ier, fcr, lcr, mcr, spr uint8
	dll, dlm                uint8
}

// NewSimBus returns a model whose transmitted bytes are written to sink.
// A nil sink captures them for Transmitted.
func NewSimBus(sink io.Writer) *SimBus {
	return &SimBus{sink: sink}
}

// Feed places bytes on the receive line. Bytes arriving while the RX FIFO is
// full are lost and flag an overrun. It returns how many were accepted.
func (s *SimBus) Feed(p ...byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedLocked(p)
}

func (s *SimBus) feedLocked(p []byte) int {
	room := FIFODepth - len(s.rx)
	if room < 0 {
		room = 0
	}
	n := min(room, len(p))
	s.rx = append(s.rx, p[:n]...)
	if n < len(p) {
		s.overrun = true
	}
	return n
}

// RxFree returns free space in the RX FIFO.
func (s *SimBus) RxFree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FIFODepth - len(s.rx)
}

// Transmitted returns and clears the captured TX bytes.
func (s *SimBus) Transmitted() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tx
	s.tx = nil
	return out
}

// Divisor returns the value latched in DLL/DLM.
func (s *SimBus) Divisor() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(s.dlm)<<8 | uint16(s.dll)
}

// IRQ reports whether the UART interrupt line is asserted.
func (s *SimBus) IRQ() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isrLocked() != ISRIntNone
}

func (s *SimBus) isrLocked() uint8 {
	if s.ier&IERRxDataReady != 0 && len(s.rx) > 0 {
		if len(s.rx) >= triggerLevel(s.fcr) {
			return ISRIntRxDataReady
		}
		return ISRIntRxTimeout
	}
	if s.ier&IERTHREmpty != 0 {
		return ISRIntTHREmpty
	}
	return ISRIntNone
}

func (s *SimBus) Read8(off uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	dlab := s.lcr&LCRDLAB != 0
	switch off & 0x7 {
	case RegRHR:
		if dlab {
			return s.dll
		}
		if len(s.rx) == 0 {
			return 0
		}
		b := s.rx[0]
		s.rx = s.rx[1:]
		return b
	case RegIER:
		if dlab {
			return s.dlm
		}
		return s.ier
	case RegISR:
		isr := s.isrLocked()
		if s.fcr&FCRFIFOEnable != 0 {
			isr |= 0xc0
		}
		return isr
	case RegLCR:
		return s.lcr
	case RegMCR:
		return s.mcr
	case RegLSR:
		lsr := LSRTHREmpty | LSRTxEmpty
		if len(s.rx) > 0 {
			lsr |= LSRDataReady
		}
		if s.overrun {
			lsr |= LSROverrunErr
			s.overrun = false
		}
		return lsr
	case RegMSR:
		return 0
	default:
		return s.spr
	}
}

func (s *SimBus) Write8(off uint8, v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dlab := s.lcr&LCRDLAB != 0
	switch off & 0x7 {
	case RegTHR:
		if dlab {
			s.dll = v
			return
		}
		s.transmitLocked(v)
	case RegIER:
		if dlab {
			s.dlm = v
			return
		}
		s.ier = v & (IERRxDataReady | IERTHREmpty | IERRxLineStat)
	case RegFCR:
		if v&FCRRxReset != 0 {
			s.rx = s.rx[:0]
		}
		if v&FCRTxReset != 0 {
			s.tx = s.tx[:0]
		}
		s.fcr = v &^ (FCRRxReset | FCRTxReset)
	case RegLCR:
		s.lcr = v
	case RegMCR:
		s.mcr = v
	case RegLSR, RegMSR:
		// read-only
	default:
		s.spr = v
	}
}

func (s *SimBus) transmitLocked(b byte) {
	if s.mcr&MCRLoopback != 0 {
		s.feedLocked([]byte{b})
		return
	}
	if s.sink != nil {
		_, _ = s.sink.Write([]byte{b})
		return
	}
	s.tx = append(s.tx, b)
}
