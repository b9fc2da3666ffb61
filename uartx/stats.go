// uartx/stats.go

package uartx

import "sync/atomic"

// Stats holds driver counters since the last reset.
type Stats struct {
	// ISR-level
	ISRCount      uint32 // number of RX interrupts handled
	ISRBytes      uint32 // total bytes drained from the RX FIFO
	ISRMaxDrain   uint32 // max bytes drained in a single interrupt
	NotifySent    uint32 // readable notifications delivered
	NotifyDropped uint32 // readable notifications coalesced (channel full)

	// Line status
	ErrOverrun uint32 // LSR.OE seen while draining

	// Ring buffer
	RingPuts    uint32 // bytes accepted by Push
	RingDrops   uint32 // bytes refused by Push (ring full)
	RingMaxUsed uint32 // high-water mark of ring occupancy

	// Blocking API behaviour
	ReadWaits     uint32 // times a blocking read had to wait
	SpuriousWakes uint32 // notify received but no data available
	Timeouts      uint32 // context expiries in blocking reads
}

// ResetStats zeroes all counters. It is safe while the interrupt handler runs.
func (u *UART) ResetStats() {
	for _, c := range u.counters() {
		atomic.StoreUint32(c, 0)
	}
}

func (u *UART) counters() []*uint32 {
	s := &u.stats
	return []*uint32{
		&s.ISRCount, &s.ISRBytes, &s.ISRMaxDrain, &s.NotifySent, &s.NotifyDropped,
		&s.ErrOverrun,
		&s.RingPuts, &s.RingDrops, &s.RingMaxUsed,
		&s.ReadWaits, &s.SpuriousWakes, &s.Timeouts,
	}
}

// Stats returns a snapshot of the driver counters.
func (u *UART) Stats() Stats {
	return Stats{
		ISRCount:      atomic.LoadUint32(&u.stats.ISRCount),
		ISRBytes:      atomic.LoadUint32(&u.stats.ISRBytes),
		ISRMaxDrain:   atomic.LoadUint32(&u.stats.ISRMaxDrain),
		NotifySent:    atomic.LoadUint32(&u.stats.NotifySent),
		NotifyDropped: atomic.LoadUint32(&u.stats.NotifyDropped),

		ErrOverrun: atomic.LoadUint32(&u.stats.ErrOverrun),

		RingPuts:    atomic.LoadUint32(&u.stats.RingPuts),
		RingDrops:   atomic.LoadUint32(&u.stats.RingDrops),
		RingMaxUsed: atomic.LoadUint32(&u.stats.RingMaxUsed),

		ReadWaits:     atomic.LoadUint32(&u.stats.ReadWaits),
		SpuriousWakes: atomic.LoadUint32(&u.stats.SpuriousWakes),
		Timeouts:      atomic.LoadUint32(&u.stats.Timeouts),
	}
}

func storeMax(addr *uint32, v uint32) {
	for {
		max := atomic.LoadUint32(addr)
		if v <= max {
			return
		}
		if atomic.CompareAndSwapUint32(addr, max, v) {
			return
		}
	}
}

// Called once per handled interrupt with the drain and Push outcome.
func (u *UART) statISR(drained, pushed int) {
	atomic.AddUint32(&u.stats.ISRCount, 1)
	atomic.AddUint32(&u.stats.ISRBytes, uint32(drained))
	storeMax(&u.stats.ISRMaxDrain, uint32(drained))
	atomic.AddUint32(&u.stats.RingPuts, uint32(pushed))
	atomic.AddUint32(&u.stats.RingDrops, uint32(drained-pushed))
	storeMax(&u.stats.RingMaxUsed, uint32(u.Buffer.Used()))
}

func (u *UART) statOverrun() {
	atomic.AddUint32(&u.stats.ErrOverrun, 1)
}

func (u *UART) statNotify(sent bool) {
	if sent {
		atomic.AddUint32(&u.stats.NotifySent, 1)
	} else {
		atomic.AddUint32(&u.stats.NotifyDropped, 1)
	}
}

func (u *UART) statReadWait()     { atomic.AddUint32(&u.stats.ReadWaits, 1) }
func (u *UART) statSpuriousWake() { atomic.AddUint32(&u.stats.SpuriousWakes, 1) }
func (u *UART) statTimeout()      { atomic.AddUint32(&u.stats.Timeouts, 1) }
