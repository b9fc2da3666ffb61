// circbuf/ringbuffer.go

// Package circbuf provides a fixed-size single-producer/single-consumer byte
// ring that bridges a UART receive interrupt (producer) and a foreground
// polling loop (consumer). Push and Pop never block and never fail; a short
// count is the only signal that the ring was full or empty.
//
// One slot is always left unused so that equal cursors mean "empty" and a
// write cursor one behind the read cursor means "full". Usable capacity is
// therefore Size-1 bytes.
package circbuf

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Size is the length of the backing storage in bytes.
const Size = 32

// Capacity is the number of bytes the ring can hold at once.
const Capacity = Size - 1

// RingBuffer is a circular byte queue safe for exactly one producer and one
// consumer running concurrently (an ISR and the foreground, or two goroutines).
//
// Invariants:
//   - wr is written only by Push, rd only by Pop.
//   - Both cursors are always in [0, Size).
//   - Each cursor is published with a single atomic store after the bytes
//     it covers have been copied.
type RingBuffer struct {
	buf [Size]byte

	_  cpu.CacheLinePad
	wr atomic.Uint32 // next slot the producer writes
	_  cpu.CacheLinePad
	rd atomic.Uint32 // next slot the consumer reads
	_  cpu.CacheLinePad
}

// NewRingBuffer returns an empty ring buffer.
func NewRingBuffer() *RingBuffer {
	rb := &RingBuffer{}
	rb.Init()
	return rb
}

// Init resets both cursors to the start of storage. It must only be called
// while the producer is disabled.
func (rb *RingBuffer) Init() {
	rb.wr.Store(0)
	rb.rd.Store(0)
}

// Size returns the length of the backing storage in bytes.
func (rb *RingBuffer) Size() int { return Size }

// Used returns how many bytes are queued. The value is a snapshot and may be
// stale by the time the caller acts on it.
func (rb *RingBuffer) Used() int {
	wr, rd := rb.wr.Load(), rb.rd.Load()
	return int((wr + Size - rd) % Size)
}

// Free returns how many bytes a Push could accept right now.
func (rb *RingBuffer) Free() int {
	return Capacity - rb.Used()
}

// Push copies as many leading bytes of data as fit and returns that count.
// Bytes that do not fit are not queued; callers treat them as lost.
// Only the producer may call Push.
func (rb *RingBuffer) Push(data []byte) int {
	wr := rb.wr.Load()
	rd := rb.rd.Load() // acquire: slots before rd are free

	n := uint32(min(len(data), Size))
	end := wr + n
	pushed := uint32(0)

	if wr < rd {
		// Wrapped: free space is [wr, rd-1).
		if end >= rd {
			end = rd - 1
		}
	} else if end >= Size {
		if rd == 0 {
			// Wrapping would land on rd; stop one short of the end.
			end = Size - 1
		} else {
			// Fill to the end of storage, then continue from the start.
			pushed = Size - wr
			copy(rb.buf[wr:], data[:pushed])
			data = data[pushed:]
			end -= Size
			wr = 0
			if end >= rd {
				end = rd - 1
			}
		}
	}

	copy(rb.buf[wr:end], data)
	pushed += end - wr

	rb.wr.Store(end) // commit
	return int(pushed)
}

// Pop copies up to len(data) queued bytes into data and returns that count.
// It returns 0 and leaves data untouched when the ring is empty.
// Only the consumer may call Pop.
func (rb *RingBuffer) Pop(data []byte) int {
	rd := rb.rd.Load()
	wr := rb.wr.Load() // acquire: slots before wr hold committed bytes

	n := uint32(min(len(data), Size))
	end := rd + n
	popped := uint32(0)

	if rd <= wr {
		if end > wr {
			end = wr
		}
	} else if end >= Size {
		// Drain to the end of storage, then continue from the start.
		popped = Size - rd
		copy(data, rb.buf[rd:])
		data = data[popped:]
		end -= Size
		rd = 0
		if end > wr {
			end = wr
		}
	}

	copy(data, rb.buf[rd:end])
	popped += end - rd

	rb.rd.Store(end) // commit
	return int(popped)
}
