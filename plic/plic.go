// plic/plic.go

// Package plic drives a RISC-V platform-level interrupt controller through
// its memory-mapped register contract. Source 0 is reserved and means "no
// interrupt" when returned by Claim.
package plic

import (
	"errors"
	"fmt"
)

// MaxSources is the number of interrupt source IDs, including reserved 0.
const MaxSources = 32

var ErrInvalidSource = errors.New("invalid interrupt source")

// Register layout relative to the controller base.
const (
	offPriority  uint32 = 0x0000000
	offPending   uint32 = 0x0001000
	offEnable    uint32 = 0x0002000
	offThreshold uint32 = 0x0200000
	offClaim     uint32 = 0x0200004

	enableStride  uint32 = 0x80
	contextStride uint32 = 0x1000
)

// Well-known IDs on the reference SoC.
const (
	SourceUART uint32 = 1

	TargetM0 uint32 = 0 // hart 0 machine mode
	TargetS0 uint32 = 1 // hart 0 supervisor mode
)

// Bus is word-wide access to the controller registers.
type Bus interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// Handler services a claimed source.
type Handler func(src uint32)

// Controller is a PLIC instance.
type Controller struct {
	Bus Bus
}

// New returns a controller on bus.
func New(bus Bus) *Controller { return &Controller{Bus: bus} }

func checkSource(src uint32) error {
	if src == 0 || src >= MaxSources {
		return fmt.Errorf("%w: %d", ErrInvalidSource, src)
	}
	return nil
}

// SetPriority sets the priority of src. Priority 0 never interrupts.
func (c *Controller) SetPriority(src, prio uint32) error {
	if err := checkSource(src); err != nil {
		return err
	}
	c.Bus.Write32(offPriority+4*src, prio)
	return nil
}

// SetThreshold sets the priority threshold of tgt. Only sources with a
// priority strictly above it are delivered.
func (c *Controller) SetThreshold(tgt, threshold uint32) {
	c.Bus.Write32(offThreshold+contextStride*tgt, threshold)
}

// Enable enables srcs for tgt, keeping already enabled sources.
func (c *Controller) Enable(tgt uint32, srcs ...uint32) error {
	mask, err := sourceMask(srcs)
	if err != nil {
		return err
	}
	off := offEnable + enableStride*tgt
	c.Bus.Write32(off, c.Bus.Read32(off)|mask)
	return nil
}

// Disable disables srcs for tgt.
func (c *Controller) Disable(tgt uint32, srcs ...uint32) error {
	mask, err := sourceMask(srcs)
	if err != nil {
		return err
	}
	off := offEnable + enableStride*tgt
	c.Bus.Write32(off, c.Bus.Read32(off)&^mask)
	return nil
}

func sourceMask(srcs []uint32) (uint32, error) {
	var mask uint32
	for _, s := range srcs {
		if err := checkSource(s); err != nil {
			return 0, err
		}
		mask |= 1 << s
	}
	return mask, nil
}

// Pending reports whether src has a pending interrupt.
func (c *Controller) Pending(src uint32) bool {
	return c.Bus.Read32(offPending)&(1<<(src%MaxSources)) != 0
}

// Claim returns the highest-priority pending source for tgt, or 0.
func (c *Controller) Claim(tgt uint32) uint32 {
	return c.Bus.Read32(offClaim + contextStride*tgt)
}

// Complete signals that src has been serviced on tgt.
func (c *Controller) Complete(tgt, src uint32) {
	c.Bus.Write32(offClaim+contextStride*tgt, src)
}

// Serve runs one claim/dispatch/complete cycle for tgt. It returns false
// when nothing was pending.
func (c *Controller) Serve(tgt uint32, h Handler) bool {
	src := c.Claim(tgt)
	if src == 0 {
		return false
	}
	h(src)
	c.Complete(tgt, src)
	return true
}
