// plic/sim.go

package plic

import "sync"

// MaxTargets is the number of contexts modelled by Sim.
const MaxTargets = 8

// Sim is an in-memory PLIC model. Sources are level inputs driven with Raise
// and Lower. A claimed source is gated until its completion arrives, after
// which it becomes pending again if its line is still high.
type Sim struct {
	mu sync.Mutex

	priority  [MaxSources]uint32
	level     uint32 // raw input lines
	pending   uint32
	inFlight  uint32 // claimed, not yet completed
	enable    [MaxTargets]uint32
	threshold [MaxTargets]uint32
}

// NewSim returns a model with all priorities, enables and thresholds zero.
func NewSim() *Sim { return &Sim{} }

// Raise drives src high.
func (s *Sim) Raise(src uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == 0 || src >= MaxSources {
		return
	}
	s.level |= 1 << src
	s.gateLocked()
}

// Lower drives src low. An already latched pending bit stays set.
func (s *Sim) Lower(src uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == 0 || src >= MaxSources {
		return
	}
	s.level &^= 1 << src
}

// Interrupting reports whether the interrupt output for tgt is asserted.
func (s *Sim) Interrupting(tgt uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tgt < MaxTargets && s.bestLocked(tgt) != 0
}

func (s *Sim) gateLocked() {
	s.pending |= s.level &^ s.inFlight
}

// bestLocked picks the highest-priority deliverable source; ties go to the
// lowest ID.
func (s *Sim) bestLocked(tgt uint32) uint32 {
	var best, bestPrio uint32
	cand := s.pending & s.enable[tgt]
	for src := uint32(1); src < MaxSources; src++ {
		if cand&(1<<src) == 0 {
			continue
		}
		p := s.priority[src]
		if p <= s.threshold[tgt] || p <= bestPrio {
			continue
		}
		best, bestPrio = src, p
	}
	return best
}

func (s *Sim) Read32(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case off < offPending:
		return s.priority[(off/4)%MaxSources]
	case off == offPending:
		return s.pending
	case off >= offEnable && off < offThreshold:
		if tgt := (off - offEnable) / enableStride; tgt < MaxTargets {
			return s.enable[tgt]
		}
	case off >= offThreshold:
		tgt, reg := (off-offThreshold)/contextStride, (off-offThreshold)%contextStride
		if tgt >= MaxTargets {
			return 0
		}
		if reg == 0 {
			return s.threshold[tgt]
		}
		if reg == offClaim-offThreshold {
			src := s.bestLocked(tgt)
			if src != 0 {
				s.pending &^= 1 << src
				s.inFlight |= 1 << src
			}
			return src
		}
	}
	return 0
}

func (s *Sim) Write32(off uint32, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case off < offPending:
		if src := off / 4; src > 0 && src < MaxSources {
			s.priority[src] = v
		}
	case off == offPending:
		// read-only
	case off >= offEnable && off < offThreshold:
		if tgt := (off - offEnable) / enableStride; tgt < MaxTargets {
			s.enable[tgt] = v &^ 1
		}
	case off >= offThreshold:
		tgt, reg := (off-offThreshold)/contextStride, (off-offThreshold)%contextStride
		if tgt >= MaxTargets {
			return
		}
		switch reg {
		case 0:
			s.threshold[tgt] = v
		case offClaim - offThreshold:
			if v > 0 && v < MaxSources {
				s.inFlight &^= 1 << v
				s.gateLocked()
			}
		}
	}
}
