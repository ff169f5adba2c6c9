package ledger

import (
	"FlowLedger/internal/event"
	"FlowLedger/internal/split"
)

// Hat is an account's delegation fan-out: an ordered list of
// recipients with basis-point proportions summing to exactly 10,000.
// The zero hat (no entries) means "delegate to self".
type Hat struct {
	Recipients  []Address
	Proportions []uint32
}

// IsZero reports whether the hat is the self hat.
func (h Hat) IsZero() bool {
	return len(h.Recipients) == 0
}

// Validate checks a non-zero hat: matching lengths, positive
// proportions, and an exact 10,000 bp sum. The zero hat is valid.
func (h Hat) Validate() error {
	if h.IsZero() {
		if len(h.Proportions) != 0 {
			return ErrInvalidHatLength
		}
		return nil
	}
	if len(h.Recipients) != len(h.Proportions) {
		return ErrInvalidHatLength
	}
	for _, r := range h.Recipients {
		if !r.Valid() {
			return ErrInvalidAddress
		}
	}
	return split.ValidateProportions(h.Proportions)
}

// Clone returns a deep copy.
func (h Hat) Clone() Hat {
	if h.IsZero() {
		return Hat{}
	}
	c := Hat{
		Recipients:  make([]Address, len(h.Recipients)),
		Proportions: make([]uint32, len(h.Proportions)),
	}
	copy(c.Recipients, h.Recipients)
	copy(c.Proportions, h.Proportions)
	return c
}

// Snapshot converts the hat to its event log representation.
func (h Hat) Snapshot() event.HatSnapshot {
	snap := event.HatSnapshot{
		Recipients:  make([]string, len(h.Recipients)),
		Proportions: make([]uint32, len(h.Proportions)),
	}
	for i, r := range h.Recipients {
		snap.Recipients[i] = string(r)
	}
	copy(snap.Proportions, h.Proportions)
	return snap
}
