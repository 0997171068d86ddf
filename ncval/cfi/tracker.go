// Package cfi tracks instruction starts and direct jump destinations over a
// code region and reports destinations that do not land on an instruction.
package cfi

import "github.com/bits-and-blooms/bitset"

// BundleMask selects the offset within a 32-byte bundle.
const BundleMask = 31

// Tracker holds two bitsets over the region: offsets where an instruction
// starts, and offsets targeted by a direct transfer. A Tracker is used by a
// single validation and is not safe for concurrent use.
type Tracker struct {
	size         int
	validTargets *bitset.BitSet
	jumpDests    *bitset.BitSet
}

func NewTracker(size int) *Tracker {
	return &Tracker{
		size:         size,
		validTargets: bitset.New(uint(size)),
		jumpDests:    bitset.New(uint(size)),
	}
}

// RecordInstructionStart marks off as a legal jump destination.
func (t *Tracker) RecordInstructionStart(off int) {
	if off >= 0 && off < t.size {
		t.validTargets.Set(uint(off))
	}
}

// RecordTarget records the absolute destination of a direct jump or call.
// It returns false when the destination is outside the region.
// Bundle-aligned destinations are always acceptable and are not recorded.
func (t *Tracker) RecordTarget(target int64) bool {
	if target&BundleMask == 0 {
		return true
	}
	if target < 0 || target >= int64(t.size) {
		return false
	}
	t.jumpDests.Set(uint(target))
	return true
}

// RetractTarget clears off from the legal destinations; used when an
// instruction turns out to be the tail of a fused sequence.
func (t *Tracker) RetractTarget(off int) {
	if off >= 0 && off < t.size {
		t.validTargets.Clear(uint(off))
	}
}

// RetractTargetRange clears every legal destination in [off, off+n).
func (t *Tracker) RetractTargetRange(off, n int) {
	for i := off; i < off+n; i++ {
		t.RetractTarget(i)
	}
}

func (t *Tracker) IsValidTarget(off int) bool {
	return off >= 0 && off < t.size && t.validTargets.Test(uint(off))
}

// Reconcile invokes cb, in ascending order, for each recorded destination
// that is not an instruction start. It returns false if any call returned
// false.
func (t *Tracker) Reconcile(cb func(off int) bool) bool {
	result := true
	bad := t.jumpDests.Difference(t.validTargets)
	for i, ok := bad.NextSet(0); ok; i, ok = bad.NextSet(i + 1) {
		result = cb(int(i)) && result
	}
	return result
}
