// Package bundle enforces the 32-byte bundle discipline: no instruction
// crosses a bundle boundary, calls end on a boundary, and indirect
// transfers are only accepted as part of a masking idiom.
package bundle

import (
	"github.com/colorfulnotion/ncval/ncval/cfi"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

const (
	Size = 32
	Mask = Size - 1
)

func IsAligned(off int) bool {
	return off&Mask == 0
}

// AlignUp rounds off up to the next bundle boundary.
func AlignUp(off int) int {
	return (off + Mask) &^ Mask
}

// Index returns the bundle containing off.
func Index(off int) int {
	return off / Size
}

// Special recognizes a two-instruction idiom that is validated as one unit.
type Special interface {
	Name() string
	// Match reports whether prev and cur, which immediately follows it, form
	// the idiom.
	Match(code []byte, prev, cur *ncvaltypes.Instruction) bool
}

// Enforcer applies the bundle rules during one validation.
type Enforcer struct {
	tracker    *cfi.Tracker
	specials   []Special
	contiguous bool
}

func NewEnforcer(tracker *cfi.Tracker, specials []Special, contiguous bool) *Enforcer {
	return &Enforcer{tracker: tracker, specials: specials, contiguous: contiguous}
}

// SegmentLimit returns the end of the scan segment that starts at pos. In
// bundle mode every bundle is its own segment, so no decode can cross a
// boundary.
func (e *Enforcer) SegmentLimit(pos, size int) int {
	if e.contiguous {
		return size
	}
	end := pos&^Mask + Size
	if end > size {
		end = size
	}
	return end
}

// Fuse checks whether cur completes a special idiom begun by prev. On a
// match every offset inside the idiom is retracted from the legal jump
// targets, cur is widened to start at prev and tagged as a guarded transfer.
// prev must be the instruction decoded immediately before cur in the same
// segment. An instruction starting on a bundle boundary is never fused.
func (e *Enforcer) Fuse(code []byte, prev, cur *ncvaltypes.Instruction) bool {
	if prev == nil || prev.End != cur.Start || IsAligned(cur.Start) {
		return false
	}
	ct, ok := cur.Class.(ncvaltypes.ControlTransfer)
	if !ok || !ct.Kind.IsIndirect() || ct.Guarded {
		return false
	}
	for _, s := range e.specials {
		if !s.Match(code, prev, cur) {
			continue
		}
		// Only the idiom's first byte stays a legal destination.
		e.tracker.RetractTargetRange(prev.Start+1, cur.End-prev.Start-1)
		cur.Start = prev.Start
		cur.Class = ncvaltypes.ControlTransfer{Kind: ct.Kind, Guarded: true}
		cur.Info |= ncvaltypes.SpecialInstruction
		return true
	}
	return false
}

// CheckCallAlignment returns BadCallAlignment for a call whose end, the
// return address, is not bundle aligned. Unguarded indirect calls are
// rejected elsewhere and are not checked here.
func CheckCallAlignment(inst *ncvaltypes.Instruction) ncvaltypes.Info {
	ct, ok := inst.Class.(ncvaltypes.ControlTransfer)
	if !ok || !ct.Kind.IsCall() {
		return 0
	}
	if ct.Kind.IsIndirect() && !ct.Guarded {
		return 0
	}
	if IsAligned(inst.End) {
		return 0
	}
	return ncvaltypes.BadCallAlignment
}
