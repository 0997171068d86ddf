package ia32

import "github.com/colorfulnotion/ncval/ncval/ncvaltypes"

const (
	opGroup1Imm8  = 0x83
	opGroup5      = 0xff
	modrmAndReg   = 0xe0 // mod=3 reg=4 (and)
	modrmCallReg  = 0xd0 // mod=3 reg=2 (call)
	modrmJmpReg   = 0xe0 // mod=3 reg=4 (jmp)
	registerMask  = 0x07
	regESP        = 4
	bundleMaskImm = 0xe0 // -32 sign extended
)

// bundleMaskRegister reports whether b is "and $-32, %reg" and returns reg.
// The stack pointer is never accepted as a transfer register.
func bundleMaskRegister(b []byte) (byte, bool) {
	if len(b) != 3 || b[0] != opGroup1Imm8 || b[1]&^registerMask != modrmAndReg || b[2] != bundleMaskImm {
		return 0, false
	}
	reg := b[1] & registerMask
	return reg, reg != regESP
}

// indirectTargetRegister reports whether b is "call *%reg" or "jmp *%reg"
// and returns reg.
func indirectTargetRegister(b []byte) (byte, bool) {
	if len(b) != 2 || b[0] != opGroup5 {
		return 0, false
	}
	switch b[1] &^ registerMask {
	case modrmCallReg, modrmJmpReg:
		return b[1] & registerMask, true
	}
	return 0, false
}

// MaskedIndirect recognizes a register indirect call or jump immediately
// preceded by masking the same register to a bundle boundary.
type MaskedIndirect struct{}

func (MaskedIndirect) Name() string { return "masked-indirect" }

func (MaskedIndirect) Match(code []byte, prev, cur *ncvaltypes.Instruction) bool {
	masked, ok := bundleMaskRegister(code[prev.Start:prev.End])
	if !ok {
		return false
	}
	target, ok := indirectTargetRegister(code[cur.Start:cur.End])
	return ok && target == masked
}
