package ia32

import (
	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

// prefixCtx is the legacy prefix an opcode map is entered with.
type prefixCtx uint8

const (
	ctxNone   prefixCtx = 1 << iota
	ctxData16           // 66
	ctxRep              // F3
	ctxRepne            // F2
	ctxLock             // F0
	ctxHint             // 2E, 3E branch hints
	ctxGS               // 65, thread pointer loads
	ctxVEX              // C4/C5 encoded forms, never a legacy opcode map
)

var allContexts = []prefixCtx{ctxNone, ctxData16, ctxRep, ctxRepne, ctxLock, ctxHint, ctxGS}

// prefixBytes enter the opcode map of a non-default context.
var prefixBytes = map[byte]prefixCtx{
	0x66: ctxData16,
	0xf3: ctxRep,
	0xf2: ctxRepne,
	0xf0: ctxLock,
	0x2e: ctxHint,
	0x3e: ctxHint,
	0x65: ctxGS,
}

// memoryOnly reports whether ctx admits only memory ModRM forms.
func (c prefixCtx) memoryOnly() bool {
	return c == ctxLock || c == ctxGS
}

// vexMap is the opcode map selected by the VEX mmmmm field.
type vexMap uint8

const (
	map0F   vexMap = 1
	map0F38 vexMap = 2
	map0F3A vexMap = 3
)

// vexPP is the implied legacy prefix selected by the VEX pp field.
type vexPP uint8

const (
	ppNone vexPP = iota
	pp66
	ppF3
	ppF2
)

// vexKey selects one VEX opcode map.
type vexKey struct {
	m  vexMap
	pp vexPP
	l  uint8
}

type modrmForm uint8

const (
	noModRM modrmForm = iota
	modrmAny
	modrmReg // mod == 3
	modrmMem // mod != 3
)

type operand uint8

const (
	opNone operand = iota
	opImm8
	opImm16
	opImmZ // 16 bits under a 66 prefix, 32 otherwise
	opRel8
	opRel32
	opMoffs
	opFarPtr
)

// size returns the operand length in bytes and the Info bits describing it.
func (o operand) size(ctx prefixCtx) (int, ncvaltypes.Info) {
	switch o {
	case opImm8:
		return 1, ncvaltypes.Immediate8Bit
	case opImm16:
		return 2, ncvaltypes.Immediate16Bit
	case opImmZ:
		if ctx == ctxData16 {
			return 2, ncvaltypes.Immediate16Bit
		}
		return 4, ncvaltypes.Immediate32Bit
	case opRel8:
		return 1, ncvaltypes.Relative8Bit
	case opRel32:
		return 4, ncvaltypes.Relative32Bit
	case opMoffs:
		return 4, ncvaltypes.Displacement32Bit
	case opFarPtr:
		return 6, ncvaltypes.Immediate32Bit | ncvaltypes.Immediate16Bit
	}
	return 0, 0
}

// opcodeDef describes one opcode form: the bytes after any prefix, how the
// ModRM byte is constrained, the trailing operand and the opcode class.
type opcodeDef struct {
	name    string
	ctx     prefixCtx
	opcode  []byte
	form    modrmForm
	reg     int8
	operand operand
	class   ncvaltypes.Class

	// escape is 2 or 3 when the register forms of this opcode are really a
	// two- or three-byte VEX prefix.
	escape uint8
	// VEX forms only.
	vex  vexKey
	anyL bool
}

func (d *opcodeDef) inVEXMap(k vexKey) bool {
	return d.ctx == ctxVEX && d.vex.m == k.m && d.vex.pp == k.pp && (d.anyL || d.vex.l == k.l)
}

func (d *opcodeDef) matches(mod, reg byte) bool {
	if d.reg >= 0 && byte(d.reg) != reg {
		return false
	}
	switch d.form {
	case modrmReg:
		return mod == 3
	case modrmMem:
		return mod != 3
	}
	return true
}

// defList accumulates definitions through a fluent builder.
type defList struct {
	defs []*opcodeDef
}

// defBuilder edits every definition produced by one op/opR/grp call.
type defBuilder struct {
	defs []*opcodeDef
}

func (l *defList) add(d *opcodeDef) *defBuilder {
	l.defs = append(l.defs, d)
	return &defBuilder{defs: []*opcodeDef{d}}
}

// op defines an opcode without a ModRM byte.
func (l *defList) op(name string, opcode ...byte) *defBuilder {
	return l.add(&opcodeDef{name: name, ctx: ctxNone, opcode: opcode, reg: -1, class: ncvaltypes.Plain{}})
}

// opR defines eight opcodes that encode a register in the low three bits of
// the last opcode byte.
func (l *defList) opR(name string, opcode ...byte) *defBuilder {
	b := &defBuilder{}
	for r := byte(0); r < 8; r++ {
		bytes := append([]byte(nil), opcode...)
		bytes[len(bytes)-1] += r
		d := &opcodeDef{name: name, ctx: ctxNone, opcode: bytes, reg: -1, class: ncvaltypes.Plain{}}
		l.defs = append(l.defs, d)
		b.defs = append(b.defs, d)
	}
	return b
}

// rm defines an opcode followed by a ModRM byte with any reg field.
func (l *defList) rm(name string, opcode ...byte) *defBuilder {
	return l.add(&opcodeDef{name: name, ctx: ctxNone, opcode: opcode, form: modrmAny, reg: -1, class: ncvaltypes.Plain{}})
}

// vex defines a VEX encoded form with a ModRM byte, valid for either vector
// length unless restricted by L128 or L256.
func (l *defList) vex(name string, m vexMap, pp vexPP, opcode byte) *defBuilder {
	return l.add(&opcodeDef{
		name: name, ctx: ctxVEX, opcode: []byte{opcode}, form: modrmAny, reg: -1,
		class: ncvaltypes.Plain{}, vex: vexKey{m: m, pp: pp}, anyL: true,
	})
}

// grp defines a ModRM opcode whose reg field selects the operation.
func (l *defList) grp(name string, reg int8, opcode ...byte) *defBuilder {
	return l.add(&opcodeDef{name: name, ctx: ctxNone, opcode: opcode, form: modrmAny, reg: reg, class: ncvaltypes.Plain{}})
}

func (b *defBuilder) each(f func(d *opcodeDef)) *defBuilder {
	for _, d := range b.defs {
		f(d)
	}
	return b
}

func (b *defBuilder) Imm8() *defBuilder   { return b.each(func(d *opcodeDef) { d.operand = opImm8 }) }
func (b *defBuilder) Imm16() *defBuilder  { return b.each(func(d *opcodeDef) { d.operand = opImm16 }) }
func (b *defBuilder) ImmZ() *defBuilder   { return b.each(func(d *opcodeDef) { d.operand = opImmZ }) }
func (b *defBuilder) Moffs() *defBuilder  { return b.each(func(d *opcodeDef) { d.operand = opMoffs }) }
func (b *defBuilder) FarPtr() *defBuilder { return b.each(func(d *opcodeDef) { d.operand = opFarPtr }) }

func (b *defBuilder) RegOnly() *defBuilder { return b.each(func(d *opcodeDef) { d.form = modrmReg }) }
func (b *defBuilder) MemOnly() *defBuilder { return b.each(func(d *opcodeDef) { d.form = modrmMem }) }

// L128 and L256 restrict a VEX form to one vector length.
func (b *defBuilder) L128() *defBuilder {
	return b.each(func(d *opcodeDef) { d.anyL, d.vex.l = false, 0 })
}

func (b *defBuilder) L256() *defBuilder {
	return b.each(func(d *opcodeDef) { d.anyL, d.vex.l = false, 1 })
}

// NoModRM marks a VEX form that ends at its opcode byte.
func (b *defBuilder) NoModRM() *defBuilder { return b.each(func(d *opcodeDef) { d.form = noModRM }) }

// Escape marks the register forms of a ModRM opcode as a VEX prefix of n bytes.
func (b *defBuilder) Escape(n uint8) *defBuilder { return b.each(func(d *opcodeDef) { d.escape = n }) }

// GS also accepts the form after a %gs segment override.
func (b *defBuilder) GS() *defBuilder { return b.each(func(d *opcodeDef) { d.ctx |= ctxGS }) }

// Data16 also accepts the form after an operand-size prefix.
func (b *defBuilder) Data16() *defBuilder { return b.each(func(d *opcodeDef) { d.ctx |= ctxData16 }) }

// Lock also accepts the form, memory destination only, after a lock prefix.
func (b *defBuilder) Lock() *defBuilder { return b.each(func(d *opcodeDef) { d.ctx |= ctxLock }) }

// Rep and Repne also accept the form after F3/F2.
func (b *defBuilder) Rep() *defBuilder   { return b.each(func(d *opcodeDef) { d.ctx |= ctxRep }) }
func (b *defBuilder) Repne() *defBuilder { return b.each(func(d *opcodeDef) { d.ctx |= ctxRepne }) }

// Only restricts the form to exactly one prefix context.
func (b *defBuilder) Only(ctx prefixCtx) *defBuilder {
	return b.each(func(d *opcodeDef) { d.ctx = ctx })
}

// Mem marks forms without ModRM that still address memory.
func (b *defBuilder) Mem() *defBuilder {
	return b.each(func(d *opcodeDef) { d.class = ncvaltypes.MemoryReference{} })
}

func (b *defBuilder) Needs(features ...cpufeatures.Feature) *defBuilder {
	return b.each(func(d *opcodeDef) {
		d.class = ncvaltypes.FeatureGated{Requires: cpufeatures.Require(features...)}
	})
}

func (b *defBuilder) NeedsAny(features ...cpufeatures.Feature) *defBuilder {
	return b.each(func(d *opcodeDef) {
		d.class = ncvaltypes.FeatureGated{Requires: cpufeatures.RequireAny(features...)}
	})
}

// Branch makes the form a direct jump with a relative operand.
func (b *defBuilder) Branch(rel operand) *defBuilder {
	return b.each(func(d *opcodeDef) {
		d.operand = rel
		d.class = ncvaltypes.ControlTransfer{Kind: ncvaltypes.DirectJump}
	})
}

// Call makes the form a direct call with a 32-bit relative operand.
func (b *defBuilder) Call() *defBuilder {
	return b.each(func(d *opcodeDef) {
		d.operand = opRel32
		d.class = ncvaltypes.ControlTransfer{Kind: ncvaltypes.DirectCall}
	})
}

// Hint also accepts the form after a 2E/3E branch hint.
func (b *defBuilder) Hint() *defBuilder { return b.each(func(d *opcodeDef) { d.ctx |= ctxHint }) }

func (b *defBuilder) Indirect(kind ncvaltypes.TransferKind) *defBuilder {
	return b.each(func(d *opcodeDef) { d.class = ncvaltypes.ControlTransfer{Kind: kind} })
}

func (b *defBuilder) Forbid(reason string) *defBuilder {
	return b.each(func(d *opcodeDef) { d.class = ncvaltypes.Forbidden{Reason: reason} })
}
