package ncvaltypes

import (
	"fmt"

	"github.com/colorfulnotion/ncval/cpufeatures"
)

// Class is the opcode-class tag of a decoded instruction. The set of variants
// is closed: Plain, MemoryReference, FeatureGated, ControlTransfer, Forbidden.
type Class interface {
	isClass()
	String() string
}

// Plain instructions are always allowed.
type Plain struct{}

// MemoryReference is a plain instruction whose ModRM selects a memory operand.
type MemoryReference struct{}

// FeatureGated instructions need an optional ISA extension.
type FeatureGated struct {
	Requires cpufeatures.Requirement
}

// TransferKind distinguishes the control transfer flavours.
type TransferKind uint8

const (
	DirectJump TransferKind = iota
	DirectCall
	IndirectJump
	IndirectCall
)

func (k TransferKind) String() string {
	switch k {
	case DirectJump:
		return "direct-jump"
	case DirectCall:
		return "direct-call"
	case IndirectJump:
		return "indirect-jump"
	case IndirectCall:
		return "indirect-call"
	}
	return fmt.Sprintf("transfer(%d)", uint8(k))
}

func (k TransferKind) IsCall() bool     { return k == DirectCall || k == IndirectCall }
func (k TransferKind) IsIndirect() bool { return k == IndirectJump || k == IndirectCall }

// ControlTransfer instructions change the instruction pointer. Guarded is set
// on indirect transfers once the bundle enforcer has fused them with the
// masking idiom that confines their target to bundle starts.
type ControlTransfer struct {
	Kind    TransferKind
	Guarded bool
}

// Forbidden instructions are rejected under every policy.
type Forbidden struct {
	Reason string
}

func (Plain) isClass()           {}
func (MemoryReference) isClass() {}
func (FeatureGated) isClass()    {}
func (ControlTransfer) isClass() {}
func (Forbidden) isClass()       {}

func (Plain) String() string           { return "plain" }
func (MemoryReference) String() string { return "memory" }
func (c FeatureGated) String() string  { return "cpu:" + c.Requires.String() }
func (c ControlTransfer) String() string {
	if c.Guarded {
		return c.Kind.String() + "(guarded)"
	}
	return c.Kind.String()
}
func (c Forbidden) String() string { return "forbidden:" + c.Reason }

// Entry is the static description of one opcode form in an architecture table.
type Entry struct {
	Name  string
	Class Class
}

// Instruction is produced by one decode step and consumed within the same
// step by the classifier, the control-flow tracker and the bundle enforcer.
type Instruction struct {
	Start int
	End   int
	Entry *Entry
	Class Class
	Info  Info
	// Rel is the sign-extended relative operand when Info has a Relative bit.
	Rel int64
}

func (i *Instruction) Len() int {
	return i.End - i.Start
}

// Target returns the absolute offset of a direct transfer.
func (i *Instruction) Target() int64 {
	return int64(i.End) + i.Rel
}

func (i *Instruction) String() string {
	name := "?"
	if i.Entry != nil {
		name = i.Entry.Name
	}
	return fmt.Sprintf("%#x-%#x %s [%s] %s", i.Start, i.End, name, i.Class, i.Info)
}
