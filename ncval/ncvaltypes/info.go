// Package ncvaltypes holds the types shared by the decoder, the architecture
// tables and the validation driver.
package ncvaltypes

import (
	"strings"

	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// Info is the per-instruction bitmask handed to the validation callback. The
// low bits describe the operand encoding and never cause rejection; the bits
// in ValidationErrorsMask do.
type Info uint32

const (
	Immediate8Bit Info = 1 << iota
	Immediate16Bit
	Immediate32Bit
	SecondImmediate8Bit
	Displacement8Bit
	Displacement32Bit
	Relative8Bit
	Relative32Bit

	UnrecognizedInstruction
	DirectJumpOutOfRange
	CPUIDUnsupportedInstruction
	CPUIDPolicyDisallowed
	ForbiddenInstruction
	BadCallAlignment
	BadJumpTarget

	SpecialInstruction
)

const (
	AnyFieldInfoMask = Immediate8Bit | Immediate16Bit | Immediate32Bit | SecondImmediate8Bit |
		Displacement8Bit | Displacement32Bit | Relative8Bit | Relative32Bit

	ValidationErrorsMask = UnrecognizedInstruction | DirectJumpOutOfRange |
		CPUIDUnsupportedInstruction | CPUIDPolicyDisallowed | ForbiddenInstruction |
		BadCallAlignment | BadJumpTarget

	RelativeMask = Relative8Bit | Relative32Bit
)

var infoNames = []struct {
	bit  Info
	name string
}{
	{Immediate8Bit, "IMMEDIATE_8BIT"},
	{Immediate16Bit, "IMMEDIATE_16BIT"},
	{Immediate32Bit, "IMMEDIATE_32BIT"},
	{SecondImmediate8Bit, "SECOND_IMMEDIATE_8BIT"},
	{Displacement8Bit, "DISPLACEMENT_8BIT"},
	{Displacement32Bit, "DISPLACEMENT_32BIT"},
	{Relative8Bit, "RELATIVE_8BIT"},
	{Relative32Bit, "RELATIVE_32BIT"},
	{UnrecognizedInstruction, "UNRECOGNIZED_INSTRUCTION"},
	{DirectJumpOutOfRange, "DIRECT_JUMP_OUT_OF_RANGE"},
	{CPUIDUnsupportedInstruction, "CPUID_UNSUPPORTED_INSTRUCTION"},
	{CPUIDPolicyDisallowed, "CPUID_POLICY_DISALLOWED"},
	{ForbiddenInstruction, "FORBIDDEN_INSTRUCTION"},
	{BadCallAlignment, "BAD_CALL_ALIGNMENT"},
	{BadJumpTarget, "BAD_JUMP_TARGET"},
	{SpecialInstruction, "SPECIAL_INSTRUCTION"},
}

// errorMessages are the ncval-style one-line descriptions of each error bit.
var errorMessages = map[Info]string{
	UnrecognizedInstruction:     "unrecognized instruction",
	DirectJumpOutOfRange:        "direct jump out of range",
	CPUIDUnsupportedInstruction: "required CPU feature not found",
	CPUIDPolicyDisallowed:       "CPU feature not allowed by sandbox policy",
	ForbiddenInstruction:        "instruction is forbidden in the sandbox",
	BadCallAlignment:            "bad call alignment",
	BadJumpTarget:               "bad jump target",
}

var errorSentinels = map[Info]error{
	UnrecognizedInstruction:     ncvalerrors.ErrUnrecognizedInstruction,
	DirectJumpOutOfRange:        ncvalerrors.ErrDirectJumpOutOfRange,
	CPUIDUnsupportedInstruction: ncvalerrors.ErrCPUIDUnsupported,
	CPUIDPolicyDisallowed:       ncvalerrors.ErrCPUIDPolicyDisallowed,
	ForbiddenInstruction:        ncvalerrors.ErrForbiddenInstruction,
	BadCallAlignment:            ncvalerrors.ErrBadCallAlignment,
	BadJumpTarget:               ncvalerrors.ErrBadJumpTarget,
}

func (i Info) Has(bits Info) bool {
	return i&bits == bits
}

// IsError reports whether any rejecting bit is set.
func (i Info) IsError() bool {
	return i&ValidationErrorsMask != 0
}

// Names lists the symbolic names of the set bits, low bits first.
func (i Info) Names() []string {
	var out []string
	for _, n := range infoNames {
		if i&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (i Info) String() string {
	if i == 0 {
		return "0"
	}
	return strings.Join(i.Names(), "|")
}

// Messages returns the human readable description of each error bit.
func (i Info) Messages() []string {
	var out []string
	for _, n := range infoNames {
		if i&n.bit != 0 {
			if msg, ok := errorMessages[n.bit]; ok {
				out = append(out, msg)
			}
		}
	}
	return out
}

// Errors maps every error bit of i to its coded sentinel.
func (i Info) Errors() []error {
	var out []error
	for _, n := range infoNames {
		if i&n.bit != 0 {
			if err, ok := errorSentinels[n.bit]; ok {
				out = append(out, err)
			}
		}
	}
	return out
}

// ParseInfoName resolves a symbolic bit name such as "BAD_JUMP_TARGET".
func ParseInfoName(name string) (Info, bool) {
	for _, n := range infoNames {
		if n.name == name {
			return n.bit, true
		}
	}
	return 0, false
}
