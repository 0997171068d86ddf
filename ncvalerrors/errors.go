package ncvalerrors

import (
	"errors"
	"strings"
)

// Precondition (P) Errors
var (
	ErrLengthNotBundleMultiple = errors.New("P1|LengthNotBundleMultiple: Code region length is not a multiple of the bundle size.")
	ErrNilFeatures             = errors.New("P2|NilFeatures: No CPU feature vectors were supplied.")
)

// Decode (U) Errors
var (
	ErrUnrecognizedInstruction = errors.New("U1|UnrecognizedInstruction: No instruction matches the bytes at this offset.")
	ErrForbiddenInstruction    = errors.New("U2|ForbiddenInstruction: Instruction is never allowed inside the sandbox.")
)

// CPU feature (C) Errors
var (
	ErrCPUIDUnsupported      = errors.New("C1|CPUIDUnsupportedInstruction: Instruction requires a CPU feature the host lacks.")
	ErrCPUIDPolicyDisallowed = errors.New("C2|CPUIDPolicyDisallowed: Instruction requires a CPU feature the sandbox policy does not permit.")
)

// Alignment (A) Errors
var (
	ErrBadCallAlignment = errors.New("A1|BadCallAlignment: Call instruction does not end at a bundle boundary.")
)

// Control flow (J) Errors
var (
	ErrDirectJumpOutOfRange = errors.New("J1|DirectJumpOutOfRange: Direct jump target lies outside the code region and is not bundle aligned.")
	ErrBadJumpTarget        = errors.New("J2|BadJumpTarget: Direct jump targets an offset that is not an instruction boundary.")
)

// Verdict and input (L) Errors
var (
	ErrUnsafeCode        = errors.New("L1|UnsafeCode: Code region failed validation.")
	ErrMalformedConfig   = errors.New("L2|MalformedConfig: Configuration file could not be parsed.")
	ErrUnknownFeature    = errors.New("L3|UnknownFeature: Unknown CPU feature name.")
	ErrMalformedHex      = errors.New("L4|MalformedHex: Hex text input contains an invalid byte.")
	ErrNoTextSection     = errors.New("L5|NoTextSection: ELF input has no executable text section.")
	ErrUnsupportedFormat = errors.New("L6|UnsupportedFormat: Input format is not recognized.")
	ErrUnalignedText     = errors.New("L7|UnalignedText: ELF text section is not loaded at a bundle boundary.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	if len(parts) < 2 {
		return errStr
	}
	nameDesc := parts[1]
	// Split on ':' to separate the error name from its description.
	nameParts := strings.SplitN(nameDesc, ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	parts := strings.SplitN(errStr, ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
