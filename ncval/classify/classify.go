// Package classify decides whether a decoded opcode class is acceptable
// under a CPU feature policy and the host's capabilities.
package classify

import (
	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

type Verdict uint8

const (
	OK Verdict = iota
	CPUUnsupported
	CPUDisallowedByPolicy
	Forbidden
)

func (v Verdict) String() string {
	switch v {
	case OK:
		return "ok"
	case CPUUnsupported:
		return "cpuid-unsupported"
	case CPUDisallowedByPolicy:
		return "cpuid-disallowed"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Info returns the error bit reported for the verdict.
func (v Verdict) Info() ncvaltypes.Info {
	switch v {
	case CPUUnsupported:
		return ncvaltypes.CPUIDUnsupportedInstruction
	case CPUDisallowedByPolicy:
		return ncvaltypes.CPUIDPolicyDisallowed
	case Forbidden:
		return ncvaltypes.ForbiddenInstruction
	}
	return 0
}

// Classify returns the verdict for class c. The policy is consulted before
// the host: an instruction the policy excludes is reported as disallowed
// even if the host lacks it too. Indirect transfers are forbidden unless
// they were fused into a guarded idiom.
func Classify(c ncvaltypes.Class, f *cpufeatures.Features) Verdict {
	switch c := c.(type) {
	case ncvaltypes.Plain, ncvaltypes.MemoryReference:
		return OK
	case ncvaltypes.FeatureGated:
		if f == nil || !f.PolicyAllows(c.Requires) {
			return CPUDisallowedByPolicy
		}
		if !f.HostHas(c.Requires) {
			return CPUUnsupported
		}
		return OK
	case ncvaltypes.ControlTransfer:
		if c.Kind.IsIndirect() && !c.Guarded {
			return Forbidden
		}
		return OK
	}
	return Forbidden
}
