package cpufeatures

import (
	"strings"
)

// Set is a capability vector with one bit per Feature.
type Set uint64

// NewSet returns a set holding exactly the given features.
func NewSet(features ...Feature) Set {
	var s Set
	for _, f := range features {
		s = s.With(f)
	}
	return s
}

// FullSet holds every known feature.
func FullSet() Set {
	return Set(1)<<NumFeatures - 1
}

func (s Set) Has(f Feature) bool {
	return f < NumFeatures && s&(Set(1)<<f) != 0
}

func (s Set) With(f Feature) Set {
	if f >= NumFeatures {
		return s
	}
	return s | Set(1)<<f
}

func (s Set) Without(f Feature) Set {
	if f >= NumFeatures {
		return s
	}
	return s &^ (Set(1) << f)
}

// Features lists the members of s in declaration order.
func (s Set) Features() []Feature {
	var out []Feature
	for f := Feature(0); f < NumFeatures; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, NumFeatures)
	for _, f := range s.Features() {
		names = append(names, f.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

// ValidatorPolicy is the maximal set of extensions the sandbox permits,
// independent of what the current host supports. LWP is excluded: its
// instructions write an OS-managed control block.
var ValidatorPolicy = FullSet().Without(LWP)

// Requirement is the feature condition an instruction depends on. All lists
// features that must all be present; Any lists alternatives of which one
// suffices. An empty Requirement is always satisfied.
type Requirement struct {
	All []Feature
	Any []Feature
}

// Require builds a requirement on every listed feature.
func Require(features ...Feature) Requirement {
	return Requirement{All: features}
}

// RequireAny builds a requirement satisfied by any one of the features.
func RequireAny(features ...Feature) Requirement {
	return Requirement{Any: features}
}

func (r Requirement) IsZero() bool {
	return len(r.All) == 0 && len(r.Any) == 0
}

// SatisfiedBy reports whether s fulfils r.
func (r Requirement) SatisfiedBy(s Set) bool {
	for _, f := range r.All {
		if !s.Has(f) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, f := range r.Any {
		if s.Has(f) {
			return true
		}
	}
	return false
}

func (r Requirement) String() string {
	var parts []string
	if len(r.All) > 0 {
		names := make([]string, len(r.All))
		for i, f := range r.All {
			names[i] = f.String()
		}
		parts = append(parts, strings.Join(names, "&"))
	}
	if len(r.Any) > 0 {
		names := make([]string, len(r.Any))
		for i, f := range r.Any {
			names[i] = f.String()
		}
		parts = append(parts, "("+strings.Join(names, "|")+")")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "&")
}

// Features is the immutable pair of vectors a validation call consults.
type Features struct {
	Host   Set
	Policy Set
}

// NewFeatures pairs a host vector with the default validator policy.
func NewFeatures(host Set) *Features {
	return &Features{Host: host, Policy: ValidatorPolicy}
}

// PolicyAllows reports whether the sandbox permits r regardless of the host.
func (f *Features) PolicyAllows(r Requirement) bool {
	return r.SatisfiedBy(f.Policy)
}

// HostHas reports whether the host can execute instructions requiring r.
func (f *Features) HostHas(r Requirement) bool {
	return r.SatisfiedBy(f.Host)
}
