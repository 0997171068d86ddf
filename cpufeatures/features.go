// Package cpufeatures describes optional x86 instruction-set extensions and
// the two capability vectors consulted by the validator: what the host CPU
// supports and what the sandbox policy permits.
package cpufeatures

import (
	"fmt"
	"strings"
)

// Feature identifies one optional instruction-set extension.
type Feature uint8

const (
	F3DNOW Feature = iota
	AES
	AVX
	BMI1
	CLFLUSH
	CLMUL
	CMOV
	CX16
	CX8
	E3DNOW
	EMMX
	F16C
	FMA
	FMA4
	FXSR
	LAHF
	LM
	LWP
	LZCNT
	MMX
	MON
	MOVBE
	OSXSAVE
	POPCNT
	PRE
	SSE
	SSE2
	SSE3
	SSE41
	SSE42
	SSE4A
	SSSE3
	TBM
	TSC
	TZCNT
	X87
	XOP

	NumFeatures
)

var featureNames = [NumFeatures]string{
	F3DNOW:  "3dnow",
	AES:     "aes",
	AVX:     "avx",
	BMI1:    "bmi1",
	CLFLUSH: "clflush",
	CLMUL:   "clmul",
	CMOV:    "cmov",
	CX16:    "cx16",
	CX8:     "cx8",
	E3DNOW:  "e3dnow",
	EMMX:    "emmx",
	F16C:    "f16c",
	FMA:     "fma",
	FMA4:    "fma4",
	FXSR:    "fxsr",
	LAHF:    "lahf",
	LM:      "lm",
	LWP:     "lwp",
	LZCNT:   "lzcnt",
	MMX:     "mmx",
	MON:     "mon",
	MOVBE:   "movbe",
	OSXSAVE: "osxsave",
	POPCNT:  "popcnt",
	PRE:     "pre",
	SSE:     "sse",
	SSE2:    "sse2",
	SSE3:    "sse3",
	SSE41:   "sse41",
	SSE42:   "sse42",
	SSE4A:   "sse4a",
	SSSE3:   "ssse3",
	TBM:     "tbm",
	TSC:     "tsc",
	TZCNT:   "tzcnt",
	X87:     "x87",
	XOP:     "xop",
}

func (f Feature) String() string {
	if f < NumFeatures {
		return featureNames[f]
	}
	return fmt.Sprintf("feature(%d)", uint8(f))
}

// ParseFeature resolves a feature by its lower-case name. A leading "cpufeature_"
// and mixed case are accepted.
func ParseFeature(name string) (Feature, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "cpufeature_")
	for f := Feature(0); f < NumFeatures; f++ {
		if featureNames[f] == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown cpu feature %q", name)
}

// AllFeatures returns every known feature in declaration order.
func AllFeatures() []Feature {
	out := make([]Feature, 0, NumFeatures)
	for f := Feature(0); f < NumFeatures; f++ {
		out = append(out, f)
	}
	return out
}
