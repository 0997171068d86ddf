package cpufeatures

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/colorfulnotion/ncval/log"
)

// hostChecks maps each Feature to a cpuid feature test. Features without a
// direct cpuid flag are derived from the extension that introduced them.
var hostChecks = [NumFeatures]func(c *cpuid.CPUInfo) bool{
	F3DNOW:  func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.AMD3DNOW) },
	AES:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.AESNI) },
	AVX:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.AVX) },
	BMI1:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.BMI1) },
	CLFLUSH: func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE2) },
	CLMUL:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.CLMUL) },
	CMOV:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.CMOV) },
	CX16:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.CX16) },
	CX8:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.CMPXCHG8) },
	E3DNOW:  func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.AMD3DNOWEXT) },
	EMMX:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.MMXEXT) },
	F16C:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.F16C) },
	FMA:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.FMA3) },
	FMA4:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.FMA4) },
	FXSR:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.FXSR) },
	LAHF:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.LAHF) },
	LM:      func(c *cpuid.CPUInfo) bool { return runtime.GOARCH == "amd64" },
	LWP:     func(c *cpuid.CPUInfo) bool { return false },
	LZCNT:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.LZCNT) },
	MMX:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.MMX) },
	MON:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE3) },
	MOVBE:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.MOVBE) },
	OSXSAVE: func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.OSXSAVE) },
	POPCNT:  func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.POPCNT) },
	PRE:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.AMD3DNOW) },
	SSE:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE) },
	SSE2:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE2) },
	SSE3:    func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE3) },
	SSE41:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE4) },
	SSE42:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE42) },
	SSE4A:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSE4A) },
	SSSE3:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.SSSE3) },
	TBM:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.TBM) },
	TSC:     func(c *cpuid.CPUInfo) bool { return c.VendorID != cpuid.VendorUnknown },
	TZCNT:   func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.BMI1) },
	X87:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.X87) },
	XOP:     func(c *cpuid.CPUInfo) bool { return c.Has(cpuid.XOP) },
}

// FromCPUInfo converts a cpuid report into a Set. On non-x86 machines cpuid
// reports nothing and the resulting set is empty.
func FromCPUInfo(c *cpuid.CPUInfo) Set {
	var s Set
	for f := Feature(0); f < NumFeatures; f++ {
		if hostChecks[f](c) {
			s = s.With(f)
		}
	}
	return s
}

// DetectHost reports the features of the CPU the process runs on.
func DetectHost() Set {
	s := FromCPUInfo(&cpuid.CPU)
	log.Debug(log.CPUFeatures, "DetectHost", "brand", cpuid.CPU.BrandName, "vendor", cpuid.CPU.VendorString, "features", s.String())
	return s
}
