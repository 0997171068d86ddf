package ncval

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
	"github.com/colorfulnotion/ncval/ncvalerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHost = cpufeatures.NewFeatures(cpufeatures.FullSet())

func nops(n int) []byte {
	return bytes.Repeat([]byte{0x90}, n)
}

// region concatenates parts and pads with nops to size.
func region(size int, parts ...[]byte) []byte {
	code := bytes.Join(parts, nil)
	if len(code) > size {
		panic("region overflow")
	}
	return append(code, nops(size-len(code))...)
}

func run(code []byte, options Options, f *cpufeatures.Features) ([]Diagnostic, bool) {
	var diags []Diagnostic
	ok := ValidateChunk(code, options, f, func(begin, end int, info Info) bool {
		diags = append(diags, Diagnostic{Begin: begin, End: end, Info: info})
		return !info.IsError()
	})
	return diags, ok
}

func TestAllNopBundle(t *testing.T) {
	code := nops(32)
	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)

	diags, ok = run(code, CallUserCallbackOnEachInstruction, fullHost)
	assert.True(t, ok)
	require.Len(t, diags, 32)
	for i, d := range diags {
		assert.Equal(t, Diagnostic{Begin: i, End: i + 1}, d)
	}
}

func TestShortJumpOutOfRange(t *testing.T) {
	code := region(32, nops(30), []byte{0xeb, 0x0a})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{
		{Begin: 30, End: 32, Info: ncvaltypes.Relative8Bit | ncvaltypes.DirectJumpOutOfRange},
	}, diags)
}

func TestJumpToAlignedTargetOutsideRegion(t *testing.T) {
	code := region(32, nops(30), []byte{0xeb, 0x20})
	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)
}

func TestMaskedCallAlignment(t *testing.T) {
	masked := []byte{0x83, 0xe0, 0xe0, 0xff, 0xd0}

	code := region(32, nops(26), masked)
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{
		{Begin: 26, End: 31, Info: ncvaltypes.SpecialInstruction | ncvaltypes.BadCallAlignment},
	}, diags)

	code = region(32, nops(27), masked)
	diags, ok = run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)

	diags, ok = run(code, CallUserCallbackOnEachInstruction, fullHost)
	assert.True(t, ok)
	require.Len(t, diags, 29)
	assert.Equal(t, Diagnostic{Begin: 27, End: 30, Info: ncvaltypes.Immediate8Bit}, diags[27])
	assert.Equal(t, Diagnostic{Begin: 27, End: 32, Info: ncvaltypes.SpecialInstruction}, diags[28])
}

func TestMaskedJump(t *testing.T) {
	code := region(32, []byte{0x83, 0xe1, 0xe0, 0xff, 0xe1})
	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)
}

func TestFeatureMissingOnHost(t *testing.T) {
	code := region(32, []byte{0x0f, 0x40, 0xc1})
	f := cpufeatures.NewFeatures(cpufeatures.NewSet())
	diags, ok := run(code, 0, f)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 0, End: 3, Info: ncvaltypes.CPUIDUnsupportedInstruction}}, diags)
}

func TestJumpIntoInstruction(t *testing.T) {
	code := region(32, []byte{0xeb, 0x01, 0x89, 0xc0})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 3, End: 3, Info: ncvaltypes.BadJumpTarget}}, diags)
}

func TestLengthNotBundleMultiple(t *testing.T) {
	calls := 0
	ok := ValidateChunk(nops(33), 0, fullHost, func(int, int, Info) bool {
		calls++
		return true
	})
	assert.False(t, ok)
	assert.Zero(t, calls)
}

func TestEmptyRegion(t *testing.T) {
	diags, ok := run(nil, CallUserCallbackOnEachInstruction, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)
}

func TestNilArguments(t *testing.T) {
	assert.False(t, ValidateChunk(nops(32), 0, nil, func(int, int, Info) bool { return true }))
	assert.False(t, ValidateChunk(nops(32), 0, fullHost, nil))
}

func TestJumpIntoMaskedSequence(t *testing.T) {
	code := region(32, []byte{0xeb, 0x1c}, nops(25), []byte{0x83, 0xe0, 0xe0, 0xff, 0xd0})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 30, End: 30, Info: ncvaltypes.BadJumpTarget}}, diags)
}

func TestMaskedSequenceAcrossBundles(t *testing.T) {
	code := region(64, nops(29), []byte{0x83, 0xe0, 0xe0, 0xff, 0xd0})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 32, End: 34, Info: ncvaltypes.ForbiddenInstruction}}, diags)

	diags, ok = run(code, ProcessChunkAsContiguousStream, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 32, End: 34, Info: ncvaltypes.ForbiddenInstruction}}, diags)
}

func TestDirectCallAlignment(t *testing.T) {
	code := region(32, nops(27), []byte{0xe8, 0xe0, 0xff, 0xff, 0xff})
	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok, "call ends the bundle and targets offset 0")
	assert.Empty(t, diags)

	code = region(32, []byte{0xe8, 0x00, 0x00, 0x00, 0x00})
	diags, ok = run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 0, End: 5, Info: ncvaltypes.Relative32Bit | ncvaltypes.BadCallAlignment}}, diags)
}

func TestUnrecognizedAbandonsBundle(t *testing.T) {
	code := region(64, []byte{0x90, 0x0f, 0x37}, nops(29), []byte{0xc3})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{
		{Begin: 1, End: 2, Info: ncvaltypes.UnrecognizedInstruction},
		{Begin: 32, End: 33, Info: ncvaltypes.ForbiddenInstruction},
	}, diags)
}

func TestInstructionCrossingBundle(t *testing.T) {
	code := region(64, nops(30), []byte{0xb8})
	diags, ok := run(code, 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 30, End: 32, Info: ncvaltypes.UnrecognizedInstruction}}, diags)

	diags, ok = run(code, ProcessChunkAsContiguousStream, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)
}

func TestContiguousResumesAfterError(t *testing.T) {
	code := region(64, []byte{0x0f, 0x37})
	diags, ok := run(code, ProcessChunkAsContiguousStream|CallUserCallbackOnEachInstruction, fullHost)
	assert.False(t, ok)
	require.Len(t, diags, 33)
	assert.Equal(t, Diagnostic{Begin: 0, End: 1, Info: ncvaltypes.UnrecognizedInstruction}, diags[0])
	assert.Equal(t, Diagnostic{Begin: 32, End: 33}, diags[1])
}

func TestContiguousResumesAtBundleAfterStart(t *testing.T) {
	// The bad byte is the first byte of the second bundle; scanning resumes
	// there rather than skipping the bundle.
	code := region(96, nops(31), []byte{0x0f, 0x37}, nops(7), []byte{0xc3})
	diags, ok := run(code, ProcessChunkAsContiguousStream, fullHost)
	assert.False(t, ok)
	require.Len(t, diags, 2)
	assert.Equal(t, Diagnostic{Begin: 31, End: 32, Info: ncvaltypes.UnrecognizedInstruction}, diags[0])
	assert.Equal(t, 40, diags[1].Begin)
	assert.Equal(t, 41, diags[1].End)
	assert.True(t, diags[1].Info.Has(ncvaltypes.ForbiddenInstruction))
}

func TestVEXFeatureGating(t *testing.T) {
	code := region(32, []byte{0xc4, 0xe2, 0x79, 0xdc, 0xc1})

	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)

	noAVX := &cpufeatures.Features{Host: cpufeatures.FullSet(), Policy: cpufeatures.ValidatorPolicy.Without(cpufeatures.AVX)}
	diags, ok = run(code, 0, noAVX)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 0, End: 5, Info: ncvaltypes.CPUIDPolicyDisallowed}}, diags)

	noAES := cpufeatures.NewFeatures(cpufeatures.FullSet().Without(cpufeatures.AES))
	diags, ok = run(code, 0, noAES)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 0, End: 5, Info: ncvaltypes.CPUIDUnsupportedInstruction}}, diags)
}

func TestGSRelativeLoad(t *testing.T) {
	code := region(32, []byte{0x65, 0xa1, 0, 0, 0, 0}, []byte{0x65, 0x8b, 0x0d, 0x04, 0, 0, 0})
	diags, ok := run(code, 0, fullHost)
	assert.True(t, ok)
	assert.Empty(t, diags)

	diags, ok = run(region(32, []byte{0x65, 0x89, 0x00}), 0, fullHost)
	assert.False(t, ok)
	assert.Equal(t, []Diagnostic{{Begin: 0, End: 1, Info: ncvaltypes.UnrecognizedInstruction}}, diags)
}

func TestForbiddenInstructions(t *testing.T) {
	forbidden := [][]byte{
		{0xc3},
		{0xc2, 0x08, 0x00},
		{0xcd, 0x80},
		{0xcc},
		{0xfa},
		{0xec},
		{0xe4, 0x60},
		{0x8e, 0xd8},
		{0x0f, 0x05},
		{0x0f, 0x34},
		{0x0f, 0x30},
		{0x0f, 0x01, 0xd0},
		{0xff, 0xd0},
		{0xff, 0xe0},
		{0xff, 0x10},
		{0xff, 0x18},
		{0x9a, 0, 0, 0, 0, 0x08, 0},
		{0xea, 0, 0, 0, 0, 0x08, 0},
	}
	for _, insn := range forbidden {
		code := region(32, insn)
		diags, ok := run(code, 0, fullHost)
		assert.False(t, ok, "% x", insn)
		if assert.Len(t, diags, 1, "% x", insn) {
			assert.Equal(t, 0, diags[0].Begin)
			assert.Equal(t, len(insn), diags[0].End)
			assert.True(t, diags[0].Info.Has(ncvaltypes.ForbiddenInstruction), "% x: %s", insn, diags[0].Info)
		}
	}
}

func TestIdempotent(t *testing.T) {
	code := region(64, []byte{0xeb, 0x01, 0x89, 0xc0, 0x0f, 0x40, 0xc1}, nops(20), []byte{0xe8, 0, 0, 0, 0})
	f := cpufeatures.NewFeatures(cpufeatures.NewSet())
	first, ok1 := run(code, CallUserCallbackOnEachInstruction, f)
	second, ok2 := run(code, CallUserCallbackOnEachInstruction, f)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

// Every reported bad jump target must be an offset where no instruction
// starts, and no reported instruction may cross a bundle boundary.
func TestTargetsAndContainment(t *testing.T) {
	code := region(96,
		[]byte{0xeb, 0x01, 0x89, 0xc0},
		[]byte{0x74, 0x05},
		[]byte{0x0f, 0x85, 0x12, 0x00, 0x00, 0x00},
		nops(17),
		[]byte{0xb8, 1, 2, 3, 4},
		nops(30),
		[]byte{0xe9, 0xc0, 0xff, 0xff, 0xff},
	)
	diags, _ := run(code, CallUserCallbackOnEachInstruction, fullHost)
	starts := map[int]bool{}
	var bad []int
	for _, d := range diags {
		if d.Info.Has(ncvaltypes.BadJumpTarget) {
			bad = append(bad, d.Begin)
			continue
		}
		if d.Info.Has(ncvaltypes.UnrecognizedInstruction) {
			continue
		}
		starts[d.Begin] = true
		assert.Equal(t, d.Begin/BundleSize, (d.End-1)/BundleSize, "%+v crosses a bundle", d)
	}
	require.NotEmpty(t, bad)
	for _, off := range bad {
		assert.False(t, starts[off], "bad target %#x is an instruction start", off)
	}
}

func TestCPUGatingMonotonic(t *testing.T) {
	code := region(32, []byte{0x0f, 0x40, 0xc1}, []byte{0x66, 0x0f, 0xef, 0xc1})
	with := func(host, policy cpufeatures.Set) bool {
		return ValidateChunk(code, 0, &cpufeatures.Features{Host: host, Policy: policy}, func(_, _ int, info Info) bool {
			return !info.IsError()
		})
	}
	small := cpufeatures.NewSet(cpufeatures.CMOV)
	large := cpufeatures.NewSet(cpufeatures.CMOV, cpufeatures.SSE2)
	assert.False(t, with(small, cpufeatures.ValidatorPolicy))
	assert.True(t, with(large, cpufeatures.ValidatorPolicy))
	assert.True(t, with(cpufeatures.FullSet(), cpufeatures.ValidatorPolicy))
	assert.False(t, with(cpufeatures.FullSet(), cpufeatures.ValidatorPolicy.Without(cpufeatures.SSE2)))

	diags, _ := run(code, 0, &cpufeatures.Features{Host: cpufeatures.NewSet(), Policy: cpufeatures.NewSet()})
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, ncvaltypes.CPUIDPolicyDisallowed, d.Info, "policy is checked before the host")
	}
}

func TestCallbackAcceptsErrors(t *testing.T) {
	code := region(32, []byte{0xc3})
	calls := 0
	ok := ValidateChunk(code, 0, fullHost, func(int, int, Info) bool {
		calls++
		return true
	})
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(nops(64), 0, fullHost))

	err := Check(region(32, []byte{0xeb, 0x01, 0x89, 0xc0, 0xc3}), 0, fullHost)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Diagnostics, 2)
	assert.True(t, errors.Is(err, ncvalerrors.ErrUnsafeCode))
	assert.True(t, errors.Is(err, ncvalerrors.ErrBadJumpTarget))
	assert.True(t, errors.Is(err, ncvalerrors.ErrForbiddenInstruction))
	assert.False(t, errors.Is(err, ncvalerrors.ErrBadCallAlignment))
	assert.Contains(t, err.Error(), "UnsafeCode")

	err = Check(nops(40), 0, fullHost)
	assert.ErrorIs(t, err, ncvalerrors.ErrLengthNotBundleMultiple)
	assert.ErrorIs(t, Check(nops(32), 0, nil), ncvalerrors.ErrNilFeatures)
}

func TestDefaultArch(t *testing.T) {
	assert.Equal(t, "x86-32", DefaultArch().Name())
	assert.Same(t, DefaultArch().Table(), DefaultArch().Table())

	code := region(32, []byte{0xeb, 0x01, 0x89, 0xc0})
	r := Collect(code, 0, fullHost)
	assert.Equal(t, CollectArch(DefaultArch(), code, 0, fullHost), r)
}

func TestCollect(t *testing.T) {
	r := Collect(region(32, []byte{0xc3}), CallUserCallbackOnEachInstruction, fullHost)
	assert.False(t, r.Valid)
	assert.Equal(t, "x86-32", r.Arch)
	assert.Equal(t, 32, r.Size)
	assert.Len(t, r.Diagnostics, 32)
	assert.Len(t, r.Errors(), 1)
}

func TestValidateAll(t *testing.T) {
	regions := []Region{
		{Name: "nops", Code: nops(64)},
		{Name: "ret", Code: region(32, []byte{0xc3})},
		{Name: "short", Code: nops(31)},
	}
	results, err := ValidateAll(context.Background(), regions, 0, fullHost, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "nops", results[0].Name)
	assert.True(t, results[0].Valid)
	assert.Equal(t, "ret", results[1].Name)
	assert.False(t, results[1].Valid)
	assert.False(t, results[2].Valid)
	assert.Empty(t, results[2].Diagnostics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ValidateAll(ctx, regions, 0, fullHost, 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ValidateAll(context.Background(), regions, 0, nil, 1)
	assert.ErrorIs(t, err, ncvalerrors.ErrNilFeatures)
}
