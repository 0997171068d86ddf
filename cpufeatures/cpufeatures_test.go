package cpufeatures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/cpuid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/ncval/ncvalerrors"
)

func TestParseFeature(t *testing.T) {
	for _, f := range AllFeatures() {
		got, err := ParseFeature(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	f, err := ParseFeature("CPUFeature_SSE41")
	require.NoError(t, err)
	assert.Equal(t, SSE41, f)

	_, err = ParseFeature("avx512")
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	s := NewSet(SSE, SSE2)
	assert.True(t, s.Has(SSE))
	assert.False(t, s.Has(AVX))
	assert.Equal(t, []Feature{SSE, SSE2}, s.Features())
	assert.Equal(t, "[sse sse2]", s.String())
	assert.False(t, s.Without(SSE).Has(SSE))
	assert.True(t, s.With(AVX).Has(AVX))
	assert.Equal(t, s, s.With(NumFeatures), "out of range features are ignored")

	assert.Len(t, FullSet().Features(), int(NumFeatures))
	assert.False(t, ValidatorPolicy.Has(LWP))
	assert.True(t, ValidatorPolicy.Has(AVX))
}

func TestRequirement(t *testing.T) {
	cmovX87 := Require(CMOV, X87)
	prefetch := RequireAny(F3DNOW, PRE)

	assert.True(t, Requirement{}.IsZero())
	assert.True(t, Requirement{}.SatisfiedBy(0))
	assert.True(t, cmovX87.SatisfiedBy(NewSet(CMOV, X87)))
	assert.False(t, cmovX87.SatisfiedBy(NewSet(CMOV)))
	assert.True(t, prefetch.SatisfiedBy(NewSet(PRE)))
	assert.False(t, prefetch.SatisfiedBy(NewSet(SSE)))

	assert.Equal(t, "cmov&x87", cmovX87.String())
	assert.Equal(t, "(3dnow|pre)", prefetch.String())
	assert.Equal(t, "none", Requirement{}.String())

	f := &Features{Host: NewSet(PRE), Policy: NewSet(CMOV, X87)}
	assert.True(t, f.PolicyAllows(cmovX87))
	assert.False(t, f.HostHas(cmovX87))
	assert.True(t, f.HostHas(prefetch))
	assert.False(t, f.PolicyAllows(prefetch))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
policy:
  base: validator
  allow: [lwp]
  deny: [3dnow, sse4a]
host:
  mode: policy
  disable: [avx]
options:
  contiguous: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.Options.Contiguous)
	assert.False(t, cfg.Options.Trace)

	policy, err := cfg.PolicySet()
	require.NoError(t, err)
	assert.True(t, policy.Has(LWP))
	assert.False(t, policy.Has(F3DNOW))
	assert.False(t, policy.Has(SSE4A))

	f, err := cfg.Features(func() Set { t.Fatal("detect must not run in policy mode"); return 0 })
	require.NoError(t, err)
	assert.Equal(t, policy, f.Policy)
	assert.Equal(t, policy.Without(AVX), f.Host)
}

func TestConfigHostModes(t *testing.T) {
	detected := NewSet(SSE, SSE2)
	detect := func() Set { return detected }
	for mode, want := range map[string]Set{
		"":       detected,
		"detect": detected,
		"all":    FullSet(),
		"none":   0,
	} {
		cfg, err := ParseConfig([]byte("host:\n  mode: \"" + mode + "\"\n"))
		require.NoError(t, err, mode)
		f, err := cfg.Features(detect)
		require.NoError(t, err)
		assert.Equal(t, want, f.Host, mode)
		assert.Equal(t, ValidatorPolicy, f.Policy)
	}

	cfg, err := ParseConfig([]byte("policy:\n  base: none\n  allow: [sse]\n"))
	require.NoError(t, err)
	policy, err := cfg.PolicySet()
	require.NoError(t, err)
	assert.Equal(t, NewSet(SSE), policy)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("policy: [unterminated"))
	assert.ErrorIs(t, err, ncvalerrors.ErrMalformedConfig)

	_, err = ParseConfig([]byte("policy:\n  allow: [avx9000]\n"))
	assert.ErrorIs(t, err, ncvalerrors.ErrUnknownFeature)

	_, err = ParseConfig([]byte("host:\n  disable: [nope]\n"))
	assert.ErrorIs(t, err, ncvalerrors.ErrUnknownFeature)

	_, err = ParseConfig([]byte("host:\n  mode: guess\n"))
	assert.ErrorIs(t, err, ncvalerrors.ErrMalformedConfig)

	_, err = ParseConfig([]byte("policy:\n  base: some\n"))
	assert.ErrorIs(t, err, ncvalerrors.ErrMalformedConfig)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ncval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("options:\n  trace: true\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Options.Trace)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromCPUInfo(t *testing.T) {
	var c cpuid.CPUInfo
	c.Enable(cpuid.SSE, cpuid.SSE2, cpuid.CMOV, cpuid.BMI1, cpuid.AMD3DNOW)
	s := FromCPUInfo(&c)
	for _, f := range []Feature{SSE, SSE2, CMOV, CLFLUSH, BMI1, TZCNT, F3DNOW, PRE} {
		assert.True(t, s.Has(f), f.String())
	}
	for _, f := range []Feature{AVX, LWP, TSC, SSE3, MON} {
		assert.False(t, s.Has(f), f.String())
	}
}

func TestDetectHostIsSubsetOfFull(t *testing.T) {
	host := DetectHost()
	assert.Zero(t, host&^FullSet())
	assert.False(t, host.Has(LWP))
}
