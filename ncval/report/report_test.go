package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

var fullHost = cpufeatures.NewFeatures(cpufeatures.FullSet())

// sample holds a jump into the middle of a mov, a ret, and a masked call
// that ends its bundle.
func sample() []byte {
	code := bytes.Repeat([]byte{0x90}, 64)
	copy(code, []byte{0xeb, 0x01, 0x89, 0xc0, 0xc3})
	copy(code[59:], []byte{0x83, 0xe0, 0xe0, 0xff, 0xd0})
	return code
}

func TestJSONMatchesExpected(t *testing.T) {
	r := ncval.Collect(sample(), 0, fullHost)
	r.Name = "sample"
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, r, nil))

	expected := `{
  "name": "sample",
  "arch": "x86-32",
  "size": 64,
  "valid": false,
  "diagnostics": [
    {"begin": 4, "end": 5, "bits": ["FORBIDDEN_INSTRUCTION"], "messages": ["instruction is forbidden in the sandbox"], "codes": ["U2_ForbiddenInstruction"], "details": ["Instruction is never allowed inside the sandbox."]},
    {"begin": 3, "end": 3, "bits": ["BAD_JUMP_TARGET"], "messages": ["bad jump target"], "codes": ["J2_BadJumpTarget"], "details": ["Direct jump targets an offset that is not an instruction boundary."]}
  ]
}`
	diff, changed, err := Diff([]byte(expected), buf.Bytes(), false)
	require.NoError(t, err)
	assert.False(t, changed, diff)
}

func TestReadDocument(t *testing.T) {
	r := ncval.Collect(sample(), 0, fullHost)
	r.Name = "sample"
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, r, sample()))

	doc, err := ReadDocument(buf.Bytes())
	require.NoError(t, err)
	back, err := doc.Result()
	require.NoError(t, err)
	assert.Equal(t, r.Diagnostics, back.Diagnostics)
	assert.Equal(t, Tree(r, nil), Tree(back, nil))

	var want, got bytes.Buffer
	require.NoError(t, Text(&want, r, nil))
	require.NoError(t, Text(&got, back, nil))
	assert.Equal(t, want.String(), got.String())

	doc, err = ReadDocument([]byte(`{"arch": "x86-32", "size": 32, "diagnostics": [{"begin": 0, "end": 1, "bits": ["NOT_A_BIT"]}]}`))
	require.NoError(t, err)
	_, err = doc.Result()
	assert.ErrorIs(t, err, ncvalerrors.ErrUnsupportedFormat)

	_, err = ReadDocument([]byte("not json"))
	assert.ErrorIs(t, err, ncvalerrors.ErrUnsupportedFormat)
}

func TestDiffReportsChanges(t *testing.T) {
	diff, changed, err := Diff([]byte(`{"valid": true, "size": 32}`), []byte(`{"valid": false, "size": 32}`), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, diff, "valid")

	_, _, err = Diff([]byte(`not json`), []byte(`{}`), false)
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	code := sample()
	r := ncval.Collect(code, 0, fullHost)
	r.Name = "sample.nexe"
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, r, nil))
	assert.Equal(t, "VALIDATOR: 4: instruction is forbidden in the sandbox\n"+
		"VALIDATOR: 3: bad jump target\n"+
		"*** sample.nexe IS UNSAFE ***\n", buf.String())

	buf.Reset()
	require.NoError(t, Text(&buf, r, code))
	assert.Contains(t, buf.String(), "VALIDATOR: 4: instruction is forbidden in the sandbox (ret")

	ok := ncval.Collect(bytes.Repeat([]byte{0x90}, 32), 0, fullHost)
	assert.Equal(t, "*** <code> is safe ***", Verdict(ok))
}

func TestTree(t *testing.T) {
	code := sample()
	r := ncval.Collect(code, ncval.CallUserCallbackOnEachInstruction, fullHost)
	out := Tree(r, code)
	assert.True(t, strings.HasPrefix(out, "<code> (x86-32, 64 bytes, UNSAFE)"))
	assert.Contains(t, out, "bundle 0 [0x0, 0x20)")
	assert.Contains(t, out, "bundle 1 [0x20, 0x40)")
	assert.Contains(t, out, "0x3b-0x40 SPECIAL_INSTRUCTION")
	assert.Contains(t, out, "BAD_JUMP_TARGET")
}

func TestAnalyze(t *testing.T) {
	code := sample()
	r := ncval.Collect(code, ncval.CallUserCallbackOnEachInstruction, fullHost)
	stats := Analyze(r, code)
	assert.Equal(t, 64, stats.Bytes)
	assert.Equal(t, 2, stats.Bundles)
	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, stats.ErrorKinds["FORBIDDEN_INSTRUCTION"])
	assert.Equal(t, 1, stats.ErrorKinds["BAD_JUMP_TARGET"])
	assert.Equal(t, 1, stats.SpecialInstructions)
	assert.Equal(t, 1, stats.Classes["special"])
	assert.Equal(t, 1, stats.Classes["forbidden"])
	assert.Equal(t, 1, stats.Classes["direct-jump"])
	// jmp, mov, ret, 54 nops, and, fused call
	assert.Equal(t, 59, stats.Instructions)
	assert.Equal(t, 2, stats.OperandShapes["IMMEDIATE_8BIT"]+stats.OperandShapes["RELATIVE_8BIT"])

	doc := NewDocument(r, code)
	require.NotNil(t, doc.Stats)
	assert.Len(t, doc.Diagnostics, len(r.Diagnostics))
	assert.Contains(t, doc.Diagnostics[3].Disasm, "nop")
}
