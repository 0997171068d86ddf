package ncvaltypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/ncval/ncvalerrors"
)

func TestInfoNames(t *testing.T) {
	assert.Equal(t, "0", Info(0).String())
	assert.Equal(t, "IMMEDIATE_8BIT|RELATIVE_32BIT", (Immediate8Bit | Relative32Bit).String())

	for _, n := range infoNames {
		bit, ok := ParseInfoName(n.name)
		require.True(t, ok, n.name)
		assert.Equal(t, n.bit, bit)
	}
	_, ok := ParseInfoName("NOT_A_BIT")
	assert.False(t, ok)
}

func TestInfoErrors(t *testing.T) {
	assert.False(t, (AnyFieldInfoMask | SpecialInstruction).IsError())
	assert.True(t, BadJumpTarget.IsError())
	assert.Empty(t, (Displacement8Bit | SpecialInstruction).Messages())

	i := DirectJumpOutOfRange | BadCallAlignment | Relative32Bit
	assert.Equal(t, []string{"direct jump out of range", "bad call alignment"}, i.Messages())
	errs := i.Errors()
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], ncvalerrors.ErrDirectJumpOutOfRange))
	assert.True(t, errors.Is(errs[1], ncvalerrors.ErrBadCallAlignment))

	// Every error bit has a message and a sentinel.
	for _, n := range infoNames {
		if n.bit&ValidationErrorsMask == 0 {
			continue
		}
		assert.Len(t, n.bit.Messages(), 1, n.name)
		assert.Len(t, n.bit.Errors(), 1, n.name)
	}
}

func TestTransferKind(t *testing.T) {
	assert.True(t, DirectCall.IsCall())
	assert.True(t, IndirectCall.IsCall())
	assert.False(t, DirectJump.IsCall())
	assert.True(t, IndirectJump.IsIndirect())
	assert.False(t, DirectCall.IsIndirect())
}

func TestOptions(t *testing.T) {
	o := ProcessChunkAsContiguousStream
	assert.True(t, o.Has(ProcessChunkAsContiguousStream))
	assert.False(t, o.Has(CallUserCallbackOnEachInstruction))
}
