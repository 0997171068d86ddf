package cfi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *Tracker) []int {
	var offs []int
	t.Reconcile(func(off int) bool {
		offs = append(offs, off)
		return false
	})
	return offs
}

func TestRecordTarget(t *testing.T) {
	tr := NewTracker(64)
	assert.True(t, tr.RecordTarget(3))
	assert.True(t, tr.jumpDests.Test(3))
	assert.True(t, tr.RecordTarget(38))
	assert.True(t, tr.jumpDests.Test(38))

	assert.False(t, tr.RecordTarget(70), "past the end")
	assert.False(t, tr.RecordTarget(-14), "before the start")
	assert.EqualValues(t, 2, tr.jumpDests.Count())
}

func TestBundleAlignedTargetsAlwaysAccepted(t *testing.T) {
	tr := NewTracker(32)
	assert.True(t, tr.RecordTarget(64))
	assert.True(t, tr.RecordTarget(-32))
	assert.True(t, tr.RecordTarget(0))
	assert.Empty(t, collect(tr))
}

func TestReconcile(t *testing.T) {
	tr := NewTracker(64)
	for _, off := range []int{0, 2, 4, 7} {
		tr.RecordInstructionStart(off)
	}
	require.True(t, tr.RecordTarget(4))
	require.True(t, tr.RecordTarget(5))
	require.True(t, tr.RecordTarget(33))

	assert.Equal(t, []int{5, 33}, collect(tr))
	assert.True(t, NewTracker(32).Reconcile(func(int) bool { return false }))

	calls := 0
	ok := tr.Reconcile(func(int) bool {
		calls++
		return true
	})
	assert.True(t, ok, "callback accepted every report")
	assert.Equal(t, 2, calls)
}

func TestRetract(t *testing.T) {
	tr := NewTracker(32)
	for off := 0; off < 8; off++ {
		tr.RecordInstructionStart(off)
	}
	tr.RetractTarget(3)
	tr.RetractTargetRange(5, 2)
	tr.RetractTarget(40)
	tr.RetractTargetRange(30, 8)
	assert.EqualValues(t, 5, tr.validTargets.Count())
	assert.False(t, tr.IsValidTarget(5))
	assert.False(t, tr.IsValidTarget(3))
	assert.False(t, tr.IsValidTarget(6))
	assert.True(t, tr.IsValidTarget(7))

	require.True(t, tr.RecordTarget(3))
	assert.Equal(t, []int{3}, collect(tr))
}
