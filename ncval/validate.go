// Package ncval statically validates a region of untrusted machine code
// against the sandbox rules: every instruction is recognized and allowed,
// no instruction crosses a 32-byte bundle boundary, calls return to bundle
// starts, indirect transfers are masked, and every direct jump lands on an
// instruction boundary.
package ncval

import (
	"errors"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncval/cfi"
	"github.com/colorfulnotion/ncval/ncval/classify"
	"github.com/colorfulnotion/ncval/ncval/decoder"
	"github.com/colorfulnotion/ncval/ncval/ia32"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

type (
	Options    = ncvaltypes.Options
	Callback   = ncvaltypes.Callback
	Info       = ncvaltypes.Info
	Diagnostic = ncvaltypes.Diagnostic
)

const (
	ProcessChunkAsContiguousStream    = ncvaltypes.ProcessChunkAsContiguousStream
	CallUserCallbackOnEachInstruction = ncvaltypes.CallUserCallbackOnEachInstruction

	BundleSize = bundle.Size
)

// Arch supplies the instruction-set specific parts of validation.
type Arch interface {
	Name() string
	Table() *decoder.Table
	Specials() []bundle.Special
}

// DefaultArch returns the architecture ValidateChunk validates against.
func DefaultArch() Arch {
	return ia32.Arch{}
}

// ValidateChunk validates code for DefaultArch. See ValidateChunkArch.
func ValidateChunk(code []byte, options Options, features *cpufeatures.Features, callback Callback) bool {
	return ValidateChunkArch(DefaultArch(), code, options, features, callback)
}

// ValidateChunkArch scans code and reports every rejected instruction, and
// with CallUserCallbackOnEachInstruction every instruction, through callback.
// It returns true only if no error was found or the callback accepted every
// report. A region whose length is not a multiple of the bundle size is
// rejected without any callback. Bad jump targets are reported after the
// whole region has been scanned, in ascending order, as zero-length ranges.
func ValidateChunkArch(arch Arch, code []byte, options Options, features *cpufeatures.Features, callback Callback) bool {
	size := len(code)
	if size%bundle.Size != 0 || features == nil || callback == nil {
		return false
	}
	contiguous := options.Has(ProcessChunkAsContiguousStream)
	everyInstruction := options.Has(CallUserCallbackOnEachInstruction)
	table := arch.Table()
	tracker := cfi.NewTracker(size)
	enforcer := bundle.NewEnforcer(tracker, arch.Specials(), contiguous)

	result := true
	for pos := 0; pos < size; {
		limit := enforcer.SegmentLimit(pos, size)
		stream := decoder.NewStream(table, code, pos, limit)
		var prev *ncvaltypes.Instruction
		for {
			inst, ok := stream.Next()
			if !ok {
				break
			}
			tracker.RecordInstructionStart(inst.Start)
			if inst.Info&ncvaltypes.RelativeMask != 0 && !tracker.RecordTarget(inst.Target()) {
				inst.Info |= ncvaltypes.DirectJumpOutOfRange
			}
			enforcer.Fuse(code, prev, &inst)
			inst.Info |= classify.Classify(inst.Class, features).Info()
			inst.Info |= bundle.CheckCallAlignment(&inst)
			if inst.Info.IsError() || everyInstruction {
				result = callback(inst.Start, inst.End, inst.Info) && result
			}
			prev = &inst
		}
		next := limit
		if err := stream.Err(); err != nil {
			var de *decoder.DecodeError
			if errors.As(err, &de) {
				result = callback(de.Start, de.Offset, ncvaltypes.UnrecognizedInstruction) && result
				// A contiguous scan resumes at the first bundle boundary
				// after the start of the rejected instruction.
				if contiguous {
					next = min(bundle.AlignUp(de.Start+1), size)
				}
			} else {
				result = callback(stream.Pos(), limit, ncvaltypes.UnrecognizedInstruction) && result
			}
		}
		pos = next
	}

	result = tracker.Reconcile(func(off int) bool {
		return callback(off, off, ncvaltypes.BadJumpTarget)
	}) && result
	return result
}
