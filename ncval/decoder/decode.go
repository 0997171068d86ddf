package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// DecodeError reports that no instruction could be recognized. Offset is the
// byte the automaton rejected, or the scan limit when the instruction would
// run past it.
type DecodeError struct {
	Start     int
	Offset    int
	Truncated bool
}

func (e *DecodeError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("instruction at %#x runs past limit %#x", e.Start, e.Offset)
	}
	return fmt.Sprintf("unrecognized byte at %#x in instruction starting at %#x", e.Offset, e.Start)
}

func (e *DecodeError) Unwrap() error {
	return ncvalerrors.ErrUnrecognizedInstruction
}

// Decode runs the automaton from the start state on code[pos:limit] and
// returns the first complete instruction. It never reads code[limit:].
//
// Relative operands are taken from the trailing bytes of the instruction.
func (t *Table) Decode(code []byte, pos, limit int) (ncvaltypes.Instruction, error) {
	inst := ncvaltypes.Instruction{Start: pos}
	if limit > len(code) {
		limit = len(code)
	}
	state := t.Start
	var (
		entry   uint16
		capture Capture
	)
	for p := pos; p < limit; p++ {
		tr := t.States[state][code[p]]
		if tr.Next == ErrorState {
			return inst, &DecodeError{Start: pos, Offset: p}
		}
		inst.Info |= tr.Info
		capture |= tr.Capture
		if tr.Entry != 0 {
			entry = tr.Entry
		}
		if tr.Next != AcceptState {
			state = tr.Next
			continue
		}

		inst.End = p + 1
		e, err := t.Entry(entry)
		if err != nil {
			return inst, &DecodeError{Start: pos, Offset: p}
		}
		inst.Entry = e
		inst.Class = e.Class
		if _, plain := e.Class.(ncvaltypes.Plain); plain && capture&CaptureMemoryOperand != 0 {
			inst.Class = ncvaltypes.MemoryReference{}
		}
		switch {
		case inst.Info&ncvaltypes.Relative8Bit != 0:
			inst.Rel = int64(int8(code[inst.End-1]))
		case inst.Info&ncvaltypes.Relative32Bit != 0 && inst.Len() >= 4:
			inst.Rel = int64(int32(binary.LittleEndian.Uint32(code[inst.End-4 : inst.End])))
		}
		return inst, nil
	}
	return inst, &DecodeError{Start: pos, Offset: limit, Truncated: true}
}

// Stream lazily decodes consecutive instructions up to a limit.
type Stream struct {
	table *Table
	code  []byte
	pos   int
	limit int
	err   error
}

// NewStream starts decoding code at pos; no instruction may extend past limit.
func NewStream(t *Table, code []byte, pos, limit int) *Stream {
	return &Stream{table: t, code: code, pos: pos, limit: limit}
}

// Next returns the next instruction. It returns false once the limit is
// reached or after a decode failure, which Err then reports.
func (s *Stream) Next() (ncvaltypes.Instruction, bool) {
	if s.err != nil || s.pos >= s.limit {
		return ncvaltypes.Instruction{}, false
	}
	inst, err := s.table.Decode(s.code, s.pos, s.limit)
	if err != nil {
		s.err = err
		return inst, false
	}
	s.pos = inst.End
	return inst, true
}

// Err returns the decode failure that stopped the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Pos is the offset the next instruction will be decoded from.
func (s *Stream) Pos() int {
	return s.pos
}
