// Package decoder runs table-driven byte automata that split a code region
// into instructions. An architecture supplies the Table; the engine is
// independent of any instruction set.
package decoder

import (
	"fmt"

	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

// StateID indexes Table.States.
type StateID uint16

const (
	// ErrorState rejects the byte that led to it.
	ErrorState StateID = 0
	// AcceptState completes the instruction after consuming the byte.
	AcceptState StateID = 1
)

// Capture flags are side information collected along a decode path that is
// not reported to callers directly.
type Capture uint8

const (
	// CaptureMemoryOperand marks an addressing form that references memory.
	CaptureMemoryOperand Capture = 1 << iota
)

// Transition is the action taken on one input byte in one state. Entry, when
// non-zero, selects the opcode form the instruction decodes to; Info bits are
// OR-ed into the instruction's operand description.
type Transition struct {
	Next    StateID
	Entry   uint16
	Info    ncvaltypes.Info
	Capture Capture
}

// State maps every byte value to a transition.
type State [256]Transition

// Table is an immutable decode automaton. States 0 and 1 are the error and
// accept pseudo-states and are never entered. A Table is safe for concurrent
// use once built.
type Table struct {
	Name    string
	Start   StateID
	States  []State
	Entries []ncvaltypes.Entry
}

// NumStates returns the number of real states.
func (t *Table) NumStates() int {
	return len(t.States) - 2
}

// Entry returns the opcode form with index id.
func (t *Table) Entry(id uint16) (*ncvaltypes.Entry, error) {
	if id == 0 || int(id) >= len(t.Entries) {
		return nil, fmt.Errorf("decoder %s: entry %d out of range", t.Name, id)
	}
	return &t.Entries[id], nil
}

// Check verifies that every transition refers to an existing state and entry.
func (t *Table) Check() error {
	if len(t.States) < 3 {
		return fmt.Errorf("decoder %s: no states", t.Name)
	}
	if t.Start < 2 || int(t.Start) >= len(t.States) {
		return fmt.Errorf("decoder %s: bad start state %d", t.Name, t.Start)
	}
	for id := 2; id < len(t.States); id++ {
		for b, tr := range t.States[id] {
			if int(tr.Next) >= len(t.States) {
				return fmt.Errorf("decoder %s: state %d byte %#02x: next %d out of range", t.Name, id, b, tr.Next)
			}
			if int(tr.Entry) >= len(t.Entries) {
				return fmt.Errorf("decoder %s: state %d byte %#02x: entry %d out of range", t.Name, id, b, tr.Entry)
			}
		}
	}
	return nil
}
