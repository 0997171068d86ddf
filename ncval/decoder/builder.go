package decoder

import (
	"fmt"

	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

// Builder assembles a Table. States are either allocated and filled in place
// (NewState/Set) or interned by content (Intern, Chain), which shares
// identical operand tails between opcodes.
type Builder struct {
	name    string
	states  []State
	interns map[State]StateID
	chains  map[chainKey]StateID
	entries []ncvaltypes.Entry
}

type chainKey struct {
	n    int
	next StateID
	info ncvaltypes.Info
}

// NewBuilder returns a builder holding only the two pseudo-states.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:    name,
		states:  make([]State, 2),
		interns: make(map[State]StateID),
		chains:  make(map[chainKey]StateID),
		entries: make([]ncvaltypes.Entry, 1),
	}
}

// AddEntry registers an opcode form and returns its index.
func (b *Builder) AddEntry(e ncvaltypes.Entry) uint16 {
	b.entries = append(b.entries, e)
	return uint16(len(b.entries) - 1)
}

// NewState allocates an empty state whose transitions all reject.
func (b *Builder) NewState() StateID {
	b.states = append(b.states, State{})
	return StateID(len(b.states) - 1)
}

// Set defines the transition of state id on byte v.
func (b *Builder) Set(id StateID, v byte, tr Transition) {
	b.states[id][v] = tr
}

// Get returns the current transition of state id on byte v.
func (b *Builder) Get(id StateID, v byte) Transition {
	return b.states[id][v]
}

// Intern returns a state equal to s, allocating one only if no identical
// interned state exists.
func (b *Builder) Intern(s State) StateID {
	if id, ok := b.interns[s]; ok {
		return id
	}
	b.states = append(b.states, s)
	id := StateID(len(b.states) - 1)
	b.interns[s] = id
	return id
}

// Chain returns a state that consumes n arbitrary bytes and then continues
// in next. info is attached to the final byte. Chain(0, next, _) is next.
func (b *Builder) Chain(n int, next StateID, info ncvaltypes.Info) StateID {
	if n <= 0 {
		return next
	}
	key := chainKey{n, next, info}
	if id, ok := b.chains[key]; ok {
		return id
	}
	var s State
	if n == 1 {
		for v := range s {
			s[v] = Transition{Next: next, Info: info}
		}
	} else {
		tail := b.Chain(n-1, next, info)
		for v := range s {
			s[v] = Transition{Next: tail}
		}
	}
	id := b.Intern(s)
	b.chains[key] = id
	return id
}

// Build freezes the automaton with the given start state.
func (b *Builder) Build(start StateID) (*Table, error) {
	t := &Table{
		Name:    b.name,
		Start:   start,
		States:  b.states,
		Entries: b.entries,
	}
	if len(t.States) > 1<<16 {
		return nil, fmt.Errorf("decoder %s: %d states exceed the StateID range", b.name, len(t.States))
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return t, nil
}
