package ia32

import (
	"fmt"

	"github.com/colorfulnotion/ncval/ncval/decoder"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

// tableBuilder compiles opcode definitions into a decoder.Table. Each prefix
// context gets its own opcode trie; ModRM, SIB and operand tails are interned
// so identical addressing sub-automata are shared between opcodes.
type tableBuilder struct {
	b       *decoder.Builder
	entries map[*opcodeDef]uint16
	// vexOpcodes holds the opcode state of every populated VEX map.
	vexOpcodes map[vexKey]decoder.StateID
}

func buildTable() (*decoder.Table, error) {
	tb := &tableBuilder{
		b:          decoder.NewBuilder("ia32"),
		entries:    make(map[*opcodeDef]uint16),
		vexOpcodes: make(map[vexKey]decoder.StateID),
	}
	defs := opcodeDefs()
	for _, d := range defs {
		tb.entries[d] = tb.b.AddEntry(ncvaltypes.Entry{Name: d.name, Class: d.class})
	}
	if err := tb.vexMaps(defs); err != nil {
		return nil, err
	}

	start := tb.b.NewState()
	for _, ctx := range allContexts {
		root := start
		if ctx != ctxNone {
			root = tb.b.NewState()
			for v, pc := range prefixBytes {
				if pc == ctx {
					tb.b.Set(start, v, decoder.Transition{Next: root})
				}
			}
		}
		if err := tb.opcodeMap(root, ctx, defs); err != nil {
			return nil, err
		}
	}
	return tb.b.Build(start)
}

// opcodeMap adds every definition valid in ctx below root.
func (tb *tableBuilder) opcodeMap(root decoder.StateID, ctx prefixCtx, defs []*opcodeDef) error {
	groups := make(map[string][]*opcodeDef)
	var order []string
	for _, d := range defs {
		if d.ctx&ctx == 0 {
			continue
		}
		key := string(d.opcode)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], d)
	}
	for _, key := range order {
		group := groups[key]
		opcode := group[0].opcode
		state := root
		for _, v := range opcode[:len(opcode)-1] {
			tr := tb.b.Get(state, v)
			if tr.Next == decoder.ErrorState {
				tr = decoder.Transition{Next: tb.b.NewState()}
				tb.b.Set(state, v, tr)
			}
			state = tr.Next
		}
		last := opcode[len(opcode)-1]
		if tr := tb.b.Get(state, last); tr.Next != decoder.ErrorState {
			return fmt.Errorf("ia32: opcode % x defined twice in context %#x", opcode, ctx)
		}
		tr, err := tb.opcodeTransition(group, ctx)
		if err != nil {
			return err
		}
		tb.b.Set(state, last, tr)
	}
	return nil
}

func (tb *tableBuilder) opcodeTransition(group []*opcodeDef, ctx prefixCtx) (decoder.Transition, error) {
	d := group[0]
	if d.form == noModRM {
		if len(group) > 1 {
			return decoder.Transition{}, fmt.Errorf("ia32: opcode % x (%s) defined twice in context %#x", d.opcode, d.name, ctx)
		}
		next, info := tb.operandTail(d, ctx)
		return decoder.Transition{Next: next, Entry: tb.entries[d], Info: info}, nil
	}
	for _, other := range group[1:] {
		if other.form == noModRM {
			return decoder.Transition{}, fmt.Errorf("ia32: opcode % x mixes ModRM and plain forms", d.opcode)
		}
	}
	return decoder.Transition{Next: tb.modrm(group, ctx)}, nil
}

// operandTail returns the state consuming the trailing operand of d, and the
// Info bits describing it.
func (tb *tableBuilder) operandTail(d *opcodeDef, ctx prefixCtx) (decoder.StateID, ncvaltypes.Info) {
	n, info := d.operand.size(ctx)
	return tb.b.Chain(n, decoder.AcceptState, 0), info
}

// modrm builds the state that reads the ModRM byte. The first definition
// matching the reg field and mod constraint selects the entry. Under a lock
// or %gs prefix only memory operands are accepted. Register forms no
// definition claims continue as a VEX prefix when the opcode is an escape.
func (tb *tableBuilder) modrm(group []*opcodeDef, ctx prefixCtx) decoder.StateID {
	var s decoder.State
	for v := 0; v < 256; v++ {
		m := byte(v)
		mod, reg, rm := m>>6, (m>>3)&7, m&7
		if ctx.memoryOnly() && mod == 3 {
			continue
		}
		var d *opcodeDef
		for _, c := range group {
			if c.matches(mod, reg) {
				d = c
				break
			}
		}
		if d == nil {
			if mod == 3 {
				s[v] = tb.vexPrefix(group, m)
			}
			continue
		}
		tail, info := tb.operandTail(d, ctx)
		tr := decoder.Transition{Entry: tb.entries[d], Info: info}
		if mod != 3 {
			tr.Capture = decoder.CaptureMemoryOperand
		}
		switch {
		case mod == 3:
			tr.Next = tail
		case rm == 4:
			tr.Next = tb.sib(mod, tail)
			tr.Info |= displacementInfo(mod)
		case mod == 0 && rm == 5:
			tr.Next = tb.b.Chain(4, tail, 0)
			tr.Info |= ncvaltypes.Displacement32Bit
		default:
			tr.Next = tb.b.Chain(displacementSize(mod), tail, 0)
			tr.Info |= displacementInfo(mod)
		}
		s[v] = tr
	}
	return tb.b.Intern(s)
}

// sib builds the state that reads a SIB byte followed by the displacement
// selected by mod. A base of 5 with mod 0 means a bare disp32.
func (tb *tableBuilder) sib(mod byte, tail decoder.StateID) decoder.StateID {
	var s decoder.State
	for v := 0; v < 256; v++ {
		base := byte(v) & 7
		if mod == 0 && base == 5 {
			s[v] = decoder.Transition{Next: tb.b.Chain(4, tail, 0), Info: ncvaltypes.Displacement32Bit}
			continue
		}
		s[v] = decoder.Transition{Next: tb.b.Chain(displacementSize(mod), tail, 0)}
	}
	return tb.b.Intern(s)
}

func displacementSize(mod byte) int {
	switch mod {
	case 1:
		return 1
	case 2:
		return 4
	}
	return 0
}

func displacementInfo(mod byte) ncvaltypes.Info {
	switch mod {
	case 1:
		return ncvaltypes.Displacement8Bit
	case 2:
		return ncvaltypes.Displacement32Bit
	}
	return 0
}

// vexMaps builds one opcode state per populated (map, pp, L) combination.
func (tb *tableBuilder) vexMaps(defs []*opcodeDef) error {
	for m := map0F; m <= map0F3A; m++ {
		for pp := ppNone; pp <= ppF2; pp++ {
			for l := uint8(0); l < 2; l++ {
				key := vexKey{m: m, pp: pp, l: l}
				groups := make(map[byte][]*opcodeDef)
				var order []byte
				for _, d := range defs {
					if !d.inVEXMap(key) {
						continue
					}
					op := d.opcode[0]
					if _, ok := groups[op]; !ok {
						order = append(order, op)
					}
					groups[op] = append(groups[op], d)
				}
				if len(order) == 0 {
					continue
				}
				var s decoder.State
				for _, op := range order {
					tr, err := tb.opcodeTransition(groups[op], ctxNone)
					if err != nil {
						return err
					}
					s[op] = tr
				}
				tb.vexOpcodes[key] = tb.b.Intern(s)
			}
		}
	}
	return nil
}

// vexPrefix is the transition on the first payload byte of a VEX prefix
// opened by one of group's escape opcodes. In 32-bit mode that byte always
// has its top two bits set, which is why it arrives as a register ModRM.
func (tb *tableBuilder) vexPrefix(group []*opcodeDef, b byte) decoder.Transition {
	var escape uint8
	for _, d := range group {
		escape = max(escape, d.escape)
	}
	switch escape {
	case 2:
		// R vvvv L pp, map 0F implied.
		return decoder.Transition{Next: tb.vexOpcodes[vexKey{m: map0F, pp: vexPP(b & 3), l: (b >> 2) & 1}]}
	case 3:
		// R X B mmmmm, then W vvvv L pp.
		m := vexMap(b & 0x1f)
		if m < map0F || m > map0F3A {
			return decoder.Transition{}
		}
		var s decoder.State
		populated := false
		for v := 0; v < 256; v++ {
			b2 := byte(v)
			next := tb.vexOpcodes[vexKey{m: m, pp: vexPP(b2 & 3), l: (b2 >> 2) & 1}]
			s[v] = decoder.Transition{Next: next}
			populated = populated || next != decoder.ErrorState
		}
		if !populated {
			return decoder.Transition{}
		}
		return decoder.Transition{Next: tb.b.Intern(s)}
	}
	return decoder.Transition{}
}
