// Package disasm renders code regions with the x86asm reference decoder.
// It is independent of the validator's own tables and is used for reports
// and for cross-checking decoded lengths.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Mode is the x86asm decoding mode of the sandboxed code.
const Mode = 32

// Line is one linear-sweep step. Err is set for a byte the reference
// decoder could not decode; such a line covers exactly one byte.
type Line struct {
	Offset int
	Bytes  []byte
	Inst   x86asm.Inst
	Err    error
}

// Text returns the GNU syntax of the instruction or a db directive.
func (l *Line) Text() string {
	if l.Err != nil {
		return fmt.Sprintf("db 0x%02x", l.Bytes[0])
	}
	return x86asm.GNUSyntax(l.Inst, uint64(l.Offset), nil)
}

// Decode decodes the instruction at off.
func Decode(code []byte, off int) (x86asm.Inst, error) {
	if off < 0 || off >= len(code) {
		return x86asm.Inst{}, fmt.Errorf("offset %#x outside %d bytes", off, len(code))
	}
	return x86asm.Decode(code[off:], Mode)
}

// Lines sweeps code[begin:end] linearly.
func Lines(code []byte, begin, end int) []Line {
	if end > len(code) {
		end = len(code)
	}
	var out []Line
	for off := begin; off < end; {
		inst, err := x86asm.Decode(code[off:end], Mode)
		if err != nil || inst.Len == 0 {
			out = append(out, Line{Offset: off, Bytes: code[off : off+1], Err: err})
			off++
			continue
		}
		out = append(out, Line{Offset: off, Bytes: code[off : off+inst.Len], Inst: inst})
		off += inst.Len
	}
	return out
}

// Range renders code[begin:end] on one line, instructions separated by
// "; ". An empty range renders as the empty string.
func Range(code []byte, begin, end int) string {
	lines := Lines(code, begin, end)
	texts := make([]string, len(lines))
	for i := range lines {
		texts[i] = lines[i].Text()
	}
	return strings.Join(texts, "; ")
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// Disassemble renders the whole region one instruction per line.
func Disassemble(code []byte) string {
	var sb strings.Builder
	for _, l := range Lines(code, 0, len(code)) {
		sb.WriteString(fmt.Sprintf("0x%04x: %-20s %s\n", l.Offset, hexBytes(l.Bytes), l.Text()))
	}
	return sb.String()
}
