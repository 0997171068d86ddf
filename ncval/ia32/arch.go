// Package ia32 describes the 32-bit x86 instruction subset accepted inside
// the sandbox as a decoder table plus the special sequences it fuses.
package ia32

import (
	"sync"

	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncval/decoder"
)

const Name = "x86-32"

var table = sync.OnceValues(buildTable)

// Table returns the compiled decoder table. It is built once on first use
// and shared by every validation.
func Table() *decoder.Table {
	t, err := table()
	if err != nil {
		panic(err)
	}
	return t
}

// Arch is the x86-32 architecture description.
type Arch struct{}

func (Arch) Name() string { return Name }

func (Arch) Table() *decoder.Table { return Table() }

func (Arch) Specials() []bundle.Special {
	return []bundle.Special{MaskedIndirect{}}
}
