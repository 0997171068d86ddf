package loader

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// ELFText returns the contents and load address of the .text section, or of
// the first executable PROGBITS section when there is no .text. The section
// must be loaded at a bundle boundary, since bundles are counted from its
// first byte.
func ELFText(data []byte) ([]byte, uint64, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ncvalerrors.ErrUnsupportedFormat, err)
	}
	defer f.Close()
	if f.Machine != elf.EM_386 {
		log.Warn(log.Loader, "ELF machine is not i386", "machine", f.Machine.String(), "class", f.Class.String())
	}
	sec := f.Section(".text")
	if sec == nil {
		for _, s := range f.Sections {
			if s.Type == elf.SHT_PROGBITS && s.Flags&elf.SHF_EXECINSTR != 0 {
				sec = s
				break
			}
		}
	}
	if sec == nil || sec.Type != elf.SHT_PROGBITS {
		return nil, 0, ncvalerrors.ErrNoTextSection
	}
	if sec.Addr&bundle.Mask != 0 {
		return nil, 0, fmt.Errorf("%w: %s at %#x", ncvalerrors.ErrUnalignedText, sec.Name, sec.Addr)
	}
	text, err := sec.Data()
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", sec.Name, err)
	}
	return text, sec.Addr, nil
}
