// Package loader reads code regions for validation from raw binaries, hex
// text, ELF executables and compressed variants of each.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatRaw  Format = "raw"
	FormatHex  Format = "hex"
	FormatELF  Format = "elf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatRaw, FormatHex, FormatELF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ncvalerrors.ErrUnsupportedFormat, s)
}

// HaltByte fills padding; hlt traps if control ever reaches it.
const HaltByte = 0xf4

// Code is a loaded region.
type Code struct {
	Name        string
	Bytes       []byte
	Format      Format
	Compression Compression
	// Addr is the load address of an ELF text section.
	Addr uint64
	// Padded is the number of HaltByte bytes appended by PadToBundle.
	Padded int
}

// Load reads path, decompresses it if needed and extracts the code.
func Load(path string, format Format) (*Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == FormatAuto && strings.EqualFold(filepath.Ext(strings.TrimSuffix(path, compressedExt(path))), ".hex") {
		format = FormatHex
	}
	return Decode(path, data, format)
}

// Decode extracts the code region from data.
func Decode(name string, data []byte, format Format) (*Code, error) {
	// Explicit raw input is taken literally unless its name says otherwise.
	plain, comp := data, CompressionNone
	var err error
	if format != FormatRaw || compressedExt(name) != "" {
		plain, comp, err = Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if format == FormatAuto {
		format = detect(plain)
	}
	c := &Code{Name: name, Format: format, Compression: comp}
	switch format {
	case FormatRaw:
		c.Bytes = plain
	case FormatHex:
		c.Bytes, err = ParseHex(plain)
	case FormatELF:
		c.Bytes, c.Addr, err = ELFText(plain)
	default:
		err = fmt.Errorf("%w: %q", ncvalerrors.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	log.Debug(log.Loader, "Decode", "name", name, "format", format, "compression", comp, "size", len(c.Bytes))
	return c, nil
}

func detect(data []byte) Format {
	if bytes.HasPrefix(data, elfMagic) {
		return FormatELF
	}
	return FormatRaw
}

// PadToBundle appends HaltByte until the region is a bundle multiple.
func (c *Code) PadToBundle() {
	padded := PadToBundle(c.Bytes)
	c.Padded += len(padded) - len(c.Bytes)
	c.Bytes = padded
}

// PadToBundle returns code extended with HaltByte to a bundle multiple. The
// input is returned unchanged when already aligned.
func PadToBundle(code []byte) []byte {
	n := bundle.AlignUp(len(code)) - len(code)
	if n == 0 {
		return code
	}
	out := make([]byte, len(code), len(code)+n)
	copy(out, code)
	return append(out, bytes.Repeat([]byte{HaltByte}, n)...)
}
