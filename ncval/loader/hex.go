package loader

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// ParseHex reads whitespace separated hex bytes. Text after '#' is a
// comment. Tokens may hold several bytes ("83e0e0") and may carry a 0x
// prefix.
func ParseHex(text []byte) ([]byte, error) {
	var out []byte
	sc := bufio.NewScanner(bytes.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		s := sc.Text()
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = s[:i]
		}
		for _, tok := range strings.Fields(s) {
			tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
			b, err := hex.DecodeString(tok)
			if err != nil || len(tok) == 0 {
				return nil, fmt.Errorf("%w: line %d: %q", ncvalerrors.ErrMalformedHex, line, tok)
			}
			out = append(out, b...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeHex renders code as hex text that ParseHex accepts, 16 bytes per
// line.
func EncodeHex(code []byte) string {
	var sb strings.Builder
	for i := 0; i < len(code); i += 16 {
		end := min(i+16, len(code))
		for j := i; j < end; j++ {
			if j > i {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%02x", code[j])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
