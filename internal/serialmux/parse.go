package serialmux

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHexPayload decodes an operator-entered hex payload. Whitespace, commas
// and "0x" prefixes are ignored, so "0x01 0x02", "01,02" and "0102" all
// decode to the same two bytes.
func ParseHexPayload(s string) ([]byte, error) {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	}) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		if len(field)%2 == 1 {
			field = "0" + field
		}
		b.WriteString(field)
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	out, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return out, nil
}
