package waproto

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// unescapeJSON decodes the escape sequences the status payloads carry.
// \uXXXX is decoded with full UTF-16 semantics, pairing surrogates.
func unescapeJSON(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case '"', '\\', '/':
			sb.WriteByte(s[i+1])
			i++
		case 'n':
			sb.WriteByte('\n')
			i++
		case 't':
			sb.WriteByte('\t')
			i++
		case 'r':
			sb.WriteByte('\r')
			i++
		case 'u':
			r, consumed := decodeUnicodeEscape(s[i:])
			if consumed == 0 {
				sb.WriteByte(s[i])
				continue
			}
			sb.WriteRune(r)
			i += consumed - 1
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// decodeUnicodeEscape reads one \uXXXX sequence at the start of s,
// consuming a following low surrogate when the first unit is a high
// surrogate. It returns the rune and the bytes consumed, 0 on a
// malformed sequence.
func decodeUnicodeEscape(s string) (rune, int) {
	u1, ok := hex4(s)
	if !ok {
		return 0, 0
	}
	if utf16.IsSurrogate(rune(u1)) {
		if u2, ok := hex4(s[6:]); ok {
			if r := utf16.DecodeRune(rune(u1), rune(u2)); r != 0xFFFD {
				return r, 12
			}
		}
		return 0xFFFD, 6
	}
	return rune(u1), 6
}

func hex4(s string) (uint64, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:6], 16, 32)
	return v, err == nil
}
