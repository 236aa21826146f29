package waproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnescapeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "at the beach", "at the beach"},
		{"quote", `say \"hi\"`, `say "hi"`},
		{"backslash", `c:\\temp`, `c:\temp`},
		{"newline", `line\nbreak`, "line\nbreak"},
		{"ascii escape", `\u0041BC`, "ABC"},
		{"two byte", `caf\u00e9`, "café"},
		{"three byte", `\u20ac 5`, "€ 5"},
		{"surrogate pair", `\ud83d\ude00!`, "😀!"},
		{"lone high surrogate", `\ud83d!`, "\uFFFD!"},
		{"truncated escape", `tail\u12`, `tail\u12`},
		{"trailing backslash", `odd\`, `odd\`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, unescapeJSON(tc.in))
		})
	}
}
