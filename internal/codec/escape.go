package codec

import "strings"

// EscapeJSONString escapes s for use between the quotes of a JSON string.
// Unlike encoding/json it leaves '<', '>' and '&' alone.
func EscapeJSONString(s string) string {
	if !needsEscape(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				sb.WriteString(`\u00`)
				sb.WriteByte(upperHex[r>>4])
				sb.WriteByte(upperHex[r&0x0f])
				continue
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func needsEscape(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == '"' || c == '\\' {
			return true
		}
	}
	return false
}
