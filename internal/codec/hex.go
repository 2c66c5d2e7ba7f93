// Package codec converts WebSocket payloads between the host's hex-pair
// representation and the text embedded in synthetic request bodies.
package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"firestige.xyz/wsinspect/internal/core"
)

const upperHex = "0123456789ABCDEF"

// DecodeHexPayload converts a hyphen-separated hex payload such as "7B-22-48-22"
// into text, one character per decoded byte.
//
// Malformed input (odd digit count or a non-hex digit) returns the text decoded
// before the fault together with an error wrapping core.ErrMalformedHexPayload.
func DecodeHexPayload(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	cleaned := strings.ReplaceAll(s, "-", "")

	raw, err := hex.DecodeString(cleaned)
	text := bytesToText(raw)
	if err != nil {
		return text, fmt.Errorf("%w: %v (decoded %d of %d bytes)",
			core.ErrMalformedHexPayload, err, len(raw), (len(cleaned)+1)/2)
	}
	return text, nil
}

// EncodeHexPayload renders b the way the host presents binary frames:
// upper-case digit pairs joined by '-'.
func EncodeHexPayload(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, c := range b {
		if i > 0 {
			out = append(out, '-')
		}
		out = append(out, upperHex[c>>4], upperHex[c&0x0f])
	}
	return string(out)
}

// bytesToText maps every byte to the character with the same code point.
func bytesToText(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
