package codec

import (
	"errors"
	"testing"

	"firestige.xyz/wsinspect/internal/core"
)

func TestDecodeHexPayload(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"quote-H", "7B-22-48-22", `{"H"`},
		{"json object", "7B-22-6B-22-3A-31-7D", `{"k":1}`},
		{"lower case", "68-65-6c-6c-6f", "hello"},
		{"no hyphens", "68656C6C6F", "hello"},
		{"single byte", "41", "A"},
		{"latin1 byte", "E9", "é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHexPayload(tt.input)
			if err != nil {
				t.Fatalf("DecodeHexPayload(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("DecodeHexPayload(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeHexPayloadLengthIsHalfDigitCount(t *testing.T) {
	input := "00-01-7F-80-FF"
	got, err := DecodeHexPayload(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len([]rune(got)); n != 5 {
		t.Errorf("expected 5 characters, got %d", n)
	}
}

func TestDecodeHexPayloadMalformed(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantPrefix string
	}{
		{"odd length", "41-42-4", "AB"},
		{"bad digit", "41-ZZ-42", "A"},
		{"bad first digit", "G1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHexPayload(tt.input)
			if err == nil {
				t.Fatalf("DecodeHexPayload(%q) should fail", tt.input)
			}
			if !errors.Is(err, core.ErrMalformedHexPayload) {
				t.Errorf("expected ErrMalformedHexPayload, got %v", err)
			}
			if got != tt.wantPrefix {
				t.Errorf("decoded prefix = %q, want %q", got, tt.wantPrefix)
			}
		})
	}
}

func TestEncodeHexPayload(t *testing.T) {
	if got := EncodeHexPayload(nil); got != "" {
		t.Errorf("EncodeHexPayload(nil) = %q, want empty", got)
	}
	if got := EncodeHexPayload([]byte(`{"H"`)); got != "7B-22-48-22" {
		t.Errorf("EncodeHexPayload = %q, want 7B-22-48-22", got)
	}
}

func TestHexRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"hello world",
		`{"type":"subscribe","channel":"ticker"}`,
		"line1\nline2\ttab",
	}
	for _, in := range inputs {
		encoded := EncodeHexPayload([]byte(in))
		decoded, err := DecodeHexPayload(encoded)
		if err != nil {
			t.Fatalf("round trip of %q failed: %v", in, err)
		}
		if decoded != in {
			t.Errorf("round trip of %q produced %q", in, decoded)
		}
	}

	// every byte value survives when compared code point by code point
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	decoded, err := DecodeHexPayload(EncodeHexPayload(all))
	if err != nil {
		t.Fatalf("round trip of all bytes failed: %v", err)
	}
	runes := []rune(decoded)
	if len(runes) != 256 {
		t.Fatalf("expected 256 characters, got %d", len(runes))
	}
	for i, r := range runes {
		if r != rune(i) {
			t.Fatalf("byte %d decoded as %U", i, r)
		}
	}
}

func TestEscapeJSONString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{`say "hi"`, `say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{"a\nb\r\tc", `a\nb\r\tc`},
		{"\x01", `\u0001`},
		{"<tag>&", "<tag>&"},
	}
	for _, tt := range tests {
		if got := EscapeJSONString(tt.in); got != tt.want {
			t.Errorf("EscapeJSONString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
