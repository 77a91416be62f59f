package api

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "ok", 5, "ok"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cut inside rune backs off", "aé", 2, "a..."},
		{"cut at rune boundary", "éé", 2, "é..."},
		{"three byte rune", "日本語", 4, "日..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8 %q", tt.in, tt.n, got)
			}
		})
	}
}

func TestRequestFailedError_BodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 511) + "ü rest of body"
	err := &RequestFailedError{Method: "GET", URL: "http://x", StatusCode: 500, Body: body, Attempts: 1}
	if msg := err.Error(); !utf8.ValidString(msg) {
		t.Errorf("error message is not valid UTF-8: %q", msg)
	}
}
