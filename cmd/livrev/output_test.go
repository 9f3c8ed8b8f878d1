package main

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short title", 70, "short title"},
		{"exactly ten", 11, "exactly ten"},
		{"a title that is definitely too long for the column", 20, "a title that is d..."},
		{"ünïcödé titles are counted in runes not bytes", 10, "ünïcödé..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
