package normalize

import (
	"testing"
)

// Test table covers each stage and combined pipelines.
func TestKey_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			name: "identity ascii",
			in:   "acme corporation",
			out:  "acme corporation",
		},
		{
			name: "utf8 repair drops invalid bytes",
			in:   string([]byte{0xff, 'a', 'c', 'm', 'e', 0x80, ' ', 'c', 'o'}),
			out:  "acme co",
		},
		{
			name: "case fold",
			in:   "Acme Corp",
			out:  "acme corp",
		},
		{
			name: "width fold fullwidth",
			in:   "ＡＣＭＥ co", // fullwidth letters
			out:  "acme co",
		},
		{
			name: "nfkc ligature",
			in:   "oﬃce depot", // ffi ligature
			out:  "office depot",
		},
		{
			name: "collapse whitespace",
			in:   "acme\t\tcorp\nholdings   llc",
			out:  "acme corp holdings llc",
		},
		{
			name: "trim edges",
			in:   "  acme corp  ",
			out:  "acme corp",
		},
		{
			name: "empty",
			in:   "",
			out:  "",
		},
		{
			name: "whitespace only",
			in:   " \t\n ",
			out:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.in); got != tt.out {
				t.Fatalf("Key(%q) = %q, want %q", tt.in, got, tt.out)
			}
		})
	}
}

// Keys differing only by case or whitespace run-length must collide
func TestKey_CaseAndWhitespaceCollisions(t *testing.T) {
	variants := []string{
		"Acme Corp",
		"ACME CORP",
		"acme    corp",
		" acme\tcorp ",
	}
	want := Key(variants[0])
	for _, v := range variants[1:] {
		if got := Key(v); got != want {
			t.Fatalf("Key(%q) = %q, want %q", v, got, want)
		}
	}
}
