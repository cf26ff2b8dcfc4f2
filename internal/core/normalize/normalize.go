// Package normalize provides the deterministic key canonicalizer used by the label cache
// Pipeline order
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFKC normalization
// 3 Case folding
// 4 Width fold fullwidth to ASCII
// 5 Collapse whitespace runs to single spaces and trim
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		// order matters and mirrors the documented pipeline
		return transform.Chain(
			norm.NFKC,
			cases.Fold(), // unicode case folding
			width.Fold,   // map fullwidth forms to ASCII
		)
	},
}

// Key returns the canonical cache key for a raw label
// Labels differing only by case or internal whitespace runs map to the same key
func Key(s string) string {
	if s == "" {
		return ""
	}

	// 1 repair UTF-8 drop invalid bytes
	s = strings.ToValidUTF8(s, "")

	// 2-4 transform via pooled chain then reset and return it
	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	// 5 collapse whitespace and trim
	return collapseSpaces(ns)
}

// collapseSpaces converts whitespace runs to a single ASCII space and trims the edges
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inWS := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			continue
		}
		if inWS && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inWS = false
		b.WriteRune(r)
	}
	return b.String()
}
