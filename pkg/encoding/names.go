// Package encoding provides text normalization for mesh and channel names.
package encoding

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a mesh or channel name with trailing
// NUL bytes and surrounding whitespace removed. Exporters disagree on Unicode
// composition, so names are compared in this form.
func NormalizeName(name string) string {
	name = strings.TrimRight(name, "\x00")
	name = strings.TrimSpace(name)
	if norm.NFC.IsNormalString(name) {
		return name
	}
	return norm.NFC.String(name)
}

// SameName reports whether two names are equal after normalization.
func SameName(a, b string) bool {
	if a == b {
		return true
	}
	return NormalizeName(a) == NormalizeName(b)
}
