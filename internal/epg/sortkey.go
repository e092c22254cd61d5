// SPDX-License-Identifier: MIT
package epg

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SortKey folds a cleaned display name into an accent-insensitive, uppercase
// key so that "Épico" sorts next to "EPICO".
func SortKey(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	// transformers carry state; build one per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, name)
	if err != nil {
		return name
	}
	return out
}
