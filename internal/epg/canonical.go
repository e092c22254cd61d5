// SPDX-License-Identifier: MIT
package epg

import (
	"regexp"
	"strings"
)

// Default canonicalization rules for the Brazilian guide feeds.
const (
	DefaultSuffix       = ".BRASIL"
	DefaultUnknownID    = "CANALDESCONHECIDO"
	DefaultNoisePattern = `\(720P\)|\(1080P\)|\(4K\)|\(FHD\)|\(HD\)|\(SD\)|\[NAO 24/7\]|\[OFF\]|³|²`
)

// DefaultRemovalTerms lists provider, city and generic words removed from
// uppercased names. Order matters: terms are deleted one after another.
var DefaultRemovalTerms = []string{
	"SÃO PAULO/SP", "SAO PAULO/SP", "BELO HORIZONTE/MG", "CAMPINAS/SP",
	"RIO DE JANEIRO/RJ", "CURITIBA/PR", "BRASÍLIA/DF", "PORTO ALEGRE/RS",
	"NET", "CLARO", "VIVO", "OI", "SKY", "PAMPA", "TV ", "REDE ",
}

var nonIDChars = regexp.MustCompile(`[^A-Z0-9]`)

// Canonicalizer derives stable channel identifiers from display names.
// The zero value strips nothing and appends no suffix; a Canonicalizer is
// immutable after construction and safe for concurrent use.
type Canonicalizer struct {
	removalTerms []string
	noise        *regexp.Regexp
	suffix       string
	unknownID    string
}

// NewCanonicalizer compiles the rule set. An empty noisePattern disables the
// technical tag stripping; an empty unknownID falls back to DefaultUnknownID.
func NewCanonicalizer(removalTerms []string, noisePattern, suffix, unknownID string) (*Canonicalizer, error) {
	c := &Canonicalizer{
		removalTerms: append([]string(nil), removalTerms...),
		suffix:       suffix,
		unknownID:    unknownID,
	}
	if c.unknownID == "" {
		c.unknownID = DefaultUnknownID
	}
	if noisePattern != "" {
		re, err := regexp.Compile(noisePattern)
		if err != nil {
			return nil, err
		}
		c.noise = re
	}
	return c, nil
}

// DefaultCanonicalizer returns the rules for the Brazilian feeds.
func DefaultCanonicalizer() *Canonicalizer {
	c, err := NewCanonicalizer(DefaultRemovalTerms, DefaultNoisePattern, DefaultSuffix, DefaultUnknownID)
	if err != nil {
		panic(err)
	}
	return c
}

// UnknownID is the identifier used for names that reduce to nothing.
func (c *Canonicalizer) UnknownID() string {
	return c.unknownID + c.suffix
}

// Canonicalize returns the canonical id and the cleaned display name.
//
// Removal terms are deleted as plain substrings of the uppercased name, so a
// term may also cut into an unrelated word. Downstream guides key on the
// resulting ids; keep it that way.
func (c *Canonicalizer) Canonicalize(displayName string) (id, cleaned string) {
	if displayName == "" {
		return c.UnknownID(), ""
	}

	name := strings.ToUpper(displayName)
	for _, term := range c.removalTerms {
		if term == "" {
			continue
		}
		name = strings.ReplaceAll(name, term, "")
	}

	cleaned = displayName
	if c.noise != nil {
		name = c.noise.ReplaceAllString(name, "")
		cleaned = c.noise.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	name = nonIDChars.ReplaceAllString(name, "")
	if name == "" {
		return c.UnknownID(), cleaned
	}
	return name + c.suffix, cleaned
}
