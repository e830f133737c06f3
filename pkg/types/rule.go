// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Token is one substring a source filename may contain to match a rule.
type Token struct {
	// Value is the substring compared against filenames.
	Value string `json:"value" yaml:"value"`

	// Field is the rule-source column or key the token came from
	// (e.g. "kicad_gbr"). It decides which sources the token applies to.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

// AppliesTo reports whether the token is used when scanning source. A token
// whose field starts with "<name>_" for some configured source name is
// scoped to that source; any other token applies everywhere.
func (t Token) AppliesTo(source string, sourceNames []string) bool {
	for _, name := range sourceNames {
		if name == "" || !strings.HasPrefix(t.Field, name+"_") {
			continue
		}
		return name == source
	}
	return true
}

// Rule maps a manufacturer-neutral layer to the filename and header text a
// vendor expects.
type Rule struct {
	// Name is the layer key from the rule source (optional).
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Target is the filename the staged copy receives.
	Target string `json:"target" yaml:"target"`

	// Tokens are the substrings that select a source file.
	Tokens []Token `json:"tokens,omitempty" yaml:"tokens,omitempty"`

	// Header holds template lines prepended to the staged file. Lines may
	// carry a YYYY-MM-DD HH:MM:SS timestamp that is refreshed per run.
	Header []string `json:"header,omitempty" yaml:"header,omitempty"`

	// HeaderID references a boilerplate header file by identifier.
	HeaderID string `json:"header_id,omitempty" yaml:"header_id,omitempty"`
}

// Label returns Name when set, otherwise Target.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Target
}

// TokensFor returns the non-empty token values that apply to source.
func (r Rule) TokensFor(source string, sourceNames []string) []string {
	var out []string
	for _, t := range r.Tokens {
		if t.Value == "" || !t.AppliesTo(source, sourceNames) {
			continue
		}
		out = append(out, t.Value)
	}
	return out
}
