// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"errors"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// RuleFile is the YAML rule source layout.
type RuleFile struct {
	Rules []RuleEntry `yaml:"rules"`
}

// RuleEntry is one rule as written in YAML. Tokens may be a list of
// substrings or a mapping of field name to substring; a mapping keeps the
// per-source scoping of fields such as kicad_gbr.
type RuleEntry struct {
	Name     string    `yaml:"name,omitempty"`
	Target   string    `yaml:"target"`
	Tokens   yaml.Node `yaml:"tokens,omitempty"`
	Header   lines     `yaml:"header,omitempty"`
	HeaderID string    `yaml:"header_id,omitempty"`
}

// lines decodes from either a scalar (split on newlines) or a sequence.
type lines []string

func (l *lines) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = splitHeader(value.Value)
		return nil
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = s
		return nil
	default:
		return fmt.Errorf("line %d: header must be a string or a list of strings", value.Line)
	}
}

func decodeYAML(path string, data []byte) ([]types.Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("parsing YAML: %w", err)}
	}
	if len(doc.Content) == 0 {
		return nil, &types.ConfigError{Path: path, Err: errors.New("empty rule source")}
	}

	var entries []RuleEntry
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("parsing YAML: %w", err)}
		}
	case yaml.MappingNode:
		var f RuleFile
		if err := root.Decode(&f); err != nil {
			return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("parsing YAML: %w", err)}
		}
		entries = f.Rules
	default:
		return nil, &types.ConfigError{Path: path, Err: errors.New("rule source must be a rules mapping or a list")}
	}

	rules := make([]types.Rule, 0, len(entries))
	targets := targetIndex{}
	for i, e := range entries {
		target := strings.TrimSpace(e.Target)
		if target == "" {
			return nil, &types.ConfigError{Path: path, Row: i + 1, Err: errors.New("rule has no target")}
		}
		if err := targets.claim(path, i+1, target); err != nil {
			return nil, err
		}
		toks, err := yamlTokens(&e.Tokens)
		if err != nil {
			return nil, &types.ConfigError{Path: path, Row: i + 1, Err: err}
		}
		rules = append(rules, types.Rule{
			Name:     e.Name,
			Target:   target,
			Tokens:   toks,
			Header:   e.Header,
			HeaderID: e.HeaderID,
		})
	}
	return rules, nil
}

func yamlTokens(n *yaml.Node) ([]types.Token, error) {
	var toks []types.Token
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		if v := strings.TrimSpace(n.Value); v != "" {
			toks = append(toks, types.Token{Value: v, Field: tokensKey})
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: token must be a string", c.Line)
			}
			if v := strings.TrimSpace(c.Value); v != "" {
				toks = append(toks, types.Token{Value: v, Field: tokensKey})
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: token %s must be a string", v.Line, k.Value)
			}
			if val := strings.TrimSpace(v.Value); val != "" {
				toks = append(toks, types.Token{Value: val, Field: strings.ToLower(k.Value)})
			}
		}
	default:
		return nil, fmt.Errorf("line %d: tokens must be a list or a mapping", n.Line)
	}
	return toks, nil
}
