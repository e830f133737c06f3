// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// Convert loads the rule source at src and writes it to dst in the format
// implied by dst's extension (.json, .yaml, or .yml). Blank values are
// dropped. It returns the number of rules written.
func Convert(src, dst string) (int, error) {
	rules, err := Load(src)
	if err != nil {
		return 0, err
	}

	var data []byte
	switch ext := strings.ToLower(filepath.Ext(dst)); ext {
	case ".json":
		data, err = EncodeJSON(rules)
	case ".yaml", ".yml":
		data, err = EncodeYAML(rules)
	default:
		return 0, &types.ConfigError{Path: dst, Err: fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)}
	}
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, &types.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return 0, &types.IOError{Op: "write", Path: dst, Err: err}
	}
	return len(rules), nil
}

// EncodeJSON renders rules as a layer-keyed JSON object in rule order. If
// any rule lacks a name or two rules share one, an array is written instead
// so that no rule is lost.
func EncodeJSON(rules []types.Rule) ([]byte, error) {
	keyed := uniqueNames(rules)
	objs := make([]json.RawMessage, len(rules))
	for i, r := range rules {
		raw, err := json.Marshal(jsonEntry(r, !keyed))
		if err != nil {
			return nil, fmt.Errorf("marshaling rule %s: %w", r.Label(), err)
		}
		objs[i] = raw
	}

	var buf bytes.Buffer
	if !keyed {
		raw, err := json.Marshal(objs)
		if err != nil {
			return nil, fmt.Errorf("marshaling rules: %w", err)
		}
		buf.Write(raw)
	} else {
		buf.WriteByte('{')
		for i, r := range rules {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(r.Name)
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(objs[i])
		}
		buf.WriteByte('}')
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, fmt.Errorf("indenting JSON: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// jsonEntry builds the per-rule object. Map keys are sorted by
// encoding/json, which keeps output stable across runs.
func jsonEntry(r types.Rule, withName bool) map[string]any {
	m := map[string]any{"target": r.Target}
	if withName && r.Name != "" {
		m["name"] = r.Name
	}
	if len(r.Header) > 0 {
		m["header"] = r.Header
	}
	if r.HeaderID != "" {
		m["header_id"] = r.HeaderID
	}
	if len(r.Tokens) > 0 {
		if fields, ok := tokenFields(r.Tokens); ok {
			m["tokens"] = fields
		} else {
			m["tokens"] = tokenValues(r.Tokens)
		}
	}
	return m
}

// EncodeYAML renders rules as a RuleFile document.
func EncodeYAML(rules []types.Rule) ([]byte, error) {
	f := RuleFile{Rules: make([]RuleEntry, len(rules))}
	for i, r := range rules {
		e := RuleEntry{
			Name:     r.Name,
			Target:   r.Target,
			Header:   r.Header,
			HeaderID: r.HeaderID,
		}
		if len(r.Tokens) > 0 {
			e.Tokens = tokenNode(r.Tokens)
		}
		f.Rules[i] = e
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return nil, fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshaling YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// tokenNode renders tokens as a field mapping in source order when the
// fields allow it, otherwise as a plain list.
func tokenNode(toks []types.Token) yaml.Node {
	if _, ok := tokenFields(toks); !ok {
		n := yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, t := range toks {
			n.Content = append(n.Content, strNode(t.Value))
		}
		return n
	}
	n := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, t := range toks {
		n.Content = append(n.Content, strNode(t.Field), strNode(t.Value))
	}
	return n
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// tokenFields returns tokens as a field map when every field is set,
// unique, and not the generic tokens key.
func tokenFields(toks []types.Token) (map[string]string, bool) {
	m := make(map[string]string, len(toks))
	for _, t := range toks {
		if t.Field == "" || t.Field == tokensKey {
			return nil, false
		}
		if _, dup := m[t.Field]; dup {
			return nil, false
		}
		m[t.Field] = t.Value
	}
	return m, true
}

func tokenValues(toks []types.Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Value
	}
	return out
}

func uniqueNames(rules []types.Rule) bool {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" || seen[r.Name] {
			return false
		}
		seen[r.Name] = true
	}
	return true
}
