// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// decodeJSON accepts either an object keyed by layer name (the GerberX2
// layout, order preserved) or an array of rule objects. Entries whose
// target is null or blank are skipped.
func decodeJSON(path string, data []byte) ([]types.Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("parsing JSON: %w", err)}
	}

	var rules []types.Rule
	targets := targetIndex{}
	add := func(row int, name string, raw json.RawMessage) error {
		rule, ok, err := jsonRule(name, raw)
		if err != nil {
			return &types.ConfigError{Path: path, Row: row, Err: err}
		}
		if !ok {
			return nil
		}
		if err := targets.claim(path, row, rule.Target); err != nil {
			return err
		}
		rules = append(rules, rule)
		return nil
	}

	switch tok {
	case json.Delim('{'):
		for row := 1; dec.More(); row++ {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, &types.ConfigError{Path: path, Row: row, Err: fmt.Errorf("parsing JSON: %w", err)}
			}
			name, _ := keyTok.(string)
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, &types.ConfigError{Path: path, Row: row, Err: fmt.Errorf("parsing JSON: %w", err)}
			}
			if err := add(row, name, raw); err != nil {
				return nil, err
			}
		}
	case json.Delim('['):
		for row := 1; dec.More(); row++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, &types.ConfigError{Path: path, Row: row, Err: fmt.Errorf("parsing JSON: %w", err)}
			}
			if err := add(row, "", raw); err != nil {
				return nil, err
			}
		}
	default:
		return nil, &types.ConfigError{Path: path, Err: errors.New("rule source must be a JSON object or array")}
	}
	return rules, nil
}

// jsonRule converts one rule object. Any string value under a non-reserved
// key is a token; the key becomes the token field.
func jsonRule(name string, raw json.RawMessage) (types.Rule, bool, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return types.Rule{}, false, fmt.Errorf("rule %q: %w", name, err)
	}

	lower := make(map[string]json.RawMessage, len(obj))
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		lk := strings.ToLower(strings.TrimSpace(k))
		lower[lk] = v
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	rule := types.Rule{Name: name}
	rule.Target = jsonString(lower, targetKeys)
	if rule.Target == "" {
		return types.Rule{}, false, nil
	}
	if n := jsonString(lower, nameKeys); n != "" {
		rule.Name = n
	}
	rule.HeaderID = jsonString(lower, headerIDKeys)

	for _, k := range headerKeys {
		v, ok := lower[k]
		if !ok {
			continue
		}
		lines, err := jsonLines(v)
		if err != nil {
			return types.Rule{}, false, fmt.Errorf("rule %q: field %s: %w", rule.Label(), k, err)
		}
		rule.Header = lines
		break
	}

	if v, ok := lower[tokensKey]; ok {
		toks, err := jsonTokens(v)
		if err != nil {
			return types.Rule{}, false, fmt.Errorf("rule %q: field tokens: %w", rule.Label(), err)
		}
		rule.Tokens = append(rule.Tokens, toks...)
	}
	for _, k := range keys {
		if reservedKey(k) {
			continue
		}
		var s string
		if err := json.Unmarshal(lower[k], &s); err != nil || strings.TrimSpace(s) == "" {
			continue
		}
		rule.Tokens = append(rule.Tokens, types.Token{Value: strings.TrimSpace(s), Field: k})
	}
	return rule, true, nil
}

func jsonString(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// jsonLines accepts a string (split like a CSV cell), an array of strings,
// or null.
func jsonLines(raw json.RawMessage) ([]string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == nil {
			return nil, nil
		}
		return splitHeader(*s), nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, errors.New("want a string or an array of strings")
	}
	return lines, nil
}

// jsonTokens accepts an array of strings or an object of field to string.
func jsonTokens(raw json.RawMessage) ([]types.Token, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var toks []types.Token
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				toks = append(toks, types.Token{Value: v, Field: tokensKey})
			}
		}
		return toks, nil
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.New("want an array of strings or an object of strings")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var toks []types.Token
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			toks = append(toks, types.Token{Value: v, Field: k})
		}
	}
	return toks, nil
}
