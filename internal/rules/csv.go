// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// utf8BOM is stripped from the header row; spreadsheet exports often add it.
const utf8BOM = "\ufeff"

// decodeCSV reads a header-row CSV. Rows with an empty target are skipped,
// but a missing target column is an error.
func decodeCSV(path string, data []byte) ([]types.Rule, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &types.ConfigError{Path: path, Err: errors.New("empty rule source")}
		}
		return nil, &types.ConfigError{Path: path, Row: 1, Err: err}
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
	}

	if !hasAny(header, targetKeys) {
		return nil, &types.ConfigError{
			Path: path,
			Row:  1,
			Err:  fmt.Errorf("missing target column (one of %s)", strings.Join(targetKeys, ", ")),
		}
	}

	var rules []types.Rule
	targets := targetIndex{}
	for row := 2; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &types.ConfigError{Path: path, Row: row, Err: err}
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = strings.TrimSpace(record[i])
			}
		}

		target, _ := firstKey(fields, targetKeys)
		if target == "" {
			continue
		}
		if err := targets.claim(path, row, target); err != nil {
			return nil, err
		}

		rule := types.Rule{Target: target}
		rule.Name, _ = firstKey(fields, nameKeys)
		rule.HeaderID, _ = firstKey(fields, headerIDKeys)
		if h, ok := firstKey(fields, headerKeys); ok {
			rule.Header = splitHeader(h)
		}
		for _, col := range header {
			if reservedKey(col) || fields[col] == "" {
				continue
			}
			rule.Tokens = append(rule.Tokens, types.Token{Value: fields[col], Field: col})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func hasAny(header, keys []string) bool {
	for _, h := range header {
		for _, k := range keys {
			if h == k {
				return true
			}
		}
	}
	return false
}
