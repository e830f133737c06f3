// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules loads the layer ruleset that maps CAD-exported Gerber files
// to vendor filenames and header text. Rule sources may be CSV, JSON, or
// YAML; the format is chosen by file extension.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// Column and key aliases accepted across every rule format. The jlc_* and
// hear names are the ones used by existing vendor spreadsheets.
var (
	nameKeys     = []string{"name"}
	targetKeys   = []string{"target", "jlc_filename"}
	headerKeys   = []string{"header", "jlc_header", "jlc_begin"}
	headerIDKeys = []string{"header_id", "hear"}
)

// tokensKey holds an explicit token list or field map in JSON and YAML.
const tokensKey = "tokens"

// ErrUnsupportedFormat is returned for rule sources with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported rule source format")

// Load reads the rule source at path and returns its rules in source order.
// Any failure is reported as a *types.ConfigError.
func Load(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Path: path, Err: err}
	}

	var rules []types.Rule
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rules, err = decodeCSV(path, data)
	case ".json":
		rules, err = decodeJSON(path, data)
	case ".yaml", ".yml":
		rules, err = decodeYAML(path, data)
	default:
		return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)}
	}
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, &types.ConfigError{Path: path, Err: errors.New("no rules with a target filename")}
	}
	return rules, nil
}

// reservedKey reports whether key names a rule attribute rather than a token.
func reservedKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == tokensKey {
		return true
	}
	for _, set := range [][]string{nameKeys, targetKeys, headerKeys, headerIDKeys} {
		for _, s := range set {
			if k == s {
				return true
			}
		}
	}
	return false
}

// firstKey returns the first alias in keys present in fields.
func firstKey(fields map[string]string, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return "", false
}

// legacyDrillHeaders are single-cell drill headers from the vendor
// spreadsheet that the vendor expects on two lines.
var legacyDrillHeaders = map[string][]string{
	";TYPE=PLATED;Layer: NPTH_Through": {";TYPE=PLATED", ";Layer: NPTH_Through"},
	";TYPE=PLATED;Layer: PTH_Through":  {";TYPE=PLATED", ";Layer: PTH_Through"},
}

// splitHeader turns a single header cell into lines. Lines are separated by
// real newlines or by the two-character escape \n that spreadsheets keep
// literally. Blank lines are dropped, and the legacy one-line drill headers
// are split in two.
func splitHeader(cell string) []string {
	cell = strings.ReplaceAll(cell, `\n`, "\n")
	var lines []string
	for _, line := range strings.Split(cell, "\n") {
		line = strings.TrimSpace(line)
		if split, ok := legacyDrillHeaders[line]; ok {
			lines = append(lines, split...)
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// targetIndex remembers where each target was first defined. Targets are
// compared case-insensitively, since vendor filenames land on filesystems
// that may fold case.
type targetIndex map[string]int

// claim records target at row, or returns a ConfigError when an earlier
// rule already writes that staged file.
func (ix targetIndex) claim(path string, row int, target string) error {
	key := strings.ToLower(target)
	if first, ok := ix[key]; ok {
		return &types.ConfigError{
			Path: path,
			Row:  row,
			Err:  fmt.Errorf("duplicate target %q, first defined at row %d", target, first),
		}
	}
	ix[key] = row
	return nil
}
