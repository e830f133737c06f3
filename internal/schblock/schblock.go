// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schblock turns loose KiCad schematics into schematic-block
// folders, each holding the schematic and a JSON descriptor.
package schblock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/gerberpack/pkg/types"
)

const (
	schematicExt = ".kicad_sch"
	blockExt     = ".kicad_block"
)

// Descriptor is the JSON file written beside each schematic.
type Descriptor struct {
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	Fields      Fields `json:"fields"`
}

// Fields holds the per-block descriptor fields.
type Fields struct {
	Filename    string `json:"filename"`
	Reliability string `json:"reliability"`
}

// Result summarizes one Process call.
type Result struct {
	Blocks []string `json:"blocks"`
	Failed []string `json:"failed,omitempty"`
}

// Process moves every *.kicad_sch file directly under dir into its own
// <prefix>.kicad_block folder and writes <prefix>.json beside it.
// Subdirectories are not visited. Existing block folders are reused. A
// failure on one schematic is reported and the rest are still processed.
func Process(dir string, cfg types.BlockConfig, w io.Writer) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, &types.IOError{Op: "read", Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), schematicExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var result Result
	for _, name := range names {
		block, err := processOne(dir, name, cfg)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
			result.Failed = append(result.Failed, name)
			continue
		}
		fmt.Fprintf(w, "block:   %s -> %s\n", name, filepath.Base(block))
		result.Blocks = append(result.Blocks, block)
	}
	return result, nil
}

func processOne(dir, name string, cfg types.BlockConfig) (string, error) {
	prefix := strings.TrimSuffix(name, schematicExt)
	block := filepath.Join(dir, prefix+blockExt)
	if err := os.MkdirAll(block, 0o755); err != nil {
		return "", &types.IOError{Op: "mkdir", Path: block, Err: err}
	}

	dst := filepath.Join(block, name)
	if err := os.Rename(filepath.Join(dir, name), dst); err != nil {
		return "", &types.IOError{Op: "move", Path: dst, Err: err}
	}

	data, err := encodeDescriptor(Descriptor{
		Description: cfg.Description,
		Keywords:    cfg.Keywords,
		Fields: Fields{
			Filename:    name,
			Reliability: cfg.Reliability,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding descriptor for %s: %w", name, err)
	}

	path := filepath.Join(block, prefix+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &types.IOError{Op: "write", Path: path, Err: err}
	}
	return block, nil
}

// encodeDescriptor renders d with four-space indentation and without HTML
// escaping, so values such as "20%" or non-ASCII descriptions stay readable.
func encodeDescriptor(d Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
