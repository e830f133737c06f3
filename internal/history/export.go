// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// FormatFor infers the export format from a file extension, defaulting to
// YAML.
func FormatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Export writes the full summary of run id to w in the given format.
func (s *Store) Export(ctx context.Context, id, format string, w io.Writer) error {
	sum, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(sum, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML, "":
		data, err = yaml.Marshal(sum)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", format, err)
	}
	_, err = w.Write(data)
	return err
}

// ExportYAML writes the summary of run id to path as YAML.
func (s *Store) ExportYAML(ctx context.Context, id, path string) error {
	return s.exportFile(ctx, id, FormatYAML, path)
}

// ExportJSON writes the summary of run id to path as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, id, path string) error {
	return s.exportFile(ctx, id, FormatJSON, path)
}

func (s *Store) exportFile(ctx context.Context, id, format, path string) error {
	var buf strings.Builder
	if err := s.Export(ctx, id, format, &buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}
