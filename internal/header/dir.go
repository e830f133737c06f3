// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package header

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Discover maps every boilerplate file directly under dir to a header ID:
// the filename without its extension. Hidden files and subdirectories are
// ignored. A missing directory is not an error; Discover returns an empty
// map.
func Discover(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading header directory %s: %w", dir, err)
	}

	found := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if id == "" {
			continue
		}
		found[id] = filepath.Join(dir, name)
	}
	return found, nil
}
