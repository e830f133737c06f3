//go:build mage

// Package main contains Mage build targets for gerberpack developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/gerberpack/internal/header"
	"github.com/pdiddy/gerberpack/internal/rules"
)

// projectDirs lists the working directories a pack run expects.
var projectDirs = []string{
	"ad_gerber",
	"kicad_gerber",
	"gerber",
	"data",
	"data/headers",
}

// Init creates the source and data directories for a board project.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "gerberpack"
	cmdPkg  = "./cmd/gerberpack"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Pack builds the CLI and runs a pack in the current directory.
func Pack() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "pack")
}

// Stats prints board data and code metrics: rules per rule file under
// data/, boilerplate headers in data/headers, and non-blank Go lines.
func Stats() error {
	ruleFiles, err := filepath.Glob(filepath.Join("data", "*"))
	if err != nil {
		return err
	}
	for _, path := range ruleFiles {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".json", ".yaml", ".yml":
		default:
			continue
		}
		ruleset, err := rules.Load(path)
		if err != nil {
			fmt.Printf("Rules %-28s error: %v\n", path+":", err)
			continue
		}
		fmt.Printf("Rules %-28s %d\n", path+":", len(ruleset))
	}

	headers, err := header.Discover(filepath.Join("data", "headers"))
	if err != nil {
		return err
	}
	fmt.Printf("Boilerplate headers (data/headers): %d\n", len(headers))

	prod, tests, err := countGoLines(".")
	if err != nil {
		return err
	}
	fmt.Printf("Go lines (production):              %d\n", prod)
	fmt.Printf("Go lines (tests):                   %d\n", tests)
	return nil
}

// countGoLines counts non-blank lines in Go files below root, split into
// production and _test.go totals.
func countGoLines(root string) (prod, tests int, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.ContainsAny(d.Name()[:1], "._") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n := 0
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				n++
			}
		}
		if strings.HasSuffix(path, "_test.go") {
			tests += n
		} else {
			prod += n
		}
		return nil
	})
	return prod, tests, err
}
