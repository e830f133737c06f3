// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "path/filepath"

// SourceSelection controls which configured source directories a run scans.
type SourceSelection string

const (
	// SelectFirst scans only the first source directory that exists.
	SelectFirst SourceSelection = "first"
	// SelectAll scans every existing source directory in configured order.
	SelectAll SourceSelection = "all"
)

// MatchPolicy decides what happens when more than one file in a source
// matches the same rule.
type MatchPolicy string

const (
	// FirstMatchWins copies the first matching file (in sorted name order)
	// and stops scanning for that rule.
	FirstMatchWins MatchPolicy = "first"
	// LastMatchWins keeps scanning; each later match overwrites the staged copy.
	LastMatchWins MatchPolicy = "last"
)

// Normalization selects how source filenames are prepared before token
// matching. Tokens are always compared as written.
type Normalization string

const (
	// NormalizeNone matches raw filenames.
	NormalizeNone Normalization = "none"
	// NormalizeStandard case-folds the name part of the filename and turns
	// spaces and dashes into underscores. The extension is left alone.
	NormalizeStandard Normalization = "standard"
)

// PrefixMode selects how the bundle name prefix is derived.
type PrefixMode string

const (
	// PrefixFolder uses the base name of the working directory.
	PrefixFolder PrefixMode = "folder"
	// PrefixSourceFile uses the first dash-separated part of the first file
	// in the scanned source directory.
	PrefixSourceFile PrefixMode = "source-file"
	// PrefixLiteral uses BundleConfig.Prefix verbatim.
	PrefixLiteral PrefixMode = "literal"
)

// SourceDir is one upstream CAD export directory.
type SourceDir struct {
	// Name identifies the toolchain (e.g. "ad", "kicad"). Rule token fields
	// prefixed with Name+"_" apply only to this source.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Dir is the directory holding the exported Gerber and drill files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// MatchConfig holds classifier settings.
type MatchConfig struct {
	Policy    MatchPolicy   `json:"policy" yaml:"policy" mapstructure:"policy"`
	Normalize Normalization `json:"normalize" yaml:"normalize" mapstructure:"normalize"`
}

// BundleConfig holds packager settings.
type BundleConfig struct {
	// PrefixMode selects how the bundle name prefix is derived (default folder).
	PrefixMode PrefixMode `json:"prefix_mode" yaml:"prefix_mode" mapstructure:"prefix_mode"`

	// Prefix is the literal prefix used when PrefixMode is literal.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty" mapstructure:"prefix"`

	// Level is the deflate compression level, 1 (fastest) to 9 (smallest).
	Level int `json:"level" yaml:"level" mapstructure:"level"`
}

// HistoryConfig holds run-history settings.
type HistoryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file (default .gerberpack/history.db).
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// BlockConfig holds the descriptor defaults written for schematic blocks.
type BlockConfig struct {
	Description string `json:"description" yaml:"description" mapstructure:"description"`
	Keywords    string `json:"keywords" yaml:"keywords" mapstructure:"keywords"`
	Reliability string `json:"reliability" yaml:"reliability" mapstructure:"reliability"`
}

// PackConfig is the fully resolved configuration for one invocation. It is
// built once at startup and handed to every component; nothing reads paths
// from process-wide state.
type PackConfig struct {
	// BaseDir anchors every relative path below. Defaults to the working directory.
	BaseDir string `json:"base_dir" yaml:"base_dir" mapstructure:"base_dir"`

	// Rules is the rule source (.csv, .json, .yaml).
	Rules string `json:"rules" yaml:"rules" mapstructure:"rules"`

	// StagingDir receives renamed and header-injected files. It is cleared
	// at the start of every run.
	StagingDir string `json:"staging_dir" yaml:"staging_dir" mapstructure:"staging_dir"`

	// OutputDir receives the bundle. Defaults to BaseDir.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	Sources         []SourceDir     `json:"sources" yaml:"sources" mapstructure:"sources"`
	SourceSelection SourceSelection `json:"source_selection" yaml:"source_selection" mapstructure:"source_selection"`

	Match MatchConfig `json:"match" yaml:"match" mapstructure:"match"`

	// HeaderFiles maps a boilerplate header ID (as referenced by rules) to
	// a plain-text file.
	HeaderFiles map[string]string `json:"header_files" yaml:"header_files" mapstructure:"header_files"`

	// HeaderDir holds further boilerplate files, each addressed by its
	// filename without extension. HeaderFiles entries win on conflict.
	HeaderDir string `json:"header_dir,omitempty" yaml:"header_dir,omitempty" mapstructure:"header_dir"`

	Bundle  BundleConfig  `json:"bundle" yaml:"bundle" mapstructure:"bundle"`
	History HistoryConfig `json:"history" yaml:"history" mapstructure:"history"`
	Block   BlockConfig   `json:"block" yaml:"block" mapstructure:"block"`
}

// DefaultPackConfig returns the configuration used when no config file or
// flag overrides a setting. The layout matches the directory names the
// upstream export scripts produce.
func DefaultPackConfig() PackConfig {
	return PackConfig{
		BaseDir:    ".",
		Rules:      "data/gerber.csv",
		StagingDir: "jlc_gerber",
		Sources: []SourceDir{
			{Name: "ad", Dir: "ad_gerber"},
			{Name: "kicad", Dir: "kicad_gerber"},
			{Name: "gerber", Dir: "gerber"},
		},
		SourceSelection: SelectFirst,
		Match: MatchConfig{
			Policy:    FirstMatchWins,
			Normalize: NormalizeNone,
		},
		HeaderFiles: map[string]string{
			"hear1": "data/jlc_gerber_header.md",
			"hear2": "data/jlc_gerber_header2.md",
		},
		HeaderDir: "data/headers",
		Bundle: BundleConfig{
			PrefixMode: PrefixFolder,
			Level:      6,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".gerberpack/history.db",
		},
		Block: BlockConfig{
			Description: "描述",
			Keywords:    "project",
			Reliability: "20%",
		},
	}
}

// Resolve returns path anchored at BaseDir unless it is already absolute.
// An empty path stays empty.
func (c PackConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

// StateDir is the directory, relative to BaseDir, that holds the history
// database and run locks.
const StateDir = ".gerberpack"

// LockPath returns the lock file guarding staging. It lives under StateDir
// so the board directory only gains the staging folder and bundles.
func (c PackConfig) LockPath() string {
	name := filepath.Base(filepath.Clean(c.StagingDir))
	return filepath.Join(c.BaseDir, StateDir, name+".lock")
}

// OutputPath returns the resolved bundle directory, falling back to BaseDir.
func (c PackConfig) OutputPath() string {
	if c.OutputDir == "" {
		return c.BaseDir
	}
	return c.Resolve(c.OutputDir)
}

// SourceNames lists the configured source names in order.
func (c PackConfig) SourceNames() []string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = s.Name
	}
	return names
}
