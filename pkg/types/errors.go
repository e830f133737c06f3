// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ConfigError reports a missing or malformed rule source or configuration.
// It is fatal and surfaces before any file in the staging directory is touched.
type ConfigError struct {
	Path string
	// Row is the 1-based record number within the source, 0 when unknown.
	Row int
	Err error
}

func (e *ConfigError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("config %s (row %d): %v", e.Path, e.Row, e.Err)
	}
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IOError reports a failed filesystem operation. During classification and
// header injection it is recorded per rule; during packaging it aborts the run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// MissingSourceWarning describes an absent optional input: a source
// directory that does not exist or a rule with no matching file. It is
// logged and recorded, never returned as an error.
type MissingSourceWarning struct {
	Source string
	Rule   string
	Path   string
}

func (w MissingSourceWarning) String() string {
	if w.Rule != "" {
		return fmt.Sprintf("no source file for rule %s", w.Rule)
	}
	return fmt.Sprintf("source %s not found at %s", w.Source, w.Path)
}
