// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify matches CAD-exported Gerber files against layer rules and
// copies each match into the staging directory under the rule's target name.
package classify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// Result holds the outcome of classifying one run's sources.
type Result struct {
	// Sources lists the names of the source directories that were scanned.
	Sources []string

	// Outcomes has one entry per rule, in rule order.
	Outcomes []types.RuleOutcome

	// Warnings collects missing sources and unmatched rules.
	Warnings []types.MissingSourceWarning

	// FirstFile is the first file (sorted by name) of the first scanned
	// source, or "" when nothing was scanned.
	FirstFile string
}

// source is a scanned directory and its sorted regular files.
type source struct {
	name  string
	dir   string
	files []string
}

// Classifier copies matching source files into a staging directory.
type Classifier struct {
	cfg     types.PackConfig
	staging string
	log     *zap.Logger
	folder  cases.Caser
}

// New returns a Classifier writing into staging. A nil logger is replaced
// with a no-op logger.
func New(cfg types.PackConfig, staging string, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		cfg:     cfg,
		staging: staging,
		log:     log,
		folder:  cases.Fold(),
	}
}

// Run scans the configured sources and stages a copy for every rule that
// matches. Missing sources and unmatched rules are warnings; a failed copy
// marks that rule failed. Run only returns an error when ctx is cancelled.
func (c *Classifier) Run(ctx context.Context, rules []types.Rule, w io.Writer) (Result, error) {
	var res Result

	sources := c.selectSources(w, &res)
	for _, s := range sources {
		res.Sources = append(res.Sources, s.name)
	}
	if len(sources) > 0 && len(sources[0].files) > 0 {
		res.FirstFile = sources[0].files[0]
	}

	names := c.cfg.SourceNames()
	res.Outcomes = make([]types.RuleOutcome, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out := c.classifyRule(rule, sources, names, w)
		if out.Status == types.OutcomeSkipped {
			res.Warnings = append(res.Warnings, types.MissingSourceWarning{Rule: rule.Label()})
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	return res, nil
}

// selectSources lists the configured source directories that exist. With
// SelectFirst only the first existing directory is returned.
func (c *Classifier) selectSources(w io.Writer, res *Result) []source {
	var selected []source
	for _, sd := range c.cfg.Sources {
		dir := c.cfg.Resolve(sd.Dir)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			warn := types.MissingSourceWarning{Source: sd.Name, Path: dir}
			res.Warnings = append(res.Warnings, warn)
			c.log.Debug("source directory not found", zap.String("source", sd.Name), zap.String("dir", dir))
			continue
		}

		files, err := listFiles(dir)
		if err != nil {
			warn := types.MissingSourceWarning{Source: sd.Name, Path: dir}
			res.Warnings = append(res.Warnings, warn)
			c.log.Warn("reading source directory", zap.String("source", sd.Name), zap.Error(err))
			fmt.Fprintf(w, "failed:  source %s (%v)\n", sd.Name, err)
			continue
		}

		fmt.Fprintf(w, "source:  %s (%s, %d files)\n", sd.Name, dir, len(files))
		selected = append(selected, source{name: sd.Name, dir: dir, files: files})
		if c.cfg.SourceSelection != types.SelectAll {
			break
		}
	}
	if len(selected) == 0 {
		c.log.Warn("no source directory found", zap.Strings("sources", c.cfg.SourceNames()))
	}
	return selected
}

// classifyRule scans every selected source for files matching rule.
func (c *Classifier) classifyRule(rule types.Rule, sources []source, names []string, w io.Writer) types.RuleOutcome {
	out := types.RuleOutcome{
		Rule:   rule.Label(),
		Target: rule.Target,
		Status: types.OutcomeSkipped,
	}

	if !filepath.IsLocal(rule.Target) {
		out.Status = types.OutcomeFailed
		out.Error = fmt.Sprintf("target %q escapes the staging directory", rule.Target)
		fmt.Fprintf(w, "failed:  %s (%s)\n", rule.Label(), out.Error)
		return out
	}
	dst := filepath.Join(c.staging, rule.Target)

	for _, s := range sources {
		tokens := rule.TokensFor(s.name, names)
		if len(tokens) == 0 {
			continue
		}
		for _, name := range s.files {
			if !matches(c.normalize(name), tokens) {
				continue
			}

			if err := copyFile(filepath.Join(s.dir, name), dst); err != nil {
				out.Status = types.OutcomeFailed
				out.Error = err.Error()
				c.log.Error("staging file", zap.String("rule", rule.Label()), zap.Error(err))
				fmt.Fprintf(w, "failed:  %s -> %s (%v)\n", name, rule.Target, err)
				return out
			}

			out.Status = types.OutcomeStaged
			out.Source = s.name
			out.Matches = append(out.Matches, name)
			fmt.Fprintf(w, "copied:  %s -> %s\n", name, rule.Target)

			if c.cfg.Match.Policy != types.LastMatchWins {
				return out
			}
		}
	}

	if out.Status == types.OutcomeSkipped {
		c.log.Debug("no matching source file", zap.String("rule", rule.Label()))
		fmt.Fprintf(w, "skipped: %s (no matching file)\n", rule.Label())
	} else if len(out.Matches) > 1 {
		c.log.Info("rule matched several files, last copy kept",
			zap.String("rule", rule.Label()), zap.Strings("matches", out.Matches))
	}
	return out
}

// normalize prepares a filename for matching according to the configured
// normalization. The extension is never altered.
func (c *Classifier) normalize(name string) string {
	if c.cfg.Match.Normalize != types.NormalizeStandard {
		return name
	}
	ext := filepath.Ext(name)
	base := c.folder.String(strings.TrimSuffix(name, ext))
	base = strings.NewReplacer(" ", "_", "-", "_").Replace(base)
	return base + ext
}

// matches reports whether any token is a substring of name.
func matches(name string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// listFiles returns the names of non-directory entries in dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// copyFile copies src to dst, truncating any existing dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return &types.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	out, err := os.Create(dst)
	if err != nil {
		return &types.IOError{Op: "create", Path: dst, Err: err}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &types.IOError{Op: "close", Path: dst, Err: cerr}
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return &types.IOError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

// Staged reports whether the staged copy for target exists in staging.
func Staged(staging, target string) bool {
	info, err := os.Stat(filepath.Join(staging, target))
	return err == nil && !info.IsDir()
}
