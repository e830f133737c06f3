// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package header

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// Injector prepends rule headers to files in a staging directory.
type Injector struct {
	cfg     types.PackConfig
	staging string
	log     *zap.Logger
	now     func() time.Time

	// boilerplate caches header files by resolved path for one run.
	boilerplate map[string]string

	// discovered holds the header directory listing, read on first use.
	discovered map[string]string
}

// NewInjector returns an Injector for staging using the wall clock.
func NewInjector(cfg types.PackConfig, staging string, log *zap.Logger) *Injector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{
		cfg:     cfg,
		staging: staging,
		log:     log,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for timestamp substitution.
func (in *Injector) WithClock(now func() time.Time) *Injector {
	in.now = now
	return in
}

// Run injects headers for every rule whose outcome is staged. outcomes must
// be aligned with rules; each is updated in place. A failure on one rule is
// recorded in its outcome and does not stop the others. Run only returns an
// error when ctx is cancelled.
func (in *Injector) Run(ctx context.Context, rules []types.Rule, outcomes []types.RuleOutcome, w io.Writer) error {
	if len(rules) != len(outcomes) {
		return fmt.Errorf("header injection: %d rules but %d outcomes", len(rules), len(outcomes))
	}

	now := in.now()
	in.boilerplate = make(map[string]string)
	in.discovered = nil
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if outcomes[i].Status != types.OutcomeStaged {
			continue
		}

		injected, err := in.Inject(rule, now)
		if err != nil {
			outcomes[i].Status = types.OutcomeFailed
			outcomes[i].Error = err.Error()
			in.log.Error("injecting header", zap.String("rule", rule.Label()), zap.Error(err))
			fmt.Fprintf(w, "failed:  header %s (%v)\n", rule.Target, err)
			continue
		}
		outcomes[i].HeaderInjected = injected
		if injected {
			fmt.Fprintf(w, "header:  %s\n", rule.Target)
		}
	}
	return nil
}

// Inject rewrites the staged file for rule with its header prepended. It
// reports false without error when the staged file does not exist or the
// rule produces no header blocks.
func (in *Injector) Inject(rule types.Rule, now time.Time) (bool, error) {
	path := filepath.Join(in.staging, rule.Target)
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &types.IOError{Op: "read", Path: path, Err: err}
	}

	b, err := in.Build(rule, now)
	if err != nil {
		return false, err
	}
	if b.Len() == 0 {
		return false, nil
	}

	if err := os.WriteFile(path, b.Prepend(content), 0o644); err != nil {
		return false, &types.IOError{Op: "write", Path: path, Err: err}
	}
	return true, nil
}

// Build composes the header for rule: template lines with timestamps
// refreshed, then the trimmed boilerplate referenced by HeaderID. A
// boilerplate ID with no table entry or no file is omitted.
func (in *Injector) Build(rule types.Rule, now time.Time) (*Builder, error) {
	b := &Builder{}
	for _, line := range rule.Header {
		b.Line(SubstituteTimestamp(line, now))
	}

	if rule.HeaderID == "" {
		return b, nil
	}
	path, err := in.lookup(rule.HeaderID)
	if err != nil {
		return nil, err
	}
	if path == "" {
		in.log.Debug("unknown header id", zap.String("rule", rule.Label()), zap.String("header_id", rule.HeaderID))
		return b, nil
	}

	text, err := in.loadBoilerplate(path)
	if err != nil {
		return nil, err
	}
	return b.Add(text), nil
}

// lookup resolves a header ID to a file path. Entries in the configured
// table take precedence over files found in the header directory.
func (in *Injector) lookup(id string) (string, error) {
	if ref, ok := in.cfg.HeaderFiles[id]; ok {
		return in.cfg.Resolve(ref), nil
	}
	if in.cfg.HeaderDir == "" {
		return "", nil
	}
	if in.discovered == nil {
		found, err := Discover(in.cfg.Resolve(in.cfg.HeaderDir))
		if err != nil {
			return "", err
		}
		in.discovered = found
	}
	return in.discovered[id], nil
}

func (in *Injector) loadBoilerplate(path string) (string, error) {
	if text, ok := in.boilerplate[path]; ok {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		in.log.Debug("boilerplate header not found", zap.String("path", path))
		data, err = nil, nil
	}
	if err != nil {
		return "", &types.IOError{Op: "read", Path: path, Err: err}
	}
	text := strings.TrimSpace(string(data))
	if in.boilerplate != nil {
		in.boilerplate[path] = text
	}
	return text, nil
}
