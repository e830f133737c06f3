// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one pack run from rule loading to the vendor
// bundle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/gerberpack/internal/bundle"
	"github.com/pdiddy/gerberpack/internal/classify"
	"github.com/pdiddy/gerberpack/internal/header"
	"github.com/pdiddy/gerberpack/internal/rules"
	"github.com/pdiddy/gerberpack/pkg/types"
)

// ErrStagingBusy is wrapped in the IOError returned when another run holds
// the staging lock.
var ErrStagingBusy = errors.New("staging directory busy")

// Recorder persists a finished run. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, summary types.RunSummary) error
}

// Runner executes pack runs for one configuration.
type Runner struct {
	cfg      types.PackConfig
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
	recorder Recorder
}

// New returns a Runner for cfg. A nil logger is replaced with a no-op logger.
func New(cfg types.PackConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// WithClock replaces the clock used for header timestamps and bundle names.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// WithRecorder stores every run summary, successful or not, in rec.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	r.recorder = rec
	return r
}

// Run executes the pipeline with cfg and no history recording.
func Run(ctx context.Context, cfg types.PackConfig, w io.Writer, log *zap.Logger) (types.RunSummary, error) {
	return New(cfg, log).Run(ctx, w)
}

// Run drives one pack through Init, RulesLoaded, Classified,
// HeadersInjected, Packaged, and Done. Per-rule problems are kept in the
// summary. A fatal error is returned alongside the summary, whose State is
// the last state reached.
func (r *Runner) Run(ctx context.Context, w io.Writer) (types.RunSummary, error) {
	sum := types.RunSummary{
		ID:        r.newID(),
		StartedAt: r.now(),
		State:     types.StateInit,
	}
	log := r.log.With(zap.String("run", sum.ID))

	err := r.run(ctx, w, log, &sum)
	sum.FinishedAt = r.now()
	if err != nil {
		sum.Error = err.Error()
		log.Error("run failed", zap.String("state", string(sum.State)), zap.Error(err))
	} else {
		sum.State = types.StateDone
		log.Info("run complete",
			zap.Int("matched", sum.Matched()),
			zap.Int("skipped", sum.Skipped()),
			zap.Int("failed", sum.Failed()),
			zap.String("bundle", sum.Bundle))
	}

	if r.recorder != nil {
		// The parent context may already be cancelled; the record still
		// belongs in history.
		if rerr := r.recorder.Record(context.WithoutCancel(ctx), sum); rerr != nil {
			log.Warn("recording run history", zap.Error(rerr))
		}
	}
	return sum, err
}

func (r *Runner) run(ctx context.Context, w io.Writer, log *zap.Logger, sum *types.RunSummary) error {
	cfg := r.cfg
	staging, err := r.validate()
	if err != nil {
		return err
	}

	rulesPath := cfg.Resolve(cfg.Rules)
	ruleset, err := rules.Load(rulesPath)
	if err != nil {
		return err
	}
	sum.State = types.StateRulesLoaded
	fmt.Fprintf(w, "rules:   %d loaded from %s\n", len(ruleset), rulesPath)
	log.Debug("rules loaded", zap.String("path", rulesPath), zap.Int("count", len(ruleset)))

	unlock, err := lockStaging(cfg.LockPath())
	if err != nil {
		return err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ClearStaging(staging); err != nil {
		return err
	}

	cres, err := classify.New(cfg, staging, log).Run(ctx, ruleset, w)
	sum.Sources = cres.Sources
	sum.Outcomes = cres.Outcomes
	for _, warn := range cres.Warnings {
		sum.Warnings = append(sum.Warnings, warn.String())
	}
	if err != nil {
		return err
	}
	sum.State = types.StateClassified

	injector := header.NewInjector(cfg, staging, log).WithClock(r.now)
	if err := injector.Run(ctx, ruleset, sum.Outcomes, w); err != nil {
		return err
	}
	sum.State = types.StateHeadersInjected

	if err := ctx.Err(); err != nil {
		return err
	}
	outDir := cfg.OutputPath()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: outDir, Err: err}
	}
	dst := bundle.Path(outDir, bundle.Prefix(cfg, cres.FirstFile), sum.StartedAt, sum.ID)
	n, err := bundle.Write(ctx, staging, dst, cfg.Bundle.Level)
	if err != nil {
		return err
	}
	sum.Bundle = dst
	sum.Entries = n
	sum.State = types.StatePackaged
	fmt.Fprintf(w, "bundle:  %s (%d entries)\n", dst, n)
	return nil
}

// validate checks the directory layout before anything is read or written
// and returns the resolved staging directory.
func (r *Runner) validate() (string, error) {
	cfg := r.cfg
	if strings.TrimSpace(cfg.StagingDir) == "" {
		return "", &types.ConfigError{Err: errors.New("staging_dir is empty")}
	}
	if len(cfg.Sources) == 0 {
		return "", &types.ConfigError{Err: errors.New("no source directories configured")}
	}

	staging, err := filepath.Abs(cfg.Resolve(cfg.StagingDir))
	if err != nil {
		return "", &types.ConfigError{Path: cfg.StagingDir, Err: err}
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return "", &types.ConfigError{Path: cfg.BaseDir, Err: err}
	}
	if staging == base {
		return "", &types.ConfigError{Path: cfg.StagingDir, Err: errors.New("staging directory must not be the base directory")}
	}

	out, err := filepath.Abs(cfg.OutputPath())
	if err != nil {
		return "", &types.ConfigError{Path: cfg.OutputDir, Err: err}
	}
	if within(out, staging) {
		return "", &types.ConfigError{Path: cfg.OutputDir, Err: errors.New("output directory is inside the staging directory")}
	}
	for _, s := range cfg.Sources {
		dir, err := filepath.Abs(cfg.Resolve(s.Dir))
		if err != nil {
			return "", &types.ConfigError{Path: s.Dir, Err: err}
		}
		if within(dir, staging) {
			return "", &types.ConfigError{Path: s.Dir, Err: fmt.Errorf("source %s is inside the staging directory", s.Name)}
		}
	}
	return staging, nil
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

// lockStaging takes an exclusive lock on path without blocking.
func lockStaging(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, &types.IOError{Op: "lock", Path: path, Err: err}
	}
	if !ok {
		return nil, &types.IOError{Op: "lock", Path: path, Err: ErrStagingBusy}
	}
	return func() { _ = lock.Unlock() }, nil
}

// ClearStaging removes everything inside staging, creating it if needed.
func ClearStaging(staging string) error {
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: staging, Err: err}
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return &types.IOError{Op: "read", Path: staging, Err: err}
	}
	for _, e := range entries {
		path := filepath.Join(staging, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return &types.IOError{Op: "remove", Path: path, Err: err}
		}
	}
	return nil
}
