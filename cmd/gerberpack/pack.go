// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/gerberpack/internal/history"
	"github.com/pdiddy/gerberpack/internal/pipeline"
	"github.com/pdiddy/gerberpack/pkg/types"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build a vendor bundle from the exported Gerber files",
	Long: `Pack clears the staging directory, copies every source file that matches
a rule into it under the rule's target name, prepends the rule's header
text, and archives the result as out_<prefix>-<timestamp>.zip.

Missing source directories and unmatched rules are reported but do not
fail the run. A malformed rule source exits with status 2.`,
	RunE: runPack,
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyPackFlags(cmd, &cfg)
	if err := validateConfig(cfg); err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	progress := io.Writer(os.Stdout)
	if jsonOutput {
		progress = io.Discard
	}

	runner := pipeline.New(cfg, logger)
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.Resolve(cfg.History.Path))
		if err != nil {
			logger.Warn("opening run history", zap.Error(err))
		} else {
			defer store.Close()
			runner.WithRecorder(store)
		}
	}

	summary, runErr := runner.Run(context.Background(), progress)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(os.Stdout)
		fmt.Fprint(os.Stdout, renderSummary(summary))
	}
	if runErr != nil {
		return runErr
	}
	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d rule(s) failed", n)
	}
	return nil
}

// applyPackFlags overrides cfg with any pack flag set on the command line.
func applyPackFlags(cmd *cobra.Command, cfg *types.PackConfig) {
	f := cmd.Flags()
	if f.Changed("rules") {
		cfg.Rules, _ = f.GetString("rules")
	}
	if f.Changed("staging") {
		cfg.StagingDir, _ = f.GetString("staging")
	}
	if f.Changed("output") {
		cfg.OutputDir, _ = f.GetString("output")
	}
	if f.Changed("all-sources") {
		if all, _ := f.GetBool("all-sources"); all {
			cfg.SourceSelection = types.SelectAll
		} else {
			cfg.SourceSelection = types.SelectFirst
		}
	}
	if f.Changed("match-policy") {
		v, _ := f.GetString("match-policy")
		cfg.Match.Policy = types.MatchPolicy(v)
	}
	if f.Changed("normalize") {
		v, _ := f.GetString("normalize")
		cfg.Match.Normalize = types.Normalization(v)
	}
	if f.Changed("prefix") {
		cfg.Bundle.Prefix, _ = f.GetString("prefix")
		cfg.Bundle.PrefixMode = types.PrefixLiteral
	}
	if f.Changed("level") {
		cfg.Bundle.Level, _ = f.GetInt("level")
	}
	if f.Changed("no-history") {
		noHistory, _ := f.GetBool("no-history")
		cfg.History.Enabled = !noHistory
	}
}

func init() {
	packCmd.Flags().String("rules", "", "rule source (.csv, .json, .yaml)")
	packCmd.Flags().String("staging", "", "staging directory, cleared on every run")
	packCmd.Flags().String("output", "", "directory for the bundle (default: base directory)")
	packCmd.Flags().Bool("all-sources", false, "scan every existing source directory instead of the first")
	packCmd.Flags().String("match-policy", "", "duplicate match policy: first or last")
	packCmd.Flags().String("normalize", "", "filename normalization before matching: none or standard")
	packCmd.Flags().String("prefix", "", "literal bundle name prefix")
	packCmd.Flags().Int("level", 0, "deflate level 1-9 (0 = default)")
	packCmd.Flags().Bool("no-history", false, "do not record this run in the history database")
	packCmd.Flags().Bool("json", false, "print the run summary as JSON instead of a table")

	rootCmd.AddCommand(packCmd)
}
