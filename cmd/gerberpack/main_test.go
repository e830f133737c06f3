// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/gerberpack/pkg/types"
)

func testCommand(base string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("base", "", "")
	if base != "" {
		_ = cmd.Flags().Set("base", base)
	}
	return cmd
}

func testViper(t *testing.T, yamlDoc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, types.DefaultPackConfig())
	if yamlDoc != "" {
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlDoc)))
	}
	return v
}

func TestDecodeConfig_Defaults(t *testing.T) {
	cfg, err := decodeConfig(testViper(t, ""), testCommand(""))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPackConfig(), cfg)
}

func TestDecodeConfig_FileAndFlag(t *testing.T) {
	doc := `
rules: rules/jlc.yaml
staging_dir: build/staging
source_selection: all
sources:
  - name: kicad
    dir: fab
match:
  policy: last
header_files:
  extra: data/extra.md
bundle:
  prefix_mode: literal
  prefix: rev-c
  level: 9
history:
  enabled: false
`
	cfg, err := decodeConfig(testViper(t, doc), testCommand("/work/board"))
	require.NoError(t, err)

	assert.Equal(t, "/work/board", cfg.BaseDir)
	assert.Equal(t, "rules/jlc.yaml", cfg.Rules)
	assert.Equal(t, "build/staging", cfg.StagingDir)
	assert.Equal(t, types.SelectAll, cfg.SourceSelection)
	assert.Equal(t, []types.SourceDir{{Name: "kicad", Dir: "fab"}}, cfg.Sources)
	assert.Equal(t, types.LastMatchWins, cfg.Match.Policy)
	assert.Equal(t, types.NormalizeNone, cfg.Match.Normalize)
	assert.Equal(t, "data/extra.md", cfg.HeaderFiles["extra"])
	assert.Equal(t, "data/jlc_gerber_header.md", cfg.HeaderFiles["hear1"])
	assert.Equal(t, types.BundleConfig{PrefixMode: types.PrefixLiteral, Prefix: "rev-c", Level: 9}, cfg.Bundle)
	assert.False(t, cfg.History.Enabled)
}

func TestDecodeConfig_InvalidEnum(t *testing.T) {
	_, err := decodeConfig(testViper(t, "match:\n  policy: random\n"), testCommand(""))

	var cfgErr *types.ConfigError
	require.True(t, errors.As(err, &cfgErr), "want *types.ConfigError, got %v", err)
	assert.Contains(t, err.Error(), "match.policy")
}

func TestValidateConfig_Sources(t *testing.T) {
	cfg := types.DefaultPackConfig()
	cfg.Sources = append(cfg.Sources, types.SourceDir{Name: "altium"})
	assert.Error(t, validateConfig(cfg))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config error", &types.ConfigError{Err: errors.New("bad")}, 2},
		{"wrapped config error", fmt.Errorf("loading: %w", &types.ConfigError{Err: errors.New("bad")}), 2},
		{"io error", &types.IOError{Op: "write", Path: "x", Err: errors.New("disk full")}, 1},
		{"plain error", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRenderSummary(t *testing.T) {
	s := types.RunSummary{
		ID:    "0f8fad5b-d9cb-469f-a165-70867728950e",
		State: types.StateDone,
		Outcomes: []types.RuleOutcome{
			{Rule: "F_Cu", Target: "GTL.GBR", Status: types.OutcomeStaged, Source: "kicad", Matches: []string{"board-F_Cu.gbr"}, HeaderInjected: true},
			{Rule: "B_Cu", Target: "GBL.GBR", Status: types.OutcomeSkipped},
		},
		Warnings: []string{"source ad not found at ad_gerber"},
		Bundle:   "out_board-20260101000000.zip",
		Entries:  1,
	}

	out := renderSummary(s)
	assert.Contains(t, out, "GTL.GBR")
	assert.Contains(t, out, "board-F_Cu.gbr")
	assert.Contains(t, out, "warning: source ad not found at ad_gerber")
	assert.Contains(t, out, "Run 0f8fad5b: done (1 matched, 1 skipped, 0 failed)")
	assert.Contains(t, out, "Bundle: out_board-20260101000000.zip (1 entries)")
}

func TestRenderRules(t *testing.T) {
	out := renderRules([]types.Rule{{
		Name:   "F_Cu",
		Target: "GTL.GBR",
		Tokens: []types.Token{{Field: "kicad_gbr", Value: "F_Cu"}},
		Header: []string{";Layer: CuTop"},
	}})
	assert.Contains(t, out, "kicad_gbr=F_Cu")
	assert.Contains(t, out, ";Layer: CuTop")
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil))

	out := renderTable(table.Row{"Name", "Count"}, []table.Row{{"a", 7}, {"bbbbbb"}}, 2)
	assert.Contains(t, out, "│ a      │     7 │")
	assert.Contains(t, out, "│ bbbbbb │       │")
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = newLogger(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
