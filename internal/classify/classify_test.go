// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// setup creates a base directory with the named source directories
// populated from files (source name -> filename -> content) and returns a
// config rooted there plus an empty staging directory.
func setup(t *testing.T, files map[string]map[string]string) (types.PackConfig, string) {
	t.Helper()
	base := t.TempDir()
	cfg := types.DefaultPackConfig()
	cfg.BaseDir = base

	for _, sd := range cfg.Sources {
		content, ok := files[sd.Name]
		if !ok {
			continue
		}
		dir := filepath.Join(base, sd.Dir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for name, body := range content {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		}
	}

	staging := filepath.Join(base, "staging")
	require.NoError(t, os.MkdirAll(staging, 0o755))
	return cfg, staging
}

func tok(v string) types.Token { return types.Token{Value: v, Field: "tokens"} }

func readStaged(t *testing.T, staging, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(staging, name))
	require.NoError(t, err)
	return string(data)
}

func TestRun_MatchesAndRenames(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-CuTop.gbr": "G04 top*\nM02*\n"},
	})
	rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("CuTop")}}}

	var log bytes.Buffer
	res, err := New(cfg, staging, zap.NewNop()).Run(context.Background(), rules, &log)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	out := res.Outcomes[0]
	assert.Equal(t, types.OutcomeStaged, out.Status)
	assert.Equal(t, "kicad", out.Source)
	assert.Equal(t, []string{"Board-CuTop.gbr"}, out.Matches)
	assert.Equal(t, "G04 top*\nM02*\n", readStaged(t, staging, "GTL.GBR"))
	assert.Equal(t, []string{"kicad"}, res.Sources)
	assert.Equal(t, "Board-CuTop.gbr", res.FirstFile)
	assert.Contains(t, log.String(), "copied:  Board-CuTop.gbr -> GTL.GBR")

	// Sources are never mutated.
	_, err = os.Stat(filepath.Join(cfg.BaseDir, "kicad_gerber", "Board-CuTop.gbr"))
	assert.NoError(t, err)
}

func TestRun_UnmatchedRuleIsSkipped(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-CuTop.gbr": "top"},
	})
	rules := []types.Rule{{Name: "Bottom", Target: "GBL.GBR", Tokens: []types.Token{tok("CuBottom")}}}

	var log bytes.Buffer
	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &log)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSkipped, res.Outcomes[0].Status)
	assert.False(t, Staged(staging, "GBL.GBR"))
	assert.Contains(t, res.Warnings, types.MissingSourceWarning{Rule: "Bottom"})
	assert.Contains(t, log.String(), "skipped: Bottom")
}

func TestRun_FanOut(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-Edge_Cuts.gbr": "outline"},
	})
	rules := []types.Rule{
		{Target: "GKO.GBR", Tokens: []types.Token{tok("Edge_Cuts")}},
		{Target: "GM1.GBR", Tokens: []types.Token{tok("Edge")}},
	}

	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
	require.NoError(t, err)

	for _, o := range res.Outcomes {
		assert.Equal(t, types.OutcomeStaged, o.Status, o.Target)
	}
	assert.Equal(t, "outline", readStaged(t, staging, "GKO.GBR"))
	assert.Equal(t, "outline", readStaged(t, staging, "GM1.GBR"))
}

func TestRun_MatchPolicy(t *testing.T) {
	tests := []struct {
		policy      types.MatchPolicy
		wantContent string
		wantMatches []string
	}{
		{types.FirstMatchWins, "a", []string{"Board-CuTop-a.gbr"}},
		{types.LastMatchWins, "b", []string{"Board-CuTop-a.gbr", "Board-CuTop-b.gbr"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg, staging := setup(t, map[string]map[string]string{
				"kicad": {"Board-CuTop-b.gbr": "b", "Board-CuTop-a.gbr": "a"},
			})
			cfg.Match.Policy = tt.policy
			rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("CuTop")}}}

			res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
			require.NoError(t, err)

			assert.Equal(t, tt.wantMatches, res.Outcomes[0].Matches)
			assert.Equal(t, tt.wantContent, readStaged(t, staging, "GTL.GBR"))
		})
	}
}

func TestRun_SourceSelection(t *testing.T) {
	files := map[string]map[string]string{
		"kicad":  {"Board-F_Cu.gbr": "kicad top"},
		"gerber": {"board-f_cu.gtl": "x2 top"},
	}
	rules := []types.Rule{{
		Target: "GTL.GBR",
		Tokens: []types.Token{
			{Value: "F_Cu", Field: "kicad_gbr"},
			{Value: "f_cu", Field: "gerber_gbr"},
		},
	}}

	t.Run("first existing source only", func(t *testing.T) {
		cfg, staging := setup(t, files)

		res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
		require.NoError(t, err)

		assert.Equal(t, []string{"kicad"}, res.Sources)
		assert.Contains(t, res.Warnings, types.MissingSourceWarning{
			Source: "ad",
			Path:   filepath.Join(cfg.BaseDir, "ad_gerber"),
		})
		assert.Equal(t, "kicad top", readStaged(t, staging, "GTL.GBR"))
	})

	t.Run("all sources with scoped tokens", func(t *testing.T) {
		cfg, staging := setup(t, files)
		cfg.SourceSelection = types.SelectAll
		cfg.Match.Policy = types.LastMatchWins

		res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
		require.NoError(t, err)

		assert.Equal(t, []string{"kicad", "gerber"}, res.Sources)
		assert.Equal(t, []string{"Board-F_Cu.gbr", "board-f_cu.gtl"}, res.Outcomes[0].Matches)
		assert.Equal(t, "gerber", res.Outcomes[0].Source)
		assert.Equal(t, "x2 top", readStaged(t, staging, "GTL.GBR"))
	})
}

func TestRun_NoSourcesIsNotAnError(t *testing.T) {
	cfg, staging := setup(t, nil)
	rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("CuTop")}}}

	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Empty(t, res.Sources)
	assert.Empty(t, res.FirstFile)
	assert.Equal(t, types.OutcomeSkipped, res.Outcomes[0].Status)
	// Three missing sources plus one unmatched rule.
	assert.Len(t, res.Warnings, 4)
}

func TestRun_Normalization(t *testing.T) {
	rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("board_f_cu")}}}

	tests := []struct {
		mode types.Normalization
		want types.OutcomeStatus
	}{
		{types.NormalizeNone, types.OutcomeSkipped},
		{types.NormalizeStandard, types.OutcomeStaged},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg, staging := setup(t, map[string]map[string]string{
				"gerber": {"Board-F Cu.GBR": "top"},
			})
			cfg.Match.Normalize = tt.mode

			res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcomes[0].Status)
		})
	}
}

func TestRun_LiteralMatchingIsCaseSensitive(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"board-cutop.gbr": "top"},
	})
	rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("CuTop")}}}

	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, res.Outcomes[0].Status)
}

func TestRun_SubdirectoriesIgnored(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-CuTop.gbr": "top"},
	})
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.BaseDir, "kicad_gerber", "CuTop-old"), 0o755))
	rules := []types.Rule{{Target: "GTL.GBR", Tokens: []types.Token{tok("CuTop")}}}

	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Board-CuTop.gbr"}, res.Outcomes[0].Matches)
}

func TestRun_TargetOutsideStagingFails(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-CuTop.gbr": "top"},
	})
	rules := []types.Rule{{Target: "../escape.gbr", Tokens: []types.Token{tok("CuTop")}}}

	res, err := New(cfg, staging, nil).Run(context.Background(), rules, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeFailed, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Error, "escapes")
	_, err = os.Stat(filepath.Join(cfg.BaseDir, "escape.gbr"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ContextCancelled(t *testing.T) {
	cfg, staging := setup(t, map[string]map[string]string{
		"kicad": {"Board-CuTop.gbr": "top"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, staging, nil).Run(ctx, []types.Rule{{Target: "GTL.GBR"}}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
