// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/gerberpack/pkg/types"
)

const legacyCSV = `name,jlc_filename,ad_gbr,ad_filename,kicad_gbr,kicad_filename,kicad_filename2,jlc_begin,hear
TopCopper,Gerber_TopLayer.GTL,.GTL,,F_Cu,-F_Cu,CuTop,;TYPE=PLATED;Layer: CuTop,hear1
Unused,,,,,,,,
Drill,Drill_PTH_Through.DRL,RoundHoles,,PTH,-PTH,,;TYPE=PLATED\n;Layer: PTH_Through,
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "gerber.csv", legacyCSV)

	got, err := Load(path)
	require.NoError(t, err)

	want := []types.Rule{
		{
			Name:   "TopCopper",
			Target: "Gerber_TopLayer.GTL",
			Tokens: []types.Token{
				{Value: ".GTL", Field: "ad_gbr"},
				{Value: "F_Cu", Field: "kicad_gbr"},
				{Value: "-F_Cu", Field: "kicad_filename"},
				{Value: "CuTop", Field: "kicad_filename2"},
			},
			Header:   []string{";TYPE=PLATED;Layer: CuTop"},
			HeaderID: "hear1",
		},
		{
			Name:   "Drill",
			Target: "Drill_PTH_Through.DRL",
			Tokens: []types.Token{
				{Value: "RoundHoles", Field: "ad_gbr"},
				{Value: "PTH", Field: "kicad_gbr"},
				{Value: "-PTH", Field: "kicad_filename"},
			},
			Header: []string{";TYPE=PLATED", ";Layer: PTH_Through"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_CSVWithBOM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.csv", "\ufefftarget,token\nGTL.GBR,CuTop\n")

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GTL.GBR", got[0].Target)
	assert.Equal(t, []types.Token{{Value: "CuTop", Field: "token"}}, got[0].Tokens)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		row     int
		is      error
	}{
		{name: "missing target column", file: "r.csv", content: "name,token\nA,CuTop\n", row: 1},
		{name: "empty csv", file: "r.csv", content: ""},
		{name: "only blank targets", file: "r.csv", content: "target,token\n,CuTop\n"},
		{name: "json scalar", file: "r.json", content: `"nope"`},
		{name: "json bad header", file: "r.json", content: `{"L1": {"target": "A", "header": 5}}`, row: 1},
		{name: "yaml rule without target", file: "r.yaml", content: "rules:\n  - name: A\n    tokens: [CuTop]\n", row: 1},
		{name: "yaml nested token", file: "r.yaml", content: "rules:\n  - target: A\n    tokens: [[CuTop]]\n", row: 1},
		{name: "unknown extension", file: "r.toml", content: "x", is: ErrUnsupportedFormat},
		{name: "csv duplicate target", file: "r.csv", content: "target,token\nGTL.GBR,CuTop\nGTL.GBR,CuBot\n", row: 3},
		{name: "csv duplicate target differing in case", file: "r.csv", content: "target,token\nGTL.GBR,CuTop\ngtl.gbr,CuBot\n", row: 3},
		{name: "json duplicate target", file: "r.json", content: `{"A": {"target": "GTL.GBR", "token": "CuTop"}, "B": {"target": "GTL.GBR", "token": "CuBot"}}`, row: 2},
		{name: "yaml duplicate target", file: "r.yaml", content: "rules:\n  - target: GTL.GBR\n    tokens: [CuTop]\n    header: HEADER-A\n  - target: GTL.GBR\n    tokens: [CuBot]\n    header: HEADER-B\n", row: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)

			_, err := Load(path)
			require.Error(t, err)

			var cfgErr *types.ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *types.ConfigError, got %T", err)
			assert.Equal(t, path, cfgErr.Path)
			assert.Equal(t, tt.row, cfgErr.Row)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoad_DuplicateTargetNamesFirstRow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "r.csv", "target,token\nGTL.GBR,CuTop\nGBL.GBR,CuBot\nGTL.GBR,F_Cu\n")

	_, err := Load(path)

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 4, cfgErr.Row)
	assert.Contains(t, err.Error(), `duplicate target "GTL.GBR", first defined at row 2`)
}

func TestLoad_SplitsLegacyDrillHeaders(t *testing.T) {
	content := "target,token,header\n" +
		"Drill_NPTH_Through.DRL,NPTH,;TYPE=PLATED;Layer: NPTH_Through\n" +
		"Drill_PTH_Through.DRL,PTH,;TYPE=PLATED;Layer: PTH_Through\n" +
		"Gerber_TopLayer.GTL,CuTop,;TYPE=PLATED;Layer: CuTop\n"
	path := writeFile(t, t.TempDir(), "r.csv", content)

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{";TYPE=PLATED", ";Layer: NPTH_Through"}, got[0].Header)
	assert.Equal(t, []string{";TYPE=PLATED", ";Layer: PTH_Through"}, got[1].Header)
	assert.Equal(t, []string{";TYPE=PLATED;Layer: CuTop"}, got[2].Header)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoad_JSONObjectKeepsOrder(t *testing.T) {
	content := `{
    "Top Copper": {"jlc_filename": "Gerber_TopLayer.GTL", "jlc_header": ["G04 Created 2020-01-01 00:00:00*", "%FSLAX46Y46*%"], "kicad": "f_cu", "protel": ".gtl"},
    "Paste": {"jlc_filename": null, "kicad": "f_paste"},
    "Bottom Copper": {"jlc_filename": "Gerber_BottomLayer.GBL", "jlc_header": [], "kicad": "b_cu"}
}`
	path := writeFile(t, t.TempDir(), "GerberX2.json", content)

	got, err := Load(path)
	require.NoError(t, err)

	want := []types.Rule{
		{
			Name:   "Top Copper",
			Target: "Gerber_TopLayer.GTL",
			Tokens: []types.Token{
				{Value: "f_cu", Field: "kicad"},
				{Value: ".gtl", Field: "protel"},
			},
			Header: []string{"G04 Created 2020-01-01 00:00:00*", "%FSLAX46Y46*%"},
		},
		{
			Name:   "Bottom Copper",
			Target: "Gerber_BottomLayer.GBL",
			Tokens: []types.Token{{Value: "b_cu", Field: "kicad"}},
			Header: []string{},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSONArray(t *testing.T) {
	content := `[
    {"target": "GTL.GBR", "tokens": ["CuTop", "F_Cu"], "header": ";TYPE=PLATED;Layer: CuTop"},
    {"target": "GBL.GBR", "tokens": {"kicad_gbr": "B_Cu"}, "hear": "hear2"}
]`
	path := writeFile(t, t.TempDir(), "rules.json", content)

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []types.Token{{Value: "CuTop", Field: "tokens"}, {Value: "F_Cu", Field: "tokens"}}, got[0].Tokens)
	assert.Equal(t, []string{";TYPE=PLATED;Layer: CuTop"}, got[0].Header)
	assert.Equal(t, []types.Token{{Value: "B_Cu", Field: "kicad_gbr"}}, got[1].Tokens)
	assert.Equal(t, "hear2", got[1].HeaderID)
}

func TestLoad_YAML(t *testing.T) {
	content := `rules:
  - name: top
    target: GTL.GBR
    tokens: [CuTop, F_Cu]
    header:
      - ";TYPE=PLATED;Layer: CuTop"
  - target: GBL.GBR
    tokens:
      kicad_gbr: B_Cu
      ad_gbr: .GBL
    header: "G04 line one\nG04 line two"
    header_id: hear1
`
	path := writeFile(t, t.TempDir(), "rules.yaml", content)

	got, err := Load(path)
	require.NoError(t, err)

	want := []types.Rule{
		{
			Name:   "top",
			Target: "GTL.GBR",
			Tokens: []types.Token{{Value: "CuTop", Field: "tokens"}, {Value: "F_Cu", Field: "tokens"}},
			Header: []string{";TYPE=PLATED;Layer: CuTop"},
		},
		{
			Target:   "GBL.GBR",
			Tokens:   []types.Token{{Value: "B_Cu", Field: "kicad_gbr"}, {Value: ".GBL", Field: "ad_gbr"}},
			Header:   []string{"G04 line one", "G04 line two"},
			HeaderID: "hear1",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "gerber.csv", legacyCSV)
	want, err := Load(src)
	require.NoError(t, err)

	sortTokens := cmpopts.SortSlices(func(a, b types.Token) bool { return a.Field < b.Field })

	for _, name := range []string{"GerberX2.json", "rules.yaml"} {
		t.Run(name, func(t *testing.T) {
			dst := filepath.Join(dir, "out", name)

			n, err := Convert(src, dst)
			require.NoError(t, err)
			assert.Equal(t, len(want), n)

			got, err := Load(dst)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, sortTokens); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvert_UnnamedRulesWriteArray(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "rules.csv", "target,token\nA.GBR,CuTop\nB.GBR,CuBottom\n")
	dst := filepath.Join(dir, "rules.json")

	_, err := Convert(src, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])

	got, err := Load(dst)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B.GBR", got[1].Target)
}

func TestConvert_UnsupportedDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "rules.csv", "target,token\nA.GBR,CuTop\n")

	_, err := Convert(src, filepath.Join(dir, "rules.xml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTokenAppliesTo(t *testing.T) {
	sources := []string{"ad", "kicad", "gerber"}
	tests := []struct {
		field  string
		source string
		want   bool
	}{
		{"kicad_gbr", "kicad", true},
		{"kicad_gbr", "ad", false},
		{"ad_filename", "ad", true},
		{"token", "ad", true},
		{"tokens", "gerber", true},
		{"", "kicad", true},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.source, func(t *testing.T) {
			tok := types.Token{Value: "x", Field: tt.field}
			assert.Equal(t, tt.want, tok.AppliesTo(tt.source, sources))
		})
	}
}
