package fuzzgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

func loadDevice(t *testing.T, path string) *topology.Device {
	t.Helper()
	d, err := topology.LoadDeviceFile(path)
	require.NoError(t, err)
	return d
}

func generate(t *testing.T, d *topology.Device, cfg *Config) []Request {
	t.Helper()
	g := &Generator{Family: d.Family, Device: d, Config: cfg}
	reqs, err := g.Generate(context.Background())
	require.NoError(t, err)
	return reqs
}

func find(reqs []Request, tile, bel, attr, val string) (Request, bool) {
	k := samples.Key{Tile: tile, Bel: bel, Attr: attr, Val: val}
	for _, r := range reqs {
		if r.Key == k {
			return r, true
		}
	}
	return Request{}, false
}

func TestGenerateV2P(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)
	require.NotEmpty(t, reqs)

	seen := map[samples.Key]bool{}
	for _, r := range reqs {
		if r.Check && r.Multi == nil {
			assert.True(t, seen[r.Key], "%s cross-checked before it was requested", r.Key)
		}
		for _, k := range r.Keys() {
			assert.True(t, r.Check || !seen[k], "%s requested twice", k)
			seen[k] = true
		}
	}
	require.NoError(t, Submit(samples.NewStore(), reqs))

	_, ok := find(reqs, "IOI", "IOI0", "OTCLK1INV", "OTCLK1_B")
	assert.True(t, ok)
	_, ok = find(reqs, "IOI_CLK_N", "IOI0", "OTCLK1INV", "OTCLK1")
	assert.False(t, ok, "clock pad bels carry no logic probes")
	_, ok = find(reqs, "IOI_CLK_N", "IOI2", "OTCLK1INV", "OTCLK1")
	assert.True(t, ok)

	r, ok := find(reqs, "IOI", "IOI1", "MUX_O", "FFO1")
	require.True(t, ok)
	assert.Equal(t, []string{"omux-offddr-baseline"}, r.Workarounds)
	c, ok := r.Diff.Find(KindAttr, Target{}, "OMUX")
	require.True(t, ok)
	assert.Equal(t, "OFF1", c.Value)
	c, ok = r.Base.Find(KindAttr, Target{}, "OMUX")
	require.True(t, ok)
	assert.Equal(t, "OFFDDR", c.Value)

	_, ok = find(reqs, "IOI", "IOI0", "MISR_ENABLE", "1")
	assert.False(t, ok, "no MISR outside Spartan-3E/3A")
}

func TestSharedRowCrossChecked(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	// LVDS_25 and LVDS_25_DT share the LVDS_25 row; both runs are kept
	// and the second must reproduce the first one's sample.
	k := samples.Key{Tile: "IOB_V2P_NW2", Bel: "IOB0", Attr: "ISTD", Val: "LVDS_25"}
	var got []string
	for _, r := range reqs {
		if r.Key != k {
			continue
		}
		c, ok := r.Diff.Find(KindAttr, Target{}, "IOATTRBOX")
		require.True(t, ok)
		assert.Equal(t, c.Value != "LVDS_25", r.CrossCheck(), "%s", c.Value)
		got = append(got, c.Value)
	}
	assert.Equal(t, []string{"LVDS_25", "LVDS_25_DT"}, got)
}

func TestVrefProbePlacement(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	r, ok := find(reqs, "IOB_V2P_NW2", "IOB2", "MODE", "NOTVREF")
	require.True(t, ok)
	require.NotNil(t, r.Io)
	assert.Equal(t, topology.IoCoord{Col: 2, Row: 20, Iob: 1}, *r.Io)
	pkg, ok := r.Base.Find(KindRaw, Target{}, RawPackage)
	require.True(t, ok)
	assert.Equal(t, "ff896", pkg.Value)

	_, ok = find(reqs, "IOB_V2P_SW2", "IOB4", "MODE", "NOTVREF")
	assert.True(t, ok)

	// No instance of the west tile is a VREF pin in any package.
	for _, r := range reqs {
		if r.Key.Tile == "IOB_V2P_WS2" {
			assert.NotEqual(t, "NOTVREF", r.Key.Val, "%s", r.Key)
		}
	}
}

func TestVrProbeAltPair(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	r, ok := find(reqs, "IOB_V2P_SW2", "IOB0", "MODE", "NOTVR")
	require.True(t, ok)
	alt, ok := r.Base.Find(KindRaw, Target{}, RawAltVr)
	require.True(t, ok)
	assert.Equal(t, "true", alt.Value)

	r, ok = find(reqs, "IOB_V2P_NW2", "IOB0", "MODE", "NOTVR")
	require.True(t, ok)
	_, ok = r.Base.Find(KindRaw, Target{}, RawAltVr)
	assert.False(t, ok)

	_, ok = find(reqs, "IOB_V2P_SW2", "IOB2", "MODE", "NOTVR")
	assert.False(t, ok, "primary pins of a bank with an alternate pair are not probed")
}

func TestBrefclkNextToClockColumn(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	r, ok := find(reqs, "IOB_V2P_NW2", "IOB1", "BREFCLK", "1")
	require.True(t, ok)
	require.Len(t, r.Diff, 1)
	pip := r.Diff[0]
	assert.Equal(t, KindPip, pip.Kind)
	assert.Equal(t, "BUFG1", pip.Target.Bel)
	require.NotNil(t, pip.Target.Site)
	assert.Equal(t, "CLKT", pip.Target.Site.Kind)

	// The bottom pad sits two columns away from the clock column.
	_, ok = find(reqs, "IOB_V2P_SW2", "IOB5", "BREFCLK", "1")
	assert.False(t, ok)
}

func TestOutputStandardQuirk(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	r, ok := find(reqs, "IOB_V2P_NW2", "IOB1", "OSTD", OstdVal("LVCMOS33", 8, SlewFast))
	require.True(t, ok)
	assert.NotEmpty(t, r.Quirk)
	r, ok = find(reqs, "IOB_V2P_NW2", "IOB1", "OSTD", OstdVal("LVCMOS33", 8, SlewSlow))
	require.True(t, ok)
	assert.Empty(t, r.Quirk)
}

func TestDiffOutputConfiguresPartner(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	reqs := generate(t, d, nil)

	r, ok := find(reqs, "IOB_V2P_WS2", "IOB0", "DIFFO", "LVDS_25")
	require.True(t, ok)
	var partner []Constraint
	for _, c := range r.Diff {
		if c.Target.Site != nil && c.Target.Bel == "IOI1" && *c.Target.Site == (topology.Site{Kind: "IOI", Col: 0, Row: 2}) {
			partner = append(partner, c)
		}
	}
	require.NotEmpty(t, partner)
	assert.Contains(t, partner, Constraint{Kind: KindMode, Target: partner[0].Target, Value: "DIFFS"})

	_, ok = find(reqs, "IOB_V2P_WS2", "IOB1", "DIFFO", "LVDS_25")
	assert.False(t, ok, "the complement half gets no driver probe")
	_, ok = find(reqs, "IOB_V2P_WS2", "IOB0", "DIFFO_ALT", "LVDS_25")
	assert.False(t, ok)
}

func TestGenerateS3E(t *testing.T) {
	d := loadDevice(t, "testdata/s3e.yaml")
	reqs := generate(t, d, nil)

	_, ok := find(reqs, "IOI_S3E", "IOI0", "MISR_ENABLE", "1")
	assert.True(t, ok)
	_, ok = find(reqs, "IOI_S3E", "IOI0", "MISR_RESET", "1")
	assert.True(t, ok)
	_, ok = find(reqs, "IOI_S3E", "IOI2", "MISR_ENABLE", "1")
	assert.False(t, ok, "the third bel only drives input-only pads")

	_, ok = find(reqs, "IOI_S3E", "IOI1", "MUX_FFO2", "PAIR_FFO1")
	assert.True(t, ok)
	_, ok = find(reqs, "IOI_S3E", "IOI2", "MUX_FFO1", "O1")
	assert.False(t, ok)

	_, ok = find(reqs, "IOB_S3E_N2", "IOB1", "DIFFO_ALT", "LVDS_25")
	assert.True(t, ok)
	_, ok = find(reqs, "IOB_S3E_N2", "IOB2", "MODE", "IOB")
	assert.False(t, ok, "input-only pads have no IOB mode")
	_, ok = find(reqs, "IOB_S3E_N2", "IOB2", "MODE", "IBUF")
	assert.True(t, ok)
	_, ok = find(reqs, "IOB_S3E_N2", "IOB2", "MODE", "NOTVREF")
	assert.True(t, ok)
	_, ok = find(reqs, "IOB_S3E_N2", "IOB0", "I_DELAY", "16")
	assert.True(t, ok)

	r, ok := find(reqs, "IOB_S3E_N2", "IOB1", "ISTD_DIFF", "LVDS_25")
	if !ok {
		r, ok = find(reqs, "IOB_S3E_N2", "IOB1", "ISTD", "LVDS_25")
	}
	require.True(t, ok)
	mode, ok := r.Base.Find(KindMode, Target{}, "")
	require.True(t, ok)
	assert.Equal(t, "IBUF", mode.Value)
	var other bool
	for _, c := range r.Base {
		if c.Target.Site != nil && c.Kind == KindAttr && c.Name == "OMUX" && c.Value == "O1" {
			other = true
		}
	}
	assert.True(t, other, "differential inputs drive another pad of the bank")
}

func TestGenerateDeterministic(t *testing.T) {
	d := loadDevice(t, "testdata/s3e.yaml")
	assert.Equal(t, generate(t, d, nil), generate(t, d, nil))
}

func TestGenerateConfig(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")

	cfg := &Config{TileFilter: "^IOI$"}
	require.NoError(t, cfg.Validate())
	for _, r := range generate(t, d, cfg) {
		assert.Equal(t, "IOI", r.Key.Tile)
	}

	cfg = &Config{SkipIOI: true, Package: "fg256"}
	require.NoError(t, cfg.Validate())
	reqs := generate(t, d, cfg)
	for _, r := range reqs {
		assert.True(t, topology.IsIobKind(r.Key.Tile), "%s", r.Key)
	}
	r, ok := find(reqs, "IOB_V2P_NW2", "IOB1", "OSTD", OstdVal("LVCMOS33", 12, SlewSlow))
	require.True(t, ok)
	pkg, _ := r.Base.Find(KindRaw, Target{}, RawPackage)
	assert.Equal(t, "fg256", pkg.Value)

	g := &Generator{Family: d.Family, Device: d, Config: &Config{Package: "tq144"}}
	_, err := g.Generate(context.Background())
	assert.ErrorContains(t, err, "no package tq144")

	g = &Generator{Family: iostd.Spartan3, Device: d}
	_, err = g.Generate(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g = &Generator{Family: d.Family, Device: d}
	_, err = g.Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("tile_filter: \"^IOB_\"\npackage: ff896\n"))
	require.NoError(t, err)
	assert.True(t, cfg.ShouldGenerate("IOB_V2P_NW2"))
	assert.False(t, cfg.ShouldGenerate("IOI"))
	assert.Equal(t, "ff896", cfg.Package)

	cfg, err = LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, cfg.ShouldGenerate("IOI"))

	_, err = LoadConfig(strings.NewReader("skip_ioi: true\nskip_iob: true\n"))
	assert.ErrorContains(t, err, "both feature sets skipped")
	_, err = LoadConfig(strings.NewReader("tile_filter: \"(\"\n"))
	assert.Error(t, err)
	_, err = LoadConfig(strings.NewReader("tile_fliter: IOI\n"))
	assert.Error(t, err)
}
