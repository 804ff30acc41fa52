package fuzzgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

func ws2Emitter(t *testing.T) (*emitter, []candidate) {
	t.Helper()
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	g := &Generator{Family: d.Family, Device: d}
	l := topology.Layout("IOB_V2P_WS2")
	return newEmitter(d, d.Family, "ff896"), g.iobCandidates(d.Sites(l.Kind), l.Position(0))
}

func TestBuilderIsValue(t *testing.T) {
	e, cands := ws2Emitter(t)
	b := e.builder("IOB_V2P_WS2", "IOB0", cands).Mode("IOB")
	b.Attr("PULL", "PULLUP").Test("PULL", "PULLUP").Commit()
	b.Attr("PULL", "PULLDOWN").Test("PULL", "PULLDOWN").Commit()

	require.Len(t, e.reqs, 2)
	assert.Equal(t, Constraints{
		{Kind: KindMode, Value: "IOB"},
		{Kind: KindAttr, Name: "PULL", Value: "PULLUP"},
	}, e.reqs[0].Base)
	assert.Equal(t, Constraints{
		{Kind: KindMode, Value: "IOB"},
		{Kind: KindAttr, Name: "PULL", Value: "PULLDOWN"},
	}, e.reqs[1].Base)
	assert.Equal(t, Constraints{{Kind: KindMode, Value: "IOB"}}, b.base)
	assert.Empty(t, b.diff)
}

func TestBuilderBaseAndDiff(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Attr("IMUX", "1").
		Test("DISABLE_GTS", "1").
		Attr("GTSATTRBOX", "DISABLE_GTS").
		ModeDiff("IOB", "DIFFM").
		Commit()

	require.Len(t, e.reqs, 1)
	r := e.reqs[0]
	assert.Equal(t, samples.Key{Tile: "IOB_V2P_WS2", Bel: "IOB0", Attr: "DISABLE_GTS", Val: "1"}, r.Key)
	assert.Equal(t, topology.Site{Kind: "IOI", Col: 0, Row: 2}, r.Site)
	assert.Equal(t, "IOI0", r.Bel)
	require.NotNil(t, r.Io)
	assert.Equal(t, topology.IoCoord{Col: 0, Row: 2, Iob: 0}, *r.Io)
	m, ok := r.Base.Find(KindMode, Target{}, "")
	require.True(t, ok)
	assert.Equal(t, "IOB", m.Value)
	m, ok = r.Diff.Find(KindMode, Target{}, "")
	require.True(t, ok)
	assert.Equal(t, "DIFFM", m.Value)
	_, ok = r.Diff.Find(KindAttr, Target{}, "GTSATTRBOX")
	assert.True(t, ok)
}

func TestBuilderMisuse(t *testing.T) {
	e, cands := ws2Emitter(t)
	b := e.builder("IOB_V2P_WS2", "IOB0", cands)
	assert.Panics(t, func() { b.Commit() })
	assert.Panics(t, func() { b.Test("A", "1").Test("B", "1") })
	assert.Panics(t, func() { b.Workaround("no-such-workaround") })
}

func TestDuplicateIdentityCrossChecked(t *testing.T) {
	e, cands := ws2Emitter(t)
	b := e.builder("IOB_V2P_WS2", "IOB0", cands)
	b.Attr("PULL", "PULLUP").Test("PULL", "PULLUP").Extra("KEEP", "1").Commit()
	// the same run again adds nothing
	b.Attr("PULL", "PULLUP").Test("PULL", "PULLUP").Extra("KEEP", "1").Commit()
	b.Attr("PULL", "KEEPER").Test("PULL", "PULLUP").Extra("KEEP", "1").Extra("HOLD", "1").Commit()
	require.NoError(t, e.err)
	require.Len(t, e.reqs, 2)

	first, again := e.reqs[0], e.reqs[1]
	assert.False(t, first.CrossCheck())
	assert.True(t, again.CrossCheck())
	assert.Equal(t, first.Key, again.Key)
	c, _ := again.Base.Find(KindAttr, Target{}, "PULL")
	assert.Equal(t, "KEEPER", c.Value)
	// only the identity nobody asked for yet rides along
	assert.Equal(t, []samples.Key{{Tile: "IOI", Bel: "IOI0", Attr: "HOLD", Val: "1"}}, again.Extra)

	s := samples.NewStore()
	require.NoError(t, Submit(s, e.reqs))
	assert.Len(t, s.Pending(), 3)

	again.Check = false
	err := Submit(samples.NewStore(), []Request{first, again})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate identity IOB_V2P_WS2/IOB0/PULL=PULLUP")
}

func TestRequiredRelationFails(t *testing.T) {
	e, cands := ws2Emitter(t)
	// The west tile is nowhere near the clock column.
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		TestBits("BREFCLK").
		Relate(ClockBuffer(0)).
		Commit()

	assert.Empty(t, e.reqs)
	require.Error(t, e.err)
	assert.Contains(t, e.err.Error(), "IOB_V2P_WS2/IOB0/BREFCLK=1")
	assert.Contains(t, e.err.Error(), "resolves on no instance of IOB_V2P_WS2")
}

func TestOptionalRelations(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		TestBits("BREFCLK").
		RelateOrSkip(ClockBuffer(0)).
		Commit()
	assert.Empty(t, e.reqs)
	assert.NoError(t, e.err)

	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Prefer(ClockBuffer(0)).
		Test("DCIUPDATEMODE", "QUIET").
		Commit()
	assert.NoError(t, e.err)
	require.Len(t, e.reqs, 1)
	assert.Empty(t, e.reqs[0].Diff)
}

func TestFilterRejectsEveryInstance(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Where(VrefPin).
		Test("MODE", "NOTVREF").
		Commit()
	assert.Empty(t, e.reqs)
	assert.NoError(t, e.err)
}

func TestPartnerRelation(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Relate(Partner("LVDS_25")).
		Test("DIFFO", "LVDS_25").
		Commit()
	require.NoError(t, e.err)
	require.Len(t, e.reqs, 1)

	partner := Target{Site: &topology.Site{Kind: "IOI", Col: 0, Row: 2}, Bel: "IOI1"}
	c, ok := e.reqs[0].Base.Find(KindMode, partner, "")
	require.True(t, ok)
	assert.Equal(t, "IOB", c.Value)
	c, ok = e.reqs[0].Diff.Find(KindMode, partner, "")
	require.True(t, ok)
	assert.Equal(t, "DIFFS", c.Value)
	c, ok = e.reqs[0].Diff.Find(KindAttr, partner, "IOATTRBOX")
	require.True(t, ok)
	assert.Equal(t, "LVDS_25", c.Value)
}

func TestExtraFiledUnderPlacedBel(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Extra("OUTPUT_ENABLE", "1").
		TestBits("OUTPUT_ENABLE").
		Commit()
	require.Len(t, e.reqs, 1)
	r := e.reqs[0]
	assert.Equal(t, []samples.Key{{Tile: "IOI", Bel: "IOI0", Attr: "OUTPUT_ENABLE", Val: "1"}}, r.Extra)
	assert.Equal(t, []samples.Key{
		{Tile: "IOB_V2P_WS2", Bel: "IOB0", Attr: "OUTPUT_ENABLE", Val: "1"},
		{Tile: "IOI", Bel: "IOI0", Attr: "OUTPUT_ENABLE", Val: "1"},
	}, r.Keys())
}

func TestMultiRequest(t *testing.T) {
	e, cands := ws2Emitter(t)
	e.builder("IOB_V2P_WS2", "IOB0", cands).
		Mode("IOB").
		Test("OPROGRAMMING", "").
		Multi("OPROGRAMMING", 16).
		Commit()
	require.Len(t, e.reqs, 1)
	r := e.reqs[0]

	keys := r.Keys()
	require.Len(t, keys, 5)
	for j, k := range keys {
		assert.Equal(t, PatternVal(j), k.Val)
		assert.Equal(t, "OPROGRAMMING", k.Attr)

		c, ok := r.Pattern(j).Find(KindAttr, Target{}, "OPROGRAMMING")
		require.True(t, ok)
		assert.Equal(t, samples.MultiPattern(16, j).String(), c.Value)
	}
	assert.Empty(t, r.Diff, "patterns do not leak into the shared diff")
}

func TestConstraintsWith(t *testing.T) {
	a := Constraints{{Kind: KindAttr, Name: "A", Value: "1"}}
	b := a.With(Constraint{Kind: KindAttr, Name: "B", Value: "1"})
	c := a.With(Constraint{Kind: KindAttr, Name: "C", Value: "1"})
	assert.Len(t, a, 1)
	assert.Equal(t, "B", b[1].Name)
	assert.Equal(t, "C", c[1].Name)

	d := c.With(Constraint{Kind: KindAttr, Name: "A", Value: "2"})
	v, ok := d.Find(KindAttr, Target{}, "A")
	require.True(t, ok)
	assert.Equal(t, "2", v.Value)
	_, ok = d.Find(KindAttr, Target{Bel: "IOI1"}, "A")
	assert.False(t, ok)
}

func TestIoiBelsSkipClockPads(t *testing.T) {
	d := loadDevice(t, "../topology/testdata/v2p.yaml")
	assert.Equal(t, []int{2, 3}, IoiBels(d.Family, topology.IoiKind{Kind: "IOI_CLK_N", Bels: 4}))
	assert.Equal(t, []int{0, 1}, IoiBels(d.Family, topology.IoiKind{Kind: "IOI_CLK_S", Bels: 4}))
	assert.Equal(t, []int{0, 1, 2, 3}, IoiBels(d.Family, topology.IoiKind{Kind: "IOI", Bels: 4}))
}
