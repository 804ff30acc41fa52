package collect

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

const v2pDevice = "../topology/testdata/v2p.yaml"

func ioiKey(bel, attr string) tiledb.Key {
	return tiledb.Key{Tile: "IOI", Bel: bel, Attr: attr}
}

func TestCollectIoiBel(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	f := newFixture("IOI")
	bits := f.ioiBel("IOI0")

	db, err := run(d, f.store, ioiConfig(t))
	require.NoError(t, err)

	for _, attr := range []string{"OTCLK1INV", "T2INV", "FFO_SR_ENABLE", "FFT2_SRVAL", "FFO_INIT", "IQ_TSBYPASS_ENABLE"} {
		it, ok := db.Get(ioiKey("IOI0", attr))
		require.True(t, ok, attr)
		assert.True(t, it.Equal(tiledb.BoolItem(bits[attr].Pos())), "%s: %s", attr, it)
	}

	muxO := db.MustGet(ioiKey("IOI0", "MUX_O"))
	assert.Equal(t, tiledb.KindEnum, muxO.Kind)
	assert.Equal(t, []string{"FFO1", "FFO2", "FFODDR", "NONE", "O1", "O2"}, muxO.ValueNames())
	assert.Equal(t, tiledb.Zeros(5), muxO.Values["NONE"])
	assert.True(t, muxO.Explains(bits["MUX_O=O1"], true))

	muxT := db.MustGet(ioiKey("IOI0", "MUX_T"))
	assert.Contains(t, muxT.ValueNames(), "NONE")
	tsb := db.MustGet(ioiKey("IOI0", "MUX_TSBYPASS"))
	assert.Equal(t, []string{"GND", "T"}, tsb.ValueNames())

	rb := db.MustGet(ioiKey("IOI0", "READBACK_I"))
	assert.True(t, rb.Equal(tiledb.BoolItem(tiledb.NewBit(0, 2, 13).Pos())))
	assert.Contains(t, db.Note(ioiKey("IOI0", "READBACK_I")), "manual:")

	// Bels without probes are skipped, not faulted.
	_, ok := db.Get(ioiKey("IOI1", "OTCLK1INV"))
	assert.False(t, ok)
	assert.Empty(t, f.store.Unconsumed(nil))
}

func TestCollectIoiTwoBels(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	f := newFixture("IOI")
	b0 := f.ioiBel("IOI0")
	b3 := f.ioiBel("IOI3")

	db, err := run(d, f.store, ioiConfig(t))
	require.NoError(t, err)
	assert.True(t, db.MustGet(ioiKey("IOI0", "ICEINV")).Equal(tiledb.BoolItem(b0["ICEINV"].Pos())))
	assert.True(t, db.MustGet(ioiKey("IOI3", "ICEINV")).Equal(tiledb.BoolItem(b3["ICEINV"].Pos())))
	assert.True(t, db.MustGet(ioiKey("IOI3", "READBACK_I")).Equal(tiledb.BoolItem(tiledb.NewBit(0, 2, 73).Pos())))
}

func TestCollectIoiDeterministic(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	export := func(parallel int) []byte {
		f := newFixture("IOI")
		f.ioiBel("IOI0")
		f.ioiBel("IOI2")
		cfg := ioiConfig(t)
		cfg.Parallel = parallel
		db, err := run(d, f.store, cfg)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, db.ExportJSON(&buf))
		return buf.Bytes()
	}
	first := export(1)
	assert.Equal(t, first, export(1))
	assert.Equal(t, first, export(8))
}

func TestCollectIoiSecondFlopMismatch(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	f := newFixture("IOI")
	f.override[f.key("IOI0", "FFO_INIT.OFF2", "1")] = bitdiff.Of(tiledb.NewBit(7, 0, 0).Pos())
	f.ioiBel("IOI0")

	_, err := run(d, f.store, ioiConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collect: IOI")
	assert.Contains(t, err.Error(), "[IOI0 FFO_INIT.OFF2]")
}

func TestCollectIoiOutputEnable(t *testing.T) {
	d := loadDevice(t, v2pDevice)

	f := newFixture("IOI")
	bits := f.ioiBel("IOI0")
	f.record("IOI0", "OUTPUT_ENABLE", "1", bitdiff.Of(
		bits["T1INV"].Pos(), bits["MUX_O=O1"].Pos(), bits["MUX_T=T1"].Pos(),
	))
	_, err := run(d, f.store, ioiConfig(t))
	require.NoError(t, err)

	f = newFixture("IOI")
	bits = f.ioiBel("IOI0")
	f.record("IOI0", "OUTPUT_ENABLE", "1", bitdiff.Of(
		bits["T1INV"].Pos(), bits["MUX_O=O1"].Pos(), bits["MUX_T=T1"].Pos(), tiledb.NewBit(9, 9, 9).Pos(),
	))
	_, err = run(d, f.store, ioiConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assert_empty")
	assert.Contains(t, err.Error(), "OUTPUT_ENABLE")
}

func TestCollectRequireConsumed(t *testing.T) {
	d := loadDevice(t, v2pDevice)

	f := newFixture("IOI")
	f.ioiBel("IOI0")
	// Kinds outside the run are not checked.
	f.store.Record(samples.Key{Tile: "IOB_V2P_NW2", Bel: "IOB0", Attr: "PULL", Val: "PULLUP"}, bitdiff.New())
	_, err := run(d, f.store, ioiConfig(t))
	require.NoError(t, err)

	f = newFixture("IOI")
	f.ioiBel("IOI0")
	f.record("IOI0", "MYSTERY", "1", bitdiff.Of(tiledb.NewBit(3, 1, 4).Pos()))
	_, err = run(d, f.store, ioiConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never classified")
	assert.Contains(t, err.Error(), "IOI/IOI0/MYSTERY=1")

	f = newFixture("IOI")
	f.ioiBel("IOI0")
	f.record("IOI0", "MYSTERY", "1", bitdiff.Of(tiledb.NewBit(3, 1, 4).Pos()))
	cfg := ioiConfig(t)
	cfg.RequireConsumed = false
	_, err = run(d, f.store, cfg)
	assert.NoError(t, err)
}

func TestCollectStrictDiscard(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	shared := newFixture("IOI").ioiBel("IOI0")["FFI_SR_ENABLE"]

	build := func() *samples.Store {
		f := newFixture("IOI")
		f.override[f.key("IOI0", "FFO_SR_ENABLE", "1")] = bitdiff.Of(shared.Pos())
		f.ioiBel("IOI0")
		return f.store
	}

	cfg := ioiConfig(t)
	cfg.RequireConsumed = false
	_, err := run(d, build(), cfg)
	require.NoError(t, err)

	cfg.StrictDiscard = true
	_, err = run(d, build(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexcused bit overlaps")

	cfg.Exceptions = append(cfg.Exceptions, tiledb.SharedBits{A: "FFI_SR_ENABLE", B: "FFO_SR_ENABLE", Reason: "test"})
	_, err = run(d, build(), cfg)
	assert.NoError(t, err)
}

func TestCollectStrictEnumTotality(t *testing.T) {
	d := loadDevice(t, v2pDevice)
	build := func() *samples.Store {
		f := newFixture("IOI")
		// both bypass values move a bit of their own, so neither is a default
		f.override[f.key("IOI0", "MUX_TSBYPASS", "GND")] = bitdiff.Of(tiledb.NewBit(7, 7, 7).Pos())
		f.ioiBel("IOI0")
		return f.store
	}

	cfg := ioiConfig(t)
	db, err := run(d, build(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []tiledb.Key{ioiKey("IOI0", "MUX_TSBYPASS")}, tiledb.CheckEnumTotality(db))

	cfg.StrictDiscard = true
	_, err = run(d, build(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a default")
	assert.Contains(t, err.Error(), "IOI/IOI0/MUX_TSBYPASS")

	f := newFixture("IOI")
	f.ioiBel("IOI0")
	_, err = run(d, f.store, cfg)
	assert.NoError(t, err)
}
