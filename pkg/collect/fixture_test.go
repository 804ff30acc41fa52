package collect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// fixture records synthetic samples for one tile kind. Every attribute gets
// bits of its own, allocated in call order, so two fixtures built the same
// way hold the same samples.
type fixture struct {
	kind     string
	store    *samples.Store
	next     int
	override map[samples.Key]bitdiff.Diff
}

func newFixture(kind string) *fixture {
	return &fixture{
		kind:     kind,
		store:    samples.NewStore(),
		override: make(map[samples.Key]bitdiff.Diff),
	}
}

func (f *fixture) key(bel, attr, val string) samples.Key {
	return samples.Key{Tile: f.kind, Bel: bel, Attr: attr, Val: val}
}

func (f *fixture) fresh() tiledb.TileBit {
	b := tiledb.NewBit(1, f.next/64, f.next%64)
	f.next++
	return b
}

func (f *fixture) record(bel, attr, val string, d bitdiff.Diff) {
	k := f.key(bel, attr, val)
	if o, ok := f.override[k]; ok {
		d = o
	}
	f.store.Record(k, d)
}

// flag records off as the baseline and on as a fresh bit.
func (f *fixture) flag(bel, attr, off, on string) tiledb.TileBit {
	b := f.fresh()
	f.record(bel, attr, off, bitdiff.New())
	f.record(bel, attr, on, bitdiff.Of(b.Pos()))
	return b
}

func (f *fixture) enum(bel, attr string, vals ...string) map[string]tiledb.TileBit {
	res := make(map[string]tiledb.TileBit, len(vals))
	for _, v := range vals {
		b := f.fresh()
		f.record(bel, attr, v, bitdiff.Of(b.Pos()))
		res[v] = b
	}
	return res
}

// ioiBel records every probe of a Virtex-2 family logic bel and returns
// the bit of each flag, keyed by attribute, and of each enum value, keyed
// by ATTR=VALUE.
func (f *fixture) ioiBel(bel string) map[string]tiledb.TileBit {
	bits := make(map[string]tiledb.TileBit)
	for _, pin := range []string{"OTCLK1", "OTCLK2", "ICLK1", "ICLK2", "SR", "OCE", "REV", "ICE", "TCE", "O1", "O2", "T1", "T2"} {
		bits[pin+"INV"] = f.flag(bel, pin+"INV", pin, pin+"_B")
	}
	for _, attr := range []string{
		"FFI_SR_ENABLE", "FFO_SR_ENABLE", "FFT_SR_ENABLE",
		"FFI_REV_ENABLE", "FFO_REV_ENABLE", "FFT_REV_ENABLE",
	} {
		b := f.fresh()
		f.record(bel, attr, "1", bitdiff.Of(b.Pos()))
		bits[attr] = b
	}
	for _, e := range []struct {
		attr string
		vals []string
	}{
		{"MUX_T", []string{"T1", "T2", "FFT1", "FFT2", "FFTDDR"}},
		{"MUX_O", []string{"O1", "O2", "FFO1", "FFO2", "FFODDR"}},
	} {
		for v, b := range f.enum(bel, e.attr, e.vals...) {
			bits[e.attr+"="+v] = b
		}
	}
	// GND is the bypass mux default and moves nothing.
	f.record(bel, "MUX_TSBYPASS", "GND", bitdiff.New())
	bits["MUX_TSBYPASS=T"] = f.fresh()
	f.record(bel, "MUX_TSBYPASS", "T", bitdiff.Of(bits["MUX_TSBYPASS=T"].Pos()))
	for _, attr := range []string{
		"FFI_LATCH", "FFO1_LATCH", "FFO2_LATCH", "FFT1_LATCH", "FFT2_LATCH",
		"FFI1_SRVAL", "FFI2_SRVAL", "FFO1_SRVAL", "FFO2_SRVAL", "FFT1_SRVAL", "FFT2_SRVAL",
		"FFI1_INIT", "FFI2_INIT", "FFO_INIT", "FFT_INIT",
		"FFI_SR_SYNC", "FFO_SR_SYNC", "FFT_SR_SYNC",
		"I_DELAY_ENABLE", "IQ_DELAY_ENABLE", "I_TSBYPASS_ENABLE", "IQ_TSBYPASS_ENABLE",
	} {
		bits[attr] = f.flag(bel, attr, "0", "1")
	}
	for _, dup := range []struct{ probe, attr string }{
		{"FFO_INIT.OFF2", "FFO_INIT"},
		{"FFT_INIT.TFF2", "FFT_INIT"},
		{"FFI_LATCH.IFF2", "FFI_LATCH"},
	} {
		f.record(bel, dup.probe, "0", bitdiff.New())
		f.record(bel, dup.probe, "1", bitdiff.Of(bits[dup.attr].Pos()))
	}
	return bits
}

func loadDevice(t *testing.T, path string) *topology.Device {
	t.Helper()
	d, err := topology.LoadDeviceFile(path)
	require.NoError(t, err)
	return d
}

func ioiConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TileFilter = "^IOI$"
	cfg.RequireConsumed = true
	require.NoError(t, cfg.Validate())
	return cfg
}

func run(d *topology.Device, s *samples.Store, cfg *Config) (*tiledb.Database, error) {
	c := &Collector{Family: d.Family, Device: d, Store: s, Config: cfg}
	return c.Run(context.Background())
}
