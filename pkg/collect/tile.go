package collect

import (
	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// implicitNone lists the enums that get a NONE value with an empty diff:
// the toolchain never emits a sample for the disconnected state, so the
// baseline of every probe stands in for it.
var implicitNone = map[string]string{
	"MUX_T":          "tristate mux off is the probe baseline",
	"MUX_O":          "output mux off is the probe baseline; encoded all-zero",
	"MUX_OCE":        "clock enable mux off is the probe baseline",
	"MUX_FFI":        "input flop mux off is the probe baseline",
	"PULL":           "no pull resistor is the probe baseline",
	"IBUF_MODE":      "input buffer off is the probe baseline",
	"DCI_MODE":       "no impedance control is the probe baseline",
	"MUX_MISR_CLOCK": "MISR clock unconnected when the MISR is off",
}

// KnownExceptions are the attribute pairs whose bits overlap by design of
// the silicon.
var KnownExceptions = []tiledb.SharedBits{
	{A: "OUTPUT_ENABLE", B: "PDRIVE", Reason: "the driver enable is the all-off P drive code"},
	{A: "OUTPUT_ENABLE", B: "NDRIVE", Reason: "the driver enable is the all-off N drive code"},
}

// tile is the classification state of one tile kind.
type tile struct {
	kind   string
	family iostd.Family
	caps   iostd.Caps
	device *topology.Device
	store  *samples.Store
	db     *tiledb.Database
}

func (t *tile) key(bel, attr, val string) samples.Key {
	return samples.Key{Tile: t.kind, Bel: bel, Attr: attr, Val: val}
}

func (t *tile) get(bel, attr, val string) bitdiff.Diff {
	d := t.store.Get(t.key(bel, attr, val))
	if glog.V(2) {
		glog.Infof("collect: %s/%s/%s=%s: %s", t.kind, bel, attr, val, d)
	}
	return d
}

func (t *tile) peek(bel, attr, val string) bitdiff.Diff {
	return t.store.Peek(t.key(bel, attr, val))
}

func (t *tile) has(bel, attr, val string) bool {
	return t.store.Has(t.key(bel, attr, val))
}

func (t *tile) dbKey(bel, attr string) tiledb.Key {
	return tiledb.Key{Tile: t.kind, Bel: bel, Attr: attr}
}

func (t *tile) insert(bel, attr string, it tiledb.Item) {
	glog.V(1).Infof("collect: %s/%s/%s = %s", t.kind, bel, attr, it)
	t.db.Insert(t.dbKey(bel, attr), it)
}

// manual stores a bit that no probe can isolate.
func (t *tile) manual(bel, attr string, bit tiledb.PolBit, why string) {
	t.db.Override(t.dbKey(bel, attr), tiledb.BoolItem(bit), "manual: "+why)
}

func (t *tile) item(bel, attr string) tiledb.Item {
	return t.db.MustGet(t.dbKey(bel, attr))
}

func (t *tile) bit(bel, attr string) tiledb.PolBit {
	return t.item(bel, attr).Bit()
}

func (t *tile) misc(class, value string, v tiledb.BitVec) {
	t.db.Misc.Insert(tiledb.MiscKey{Family: t.family.Prefix(), Class: class, Value: value}, v)
}

// within runs f with bel and attr attached to any fault it raises.
func (t *tile) within(bel, attr string, f func()) {
	fault.Within(f, bel, attr)
}

// bits collects a single-sample flag probed with value "1".
func (t *tile) bits(bel, attr string) {
	t.within(bel, attr, func() {
		t.insert(bel, attr, tiledb.BoolItem(bitdiff.XlatBit(t.get(bel, attr, "1"))))
	})
}

// bi collects a flag probed at both values.
func (t *tile) bi(bel, attr string) tiledb.PolBit {
	var bit tiledb.PolBit
	t.within(bel, attr, func() {
		bit = t.biBit(bel, attr)
		t.insert(bel, attr, tiledb.BoolItem(bit))
	})
	return bit
}

func (t *tile) biBit(bel, attr string) tiledb.PolBit {
	bit, def := bitdiff.XlatBitBiDefault(t.get(bel, attr, "0"), t.get(bel, attr, "1"))
	glog.V(2).Infof("collect: %s/%s/%s defaults to %v", t.kind, bel, attr, def)
	return bit
}

// inv collects the inversion of an input pin, stored as <PIN>INV.
func (t *tile) inv(bel, pin string) {
	attr := pin + "INV"
	t.within(bel, attr, func() {
		bit, _ := bitdiff.XlatBitBiDefault(t.get(bel, attr, pin), t.get(bel, attr, pin+"_B"))
		t.insert(bel, attr, tiledb.BoolItem(bit))
	})
}

// values gets one sample per value of attr.
func (t *tile) values(bel, attr string, vals ...string) []bitdiff.Value {
	res := make([]bitdiff.Value, 0, len(vals)+1)
	for _, v := range vals {
		res = append(res, bitdiff.Value{Key: v, Diff: t.get(bel, attr, v)})
	}
	return res
}

// enum collects an enum from one sample per value. Attributes listed in
// implicitNone also get NONE.
func (t *tile) enum(bel, attr string, vals ...string) tiledb.Item {
	var it tiledb.Item
	t.within(bel, attr, func() {
		diffs := t.values(bel, attr, vals...)
		if _, ok := implicitNone[attr]; ok {
			diffs = append(diffs, bitdiff.Value{Key: "NONE", Diff: bitdiff.New()})
		}
		it = bitdiff.XlatEnum(diffs)
		t.insert(bel, attr, it)
	})
	return it
}

// enumOf inserts an enum built from diffs the caller already holds.
func (t *tile) enumOf(bel, attr string, diffs []bitdiff.Value) tiledb.Item {
	var it tiledb.Item
	t.within(bel, attr, func() {
		it = bitdiff.XlatEnum(diffs)
		t.insert(bel, attr, it)
	})
	return it
}

// sparseDelays collects a pair of swept delay lines whose top bits are one
// shared enable: I_DELAY over 4 bits and IQ_DELAY over 3.
func (t *tile) sparseDelays(bel string) {
	sweep := func(attr string, width int) []tiledb.PolBit {
		var bits []tiledb.PolBit
		t.within(bel, attr, func() {
			n := 1 << width
			diffs := make([]bitdiff.VecDiff, 0, n)
			for i := 0; i < n; i++ {
				diffs = append(diffs, bitdiff.VecDiff{
					Val:  tiledb.FromUint(uint64(i), width),
					Diff: t.get(bel, attr, fuzzgen.BitVecVal(uint64(i), width)),
				})
			}
			bits = bitdiff.XlatBitVecSparse(diffs)
		})
		return bits
	}
	ib := sweep("I_DELAY", 4)
	common := ib[len(ib)-1]
	t.insert(bel, "I_DELAY", tiledb.BitVecItem(ib[:len(ib)-1]))
	iqb := sweep("IQ_DELAY", 3)
	t.within(bel, "DELAY_COMMON", func() {
		bitdiff.Require(iqb[len(iqb)-1] == common, "delay lines disagree on the common bit: %s vs %s", iqb[len(iqb)-1], common)
	})
	t.insert(bel, "IQ_DELAY", tiledb.BitVecItem(iqb[:len(iqb)-1]))
	t.insert(bel, "DELAY_COMMON", tiledb.BoolItem(common))
	t.bits(bel, "DELAY_VARIABLE")
}
