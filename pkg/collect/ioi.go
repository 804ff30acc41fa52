package collect

import (
	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// readbackV2 and readbackS3 are the input readback bits per IOI bel. No probe isolates
// them; they come from the toolchain's logic location files.
var (
	readbackV2 = []tiledb.TileBit{
		tiledb.NewBit(0, 2, 13), tiledb.NewBit(0, 2, 33), tiledb.NewBit(0, 2, 53), tiledb.NewBit(0, 2, 73),
	}
	readbackS3 = []tiledb.TileBit{
		tiledb.NewBit(0, 3, 0), tiledb.NewBit(0, 3, 39), tiledb.NewBit(0, 3, 40),
	}
)

// misrResetS3A are the Spartan-3A MISR reset bits. The MISRRESET option
// moves every IOI of the device at once, so they are taken from Spartan-3E,
// which has the same layout.
var misrResetS3A = []int{7, 32, 47}

// collectIoi classifies every logic bel of an IOI tile kind.
func (t *tile) collectIoi(k topology.IoiKind) {
	bels := fuzzgen.IoiBels(t.family, k)
	for _, idx := range bels {
		t.ioiBel(idx)
	}
	if t.caps.S3EA && len(bels) > 0 && bels[0] == 0 {
		for idx := 0; idx < 2; idx++ {
			t.ioiPair(idx)
		}
	}
}

func (t *tile) ioiBel(idx int) {
	c := t.caps
	bel := topology.IoiBel(idx)
	if !t.has(bel, "OTCLK1INV", "OTCLK1") {
		glog.V(1).Infof("collect: %s/%s: never probed, skipped", t.kind, bel)
		return
	}

	for _, pin := range []string{"OTCLK1", "OTCLK2", "ICLK1", "ICLK2", "SR", "OCE", "REV", "ICE", "TCE"} {
		t.inv(bel, pin)
	}
	for _, attr := range []string{
		"FFI_SR_ENABLE", "FFO_SR_ENABLE", "FFT_SR_ENABLE",
		"FFI_REV_ENABLE", "FFO_REV_ENABLE", "FFT_REV_ENABLE",
	} {
		t.bits(bel, attr)
	}
	if c.S3EA {
		t.enum(bel, "MUX_OCE", "OCE", "PCI_CE")
	}
	for _, pin := range []string{"O1", "O2", "T1", "T2"} {
		t.inv(bel, pin)
	}
	t.enum(bel, "MUX_T", "T1", "T2", "FFT1", "FFT2", "FFTDDR")

	// The output mux has no sample for its off state; NONE is all-zero so
	// buffer probes do not drag their logic bel's settings in.
	t.within(bel, "MUX_O", func() {
		it := bitdiff.XlatEnum(t.values(bel, "MUX_O", "O1", "O2", "FFO1", "FFO2", "FFODDR"))
		it.Values["NONE"] = tiledb.Zeros(len(it.Support))
		t.insert(bel, "MUX_O", it)
	})

	t.ioiFlops(bel)

	// Input path.
	t.enum(bel, "MUX_TSBYPASS", "GND", "T")
	t.bi(bel, "I_DELAY_ENABLE")
	t.bi(bel, "IQ_DELAY_ENABLE")
	if c.S3A && t.kind == "IOI_S3A_WE" {
		t.sparseDelays(bel)
	}
	t.bi(bel, "I_TSBYPASS_ENABLE")
	t.bi(bel, "IQ_TSBYPASS_ENABLE")
	if c.S3EA {
		t.enum(bel, "MUX_FFI", "IBUF", "PAIR_IQ1", "PAIR_IQ2")
	}
	t.misr(idx, bel)

	readback := readbackS3
	if c.V2Family {
		readback = readbackV2
	}
	t.manual(bel, "READBACK_I", readback[idx].Pos(), "input readback bit from the logic location file")

	t.ioiDetritus(idx, bel)
}

// ioiFlops collects the latch, set/reset value, init and sync flags of the
// six flops. Shared bits probed from both flops of a pair must agree.
func (t *tile) ioiFlops(bel string) {
	t.bi(bel, "FFI_LATCH")
	for _, ff := range []string{"FFO1", "FFO2", "FFT1", "FFT2"} {
		t.bi(bel, ff+"_LATCH")
	}
	for _, ff := range []string{"FFI1", "FFI2", "FFO1", "FFO2", "FFT1", "FFT2"} {
		t.bi(bel, ff+"_SRVAL")
	}
	t.bi(bel, "FFI1_INIT")
	t.bi(bel, "FFI2_INIT")
	t.bi(bel, "FFO_INIT")
	t.bi(bel, "FFT_INIT")
	for _, attr := range []string{"FFI_SR_SYNC", "FFO_SR_SYNC", "FFT_SR_SYNC"} {
		t.bi(bel, attr)
	}

	for _, dup := range []struct{ attr, probe string }{
		{"FFO_INIT", "FFO_INIT.OFF2"},
		{"FFT_INIT", "FFT_INIT.TFF2"},
		{"FFI_LATCH", "FFI_LATCH.IFF2"},
	} {
		t.within(bel, dup.probe, func() {
			got := t.biBit(bel, dup.probe)
			want := t.bit(bel, dup.attr)
			bitdiff.Require(got == want, "second flop moves %s, first moves %s", got, want)
		})
	}
}

// misr collects the Spartan-3E/3A output signature register. Bels that
// only serve input-only pads carry no MISR probes.
func (t *tile) misr(idx int, bel string) {
	c := t.caps
	if !c.S3EA {
		return
	}
	if c.S3A {
		t.manual(bel, "MISR_RESET", tiledb.NewBit(0, 0, misrResetS3A[idx]).Pos(),
			"MISRRESET moves every IOI; bits shared with Spartan-3E")
	}
	if !t.has(bel, "MISR_ENABLE", "1") {
		return
	}
	if c.S3A {
		t.bits(bel, "MISR_ENABLE")
		t.enum(bel, "MUX_MISR_CLOCK", "OTCLK1", "OTCLK2")
		return
	}
	t.within(bel, "MISR", func() {
		en := t.get(bel, "MISR_ENABLE", "1")
		enRst := t.get(bel, "MISR_RESET", "1")
		t.insert(bel, "MISR_RESET", tiledb.BoolItem(bitdiff.XlatBit(enRst.Combine(en.Not()))))
		clk1 := t.get(bel, "MUX_MISR_CLOCK", "OTCLK1")
		clk2 := t.get(bel, "MUX_MISR_CLOCK", "OTCLK2")
		bitdiff.Require(en.Equal(clk1), "MISR enable %s differs from clock 1 select %s", en, clk1)
		clk1, clk2, en = bitdiff.Split(clk1, clk2)
		t.insert(bel, "MISR_ENABLE", tiledb.BoolItem(bitdiff.XlatBit(en)))
		t.enumOf(bel, "MUX_MISR_CLOCK", []bitdiff.Value{
			{Key: "OTCLK1", Diff: clk1},
			{Key: "OTCLK2", Diff: clk2},
			{Key: "NONE", Diff: bitdiff.New()},
		})
	})
}

// ioiDetritus checks the logic-tile side of buffer probes: everything they
// move must be explained by the bel's own output and tristate settings.
func (t *tile) ioiDetritus(idx int, bel string) {
	c := t.caps
	if (!c.S3A || idx != 2) && t.has(bel, "OUTPUT_ENABLE", "1") {
		t.within(bel, "OUTPUT_ENABLE", func() {
			d := t.get(bel, "OUTPUT_ENABLE", "1")
			d.ApplyBitDiff(t.bit(bel, "T1INV"), true, false)
			d.ApplyEnumDiff(t.item(bel, "MUX_O"), "O1", "NONE")
			d.ApplyEnumDiff(t.item(bel, "MUX_T"), "T1", "NONE")
			d.AssertEmpty()
		})
	}
	if !c.S3A {
		return
	}
	if idx != 2 && t.has(bel, "SEL_MUX_OMUX", "1") {
		t.within(bel, "SEL_MUX_OMUX", func() {
			t.get(bel, "SEL_MUX_OMUX", "1").AssertEmpty()
		})
	}
	if (idx == 2 || t.kind == "IOI_S3A_WE") && t.has(bel, "SEL_MUX_OMUX_IBUF", "1") {
		t.within(bel, "SEL_MUX_OMUX_IBUF", func() {
			d := t.get(bel, "SEL_MUX_OMUX_IBUF", "1")
			d.ApplyEnumDiff(t.item(bel, "MUX_O"), "O1", "NONE")
			d.AssertEmpty()
		})
	}
}

// ioiPair collects the Spartan-3E/3A DDR cross-feeds of bels 0 and 1. Each
// cross-feed probe also moves the other bel's output mux.
func (t *tile) ioiPair(idx int) {
	bel := topology.IoiBel(idx)
	other := topology.IoiBel(idx ^ 1)
	if !t.has(bel, "MUX_FFO1", "O1") {
		return
	}
	for _, m := range []struct{ attr, direct, pair string }{
		{"MUX_FFO1", "O1", "PAIR_FFO2"},
		{"MUX_FFO2", "O2", "PAIR_FFO1"},
	} {
		t.within(bel, m.attr, func() {
			t.get(bel, m.attr, m.direct).AssertEmpty()
			d := t.get(bel, m.attr, m.pair)
			d.DiscardBits(t.item(other, "MUX_O"))
			t.enumOf(bel, m.attr, []bitdiff.Value{
				{Key: m.direct, Diff: bitdiff.New()},
				{Key: m.pair, Diff: d},
			})
		})
	}
}
