package fuzzgen

import (
	"fmt"

	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// flopNames maps a flop's configuration name to the identity prefix used
// for it.
var flopNames = map[string]string{
	"OFF1": "FFO1",
	"OFF2": "FFO2",
	"TFF1": "FFT1",
	"TFF2": "FFT2",
	"IFF1": "FFI1",
	"IFF2": "FFI2",
}

func (g *Generator) ioi(e *emitter, kind string, idx int, cands []candidate) {
	c := g.Family.Caps()
	bel := topology.IoiBel(idx)
	mode := "IOB"
	if c.S3EA {
		mode = "IBUF"
	}
	b := e.builder(kind, bel, cands).Mode(mode)

	// Clock and set/reset inversions.
	b.Attr("OFF1", "#FF").TestInv("OTCLK1")
	b.Attr("OFF2", "#FF").TestInv("OTCLK2")
	b.Attr("IFF1", "#FF").TestInv("ICLK1")
	b.Attr("IFF2", "#FF").TestInv("ICLK2")
	b.Attr("OFF1", "#FF").Attr("OSR_USED", "0").TestInv("SR")
	b.Attr("OFF1", "#FF").Attr("OREV_USED", "0").TestInv("REV")

	// The SR and REV nets are shared by the three flop groups; each enable
	// is measured with another group already using the net.
	for _, sig := range []string{"SR", "REV"} {
		for _, u := range []struct {
			name, ff, busy, own string
		}{
			{"FFI", "OFF1", "O", "I"},
			{"FFO", "OFF1", "I", "O"},
			{"FFT", "TFF1", "I", "T"},
		} {
			b.Attr("IFF1", "#FF").
				Attr(u.ff, "#FF").
				Attr(u.busy+sig+"_USED", "0").
				Attr(sig+"INV", sig+"_B").
				Pin(sig).
				TestBits(u.name+"_"+sig+"_ENABLE").
				Attr(u.own+sig+"_USED", "0").
				Commit()
		}
	}

	// Clock enables.
	b.Attr("IFF1", "#FF").TestInv("ICE")
	b.Attr("TFF1", "#FF").TestInv("TCE")
	if c.S3EA {
		b.Attr("OFF1", "#FF").Attr("PCICE_MUX", "OCE").TestInv("OCE")
		b.Attr("OFF1", "#FF").
			Attr("OCEINV", "#OFF").
			Pin("OCE").
			Pin("PCI_CE").
			TestEnum("MUX_OCE", "PCICE_MUX", Choice{"OCE", "OCE"}, Choice{"PCI_CE", "PCICE"})
	} else {
		b.Attr("OFF1", "#FF").TestInv("OCE")
	}

	// Output path.
	for _, o := range []string{"1", "2"} {
		ob := b
		if c.S3EA {
			ob = ob.Attr("O"+o+"_DDRMUX", "1")
		}
		ob.Attr("OFF"+o, "#FF").Attr("OMUX", "OFF"+o).TestInv("O" + o)
	}
	for _, t := range []string{"1", "2"} {
		other := map[string]string{"1": "2", "2": "1"}[t]
		b.Attr("T_USED", "0").
			Attr("TFF"+t, "#FF").
			Attr("TFF"+other, "#OFF").
			Attr("TMUX", "TFF"+t).
			Attr("OFF1", "#OFF").
			Attr("OFF2", "#OFF").
			Attr("OMUX", "#OFF").
			Pin("T").
			TestInv("T" + t)
	}
	b.Attr("T1INV", "T1").
		Attr("T2INV", "T2").
		Attr("TFF1", "#FF").
		Attr("TFF2", "#FF").
		Attr("T_USED", "0").
		Attr("OMUX", "#OFF").
		Attr("IOATTRBOX", "#OFF").
		Pin("T1").
		Pin("T2").
		Pin("T").
		TestEnum("MUX_T", "TMUX",
			Choice{"T1", "T1"}, Choice{"T2", "T2"},
			Choice{"FFT1", "TFF1"}, Choice{"FFT2", "TFF2"}, Choice{"FFTDDR", "TFFDDR"})

	mo := b.Attr("O1INV", "O1").
		Attr("O2INV", "O2").
		Attr("OFF1", "#FF").
		Attr("OFF2", "#FF").
		Attr("IMUX", "0").
		Attr("TSMUX", "1").
		Attr("TMUX", "T1").
		Attr("T1INV", "T1").
		Attr("T_USED", "0").
		Attr("IFF1", "#FF").
		Attr("IFFDMUX", "1")
	switch {
	case c.S3A:
		mo = mo.Attr("O1_DDRMUX", "1").
			Attr("O2_DDRMUX", "1").
			Attr("IDDRIN_MUX", "2").
			Attr("SEL_MUX", "0").
			Attr("DELAY_ADJ_ATTRBOX", "FIXED")
	case c.ExactS3E:
		mo = mo.Attr("IFFDELMUX", "1").
			Attr("O1_DDRMUX", "1").
			Attr("O2_DDRMUX", "1").
			Attr("IDDRIN_MUX", "2")
	default:
		mo = mo.Attr("IFFDELMUX", "1")
	}
	mo = mo.Pin("O1").Pin("O2").Pin("T1").Pin("T").Pin("I")
	for _, v := range []Choice{
		{"O1", "O1"}, {"O2", "O2"}, {"FFO1", "OFF1"}, {"FFO2", "OFF2"}, {"FFODDR", "OFFDDR"},
	} {
		mo.Test("MUX_O", v.Val).
			Workaround("omux-offddr-baseline").
			AttrDiff("OMUX", "OFFDDR", v.Setting).
			Commit()
	}

	if c.S3EA && idx != 2 {
		pair := b.BelUnused(topology.IoiBel(idx^1)).
			Attr("OFF1", "#FF").
			Attr("OFF2", "#FF").
			Attr("OMUX", "OFFDDR").
			Attr("TSMUX", "1").
			Attr("TFF1", "#FF").
			Attr("IFF1", "#FF").
			Attr("TMUX", "TFF1").
			Attr("IMUX", "0")
		if c.S3A {
			pair = pair.Attr("SEL_MUX", "0").Attr("DELAY_ADJ_ATTRBOX", "FIXED")
		}
		pair.Attr("O1INV", "#OFF").
			Pin("ODDRIN1").
			Pin("I").
			TestEnum("MUX_FFO1", "O1_DDRMUX", Choice{"O1", "1"}, Choice{"PAIR_FFO2", "0"})
		pair.Attr("O2INV", "#OFF").
			Pin("ODDRIN2").
			Pin("I").
			TestEnum("MUX_FFO2", "O2_DDRMUX", Choice{"O2", "1"}, Choice{"PAIR_FFO1", "0"})
	}

	g.ioiFlops(b, c.S3EA)
	g.ioiInput(e, b, kind, bel, cands)
}

// ioiFlops emits the latch, set/reset value, init and sync probes of the
// six flops.
func (g *Generator) ioiFlops(b Builder, s3ea bool) {
	for _, f := range []struct {
		ff, other, ce string
	}{
		{"OFF1", "OFF2", "OCE"},
		{"OFF2", "OFF1", "OCE"},
		{"TFF1", "TFF2", "TCE"},
		{"TFF2", "TFF1", "TCE"},
	} {
		lb := b.Attr(f.other, "#OFF").Attr(f.ce+"INV", f.ce+"_B")
		if s3ea && f.ce == "OCE" {
			lb = lb.Attr("PCICE_MUX", "OCE")
		}
		lb.Attr(f.ff+"_INIT_ATTR", "INIT1").
			Pin(f.ce).
			TestBool(flopNames[f.ff]+"_LATCH", f.ff, "#FF", "#LATCH")
	}
	for _, ff := range []string{"OFF1", "OFF2", "TFF1", "TFF2", "IFF1", "IFF2"} {
		b.Attr(ff, "#FF").
			Attr(ff+"_INIT_ATTR", "INIT0").
			TestBool(flopNames[ff]+"_SRVAL", ff+"_SR_ATTR", "SRLOW", "SRHIGH")
	}

	// Output and tristate flop pairs share one init bit; both flops probe
	// it and the second probe is kept apart for cross-checking.
	for _, grp := range []struct{ name, a, b string }{
		{"FFO_INIT", "OFF1", "OFF2"},
		{"FFT_INIT", "TFF1", "TFF2"},
	} {
		pb := b.Attr(grp.a, "#FF").
			Attr(grp.b, "#FF").
			Attr(grp.a+"_SR_ATTR", "SRHIGH").
			Attr(grp.b+"_SR_ATTR", "SRHIGH")
		pb.Attr(grp.b+"_INIT_ATTR", "#OFF").
			TestBool(grp.name, grp.a+"_INIT_ATTR", "INIT0", "INIT1")
		pb.Attr(grp.a+"_INIT_ATTR", "#OFF").
			TestBool(grp.name+"."+grp.b, grp.b+"_INIT_ATTR", "INIT0", "INIT1")
	}
	for _, ff := range []string{"IFF1", "IFF2"} {
		b.Attr(ff, "#FF").
			Attr(ff+"_SR_ATTR", "SRHIGH").
			TestBool(flopNames[ff]+"_INIT", ff+"_INIT_ATTR", "INIT0", "INIT1")
	}
	for _, grp := range []struct{ name, box, a, b string }{
		{"FFO_SR_SYNC", "OFFATTRBOX", "OFF1", "OFF2"},
		{"FFT_SR_SYNC", "TFFATTRBOX", "TFF1", "TFF2"},
		{"FFI_SR_SYNC", "IFFATTRBOX", "IFF1", "IFF2"},
	} {
		b.Attr(grp.a, "#FF").Attr(grp.b, "#FF").TestBool(grp.name, grp.box, "ASYNC", "SYNC")
	}

	// The input latch bit is shared by both input flops.
	b.Attr("IFF2", "#OFF").
		Attr("ICEINV", "ICE_B").
		Attr("IFF1_INIT_ATTR", "INIT1").
		Pin("ICE").
		TestBool("FFI_LATCH", "IFF1", "#FF", "#LATCH")
	b.Attr("IFF1", "#OFF").
		Attr("ICEINV", "ICE_B").
		Attr("IFF2_INIT_ATTR", "INIT1").
		Pin("ICE").
		TestBool("FFI_LATCH.IFF2", "IFF2", "#FF", "#LATCH")
}

// ioiInput emits the input path probes: flop input mux, delay enables,
// the tristate bypass and the MISR.
func (g *Generator) ioiInput(e *emitter, b Builder, kind, bel string, cands []candidate) {
	c := g.Family.Caps()

	switch {
	case c.ExactS3E:
		b.Attr("IFF1", "#FF").
			Attr("IMUX", "1").
			Attr("IFFDMUX", "#OFF").
			Pin("IDDRIN1").
			Pin("IDDRIN2").
			Pin("I").
			TestEnum("MUX_FFI", "IDDRIN_MUX",
				Choice{"IBUF", "2"}, Choice{"PAIR_IQ1", "1"}, Choice{"PAIR_IQ2", "0"})
	case c.S3A:
		fb := b.Attr("IFF1", "#FF").
			Attr("IMUX", "1").
			Attr("SEL_MUX", "0").
			Attr("DELAY_ADJ_ATTRBOX", "FIXED").
			Pin("IDDRIN1").
			Pin("IDDRIN2").
			Pin("I")
		fb.TestEnum("MUX_FFI", "IDDRIN_MUX", Choice{"PAIR_IQ1", "1"}, Choice{"PAIR_IQ2", "0"})
		fb.Test("MUX_FFI", "IBUF").Attr("IDDRIN_MUX", "2").Attr("IFFDMUX", "1").Commit()
	}

	// Bypass probes share one base: output and tristate driven through
	// their first inputs.
	bypass := b.Attr("TSMUX", "1").Attr("IFF1", "#FF")
	tsmux := b.Attr("IFFDMUX", "1").
		Attr("TMUX", "T1").
		Attr("T1INV", "T1").
		Attr("OMUX", "O1").
		Attr("O1INV", "O1").
		Attr("IFF1", "#FF").
		Attr("IMUX", "0").
		Attr("T_USED", "0")

	if !c.S3A {
		db := b.Attr("IMUX", "1").Attr("IFFDMUX", "1").Attr("IFF1", "#FF")
		if c.ExactS3E {
			db = db.Attr("IDDRIN_MUX", "2").Attr("IBUF_DELAY_VALUE", "DLY4").Attr("PRE_DELAY_MUX", "0")
		}
		db.Attr("IFFDELMUX", "0").Pin("I").TestBool("I_DELAY_ENABLE", "IDELMUX", "1", "0")
		db.Attr("IDELMUX", "0").Pin("I").TestBool("IQ_DELAY_ENABLE", "IFFDELMUX", "1", "0")

		bypass = bypass.Attr("IDELMUX", "1")
		if c.ExactS3E {
			bypass = bypass.Attr("IDDRIN_MUX", "2")
		}
		g.tsBypass(bypass)
		tsmux.Pin("T1").Pin("O1").Pin("I").Pin("T").
			TestEnum("MUX_TSBYPASS", "TSMUX", Choice{"GND", "0"}, Choice{"T", "1"})
	} else {
		sb := b.Attr("IMUX", "1").
			Attr("IFFDMUX", "1").
			Attr("IFF1", "#FF").
			Attr("IDDRIN_MUX", "2").
			Attr("DELAY_ADJ_ATTRBOX", "FIXED").
			Attr("SEL_MUX", "0").
			Pin("I")
		sb.Attr("IFD_DELAY_VALUE", "DLY0").
			TestBool("I_DELAY_ENABLE", "IBUF_DELAY_VALUE", "DLY0", "DLY16")
		sb.Attr("IBUF_DELAY_VALUE", "DLY0").
			TestBool("IQ_DELAY_ENABLE", "IFD_DELAY_VALUE", "DLY0", "DLY8")
		if kind == "IOI_S3A_WE" {
			delaySweeps(sb)
			b.Attr("IBUF_DELAY_VALUE", "DLY16").
				Attr("IFD_DELAY_VALUE", "DLY8").
				Attr("IMUX", "1").
				Attr("IFFDMUX", "1").
				Attr("IFF1", "#FF").
				Attr("IDDRIN_MUX", "2").
				Attr("SEL_MUX", "0").
				Pin("I").
				TestBits("DELAY_VARIABLE").
				AttrDiff("DELAY_ADJ_ATTRBOX", "FIXED", "VARIABLE").
				Commit()
		}

		bypass = bypass.Attr("IDDRIN_MUX", "2").Attr("SEL_MUX", "0").Attr("DELAY_ADJ_ATTRBOX", "FIXED")
		g.tsBypass(bypass)
		tsmux.Attr("SEL_MUX", "0").Pin("T1").Pin("O1").Pin("I").Pin("T").
			TestEnum("MUX_TSBYPASS", "TSMUX", Choice{"GND", "0"}, Choice{"T", "1"})
	}

	if c.S3EA {
		g.misr(e, kind, bel, cands)
	}
}

// tsBypass emits the two tristate bypass enables on top of base.
func (g *Generator) tsBypass(base Builder) {
	base = base.Attr("O1INV", "O1").
		Attr("OMUX", "O1").
		Attr("T1INV", "T1").
		Attr("TMUX", "T1").
		Attr("T_USED", "0")
	if !g.Family.Caps().S3A {
		base = base.Attr("IFFDELMUX", "1")
	}
	base.Attr("IFFDMUX", "0").
		Pin("O1").Pin("T1").Pin("I").
		TestBool("I_TSBYPASS_ENABLE", "IMUX", "1", "0")
	base.Attr("IMUX", "0").
		Pin("O1").Pin("T1").Pin("I").
		TestBool("IQ_TSBYPASS_ENABLE", "IFFDMUX", "1", "0")
}

// delaySweeps emits the Spartan-3A tap sweeps on top of base: 16 input
// delay taps in 4 bits and 8 flop delay taps in 3 bits, each measured from
// tap 1.
func delaySweeps(base Builder) {
	for i := 0; i < 16; i++ {
		base.Attr("IFD_DELAY_VALUE", "DLY0").
			Test("I_DELAY", BitVecVal(uint64(i), 4)).
			AttrDiff("IBUF_DELAY_VALUE", "DLY1", fmt.Sprintf("DLY%d", i+1)).
			Commit()
	}
	for i := 0; i < 8; i++ {
		base.Attr("IBUF_DELAY_VALUE", "DLY0").
			Test("IQ_DELAY", BitVecVal(uint64(i), 3)).
			AttrDiff("IFD_DELAY_VALUE", "DLY1", fmt.Sprintf("DLY%d", i+1)).
			Commit()
	}
}

// misr emits the output signature register probes. They need an output
// buffer, so input-only pads are skipped.
func (g *Generator) misr(e *emitter, kind, bel string, cands []candidate) {
	c := g.Family.Caps()
	mb := e.builder(kind, bel, cands).
		Mode("IOB").
		Where(NotIbufSite).
		Global("ENABLEMISR", "Y").
		Attr("PULL", "PULLDOWN").
		Attr("TMUX", "#OFF").
		Attr("IMUX", "#OFF").
		Attr("IFFDMUX", "#OFF").
		Attr("OMUX", "O1").
		Attr("O1INV", "O1").
		Attr("IOATTRBOX", "LVCMOS33").
		Attr("DRIVE_0MA", "DRIVE_0MA").
		Pin("O1")

	mb.Global("MISRRESET", "N").
		NoGlobal("MISRCLOCK").
		TestBits("MISR_ENABLE").
		Attr("MISRATTRBOX", "ENABLE_MISR").
		Commit()

	if c.S3A {
		mb.Global("MISRRESET", "N").
			Attr("MISRATTRBOX", "ENABLE_MISR").
			TestEnum("MUX_MISR_CLOCK", "MISR_CLK_SELECT",
				Choice{"OTCLK1", "OTCLK1"}, Choice{"OTCLK2", "OTCLK2"})
		return
	}
	mb.Global("MISRRESET", "Y").
		NoGlobal("MISRCLOCK").
		TestBits("MISR_RESET").
		Attr("MISRATTRBOX", "ENABLE_MISR").
		Commit()
	for _, clk := range []string{"OTCLK1", "OTCLK2"} {
		mb.Global("MISRRESET", "N").
			Global("MISRCLOCK", clk).
			Test("MUX_MISR_CLOCK", clk).
			Attr("MISRATTRBOX", "ENABLE_MISR").
			Commit()
	}
}
