package collect

import (
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// pad is the classification state of one buffer position. The bit sets
// are discovered from the output standard probes and then used to carve
// every output sample into its fields.
type pad struct {
	l       topology.TileLayout
	pos     topology.IobPosition
	bel     string
	partner string // bel of the other half, "" when unpaired
	stds    []iostd.Iostd

	present    bitdiff.Diff
	slewBits   map[tiledb.TileBit]bool
	pdriveBits map[tiledb.TileBit]bool
	ndriveBits map[tiledb.TileBit]bool
	pslewBits  []tiledb.TileBit
	nslewBits  []tiledb.TileBit
	vrSlew     bitdiff.Diff
}

func (p *pad) paired() bool { return p.pos.Role != topology.RoleNone }

func (p *pad) ibuf() bool { return p.pos.Kind == topology.KindIbuf }

// collectIob classifies every buffer position of an I/O tile kind, then
// checks the input standard samples of each position down to nothing.
func (t *tile) collectIob(l topology.TileLayout) {
	var pads []*pad
	for _, pos := range l.Positions {
		if pos.Kind == topology.KindClk {
			continue
		}
		p := &pad{
			l:    l,
			pos:  pos,
			bel:  pos.Bel(),
			stds: iostd.Catalog(t.family, l.LeftRight()),
		}
		if p.paired() {
			p.partner = l.Position(pos.Partner).Bel()
		}
		if !t.has(p.bel, "PULL", "PULLUP") {
			glog.V(1).Infof("collect: %s/%s: never probed, skipped", t.kind, p.bel)
			continue
		}
		t.iobPad(p)
		pads = append(pads, p)
	}
	for _, p := range pads {
		t.iobClosure(p)
	}
}

func (t *tile) iobPad(p *pad) {
	c := t.caps
	bel := p.bel

	if c.S3EA {
		t.within(bel, "DISABLE_GTS", func() {
			t.get(bel, "DISABLE_GTS", "1").AssertEmpty()
		})
	} else {
		t.bits(bel, "DISABLE_GTS")
	}
	t.enum(bel, "PULL", "PULLUP", "PULLDOWN", "KEEPER")
	if c.S3A && !p.ibuf() {
		t.enum(bel, "SUSPEND", fuzzgen.SuspendModes...)
	}
	switch {
	case c.ExactS3E:
		t.s3eDelays(p)
	case c.S3A && !p.l.LeftRight():
		t.sparseDelays(bel)
	}

	t.ibufMode(p)
	if c.S3EA && !p.l.LeftRight() && p.paired() && !p.ibuf() {
		t.within(bel, "DIFF_TERM_COMP", func() {
			t.get(bel, "DIFF_TERM_COMP", "1").AssertEmpty()
		})
		if p.pos.Role == topology.RoleComp {
			// Only the true half owns the termination.
			t.get(bel, "DIFF_TERM", "1")
		}
	}
	if _, ok := t.device.FindBondedVrefPackage(p.l.Kind, p.pos.Index); ok {
		t.within(bel, "VREF", func() {
			notvref := t.get(bel, "MODE", "NOTVREF")
			mode := "IOB"
			if c.S3EA {
				mode = "IBUF"
			}
			d := t.peek(bel, "MODE", mode).Combine(notvref.Not())
			d.DiscardBits(t.item(bel, "PULL"))
			t.insert(bel, "VREF", tiledb.BoolItem(bitdiff.XlatBit(d)))
		})
	}
	if c.S3A {
		t.pci(p)
	}

	if !p.ibuf() {
		t.within(bel, "OUTPUT_ENABLE", func() {
			t.insert(bel, "OUTPUT_ENABLE", tiledb.BitVecItem(bitdiff.XlatBitWide(t.get(bel, "OUTPUT_ENABLE", "1"))))
		})
		t.outputBits(p)
		if !c.S3EA {
			t.dciMode(p)
		}
		t.vr(p)
		if fuzzgen.HasDciUpdateMode(t.family, t.device.Name) {
			t.within(bel, "DCIUPDATEMODE", func() {
				a := t.get(bel, "DCIUPDATEMODE", "ASREQUIRED")
				cont := t.get(bel, "DCIUPDATEMODE", "CONTINUOUS")
				quiet := t.get(bel, "DCIUPDATEMODE", "QUIET")
				bitdiff.Require(cont.Equal(quiet), "CONTINUOUS %s differs from QUIET %s", cont, quiet)
				t.insert(bel, "DCIUPDATEMODE_ASREQUIRED", tiledb.BoolItem(bitdiff.XlatBit(a.Combine(cont.Not()))))
			})
		}
		t.presence(p)
		t.decompose(p)
		if p.pos.Role == topology.RoleTrue && !p.l.LeftRight() {
			t.trueDiff(p)
		}
	}

	if p.ibuf() {
		t.within(bel, "IBUF_ENABLE", func() {
			d := t.get(bel, "MODE", "IBUF")
			d.DiscardBits(t.item(bel, "PULL"))
			if c.S3A {
				d.AssertEmpty()
				return
			}
			t.insert(bel, "IBUF_ENABLE", tiledb.BoolItem(bitdiff.XlatBit(d)))
		})
	}
	if _, _, ok := t.device.FindBrefclk(p.l.Kind, p.pos.Index); ok && t.has(bel, "BREFCLK", "1") {
		t.bits(bel, "BREFCLK")
	}
}

// s3eDelays collects the Spartan-3E tap delays. The taps past the last
// usable one move nothing; the rest are decoded against fixed bit orders
// and their encodings stored in the misc table.
func (t *tile) s3eDelays(p *pad) {
	bel := p.bel
	edge := "WSN"
	maxI, maxIQ := 13, 7
	if strings.HasPrefix(t.kind, "IOB_S3E_E") {
		edge = "E"
		maxI, maxIQ = 12, 6
	}
	t.within(bel, "DELAY", func() {
		for v := maxI + 1; v <= 16; v++ {
			t.get(bel, "I_DELAY", fuzzgen.DelayVal(v)).AssertEmpty()
		}
		for v := maxIQ + 1; v <= 8; v++ {
			t.get(bel, "IQ_DELAY", fuzzgen.DelayVal(v)).AssertEmpty()
		}
		di := make(map[int]bitdiff.Diff)
		for v := 1; v <= maxI; v++ {
			di[v] = t.get(bel, "I_DELAY", fuzzgen.DelayVal(v))
		}
		diq := make(map[int]bitdiff.Diff)
		for v := 1; v <= maxIQ; v++ {
			diq[v] = t.get(bel, "IQ_DELAY", fuzzgen.DelayVal(v))
		}

		neg := func(d bitdiff.Diff) tiledb.PolBit { return bitdiff.XlatBit(d).Not() }
		var bitsI, bitsIQ []tiledb.PolBit
		if edge == "E" {
			bitsIQ = []tiledb.PolBit{neg(diq[5]), neg(diq[4]), neg(diq[3])}
			bitsI = []tiledb.PolBit{neg(di[11]), neg(di[10]), neg(di[8]), neg(diq[3])}
		} else {
			bitsIQ = []tiledb.PolBit{neg(diq[6]), neg(diq[5]), neg(diq[4])}
			bitsI = []tiledb.PolBit{neg(di[11].Combine(di[12].Not())), neg(di[12]), neg(di[10]), neg(diq[4])}
		}
		for v := 1; v <= maxIQ; v++ {
			t.misc("IOB_IQ_DELAY.DELAY_"+edge, "DLY"+strconv.Itoa(v), bitdiff.ExtractBitVecVal(bitsIQ, tiledb.Ones(3), diq[v]))
		}
		for v := 1; v <= maxI; v++ {
			t.misc("IOB_I_DELAY.DELAY_"+edge, "DLY"+strconv.Itoa(v), bitdiff.ExtractBitVecVal(bitsI, tiledb.Ones(4), di[v]))
		}

		bitdiff.Require(bitsIQ[2] == bitsI[3], "delay lines disagree on the common bit: %s vs %s", bitsIQ[2], bitsI[3])
		t.insert(bel, "DELAY_COMMON", tiledb.BoolItem(bitsIQ[2]))
		t.insert(bel, "IQ_DELAY", tiledb.BitVecItem(bitsIQ[:2]))
		t.insert(bel, "I_DELAY", tiledb.BitVecItem(bitsI[:3]))
	})
}

// ibufMode builds the input buffer mode enum from one representative
// standard per mode. The representatives are only peeked; the closure loop
// consumes them.
func (t *tile) ibufMode(p *pad) {
	c := t.caps
	bel := p.bel
	istd := func(attr, std string) bitdiff.Diff { return t.peek(bel, attr, iostd.Row(std)) }
	t.within(bel, "IBUF_MODE", func() {
		vals := []bitdiff.Value{{Key: "NONE", Diff: bitdiff.New()}}
		switch {
		case c.ExactS3E:
			vals = append(vals,
				bitdiff.Value{Key: "CMOS_LV", Diff: istd("ISTD", "LVCMOS18")},
				bitdiff.Value{Key: "CMOS_HV", Diff: istd("ISTD", "LVCMOS33")},
				bitdiff.Value{Key: "VREF", Diff: istd("ISTD", "SSTL2_I")},
			)
		case c.S3A:
			vals = append(vals,
				bitdiff.Value{Key: "CMOS_VCCINT", Diff: istd("ISTD_3V3", "LVCMOS18")},
				bitdiff.Value{Key: "CMOS_VCCAUX", Diff: istd("ISTD_2V5", "LVCMOS25")},
				bitdiff.Value{Key: "CMOS_VCCO", Diff: istd("ISTD_3V3", "LVCMOS25")},
				bitdiff.Value{Key: "VREF", Diff: istd("ISTD", "SSTL2_I")},
				bitdiff.Value{Key: "LOOPBACK_T", Diff: t.get(bel, "SEL_MUX", "TMUX")},
				bitdiff.Value{Key: "LOOPBACK_O", Diff: t.get(bel, "SEL_MUX", "OMUX")},
			)
		default:
			vals = append(vals,
				bitdiff.Value{Key: "CMOS", Diff: istd("ISTD", "LVCMOS33")},
				bitdiff.Value{Key: "VREF", Diff: istd("ISTD", "SSTL2_I")},
			)
		}
		if p.paired() {
			vals = append(vals, bitdiff.Value{Key: "DIFF", Diff: istd("ISTD", "BLVDS_25")})
		}
		t.insert(bel, "IBUF_MODE", bitdiff.XlatEnum(vals))
	})
}

// pci separates the Spartan-3A PCI input bit from the clamp the PCI output
// standard shares with it.
func (t *tile) pci(p *pad) {
	bel := p.bel
	t.within(bel, "PCI", func() {
		ibuf := t.peek(bel, "ISTD", "PCI33_3")
		ibuf.DiscardBits(t.item(bel, "IBUF_MODE"))
		if p.ibuf() {
			t.insert(bel, "PCI_INPUT", tiledb.BoolItem(bitdiff.XlatBit(ibuf)))
			return
		}
		obuf := t.peek(bel, "OSTD_3V3", fuzzgen.OstdVal("PCI33_3", 0, fuzzgen.SlewNone))
		in, _, common := bitdiff.Split(ibuf, obuf)
		t.insert(bel, "PCI_INPUT", tiledb.BoolItem(bitdiff.XlatBit(in)))
		t.insert(bel, "PCI_CLAMP", tiledb.BoolItem(bitdiff.XlatBit(common)))
	})
}

// vr collects the DCI reference resistor pin flag. Its probe also moves
// slew bits, which are kept aside as the VR slew row.
func (t *tile) vr(p *pad) {
	if _, _, ok := t.device.FindBondedVrPackage(p.l.Kind, p.pos.Index); !ok {
		return
	}
	bel := p.bel
	t.within(bel, "VR", func() {
		d := t.get(bel, "MODE", "NOTVR")
		d.ApplyEnumDiff(t.item(bel, "DCI_MODE"), "NONE", "TERM_SPLIT")
		d = d.Not()
		p.vrSlew = d.SplitBits(p.slewBits)
		t.insert(bel, "VR", tiledb.BoolItem(bitdiff.XlatBit(d)))
	})
}

// presence takes the bits the buffer sets merely by being used as an
// output. They all belong to the drive fields.
func (t *tile) presence(p *pad) {
	bel := p.bel
	t.within(bel, "MODE", func() {
		present := t.get(bel, "MODE", "IOB")
		if t.caps.S3EA {
			ibuf := t.get(bel, "MODE", "IBUF")
			bitdiff.Require(present.Equal(ibuf), "IOB mode %s differs from IBUF mode %s", present, ibuf)
		}
		present.DiscardBits(t.item(bel, "PULL"))
		for b, v := range present {
			bitdiff.Require(v, "presence clears bit %s", b)
		}
		p.present = present
	})
}

// dciModes maps the DCI kind of a standard to the DCI_MODE value its
// samples carry.
func dciModes(k iostd.DciKind) string {
	switch k {
	case iostd.DciOutput:
		return "OUTPUT"
	case iostd.DciOutputHalf:
		return "OUTPUT_HALF"
	case iostd.DciInputVcc, iostd.DciBiVcc:
		return "TERM_VCC"
	case iostd.DciInputSplit, iostd.DciBiSplit:
		return "TERM_SPLIT"
	}
	return "NONE"
}

// ibufModeOf names the IBUF_MODE value an input standard sample selects.
func (t *tile) ibufModeOf(std iostd.Iostd, attr string) string {
	c := t.caps
	switch {
	case std.IsDiff():
		return "DIFF"
	case std.IsVref():
		return "VREF"
	case c.S3A:
		switch {
		case std.Vcco < 2500:
			return "CMOS_VCCINT"
		case strings.HasPrefix(std.Name, "PCI") || (std.Name == "LVCMOS25" && attr == "ISTD_3V3"):
			return "CMOS_VCCO"
		}
		return "CMOS_VCCAUX"
	case c.ExactS3E:
		if std.Vcco < 2500 {
			return "CMOS_LV"
		}
		return "CMOS_HV"
	}
	return "CMOS"
}

// iobClosure explains every input standard sample of a position with the
// items collected so far. Anything left over is a classification error.
func (t *tile) iobClosure(p *pad) {
	c := t.caps
	bel := p.bel
	groupBits := func(d bitdiff.Diff, std iostd.Iostd) {
		if c.ExactS3E && std.Name == "LVDS_25" && !p.ibuf() {
			d.DiscardPolBits([]tiledb.PolBit{
				t.bit(bel, "OUTPUT_DIFF_GROUP"),
				t.bit(p.partner, "OUTPUT_DIFF_GROUP"),
			})
		}
	}
	for _, std := range p.stds {
		if std.IsDiff() && !p.paired() {
			continue
		}
		if std.IsDiff() && std.HasInputDci() {
			continue
		}
		row := iostd.Row(std.Name)
		if !iostd.IsDT(std.Name) {
			for _, vccaux := range fuzzgen.InputVccAuxes(t.family, std) {
				attr := fuzzgen.IstdAttr(std.Name, vccaux)
				t.within(bel, attr+"="+row, func() {
					d := t.get(bel, attr, row)
					if c.S3A && strings.HasPrefix(std.Name, "PCI") {
						d.ApplyBitDiff(t.bit(bel, "PCI_INPUT"), true, false)
						if !p.ibuf() {
							d.ApplyBitDiff(t.bit(bel, "PCI_CLAMP"), true, false)
						}
					}
					d.ApplyEnumDiff(t.item(bel, "IBUF_MODE"), t.ibufModeOf(std, attr), "NONE")
					if mode := dciModes(std.Dci); mode == "TERM_VCC" || mode == "TERM_SPLIT" {
						d.ApplyEnumDiff(t.item(bel, "DCI_MODE"), mode, "NONE")
					}
					groupBits(d, std)
					d.AssertEmpty()
				})
			}
		}
		if !std.IsDiff() {
			continue
		}
		attr := fuzzgen.IstdCompAttr(std.Name)
		t.within(bel, attr+"="+row, func() {
			d := t.get(bel, attr, row)
			if std.Diff == iostd.DiffTrueTerm && p.pos.Role == topology.RoleComp {
				d.DiscardPolBits(t.item(p.partner, "OUTPUT_DIFF").Bits)
			}
			if c.ExactS3 || c.ExactS3E {
				d.DiscardBits(t.item(bel, "IBUF_MODE"))
			}
			groupBits(d, std)
			d.AssertEmpty()
		})
	}
}
