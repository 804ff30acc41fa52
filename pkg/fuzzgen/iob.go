package fuzzgen

import (
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// iobPos is the per-position state shared by the buffer feature groups.
type iobPos struct {
	l      topology.TileLayout
	pos    topology.IobPosition
	caps   iostd.Caps
	imode  string // mode of a plain input
	diffi  string // differential input mode, "" for unpaired pads
	b      Builder
	stds   []iostd.Iostd
	family iostd.Family
}

func (g *Generator) iob(e *emitter, l topology.TileLayout, pos topology.IobPosition, cands []candidate) {
	if pos.Kind == topology.KindClk {
		return
	}
	c := g.Family.Caps()
	p := &iobPos{
		l:      l,
		pos:    pos,
		caps:   c,
		imode:  ibufMode(c),
		b:      e.builder(l.Kind, pos.Bel(), cands),
		stds:   iostd.Catalog(g.Family, l.LeftRight()),
		family: g.Family,
	}
	modeP, modeN := diffInputModes(c, l.LeftRight())
	switch pos.Role {
	case topology.RoleTrue:
		p.diffi = modeP
	case topology.RoleComp:
		p.diffi = modeN
	}
	b := p.b

	if pos.Kind != topology.KindIbuf {
		b.Mutex("VREF", "NO").Mutex("DCI", "NO").Test("MODE", "IOB").Mode("IOB").Commit()
	}
	if c.S3EA {
		b.Mutex("VREF", "NO").Test("MODE", "IBUF").Mode("IBUF").Commit()
	}
	b.Mode(p.imode).
		Attr("IMUX", "1").
		Pin("I").
		TestEnum("PULL", "PULL", Choice{"PULLUP", "PULLUP"}, Choice{"PULLDOWN", "PULLDOWN"}, Choice{"KEEPER", "KEEPER"})
	b.Mode(p.imode).TestBits("DISABLE_GTS").Attr("GTSATTRBOX", "DISABLE_GTS").Commit()
	if c.S3A && pos.Kind != topology.KindIbuf {
		var choices []Choice
		for _, v := range SuspendModes {
			choices = append(choices, Choice{v, v})
		}
		b.Mode("IOB").TestEnum("SUSPEND", "SUSPEND", choices...)
	}
	p.delays()
	p.inputStandards(e.pkg)

	if c.S3A {
		p.selMux()
	}
	g.vrefProbes(p)
	p.diffTerm()

	if pos.Kind != topology.KindIbuf {
		p.outputEnable()
		p.outputStandards(e.pkg)
		if pos.Role == topology.RoleTrue && !l.LeftRight() {
			p.diffOutputs(e.pkg)
		}
		if HasDciUpdateMode(g.Family, g.Device.Name) {
			p.dciUpdateMode(e.pkg)
		}
		if c.S3A {
			b.Mode("IOB").
				Attr("IMUX", "#OFF").
				Attr("IOATTRBOX", "#OFF").
				Attr("OMUX", "O1").
				Attr("O1INV", "O1").
				Pin("O1").
				Test("OPROGRAMMING", "").
				Multi("OPROGRAMMING", 16).
				Commit()
		}
	}

	if bufg, _, ok := g.Device.FindBrefclk(l.Kind, pos.Index); ok {
		b.TestBits("BREFCLK").RelateOrSkip(ClockBuffer(bufg)).Commit()
	}
}

// delays emits the input delay tap probes. Spartan-3E taps are plain
// numbers; the Spartan-3A top and bottom tiles sweep bit patterns.
func (p *iobPos) delays() {
	base := p.b.Mode("IBUF").
		Attr("IMUX", "1").
		Attr("IFFDMUX", "1").
		Attr("IFF1", "#FF").
		Attr("IDDRIN_MUX", "2")
	switch {
	case p.caps.ExactS3E:
		base = base.Pin("I")
		for i := 1; i <= 16; i++ {
			base.Attr("IFD_DELAY_VALUE", "DLY0").
				Test("I_DELAY", DelayVal(i)).
				AttrDiff("IBUF_DELAY_VALUE", "DLY0", fmt.Sprintf("DLY%d", i)).
				Commit()
		}
		for i := 1; i <= 8; i++ {
			base.Attr("IBUF_DELAY_VALUE", "DLY0").
				Test("IQ_DELAY", DelayVal(i)).
				AttrDiff("IFD_DELAY_VALUE", "DLY0", fmt.Sprintf("DLY%d", i)).
				Commit()
		}
	case p.caps.S3A && !p.l.LeftRight():
		delaySweeps(base.Attr("DELAY_ADJ_ATTRBOX", "FIXED").Attr("SEL_MUX", "0").Pin("I"))
		base.Attr("IBUF_DELAY_VALUE", "DLY16").
			Attr("IFD_DELAY_VALUE", "DLY8").
			Attr("SEL_MUX", "0").
			Pin("I").
			TestBits("DELAY_VARIABLE").
			AttrDiff("DELAY_ADJ_ATTRBOX", "FIXED", "VARIABLE").
			Commit()
	}
}

// inputStandards emits the ISTD and ISTD_COMP probes of every catalog
// entry the pad can receive.
func (p *iobPos) inputStandards(pkg string) {
	for _, std := range p.stds {
		if std.IsDiff() && p.diffi == "" {
			continue
		}
		mode := p.imode
		if std.IsDiff() {
			mode = p.diffi
		}
		row := iostd.Row(std.Name)
		var rel *Relation
		switch {
		case std.IsDiff() && std.HasInputDci():
			continue
		case std.IsDiff() && p.caps.ExactS3E:
			r := OtherDiffOut(std.Name)
			rel = &r
		case !std.IsDiff() && (std.IsVref() || std.HasInputDci()):
			r := BankReference(std.Name)
			rel = &r
		}

		for _, vccaux := range InputVccAuxes(p.family, std) {
			ib := p.b.Mutex("DIFF", "INPUT")
			if vccaux != "" {
				ib = ib.Raw(RawVccAux, vccaux)
			}
			ib = ib.Attr("OMUX", "#OFF").
				Attr("TMUX", "#OFF").
				Attr("IFFDMUX", "#OFF").
				Attr("PULL", "PULLDOWN").
				Raw(RawPackage, pkg)
			if std.IsVref() {
				ib = ib.Mutex("VREF", "YES")
			}
			if !p.caps.S3A && std.Dci != iostd.DciNone {
				ib = ib.Mutex("DCI", std.Name)
			}
			if rel != nil {
				ib = ib.Relate(*rel)
			}
			t := ib.Test(IstdAttr(std.Name, vccaux), row).
				ModeDiff(p.imode, mode).
				Attr("IOATTRBOX", std.Name)
			if p.caps.S3A {
				t = t.Attr("IBUF_DELAY_VALUE", "DLY0").
					Attr("DELAY_ADJ_ATTRBOX", "FIXED").
					Attr("SEL_MUX", "0")
			}
			t.Attr("IMUX", "1").Pin("I").Commit()

			if !std.IsDiff() {
				continue
			}
			cb := p.b.Mutex("DIFF", "INPUT").
				Attr("OMUX", "#OFF").
				Attr("TMUX", "#OFF").
				Attr("IMUX", "#OFF").
				Attr("IFFDMUX", "#OFF").
				Attr("PULL", "#OFF").
				Raw(RawPackage, pkg)
			if std.Dci != iostd.DciNone {
				cb = cb.Mutex("DCI", std.Name)
			}
			if rel != nil {
				cb = cb.Relate(*rel)
			}
			cb.Test(IstdCompAttr(std.Name), row).
				ModeDiff(p.imode, mode).
				Attr("IOATTRBOX", std.Name).
				Attr("PADOUT_USED", "0").
				Pin("PADOUT").
				Commit()
		}
	}
}

// selMux emits the Spartan-3A input loopback selector probes. The OMUX
// setting also moves a bit in the logic tile, which is fed from the same
// run.
func (p *iobPos) selMux() {
	mode := "IOB"
	extra := "SEL_MUX_OMUX"
	if p.pos.Kind == topology.KindIbuf {
		mode = "IBUF"
		extra = "SEL_MUX_OMUX_IBUF"
	}
	base := p.b.Mode(mode).
		Attr("OMUX", "O1").
		Attr("O1INV", "O1").
		Attr("O1_DDRMUX", "1").
		Attr("TMUX", "T1").
		Attr("T1INV", "T1").
		Attr("T_USED", "0").
		Attr("IFFDMUX", "#OFF").
		Attr("PULL", "PULLDOWN").
		Attr("IOATTRBOX", "LVCMOS33").
		Pin("O1").
		Pin("T1").
		Pin("T")
	for _, v := range []struct {
		val, sel string
		extra    bool
	}{
		{"OMUX", "1", true},
		{"TMUX", "2", false},
	} {
		sb := base
		if v.extra {
			sb = sb.Extra(extra, "1")
		}
		sb.Test("SEL_MUX", v.val).
			Attr("IBUF_DELAY_VALUE", "DLY0").
			Attr("DELAY_ADJ_ATTRBOX", "FIXED").
			Attr("SEL_MUX", v.sel).
			Attr("IMUX", "1").
			Pin("I").
			Commit()
	}
}

// vrefProbes emits the VREF and VR presence probes. They are only possible
// when some package makes one instance of the position a reference pin.
func (g *Generator) vrefProbes(p *iobPos) {
	if pkg, ok := g.Device.FindBondedVrefPackage(p.l.Kind, p.pos.Index); ok {
		p.b.Raw(RawPackage, pkg).
			Mutex("VREF", "YES").
			Where(VrefPin).
			Relate(BankReference("SSTL2_I")).
			Test("MODE", "NOTVREF").
			Mode(p.imode).
			Commit()
	}
	if pkg, alt, ok := g.Device.FindBondedVrPackage(p.l.Kind, p.pos.Index); ok {
		vb := p.b.Raw(RawPackage, pkg).Mutex("DCI", "YES")
		if alt != nil {
			vb = vb.Raw(RawAltVr, strconv.FormatBool(*alt))
		}
		vb.Where(VrPin).
			Relate(BankReference("GTL_DCI")).
			Test("MODE", "NOTVR").
			Mode(p.imode).
			Commit()
	}
}

// diffTerm emits the on-die differential termination probes of the
// Spartan-3E/3A paired output-capable pads.
func (p *iobPos) diffTerm() {
	c := p.caps
	if !c.S3EA || p.l.LeftRight() || p.pos.Role == topology.RoleNone || p.pos.Kind == topology.KindIbuf {
		return
	}
	mode := p.diffi
	if c.ExactS3E {
		modeP, modeN := diffOutputModes(c, false)
		mode = modeP
		if p.pos.Role == topology.RoleComp {
			mode = modeN
		}
	}
	tb := p.b.Mode(mode).
		Mutex("DIFF", "TERM").
		Attr("OMUX", "#OFF").
		Attr("TMUX", "#OFF").
		Attr("IFFDMUX", "#OFF")
	ib := tb.Attr("PULL", "PULLDOWN").Attr("IOATTRBOX", "LVDS_25")
	if c.S3A {
		ib = ib.Attr("IBUF_DELAY_VALUE", "DLY0").
			Attr("DELAY_ADJ_ATTRBOX", "FIXED").
			Attr("SEL_MUX", "0")
	}
	ib.Attr("IMUX", "1").
		Pin("I").
		TestBits("DIFF_TERM").
		AttrDiff("DIFF_TERM", "FALSE", "TRUE").
		Commit()
	tb.Attr("IMUX", "#OFF").
		Attr("PULL", "#OFF").
		Attr("IOATTRBOX", "LVDS_25").
		Attr("PADOUT_USED", "0").
		Pin("PADOUT").
		TestBits("DIFF_TERM_COMP").
		AttrDiff("DIFF_TERM", "FALSE", "TRUE").
		Commit()
}

// outputBase is the driven-output configuration shared by the output
// probes.
func (p *iobPos) outputBase(b Builder) Builder {
	return b.Attr("PULL", "PULLDOWN").
		Attr("TMUX", "#OFF").
		Attr("IMUX", "#OFF").
		Attr("IFFDMUX", "#OFF").
		Attr("OMUX", "O1").
		Attr("O1INV", "O1").
		Pin("O1")
}

// outputEnable emits the output driver presence probe. The logic tile
// side of the enable is fed from the same run.
func (p *iobPos) outputEnable() {
	p.b.Mode("IOB").
		Attr("PULL", "PULLDOWN").
		Attr("TMUX", "#OFF").
		Attr("IMUX", "#OFF").
		Attr("IFFDMUX", "#OFF").
		Extra("OUTPUT_ENABLE", "1").
		TestBits("OUTPUT_ENABLE").
		Attr("IOATTRBOX", "LVCMOS33").
		Attr("OMUX", "O1").
		Attr("O1INV", "O1").
		Attr("DRIVE_0MA", "DRIVE_0MA").
		Pin("O1").
		Commit()
}

func slewSetting(slew string) string {
	if slew == SlewNone {
		return ""
	}
	return slew
}

func driveSetting(drive int) string {
	if drive == 0 {
		return ""
	}
	return strconv.Itoa(drive)
}

// outputStandards emits one OSTD probe per single-ended or pseudo
// differential standard, drive, slew and auxiliary supply.
func (p *iobPos) outputStandards(pkg string) {
	c := p.caps
	lr := p.l.LeftRight()
	for _, std := range p.stds {
		if std.InputOnly || std.IsTrueDiff() {
			continue
		}
		mode := "IOB"
		if lr {
			mode = "IOBLR"
		}
		if std.Diff == iostd.DiffPseudo {
			modeP, modeN := diffOutputModes(c, lr)
			switch p.pos.Role {
			case topology.RoleTrue:
				mode = modeP
			case topology.RoleComp:
				mode = modeN
			default:
				continue
			}
		}
		var rel *Relation
		switch std.Dci {
		case iostd.DciNone:
		case iostd.DciOutput, iostd.DciOutputHalf:
			r := BankReference("SSTL2_I_DCI")
			rel = &r
		default:
			if std.IsDiff() {
				continue
			}
			r := BankReference(std.Name)
			rel = &r
		}

		row := iostd.Row(std.Name)
		drives, slews := OutputDrivesSlews(p.family, std)
		for _, vccaux := range OutputVccAuxes(p.family, std) {
			for _, drive := range drives {
				for _, slew := range slews {
					ob := p.b.Raw(RawPackage, pkg).Mutex("DCI", "YES")
					if vccaux != "" {
						ob = ob.Raw(RawVccAux, vccaux)
					}
					if rel != nil {
						ob = ob.Relate(*rel)
					}
					ob = p.outputBase(ob).Test(OstdAttr(std.Name, vccaux), OstdVal(row, drive, slew))
					if q, ok := LookupQuirk(p.family, std.Name, drive, slew); ok {
						ob = ob.Quirk(q)
					}
					ob.ModeDiff("IOB", mode).
						AttrDiff("IOATTRBOX", "LVCMOS33", std.Name).
						AttrDiff("DRIVE_0MA", "DRIVE_0MA", "").
						Attr("DRIVEATTRBOX", driveSetting(drive)).
						Attr("SLEW", slewSetting(slew)).
						Attr("SUSPEND", suspend(c)).
						Commit()
				}
			}
		}
	}
}

type diffoProbe struct {
	attr string
	bank Relation
}

// diffOutputs emits the true differential driver probes of a pair's true
// half. The complement half is configured through the partner relation.
// Spartan-3E/3A also probe the driver with a second pair in the bank
// running a different standard.
func (p *iobPos) diffOutputs(pkg string) {
	c := p.caps
	modeP, _ := diffOutputModes(c, false)
	for _, std := range p.stds {
		if std.Diff != iostd.DiffTrue {
			continue
		}
		row := iostd.Row(std.Name)
		probes := []diffoProbe{{"DIFFO", BankDiffOut(std.Name, "")}}
		if c.S3EA {
			probes = append(probes, diffoProbe{"DIFFO_ALT", BankDiffOut(DiffoAltStd(std.Name), std.Name)})
		}
		for _, pr := range probes {
			db := p.b.Raw(RawPackage, pkg).
				Mutex("DCI", "YES").
				Mutex("DIFF", "OUTPUT").
				Relate(pr.bank).
				Relate(Partner(std.Name))
			p.outputBase(db).
				Test(pr.attr, row).
				ModeDiff("IOB", modeP).
				AttrDiff("IOATTRBOX", "LVCMOS33", std.Name).
				AttrDiff("DRIVE_0MA", "DRIVE_0MA", "").
				Pin("DIFFO_OUT").
				Attr("SUSPEND", suspend(c)).
				Commit()
		}
	}
}

// dciUpdateMode emits one probe per DCI update mode. The reference input
// keeps the bank's DCI alive; without one the probe still runs.
func (p *iobPos) dciUpdateMode(pkg string) {
	for _, v := range DciUpdateModes {
		p.outputBase(p.b.Mode("IOB").
			Global("DCIUPDATEMODE", v).
			Raw(RawPackage, pkg).
			Mutex("DCI", "UPDATEMODE").
			Prefer(BankReference("SSTL2_I_DCI"))).
			Test("DCIUPDATEMODE", v).
			AttrDiff("IOATTRBOX", "LVCMOS33", "LVDCI_33").
			AttrDiff("DRIVE_0MA", "DRIVE_0MA", "").
			Commit()
	}
}
