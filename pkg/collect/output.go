package collect

import (
	"sort"
	"strings"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fuzzgen"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// dataPrefix names the output data tables of the family. Virtex-2 Pro X
// shares the Virtex-2 Pro tables.
func (t *tile) dataPrefix() string {
	c := t.caps
	switch {
	case c.V2PFamily:
		return "V2P"
	case c.ExactV2:
		return "V2"
	case c.ExactS3:
		return "S3"
	case c.ExactS3E:
		return "S3E"
	}
	return "S3A"
}

func (t *tile) ostd(bel string, std iostd.Iostd, vccaux string, drive int, slew string) bitdiff.Diff {
	return t.peek(bel, fuzzgen.OstdAttr(std.Name, vccaux), fuzzgen.OstdVal(iostd.Row(std.Name), drive, slew))
}

func addBits(set map[tiledb.TileBit]bool, d bitdiff.Diff) {
	for b := range d {
		set[b] = true
	}
}

// outputBits finds which bits move with slew and which with drive, then
// splits both into their P and N halves.
func (t *tile) outputBits(p *pad) {
	c := t.caps
	bel := p.bel
	slewBits := make(map[tiledb.TileBit]bool)
	driveBits := make(map[tiledb.TileBit]bool)
	t.within(bel, "SLEW_DRIVE", func() {
		for _, std := range p.stds {
			if len(std.Drive) == 0 {
				continue
			}
			drives, slews := fuzzgen.OutputDrivesSlews(t.family, std)
			for _, vccaux := range fuzzgen.OutputVccAuxes(t.family, std) {
				for _, drive := range drives {
					if fuzzgen.HasQuirkAnySlew(t.family, std.Name, drive) {
						continue
					}
					base := t.ostd(bel, std, vccaux, drive, slews[0])
					for _, slew := range slews[1:] {
						addBits(slewBits, t.ostd(bel, std, vccaux, drive, slew).Combine(base.Not()))
					}
				}
				for _, slew := range slews {
					base := t.ostd(bel, std, vccaux, drives[0], slew)
					for _, drive := range drives[1:] {
						addBits(driveBits, t.ostd(bel, std, vccaux, drive, slew).Combine(base.Not()))
					}
				}
			}
		}
		if c.V2Family {
			// One extra P drive bit is only used by the strong fixed-drive
			// standards.
			gtl := t.peek(bel, "OSTD", fuzzgen.OstdVal("GTL", 0, fuzzgen.SlewNone))
			gtlp := t.peek(bel, "OSTD", fuzzgen.OstdVal("GTLP", 0, fuzzgen.SlewNone))
			for b := range gtl {
				if _, ok := gtlp[b]; !ok && !slewBits[b] {
					driveBits[b] = true
				}
			}
		}
	})

	pdrive := make(map[tiledb.TileBit]bool)
	t.within(bel, "PDRIVE", func() {
		switch {
		case c.S3A:
			n := samples.MultiPatterns(16)
			diffs := make([]bitdiff.Diff, n)
			for j := range diffs {
				diffs[j] = t.get(bel, "OPROGRAMMING", fuzzgen.PatternVal(j))
			}
			oprog := bitdiff.XlatBitVec(samples.DecodeMulti(16, diffs))
			for _, pb := range oprog[13:16] {
				pdrive[pb.Bit] = true
			}
			for _, pb := range oprog[2:6] {
				p.nslewBits = append(p.nslewBits, pb.Bit)
			}
			for _, pb := range oprog[6:10] {
				p.pslewBits = append(p.pslewBits, pb.Bit)
			}
		case c.ExactS3:
			gtl := t.peek(bel, "OSTD", fuzzgen.OstdVal("GTL", 0, fuzzgen.SlewNone))
			for b := range driveBits {
				if _, ok := gtl[b]; !ok {
					pdrive[b] = true
				}
			}
		default:
			drives := []int{2, 4, 6, 8, 12, 16, 24}
			if c.ExactS3E {
				drives = drives[:6]
			}
			for _, drive := range drives {
				ttl := t.peek(bel, "OSTD", fuzzgen.OstdVal("LVTTL", drive, fuzzgen.SlewSlow))
				cmos := t.peek(bel, "OSTD", fuzzgen.OstdVal("LVCMOS33", drive, fuzzgen.SlewSlow))
				addBits(pdrive, ttl.Combine(cmos.Not()))
			}
		}
		for b := range pdrive {
			bitdiff.Require(driveBits[b], "P drive bit %s never moves with drive", b)
			delete(driveBits, b)
		}
		for _, b := range append(append([]tiledb.TileBit(nil), p.pslewBits...), p.nslewBits...) {
			bitdiff.Require(slewBits[b], "slew bit %s never moves with slew", b)
			delete(slewBits, b)
		}
	})
	p.slewBits = slewBits
	p.pdriveBits = pdrive
	p.ndriveBits = driveBits
}

// dciMode collects the impedance control mode from the two terminated
// inputs and the two controlled outputs.
func (t *tile) dciMode(p *pad) {
	bel := p.bel
	t.within(bel, "DCI_MODE", func() {
		ibufMode := t.item(bel, "IBUF_MODE")
		split := t.peek(bel, "ISTD", "SSTL2_I_DCI")
		split.DiscardBits(ibufMode)
		vcc := t.peek(bel, "ISTD", "GTL_DCI")
		vcc.DiscardBits(ibufMode)
		dciBits := make(map[tiledb.TileBit]bool)
		addBits(dciBits, split)
		addBits(dciBits, vcc)

		output := t.peek(bel, "OSTD", fuzzgen.OstdVal("LVDCI_25", 0, fuzzgen.SlewNone)).SplitBits(dciBits)
		half := t.peek(bel, "OSTD", fuzzgen.OstdVal("LVDCI_DV2_25", 0, fuzzgen.SlewNone)).SplitBits(dciBits)
		t.insert(bel, "DCI_MODE", bitdiff.XlatEnum([]bitdiff.Value{
			{Key: "NONE", Diff: bitdiff.New()},
			{Key: "OUTPUT", Diff: output},
			{Key: "OUTPUT_HALF", Diff: half},
			{Key: "TERM_SPLIT", Diff: split},
			{Key: "TERM_VCC", Diff: vcc},
		}))
	})
}

// slewRow names the data row a slew setting is stored under.
func slewRow(std iostd.Iostd, row, slew string) string {
	switch slew {
	case fuzzgen.SlewFast:
		return "SLEW_FAST"
	case fuzzgen.SlewQuietIO:
		return "SLEW_QUIETIO"
	case fuzzgen.SlewSlow:
		if std.Vcco == 3300 {
			return "SLEW_SLOW_3V3"
		}
		return "SLEW_SLOW_LV"
	}
	return row
}

// nslewKey joins a Spartan-3A N slew class and row into one enum key.
func nslewKey(class, row string) string { return class + "|" + row }

// decompose carves every output standard sample into its slew, drive and
// miscellaneous parts and stores each part as a bit vector whose values go
// to the misc table.
func (t *tile) decompose(p *pad) {
	c := t.caps
	bel := p.bel
	var slew, pslew, nslew, pdrive, ndrive, misc []bitdiff.Value
	pslewSet := make(map[tiledb.TileBit]bool)
	for _, b := range p.pslewBits {
		pslewSet[b] = true
	}
	nslewSet := make(map[tiledb.TileBit]bool)
	for _, b := range p.nslewBits {
		nslewSet[b] = true
	}

	for _, std := range p.stds {
		if std.InputOnly || std.IsTrueDiff() {
			continue
		}
		if std.Diff == iostd.DiffPseudo && !p.paired() {
			continue
		}
		if std.Dci != iostd.DciNone && std.IsDiff() {
			continue
		}
		row := iostd.Row(std.Name)
		drives, slews := fuzzgen.OutputDrivesSlews(t.family, std)
		for _, vccaux := range fuzzgen.OutputVccAuxes(t.family, std) {
			attr := fuzzgen.OstdAttr(std.Name, vccaux)
			for _, drive := range drives {
				for _, sl := range slews {
					val := fuzzgen.OstdVal(row, drive, sl)
					t.within(bel, attr+"="+val, func() {
						d := t.get(bel, attr, val)
						if _, quirk := fuzzgen.LookupQuirk(t.family, std.Name, drive, sl); quirk {
							return
						}
						slewD := d.SplitBits(p.slewBits)
						pslewD := d.SplitBits(pslewSet)
						nslewD := d.SplitBits(nslewSet)
						pdriveD := d.SplitBits(p.pdriveBits)
						ndriveD := d.SplitBits(p.ndriveBits)
						if !c.S3EA {
							if mode := dciModes(std.Dci); mode != "NONE" {
								d.ApplyEnumDiff(t.item(bel, "DCI_MODE"), mode, "NONE")
							}
						}
						if c.S3A && strings.HasPrefix(std.Name, "PCI") {
							d.ApplyBitDiff(t.bit(bel, "PCI_CLAMP"), true, false)
						}

						sr := slewRow(std, row, sl)
						slew = append(slew, bitdiff.Value{Key: sr, Diff: slewD})
						pslew = append(pslew, bitdiff.Value{Key: sr, Diff: pslewD})
						class := "S3A_2V5_NSLEW"
						if vccaux == "3.3" {
							class = "S3A_3V3_NSLEW"
						}
						nslew = append(nslew, bitdiff.Value{Key: nslewKey(class, sr), Diff: nslewD})
						if std.Dci == iostd.DciOutput || std.Dci == iostd.DciOutputHalf {
							pdriveD.AssertEmpty()
							ndriveD.AssertEmpty()
						} else {
							dr := iostd.DriveRow(row, drive)
							pdrive = append(pdrive, bitdiff.Value{Key: dr, Diff: pdriveD})
							ndrive = append(ndrive, bitdiff.Value{Key: dr, Diff: ndriveD})
						}
						if !c.ExactS3E || !strings.HasPrefix(std.Name, "DIFF_") {
							misc = append(misc, bitdiff.Value{Key: row, Diff: d})
						}
					})
				}
			}
		}
	}

	if p.vrSlew != nil {
		slew = append(slew, bitdiff.Value{Key: "VR", Diff: p.vrSlew})
	}
	t.within(bel, "OUTPUT", func() {
		for b := range p.present {
			bitdiff.Require(p.pdriveBits[b] || p.ndriveBits[b], "presence bit %s is not a drive bit", b)
		}
	})
	off := func() bitdiff.Value { return bitdiff.Value{Key: "OFF", Diff: bitdiff.New()} }
	pdrive = append(pdrive, off())
	ndrive = append(ndrive, off())
	misc = append(misc, off())
	pslew = append(pslew, off())
	nslew = append(nslew,
		bitdiff.Value{Key: nslewKey("S3A_3V3_NSLEW", "OFF"), Diff: bitdiff.New()},
		bitdiff.Value{Key: nslewKey("S3A_2V5_NSLEW", "OFF"), Diff: bitdiff.New()},
	)
	slew = append(slew, off())

	// Drive values are stored relative to the unused buffer, whose drive
	// bits are the presence bits cleared.
	unpresent := func(diffs []bitdiff.Value, bits map[tiledb.TileBit]bool) {
		for _, v := range diffs {
			for b := range p.present {
				if !bits[b] {
					continue
				}
				if old, ok := v.Diff[b]; ok {
					bitdiff.Require(!old, "%s sets presence bit %s", v.Key, b)
					delete(v.Diff, b)
				} else {
					v.Diff[b] = false
				}
			}
		}
	}
	unpresent(pdrive, p.pdriveBits)
	unpresent(ndrive, p.ndriveBits)

	prefix := t.dataPrefix()
	if !c.S3A {
		t.iobData(p, "PDRIVE", prefix+"_PDRIVE", pdrive, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
		t.iobData(p, "NDRIVE", prefix+"_NDRIVE", ndrive, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
		t.iobData(p, "SLEW", prefix+"_SLEW", slew, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
		t.iobData(p, "OUTPUT_MISC", prefix+"_OUTPUT_MISC", misc, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
		return
	}
	side := "S3A_SN_"
	if p.l.LeftRight() {
		side = "S3A_WE_"
	}
	t.iobData(p, "PDRIVE", side+"PDRIVE", pdrive, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
	t.iobData(p, "NDRIVE", side+"NDRIVE", ndrive, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
	t.iobData(p, "PSLEW", "S3A_PSLEW", pslew, bitdiff.Fixed(p.pslewBits...))
	t.iobData(p, "NSLEW", "", nslew, bitdiff.Fixed(p.nslewBits...))
}

// iobData stores one decomposed output field. The item is a bit vector
// whose bits are inverted where the buffer's presence sets them; the value
// of every row goes to the misc table under class. An empty class means the
// keys carry their own class.
func (t *tile) iobData(p *pad, attr, class string, diffs []bitdiff.Value, ocd bitdiff.Ocd) {
	bel := p.bel
	t.within(bel, attr, func() {
		it := bitdiff.XlatEnumOcd(diffs, ocd)
		if attr == "PDRIVE" && t.caps.ExactS3E {
			bitdiff.EnumSwapBits(&it, 0, 1)
		}
		bits := make([]tiledb.PolBit, len(it.Support))
		for i, b := range it.Support {
			_, inv := p.present[b]
			bits[i] = tiledb.PolBit{Bit: b, Inv: inv}
		}
		t.insert(bel, attr, tiledb.BitVecItem(bits))
		for _, key := range it.ValueNames() {
			cl, row := class, key
			if cl == "" {
				cl, row, _ = strings.Cut(key, "|")
			}
			t.misc(cl, row, it.Values[key])
		}
	})
}

// diffGroupOrder sorts the two bank group bits so the true half's bit comes
// second. The physical order depends on the die edge.
func diffGroupOrder(e topology.Edge, bits []tiledb.PolBit) {
	sort.Slice(bits, func(i, j int) bool {
		a, b := bits[i].Bit, bits[j].Bit
		switch e {
		case topology.EdgeW:
			if a.Tile != b.Tile {
				return a.Tile < b.Tile
			}
			return a.Bit < b.Bit
		case topology.EdgeE:
			if a.Tile != b.Tile {
				return a.Tile > b.Tile
			}
			return a.Bit > b.Bit
		case topology.EdgeS:
			if a.Tile != b.Tile {
				return a.Tile > b.Tile
			}
			return a.Frame < b.Frame
		}
		if a.Tile != b.Tile {
			return a.Tile < b.Tile
		}
		return a.Frame > b.Frame
	})
}

// trueDiff collects the true differential driver of a pair's true half.
// On Spartan-3E/3A the bank group bits are separated first by comparing a
// driver alone in its bank with one sharing the bank with another
// standard.
func (t *tile) trueDiff(p *pad) {
	c := t.caps
	bel := p.bel
	t.within(bel, "OUTPUT_DIFF", func() {
		var group bitdiff.Diff
		if c.S3EA {
			rsds := iostd.Row("RSDS_25")
			group = t.peek(bel, "DIFFO_ALT", rsds).Combine(t.peek(bel, "DIFFO", rsds).Not())
			bits := bitdiff.XlatBitWide(group)
			bitdiff.Require(len(bits) == 2, "bank group moves %d bits, want 2", len(bits))
			diffGroupOrder(p.l.Edge, bits)
			t.insert(bel, "OUTPUT_DIFF_GROUP", tiledb.BoolItem(bits[1]))
			t.insert(p.partner, "OUTPUT_DIFF_GROUP", tiledb.BoolItem(bits[0]))
		}

		diffs := []bitdiff.Value{{Key: "OFF", Diff: bitdiff.New()}}
		switch {
		case c.V2PFamily:
			diffs = append(diffs, bitdiff.Value{Key: "DIFF_TERM", Diff: t.peek(p.partner, "ISTD_COMP_DT", "LVDS_25")})
		case c.S3EA:
			diffs = append(diffs, bitdiff.Value{Key: "DIFF_TERM", Diff: t.get(bel, "DIFF_TERM", "1")})
		}
		for _, std := range p.stds {
			if std.Diff != iostd.DiffTrue {
				continue
			}
			row := iostd.Row(std.Name)
			d := t.get(bel, "DIFFO", row)
			if c.S3EA {
				alt := t.get(bel, "DIFFO_ALT", row)
				if c.ExactS3E && std.Name == "LVDS_25" {
					bitdiff.Require(d.Equal(alt), "%s alone %s differs from shared %s", row, d, alt)
					d = d.Combine(group.Not())
				} else {
					alt = alt.Combine(group.Not())
					bitdiff.Require(d.Equal(alt), "%s alone %s differs from shared %s", row, d, alt)
				}
			}
			diffs = append(diffs, bitdiff.Value{Key: row, Diff: d})
		}

		ed := bitdiff.XlatEnumRaw(diffs, bitdiff.Ocd{Mode: bitdiff.ValueOrder})
		bits := make([]tiledb.PolBit, len(ed.Bits))
		for i, b := range ed.Bits {
			bits[i] = b.Pos()
		}
		t.insert(bel, "OUTPUT_DIFF", tiledb.BitVecItem(bits))
		class := t.dataPrefix() + "_OUTPUT_DIFF"
		for key, v := range ed.Values {
			t.misc(class, key, v)
		}
	})
}
