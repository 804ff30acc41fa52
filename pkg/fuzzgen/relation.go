package fuzzgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// RelationKind is the closed set of cross-site relations a request can
// declare.
type RelationKind int

const (
	// ColumnClockBuffer is the global clock buffer fed by a dedicated
	// BREFCLK pad. It only exists next to the clock column.
	ColumnClockBuffer RelationKind = iota
	// DifferentialPartner is the other half of the pair the pad under test
	// belongs to, configured as the complementary output.
	DifferentialPartner
	// AdjacentBankReference is another bonded pad of the same bank used as
	// an input with the given standard, so the bank gets the reference
	// voltage or DCI it needs.
	AdjacentBankReference
	// BankDiffOutput is another true differential output pair of the same
	// bank, driven with the given standard (and AltStd on a second pair).
	BankDiffOutput
	// OtherDiffOutput is another differential pad of the same bank driving
	// an output with the given standard.
	OtherDiffOutput
)

var relationNames = [...]string{
	"column_clock_buffer",
	"differential_partner",
	"adjacent_bank_reference",
	"bank_diff_output",
	"other_diff_output",
}

func (k RelationKind) String() string {
	if int(k) < len(relationNames) {
		return relationNames[k]
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// Mode says what happens when a relation resolves on no instance.
type Mode int

const (
	// Must fails generation with an error naming the request.
	Must Mode = iota
	// Prefer emits the request without the relation and logs a warning.
	Prefer
	// OrSkip drops the request silently.
	OrSkip
)

// Relation is a cross-site dependency of a request.
type Relation struct {
	Kind   RelationKind
	Std    string
	AltStd string
	Bufg   int
}

func (r Relation) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	switch r.Kind {
	case ColumnClockBuffer:
		fmt.Fprintf(&sb, "(BUFG%d)", r.Bufg)
	default:
		sb.WriteString("(" + r.Std)
		if r.AltStd != "" {
			sb.WriteString(", " + r.AltStd)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Relation constructors.

func ClockBuffer(bufg int) Relation { return Relation{Kind: ColumnClockBuffer, Bufg: bufg} }

func Partner(std string) Relation { return Relation{Kind: DifferentialPartner, Std: std} }

func BankReference(std string) Relation { return Relation{Kind: AdjacentBankReference, Std: std} }

func BankDiffOut(std, alt string) Relation {
	return Relation{Kind: BankDiffOutput, Std: std, AltStd: alt}
}

func OtherDiffOut(std string) Relation { return Relation{Kind: OtherDiffOutput, Std: std} }

// siteCtx is everything a relation or filter may look at for one candidate
// instance.
type siteCtx struct {
	dev    *topology.Device
	family iostd.Family
	pkg    string
	site   topology.Site     // instance holding the bel under test
	bel    string            // bel under test
	io     *topology.IoCoord // pad under test, nil for logic-only probes
	alt    *bool             // AltVr choice of the request, if pinned
}

// resolved is the outcome of a relation on one candidate.
type resolved struct {
	base Constraints
	diff Constraints
}

// padTarget returns the IOI bel driving pad c.
func (sc *siteCtx) padTarget(c topology.IoCoord) (Target, bool) {
	s, ok := sc.dev.TileAt(c.Col, c.Row, isIoiKind)
	if !ok {
		return Target{}, false
	}
	return Target{Site: &s, Bel: topology.IoiBel(c.Iob)}, true
}

func isIoiKind(kind string) bool { return strings.HasPrefix(kind, "IOI") }

func isClockKind(kind string) bool { return strings.HasPrefix(kind, "CLK") }

// bankPads returns the pads bonded in the request's package that share the
// bank of the pad under test, in device order, excluding that pad and the
// dedicated clock pads.
func (sc *siteCtx) bankPads() []topology.IoInfo {
	if sc.io == nil {
		return nil
	}
	bank := sc.dev.BankOf(*sc.io)
	var res []topology.IoInfo
	for _, info := range sc.dev.Ios() {
		if info.Coord == *sc.io || info.Bank != bank || info.Position.Kind == topology.KindClk {
			continue
		}
		if !sc.dev.Bonded(sc.pkg, info.Coord) {
			continue
		}
		res = append(res, info)
	}
	return res
}

func at(t Target, kind Kind, name, value string) Constraint {
	return Constraint{Kind: kind, Target: t, Name: name, Value: value}
}

// diffInputModes returns the true and complement modes of a differential
// input for a family.
func diffInputModes(c iostd.Caps, leftRight bool) (string, string) {
	switch {
	case c.S3A && leftRight:
		return "DIFFMI_NDT", "DIFFSI_NDT"
	case c.S3EA:
		return "DIFFMI", "DIFFSI"
	}
	return "DIFFM", "DIFFS"
}

// diffOutputModes returns the true and complement modes of a differential
// output for a family.
func diffOutputModes(c iostd.Caps, leftRight bool) (string, string) {
	switch {
	case c.S3A && leftRight:
		return "DIFFMLR", "DIFFSLR"
	case c.S3A:
		return "DIFFMTB", "DIFFSTB"
	}
	return "DIFFM", "DIFFS"
}

func ibufMode(c iostd.Caps) string {
	if c.S3EA {
		return "IBUF"
	}
	return "IOB"
}

func suspend(c iostd.Caps) string {
	if c.S3A {
		return "3STATE"
	}
	return ""
}

func (r Relation) resolve(sc *siteCtx) (resolved, bool) {
	c := sc.family.Caps()
	switch r.Kind {
	case ColumnClockBuffer:
		cc := sc.dev.ClockColumn
		if sc.site.Col != cc && sc.site.Col != cc-1 {
			return resolved{}, false
		}
		clk, ok := sc.dev.TileAt(cc, sc.site.Row, isClockKind)
		if !ok {
			return resolved{}, false
		}
		t := Target{Site: &clk, Bel: "BUFG" + strconv.Itoa(r.Bufg)}
		return resolved{diff: Constraints{at(t, KindPip, "BREFCLK_O", "BREFCLK_I")}}, true

	case DifferentialPartner:
		if sc.io == nil {
			return resolved{}, false
		}
		info, ok := sc.dev.Io(*sc.io)
		if !ok || info.Position.Role != topology.RoleTrue {
			return resolved{}, false
		}
		t, ok := sc.padTarget(info.Partner)
		if !ok {
			return resolved{}, false
		}
		_, modeN := diffOutputModes(c, false)
		var res resolved
		res.base = Constraints{
			at(t, KindMode, "", "IOB"),
			at(t, KindAttr, "PULL", "PULLDOWN"),
			at(t, KindAttr, "TMUX", "#OFF"),
			at(t, KindAttr, "IMUX", "#OFF"),
			at(t, KindAttr, "IFFDMUX", "#OFF"),
			at(t, KindAttr, "OMUX", "#OFF"),
		}
		res.diff = Constraints{
			at(t, KindMode, "", modeN),
			at(t, KindAttr, "IOATTRBOX", r.Std),
			at(t, KindAttr, "DIFFO_IN_USED", "0"),
			at(t, KindPin, "DIFFO_IN", ""),
			at(t, KindAttr, "SUSPEND", suspend(c)),
		}
		return res, true

	case AdjacentBankReference:
		for _, info := range sc.bankPads() {
			t, ok := sc.padTarget(info.Coord)
			if !ok {
				continue
			}
			cs := Constraints{
				at(t, KindMode, "", ibufMode(c)),
				at(t, KindAttr, "IOATTRBOX", r.Std),
				at(t, KindAttr, "IMUX", "1"),
				at(t, KindPin, "I", ""),
			}
			if c.S3A {
				cs = cs.With(
					at(t, KindAttr, "IBUF_DELAY_VALUE", "DLY0"),
					at(t, KindAttr, "DELAY_ADJ_ATTRBOX", "FIXED"),
					at(t, KindAttr, "SEL_MUX", "0"),
				)
			}
			return resolved{base: cs}, true
		}
		return resolved{}, false

	case OtherDiffOutput:
		for _, info := range sc.bankPads() {
			if info.Position.Role == topology.RoleNone || info.Partner == *sc.io {
				continue
			}
			t, ok := sc.padTarget(info.Coord)
			if !ok {
				continue
			}
			modeP, modeN := diffInputModes(c, c.S3A)
			mode := modeP
			if info.Position.Role == topology.RoleComp {
				mode = modeN
			}
			return resolved{base: Constraints{
				at(t, KindMode, "", mode),
				at(t, KindAttr, "IOATTRBOX", r.Std),
				at(t, KindAttr, "OMUX", "O1"),
				at(t, KindAttr, "O1INV", "O1"),
				at(t, KindPin, "O1", ""),
			}}, true
		}
		return resolved{}, false

	case BankDiffOutput:
		return r.resolveBankDiff(sc, c)
	}
	panic(fmt.Sprintf("fuzzgen: unknown relation %v", r.Kind))
}

// resolveBankDiff finds one output pair per standard, scanning the bank
// from the far end. Spartan-3E/3A refuse a pad under test that lies in the
// scanned range, so the candidate is rejected instead of skipped.
func (r Relation) resolveBankDiff(sc *siteCtx, c iostd.Caps) (resolved, bool) {
	if sc.io == nil {
		return resolved{}, false
	}
	stds := []string{r.Std}
	if r.AltStd != "" {
		stds = append(stds, r.AltStd)
	}
	bank := sc.dev.BankOf(*sc.io)
	ios := append([]topology.IoInfo(nil), sc.dev.Ios()...)
	if !c.ExactDSP {
		for i, j := 0, len(ios)-1; i < j; i, j = i+1, j-1 {
			ios[i], ios[j] = ios[j], ios[i]
		}
	}
	modeP, modeN := diffOutputModes(c, false)
	var cs Constraints
	done := 0
	for _, info := range ios {
		if done == len(stds) {
			break
		}
		if info.Coord == *sc.io {
			if c.S3EA {
				return resolved{}, false
			}
			continue
		}
		if !sc.dev.Bonded(sc.pkg, info.Coord) || info.Bank != bank || info.Position.Kind != topology.KindIob {
			continue
		}
		if info.Position.Role != topology.RoleTrue {
			continue
		}
		tp, okP := sc.padTarget(info.Coord)
		tn, okN := sc.padTarget(info.Partner)
		if !okP || !okN {
			continue
		}
		std := stds[done]
		cs = cs.With(
			at(tp, KindMode, "", modeP),
			at(tn, KindMode, "", modeN),
			at(tp, KindAttr, "IOATTRBOX", std),
			at(tn, KindAttr, "IOATTRBOX", std),
			at(tp, KindAttr, "OMUX", "O1"),
			at(tp, KindAttr, "O1INV", "O1"),
			at(tp, KindPin, "O1", ""),
			at(tp, KindPin, "DIFFO_OUT", ""),
			at(tn, KindPin, "DIFFO_IN", ""),
			at(tn, KindAttr, "DIFFO_IN_USED", "0"),
		)
		if c.S3A {
			cs = cs.With(
				at(tp, KindAttr, "SUSPEND", "3STATE"),
				at(tn, KindAttr, "SUSPEND", "3STATE"),
			)
		}
		done++
	}
	if done != len(stds) {
		return resolved{}, false
	}
	return resolved{base: cs}, true
}

// Filter restricts the instances a request may be placed on.
type Filter int

const (
	// VrefPin requires the pad under test to be a VREF pin in the package.
	VrefPin Filter = iota
	// VrPin requires the pad under test to be a DCI reference pin.
	VrPin
	// NotIbufSite rejects logic bels whose pad is input-only.
	NotIbufSite
)

func (f Filter) String() string {
	return [...]string{"vref_pin", "vr_pin", "not_ibuf_site"}[f]
}

func (f Filter) accept(sc *siteCtx) bool {
	switch f {
	case VrefPin:
		return sc.io != nil && sc.dev.IsVref(sc.pkg, *sc.io)
	case VrPin:
		return sc.io != nil && sc.dev.IsVr(sc.pkg, *sc.io, sc.alt)
	case NotIbufSite:
		io := sc.io
		if io == nil {
			idx, err := strconv.Atoi(strings.TrimPrefix(sc.bel, "IOI"))
			if err != nil {
				return false
			}
			io = &topology.IoCoord{Col: sc.site.Col, Row: sc.site.Row, Iob: idx}
		}
		info, ok := sc.dev.Io(*io)
		return ok && info.Position.Kind != topology.KindIbuf
	}
	return false
}
