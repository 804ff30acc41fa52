package topology

import (
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
)

// Edge is the die edge an I/O tile sits on.
type Edge int

const (
	EdgeN Edge = iota
	EdgeE
	EdgeS
	EdgeW
)

func (e Edge) String() string {
	switch e {
	case EdgeN:
		return "N"
	case EdgeE:
		return "E"
	case EdgeS:
		return "S"
	case EdgeW:
		return "W"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// Role is the part a buffer plays in a differential pair.
type Role int

const (
	RoleNone Role = iota
	RoleTrue
	RoleComp
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleTrue:
		return "true"
	case RoleComp:
		return "comp"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// PadKind says what a buffer position can be used as.
type PadKind int

const (
	KindIob PadKind = iota
	KindIbuf
	KindObuf
	KindClk
)

func (k PadKind) String() string {
	switch k {
	case KindIob:
		return "iob"
	case KindIbuf:
		return "ibuf"
	case KindObuf:
		return "obuf"
	case KindClk:
		return "clk"
	}
	return fmt.Sprintf("PadKind(%d)", int(k))
}

// IobPosition is one buffer slot of an I/O tile kind.
type IobPosition struct {
	Index   int // IOB bel index within the tile
	Cell    int // sub-tile offset along the edge
	Ioi     int // IOI bel index within the cell
	Role    Role
	Partner int // position index of the other half when Role != RoleNone
	Kind    PadKind
}

// Bel is the name samples for this position are filed under.
func (p IobPosition) Bel() string { return "IOB" + strconv.Itoa(p.Index) }

// IoiBel is the name of the logic bel that drives this position.
func (p IobPosition) IoiBel() string { return IoiBel(p.Ioi) }

// IoiBel names IOI bel idx.
func IoiBel(idx int) string { return "IOI" + strconv.Itoa(idx) }

// TileLayout is the buffer arrangement of one I/O tile kind.
type TileLayout struct {
	Kind      string
	Edge      Edge
	Cells     int
	Positions []IobPosition
}

// LeftRight reports whether the tile sits in a Spartan-3A left/right bank,
// which has its own standards catalog.
func (l TileLayout) LeftRight() bool {
	return l.Kind == "IOB_S3A_W4" || l.Kind == "IOB_S3A_E4"
}

// Position returns position idx, panicking when it does not exist.
func (l TileLayout) Position(idx int) IobPosition {
	if idx < 0 || idx >= len(l.Positions) {
		panic(fmt.Sprintf("topology: %s has no buffer %d", l.Kind, idx))
	}
	return l.Positions[idx]
}

func iob(cell, ioi int) IobPosition { return IobPosition{Cell: cell, Ioi: ioi} }

func iobt(cell, ioi, other int) IobPosition {
	return IobPosition{Cell: cell, Ioi: ioi, Role: RoleTrue, Partner: other}
}

func iobc(cell, ioi, other int) IobPosition {
	return IobPosition{Cell: cell, Ioi: ioi, Role: RoleComp, Partner: other}
}

func ibuf(cell, ioi int) IobPosition { return IobPosition{Cell: cell, Ioi: ioi, Kind: KindIbuf} }

func ibuft(cell, ioi, other int) IobPosition {
	p := iobt(cell, ioi, other)
	p.Kind = KindIbuf
	return p
}

func ibufc(cell, ioi, other int) IobPosition {
	p := iobc(cell, ioi, other)
	p.Kind = KindIbuf
	return p
}

func clkt(cell, ioi, other int) IobPosition {
	p := iobt(cell, ioi, other)
	p.Kind = KindClk
	return p
}

func clkc(cell, ioi, other int) IobPosition {
	p := iobc(cell, ioi, other)
	p.Kind = KindClk
	return p
}

func layout(kind string, edge Edge, cells int, ps ...IobPosition) TileLayout {
	for i := range ps {
		ps[i].Index = i
	}
	return TileLayout{Kind: kind, Edge: edge, Cells: cells, Positions: ps}
}

// Two-cell Virtex-2 patterns, shared by Virtex-2 Pro.
func v2Pair(prefix string) []TileLayout {
	en2 := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 2,
			iobc(1, 3, 1), iobt(1, 2, 0), iobc(1, 1, 3), iobt(1, 0, 2), iobc(0, 1, 5), iobt(0, 0, 4))
	}
	es2 := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 2,
			iobc(1, 3, 1), iobt(1, 2, 0), iobc(0, 3, 3), iobt(0, 2, 2), iobc(0, 1, 5), iobt(0, 0, 4))
	}
	return []TileLayout{
		layout(prefix+"NW2", EdgeN, 2,
			iobc(0, 3, 1), iobt(0, 2, 0), iobc(0, 1, 3), iobt(0, 0, 2), iobc(1, 1, 5), iobt(1, 0, 4)),
		layout(prefix+"NE2", EdgeN, 2,
			iobc(0, 3, 1), iobt(0, 2, 0), iobc(1, 3, 3), iobt(1, 2, 2), iobc(1, 1, 5), iobt(1, 0, 4)),
		es2(prefix+"ES2", EdgeE),
		en2(prefix+"EN2", EdgeE),
		es2(prefix+"SW2", EdgeS),
		en2(prefix+"SE2", EdgeS),
		layout(prefix+"WS2", EdgeW, 2,
			iobt(0, 0, 1), iobc(0, 1, 0), iobt(0, 2, 3), iobc(0, 3, 2), iobt(1, 2, 5), iobc(1, 3, 4)),
		layout(prefix+"WN2", EdgeW, 2,
			iobt(0, 0, 1), iobc(0, 1, 0), iobt(1, 0, 3), iobc(1, 1, 2), iobt(1, 2, 5), iobc(1, 3, 4)),
	}
}

func v2Layouts() []TileLayout { return v2Pair("IOB_V2_") }

func v2pLayouts() []TileLayout {
	const p = "IOB_V2P_"
	nw1 := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 1, iob(0, 2), iobc(0, 1, 2), iobt(0, 0, 1))
	}
	nw1Alt := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 1, iobc(0, 2, 1), iobt(0, 1, 0), iob(0, 0))
	}
	ne1 := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 1, iobc(0, 3, 1), iobt(0, 2, 0), iob(0, 1))
	}
	ne1Alt := func(kind string, edge Edge) TileLayout {
		return layout(kind, edge, 1, iob(0, 3), iobc(0, 2, 2), iobt(0, 1, 1))
	}
	pairs := make(map[string]TileLayout)
	for _, l := range v2Pair(p) {
		pairs[l.Kind] = l
	}
	return []TileLayout{
		nw1(p+"NW1", EdgeN),
		nw1Alt(p+"NW1_ALT", EdgeN),
		ne1(p+"NE1", EdgeN),
		ne1Alt(p+"NE1_ALT", EdgeN),
		pairs[p+"NW2"],
		pairs[p+"NE2"],
		layout(p+"NE2_CLK", EdgeN, 2,
			iobc(0, 3, 1), iobt(0, 2, 0), iobc(1, 3, 3), iobt(1, 2, 2), clkc(1, 1, 5), clkt(1, 0, 4)),
		pairs[p+"ES2"],
		pairs[p+"EN2"],
		ne1(p+"SW1", EdgeS),
		ne1Alt(p+"SW1_ALT", EdgeS),
		nw1(p+"SE1", EdgeS),
		nw1Alt(p+"SE1_ALT", EdgeS),
		pairs[p+"SW2"],
		pairs[p+"SE2"],
		layout(p+"SE2_CLK", EdgeS, 2,
			clkc(1, 3, 1), clkt(1, 2, 0), iobc(1, 1, 3), iobt(1, 0, 2), iobc(0, 1, 5), iobt(0, 0, 4)),
		pairs[p+"WS2"],
		pairs[p+"WN2"],
	}
}

func s3Layouts() []TileLayout {
	const p = "IOB_S3_"
	return []TileLayout{
		layout(p+"N2", EdgeN, 2, iob(0, 2), iobc(0, 1, 2), iobt(0, 0, 1), iobc(1, 1, 4), iobt(1, 0, 3)),
		layout(p+"E1", EdgeE, 1, iobc(0, 1, 1), iobt(0, 0, 0)),
		layout(p+"S2", EdgeS, 2, iob(1, 2), iobc(1, 1, 2), iobt(1, 0, 1), iobc(0, 1, 4), iobt(0, 0, 3)),
		layout(p+"W1", EdgeW, 1, iobc(0, 0, 1), iobt(0, 1, 0)),
	}
}

func s3eLayouts() []TileLayout {
	const p = "IOB_S3E_"
	return []TileLayout{
		layout(p+"N1", EdgeN, 1, iob(0, 2)),
		layout(p+"N2", EdgeN, 2, iobc(0, 1, 1), iobt(0, 0, 0), ibuf(1, 2)),
		layout(p+"N3", EdgeN, 3, iobc(0, 1, 1), iobt(0, 0, 0), ibuf(1, 2), iobc(2, 1, 4), iobt(2, 0, 3)),
		layout(p+"N4", EdgeN, 4,
			iobc(0, 1, 1), iobt(0, 0, 0), iob(1, 2), iobc(2, 1, 4), iobt(2, 0, 3), ibufc(3, 1, 6), ibuft(3, 0, 5)),
		layout(p+"E1", EdgeE, 1, iob(0, 2)),
		layout(p+"E2", EdgeE, 2, iobc(0, 1, 1), iobt(0, 0, 0)),
		layout(p+"E3", EdgeE, 3, ibuf(2, 2), iob(1, 2), iobc(0, 1, 3), iobt(0, 0, 2)),
		layout(p+"E4", EdgeE, 4, ibuf(3, 2), iobc(2, 1, 2), iobt(2, 0, 1), iobc(0, 1, 4), iobt(0, 0, 3)),
		layout(p+"S1", EdgeS, 1, iob(0, 2)),
		layout(p+"S2", EdgeS, 2, iobc(1, 1, 1), iobt(1, 0, 0), ibuf(0, 2)),
		layout(p+"S3", EdgeS, 3, iobc(2, 1, 1), iobt(2, 0, 0), ibuf(1, 2), iobc(0, 1, 4), iobt(0, 0, 3)),
		layout(p+"S4", EdgeS, 4,
			iobc(3, 1, 1), iobt(3, 0, 0), iob(2, 2), iobc(1, 1, 4), iobt(1, 0, 3), ibufc(0, 1, 6), ibuft(0, 0, 5)),
		layout(p+"W1", EdgeW, 1, iob(0, 2)),
		layout(p+"W2", EdgeW, 2, iobc(1, 1, 1), iobt(1, 0, 0)),
		layout(p+"W3", EdgeW, 3, ibuf(0, 2), iob(1, 2), iobc(2, 1, 3), iobt(2, 0, 2)),
		layout(p+"W4", EdgeW, 4, ibuf(0, 2), iobc(1, 1, 2), iobt(1, 0, 1), iobc(3, 1, 4), iobt(3, 0, 3)),
	}
}

func s3aLayouts() []TileLayout {
	const p = "IOB_S3A_"
	return []TileLayout{
		layout(p+"N2", EdgeN, 2, iobc(0, 0, 1), iobt(0, 1, 0), ibuf(0, 2), iobc(1, 0, 4), iobt(1, 1, 3)),
		layout(p+"E4", EdgeE, 4,
			ibufc(3, 1, 1), ibuft(3, 0, 0), iobc(2, 1, 3), iobt(2, 0, 2), iobc(1, 1, 5), iobt(1, 0, 4), iobc(0, 1, 7), iobt(0, 0, 6)),
		layout(p+"S2", EdgeS, 2, iobc(1, 1, 1), iobt(1, 0, 0), ibuf(0, 2), iobc(0, 1, 4), iobt(0, 0, 3)),
		layout(p+"W4", EdgeW, 4,
			ibufc(0, 0, 1), ibuft(0, 1, 0), iobc(1, 0, 3), iobt(1, 1, 2), iobc(2, 0, 5), iobt(2, 1, 4), iobc(3, 0, 7), iobt(3, 1, 6)),
	}
}

// LayoutsFor returns the I/O tile kinds of a family in canonical order.
func LayoutsFor(f iostd.Family) []TileLayout {
	c := f.Caps()
	switch {
	case c.ExactV2:
		return v2Layouts()
	case c.V2PFamily:
		return v2pLayouts()
	case c.ExactS3:
		return s3Layouts()
	case c.ExactS3E:
		return s3eLayouts()
	case c.S3A:
		return s3aLayouts()
	}
	panic(fmt.Sprintf("topology: no I/O layouts for %s", f))
}

var allLayouts = func() map[string]TileLayout {
	m := make(map[string]TileLayout)
	for _, ls := range [][]TileLayout{v2Layouts(), v2pLayouts(), s3Layouts(), s3eLayouts(), s3aLayouts()} {
		for _, l := range ls {
			m[l.Kind] = l
		}
	}
	return m
}()

// Layout returns the layout of an I/O tile kind. Unknown kinds panic.
func Layout(kind string) TileLayout {
	l, ok := allLayouts[kind]
	if !ok {
		panic(fmt.Sprintf("topology: unknown tile kind %q", kind))
	}
	return l
}

// IsIobKind reports whether kind names an I/O buffer tile.
func IsIobKind(kind string) bool {
	_, ok := allLayouts[kind]
	return ok
}

// IoiKind is an I/O logic tile kind and the number of IOI bels it holds.
type IoiKind struct {
	Kind string
	Bels int
}

// IoiKinds returns the I/O logic tile kinds of a family.
func IoiKinds(f iostd.Family) []IoiKind {
	c := f.Caps()
	switch {
	case c.V2Family:
		return []IoiKind{{"IOI", 4}, {"IOI_CLK_N", 4}, {"IOI_CLK_S", 4}}
	case c.ExactS3:
		return []IoiKind{{"IOI_S3", 3}}
	case c.ExactS3E:
		return []IoiKind{{"IOI_S3E", 3}}
	case c.S3A:
		return []IoiKind{{"IOI_S3A_WE", 3}, {"IOI_S3A_SN", 3}}
	}
	panic(fmt.Sprintf("topology: no I/O logic tiles for %s", f))
}
