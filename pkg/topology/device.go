package topology

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
)

// IoCoord addresses one pad: the cell holding its IOI bel and the bel index.
// Its text form is "col.row.iob".
type IoCoord struct {
	Col int
	Row int
	Iob int
}

func (c IoCoord) String() string {
	return fmt.Sprintf("%d.%d.%d", c.Col, c.Row, c.Iob)
}

// ParseIoCoord parses the "col.row.iob" form.
func ParseIoCoord(s string) (IoCoord, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return IoCoord{}, fmt.Errorf("topology: invalid io coordinate %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return IoCoord{}, fmt.Errorf("topology: invalid io coordinate %q", s)
		}
		v[i] = n
	}
	return IoCoord{Col: v[0], Row: v[1], Iob: v[2]}, nil
}

func (c *IoCoord) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseIoCoord(n.Value)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c IoCoord) MarshalYAML() (any, error) { return c.String(), nil }

// Site is one instance of a tile kind.
type Site struct {
	Kind string `yaml:"kind" json:"kind"`
	Col  int    `yaml:"col" json:"col"`
	Row  int    `yaml:"row" json:"row"`
}

func (s Site) String() string { return fmt.Sprintf("%s_X%dY%d", s.Kind, s.Col, s.Row) }

// IoInfo is what the device knows about one pad.
type IoInfo struct {
	Coord    IoCoord
	Bank     int
	Site     Site
	Position IobPosition
	Partner  IoCoord // other half of the pair when Position.Role != RoleNone
}

// Bond is one package of the device.
type Bond struct {
	Package string    `yaml:"package"`
	Ios     []IoCoord `yaml:"ios"`
	Vrefs   []IoCoord `yaml:"vrefs"`
}

type ioEntry struct {
	Io   IoCoord `yaml:"io"`
	Bank int     `yaml:"bank"`
}

type deviceFile struct {
	Name        string            `yaml:"name"`
	Family      iostd.Family      `yaml:"family"`
	ClockColumn int               `yaml:"clock_column"`
	Tiles       []Site            `yaml:"tiles"`
	Ios         []ioEntry         `yaml:"ios"`
	Bonds       []Bond            `yaml:"bonds"`
	Dci         map[int][]IoCoord `yaml:"dci"`
	DciAlt      map[int][]IoCoord `yaml:"dci_alt"`
}

type ioPair [2]IoCoord

func (p ioPair) has(c IoCoord) bool { return p[0] == c || p[1] == c }

// Device is the part of a device description the legality queries need.
// It is immutable after loading.
type Device struct {
	Name        string
	Family      iostd.Family
	ClockColumn int

	tiles  []Site
	sites  map[string][]Site
	ios    []IoInfo
	byIo   map[IoCoord]int
	bonds  []Bond
	bonded map[string]map[IoCoord]bool
	vrefs  map[string]map[IoCoord]bool
	dci    map[int]ioPair
	dciAlt map[int]ioPair
}

// LoadDeviceFile reads a device description from path.
func LoadDeviceFile(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topology: failed to open device file: %w", err)
	}
	defer f.Close()
	return LoadDevice(f)
}

// LoadDevice reads a YAML device description.
func LoadDevice(r io.Reader) (*Device, error) {
	var df deviceFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&df); err != nil {
		return nil, fmt.Errorf("topology: failed to decode device: %w", err)
	}
	return newDevice(df)
}

func newDevice(df deviceFile) (*Device, error) {
	d := &Device{
		Name:        df.Name,
		Family:      df.Family,
		ClockColumn: df.ClockColumn,
		tiles:       df.Tiles,
		sites:       make(map[string][]Site),
		byIo:        make(map[IoCoord]int),
		bonds:       df.Bonds,
		bonded:      make(map[string]map[IoCoord]bool),
		vrefs:       make(map[string]map[IoCoord]bool),
		dci:         make(map[int]ioPair),
		dciAlt:      make(map[int]ioPair),
	}
	if d.Name == "" {
		return nil, fmt.Errorf("topology: device has no name")
	}

	valid := make(map[string]bool)
	for _, l := range LayoutsFor(d.Family) {
		valid[l.Kind] = true
	}
	// Every pad covered by an I/O tile instance, with its position.
	type slot struct {
		site Site
		pos  IobPosition
	}
	cover := make(map[IoCoord]slot)
	for _, s := range d.tiles {
		d.sites[s.Kind] = append(d.sites[s.Kind], s)
		if !strings.HasPrefix(s.Kind, "IOB_") {
			continue
		}
		if !valid[s.Kind] {
			return nil, fmt.Errorf("topology: tile kind %s is not valid for %s", s.Kind, d.Family)
		}
		for _, p := range Layout(s.Kind).Positions {
			c := IoAt(s, p)
			if prev, ok := cover[c]; ok {
				return nil, fmt.Errorf("topology: io %s covered by both %s and %s", c, prev.site, s)
			}
			cover[c] = slot{s, p}
		}
	}

	for _, e := range df.Ios {
		sl, ok := cover[e.Io]
		if !ok {
			return nil, fmt.Errorf("topology: io %s is not covered by any I/O tile", e.Io)
		}
		if _, dup := d.byIo[e.Io]; dup {
			return nil, fmt.Errorf("topology: io %s listed twice", e.Io)
		}
		info := IoInfo{Coord: e.Io, Bank: e.Bank, Site: sl.site, Position: sl.pos}
		if sl.pos.Role != RoleNone {
			info.Partner = IoAt(sl.site, Layout(sl.site.Kind).Position(sl.pos.Partner))
		}
		d.byIo[e.Io] = len(d.ios)
		d.ios = append(d.ios, info)
	}

	for _, b := range d.bonds {
		if b.Package == "" {
			return nil, fmt.Errorf("topology: bond without package name")
		}
		if d.bonded[b.Package] != nil {
			return nil, fmt.Errorf("topology: package %s listed twice", b.Package)
		}
		d.bonded[b.Package] = make(map[IoCoord]bool)
		d.vrefs[b.Package] = make(map[IoCoord]bool)
		for _, c := range b.Ios {
			if _, ok := d.byIo[c]; !ok {
				return nil, fmt.Errorf("topology: package %s bonds unknown io %s", b.Package, c)
			}
			d.bonded[b.Package][c] = true
		}
		for _, c := range b.Vrefs {
			if !d.bonded[b.Package][c] {
				return nil, fmt.Errorf("topology: package %s vref %s is not bonded", b.Package, c)
			}
			d.vrefs[b.Package][c] = true
		}
	}

	for _, m := range []struct {
		src map[int][]IoCoord
		dst map[int]ioPair
		tag string
	}{{df.Dci, d.dci, "dci"}, {df.DciAlt, d.dciAlt, "dci_alt"}} {
		for bank, pair := range m.src {
			if len(pair) != 2 {
				return nil, fmt.Errorf("topology: %s bank %d needs 2 pins, has %d", m.tag, bank, len(pair))
			}
			m.dst[bank] = ioPair{pair[0], pair[1]}
		}
	}
	return d, nil
}

// IoAt returns the pad driven by position p of tile instance s.
func IoAt(s Site, p IobPosition) IoCoord {
	switch Layout(s.Kind).Edge {
	case EdgeN, EdgeS:
		return IoCoord{Col: s.Col + p.Cell, Row: s.Row, Iob: p.Ioi}
	default:
		return IoCoord{Col: s.Col, Row: s.Row + p.Cell, Iob: p.Ioi}
	}
}

// CellAt returns the coordinates of cell `cell` of tile instance s.
func CellAt(s Site, cell int) (col, row int) {
	if IsIobKind(s.Kind) {
		switch Layout(s.Kind).Edge {
		case EdgeN, EdgeS:
			return s.Col + cell, s.Row
		}
	}
	return s.Col, s.Row + cell
}

// Sites returns the instances of a tile kind in device order.
func (d *Device) Sites(kind string) []Site { return d.sites[kind] }

// TileKinds returns the kinds present on the device, sorted.
func (d *Device) TileKinds() []string {
	kinds := make([]string, 0, len(d.sites))
	for k := range d.sites {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// TileAt returns the first tile at (col, row) whose kind satisfies match.
func (d *Device) TileAt(col, row int, match func(kind string) bool) (Site, bool) {
	for _, s := range d.tiles {
		if s.Col == col && s.Row == row && match(s.Kind) {
			return s, true
		}
	}
	return Site{}, false
}

// Ios returns every pad in device order.
func (d *Device) Ios() []IoInfo { return d.ios }

// Io returns what the device knows about pad c.
func (d *Device) Io(c IoCoord) (IoInfo, bool) {
	i, ok := d.byIo[c]
	if !ok {
		return IoInfo{}, false
	}
	return d.ios[i], true
}

// BankOf returns the bank of pad c. Unknown pads panic.
func (d *Device) BankOf(c IoCoord) int {
	info, ok := d.Io(c)
	if !ok {
		panic(fmt.Sprintf("topology: unknown io %s", c))
	}
	return info.Bank
}

// Packages returns the package names in description order.
func (d *Device) Packages() []string {
	var res []string
	for _, b := range d.bonds {
		res = append(res, b.Package)
	}
	return res
}

// HasPackage reports whether pkg is one of the device's packages.
func (d *Device) HasPackage(pkg string) bool { return d.bonded[pkg] != nil }

// MaxPinPackage returns the package bonding the most pads; ties go to the
// earlier package.
func (d *Device) MaxPinPackage() (string, bool) {
	best, n := "", -1
	for _, b := range d.bonds {
		if len(b.Ios) > n {
			best, n = b.Package, len(b.Ios)
		}
	}
	return best, n >= 0
}

// Bonded reports whether pad c is connected to a pin in package pkg.
func (d *Device) Bonded(pkg string, c IoCoord) bool { return d.bonded[pkg][c] }

// IsVref reports whether pad c is a VREF pin in package pkg.
func (d *Device) IsVref(pkg string, c IoCoord) bool { return d.vrefs[pkg][c] }

// IsVr reports whether pad c acts as a DCI reference pin in package pkg.
// For banks with both a primary and an alternate pair, alt selects which
// pair is active; a nil alt never matches such a bank.
func (d *Device) IsVr(pkg string, c IoCoord, alt *bool) bool {
	isVr := false
	for bank, pair := range d.dci {
		if !pair.has(c) {
			continue
		}
		if _, both := d.dciAlt[bank]; both {
			isVr = alt != nil && !*alt
		} else {
			isVr = true
		}
	}
	for bank, pair := range d.dciAlt {
		if !pair.has(c) {
			continue
		}
		if _, both := d.dci[bank]; both {
			isVr = alt != nil && *alt
		} else {
			isVr = true
		}
	}
	return isVr && d.Bonded(pkg, c)
}

func (d *Device) position(kind string, index int) (TileLayout, IobPosition) {
	l := Layout(kind)
	return l, l.Position(index)
}

// FindBondedVrefPackage returns a package in which some instance of the
// given buffer is a VREF pin. When several packages qualify for one pad the
// one described last wins.
func (d *Device) FindBondedVrefPackage(kind string, index int) (string, bool) {
	_, pos := d.position(kind, index)
	vrefs := make(map[IoCoord]string)
	for _, b := range d.bonds {
		for _, c := range b.Vrefs {
			vrefs[c] = b.Package
		}
	}
	for _, s := range d.sites[kind] {
		if pkg, ok := vrefs[IoAt(s, pos)]; ok {
			return pkg, true
		}
	}
	return "", false
}

// FindBondedVrPackage returns a package in which some instance of the given
// buffer is a DCI reference pin. alt is set when the pad's bank also has an
// alternate pair, in which case the caller must pin the choice.
//
// Banks with an alternate pair only ever match on the alternate pins; their
// primary pins are not reported.
func (d *Device) FindBondedVrPackage(kind string, index int) (pkg string, alt *bool, ok bool) {
	_, pos := d.position(kind, index)
	bonded := make(map[IoCoord]string)
	for _, b := range d.bonds {
		for _, c := range b.Ios {
			bonded[c] = b.Package
		}
	}
	for _, s := range d.sites[kind] {
		c := IoAt(s, pos)
		p, isBonded := bonded[c]
		if !isBonded {
			continue
		}
		for bank := 0; bank < 8; bank++ {
			if altPair, hasAlt := d.dciAlt[bank]; hasAlt {
				if altPair.has(c) {
					t := true
					return p, &t, true
				}
			} else if pair, hasPrim := d.dci[bank]; hasPrim && pair.has(c) {
				return p, nil, true
			}
		}
	}
	return "", nil, false
}

type brefclkKey struct {
	kind  string
	index int
}

var brefclkPins = map[brefclkKey][2]int{
	{"IOB_V2P_SW2", 5}: {1, 0},
	{"IOB_V2P_SE2", 1}: {0, 6},
	{"IOB_V2P_NW2", 1}: {1, 2},
	{"IOB_V2P_NE2", 5}: {0, 4},
}

// FindBrefclk reports whether the given buffer is a dedicated BREFCLK pad,
// and if so which global clock buffer it feeds and on which input. Only
// Virtex-2 Pro (not Pro X) has them.
func (d *Device) FindBrefclk(kind string, index int) (bufg, input int, ok bool) {
	d.position(kind, index)
	c := d.Family.Caps()
	if !c.V2PFamily || c.ExactV2PX {
		return 0, 0, false
	}
	v, ok := brefclkPins[brefclkKey{kind, index}]
	if !ok {
		return 0, 0, false
	}
	return v[0], v[1], true
}
