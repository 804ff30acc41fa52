// Package fuzzgen builds the configuration requests that probe the I/O
// logic and buffer bels of a device. Each request names the identity it is
// for, a base configuration, and the constraints that turn the base into the
// configuration under test; the sample for the identity is the bit
// difference between the two bitstreams.
package fuzzgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// Generator emits the request list for one device.
type Generator struct {
	Family iostd.Family
	Device *topology.Device
	Config *Config
}

// Generate returns every request for the device, in a deterministic order.
// It fails when a required relation resolves on no instance of a tile kind.
func (g *Generator) Generate(ctx context.Context) ([]Request, error) {
	if g.Device == nil {
		return nil, fmt.Errorf("fuzzgen: no device")
	}
	if g.Device.Family != g.Family {
		return nil, fmt.Errorf("fuzzgen: device %s is %s, not %s", g.Device.Name, g.Device.Family, g.Family)
	}
	cfg := g.Config
	if cfg == nil {
		cfg = DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	pkg := cfg.Package
	if pkg == "" {
		var ok bool
		if pkg, ok = g.Device.MaxPinPackage(); !ok {
			return nil, fmt.Errorf("fuzzgen: device %s has no packages", g.Device.Name)
		}
	} else if !g.Device.HasPackage(pkg) {
		return nil, fmt.Errorf("fuzzgen: device %s has no package %s", g.Device.Name, pkg)
	}
	glog.V(1).Infof("fuzzgen: %s: default package %s", g.Device.Name, pkg)

	e := newEmitter(g.Device, g.Family, pkg)

	if !cfg.SkipIOI {
		for _, k := range topology.IoiKinds(g.Family) {
			if !cfg.ShouldGenerate(k.Kind) {
				continue
			}
			sites := g.Device.Sites(k.Kind)
			if len(sites) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, idx := range IoiBels(g.Family, k) {
				g.ioi(e, k.Kind, idx, g.ioiCandidates(sites, idx))
			}
		}
	}

	if !cfg.SkipIOB {
		for _, l := range topology.LayoutsFor(g.Family) {
			if !cfg.ShouldGenerate(l.Kind) {
				continue
			}
			sites := g.Device.Sites(l.Kind)
			if len(sites) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, pos := range l.Positions {
				g.iob(e, l, pos, g.iobCandidates(sites, pos))
			}
			if g.Family.Caps().ExactV2PX && strings.HasSuffix(l.Kind, "_CLK") {
				g.clkEnable(e, l.Kind, sites)
			}
		}
	}

	if e.err != nil {
		return nil, e.err
	}
	if err := Submit(samples.NewStore(), e.reqs); err != nil {
		return nil, err
	}
	checks := 0
	for _, r := range e.reqs {
		if r.Check {
			checks++
		}
	}
	glog.Infof("fuzzgen: %s: %d requests, %d cross-checks", g.Device.Name, len(e.reqs), checks)
	return e.reqs, nil
}

// ioiCandidates places logic probes on bel idx of every instance. The pad
// is attached when the device knows it.
func (g *Generator) ioiCandidates(sites []topology.Site, idx int) []candidate {
	cands := make([]candidate, 0, len(sites))
	for _, s := range sites {
		c := candidate{site: s, bel: topology.IoiBel(idx)}
		io := topology.IoCoord{Col: s.Col, Row: s.Row, Iob: idx}
		if _, ok := g.Device.Io(io); ok {
			c.io = &io
		}
		cands = append(cands, c)
	}
	return cands
}

// iobCandidates places buffer probes on the logic bel driving pos, in the
// IOI tile of the position's cell.
func (g *Generator) iobCandidates(sites []topology.Site, pos topology.IobPosition) []candidate {
	var cands []candidate
	for _, s := range sites {
		col, row := topology.CellAt(s, pos.Cell)
		ioi, ok := g.Device.TileAt(col, row, isIoiKind)
		if !ok {
			glog.V(2).Infof("fuzzgen: %s: no logic tile at cell %d", s, pos.Cell)
			continue
		}
		c := candidate{site: ioi, bel: pos.IoiBel()}
		io := topology.IoAt(s, pos)
		if _, ok := g.Device.Io(io); ok {
			c.io = &io
		}
		cands = append(cands, c)
	}
	return cands
}

// clkEnable emits the Virtex-2 Pro X clock pad enable. The probe sits on the
// logic tile of cell 1, whose kind differs from the buffer tile's.
func (g *Generator) clkEnable(e *emitter, kind string, sites []topology.Site) {
	bel := ClkEnableBel(kind)
	var cands []candidate
	for _, s := range sites {
		col, row := topology.CellAt(s, 1)
		ioi, ok := g.Device.TileAt(col, row, isIoiKind)
		if !ok {
			continue
		}
		cands = append(cands, candidate{site: ioi, bel: bel})
	}
	e.builder(kind, bel, cands).
		TestBits("CLK_ENABLE").
		Pip("BREFCLK", "I").
		Commit()
}
