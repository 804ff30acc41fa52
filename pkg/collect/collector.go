// Package collect classifies captured samples into tile database items.
//
// Every tile kind is classified by an ordered list of steps. Each step takes
// the samples of one attribute, subtracts the contribution of attributes
// classified before it and translates what is left into a bool, bit vector
// or enum item. A step that finds evidence it cannot explain raises a fault,
// which aborts the tile kind and is returned from Run with the tile, bel and
// attribute being processed.
//
// Tile kinds are independent of each other, so they are classified in
// parallel, each into its own database shard. The shards are merged in tile
// kind order, so the result does not depend on scheduling.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// Collector classifies the samples of one device.
type Collector struct {
	Family iostd.Family
	Device *topology.Device
	Store  *samples.Store
	Config *Config
}

type job struct {
	kind string
	run  func(t *tile)
}

// Run classifies every tile kind of the device that has samples and
// returns the merged database.
func (c *Collector) Run(ctx context.Context) (*tiledb.Database, error) {
	if c.Device == nil {
		return nil, fmt.Errorf("collect: no device")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("collect: no sample store")
	}
	cfg := c.Config
	if cfg == nil {
		cfg = DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	family := c.Family
	if f, ok := cfg.FamilyOverride(); ok {
		family = f
	}
	if c.Device.Family != family {
		return nil, fmt.Errorf("collect: device %s is %s, not %s", c.Device.Name, c.Device.Family, family)
	}

	jobs := c.jobs(cfg, family)
	shards := make([]*tiledb.Database, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := c.newTile(j.kind, family)
			if ft := fault.Catch(func() { j.run(t) }); ft != nil {
				return errors.Wrapf(ft, "collect: %s", j.kind)
			}
			glog.V(1).Infof("collect: %s: %d items", j.kind, t.db.Len())
			shards[i] = t.db
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	db := tiledb.New()
	if ft := fault.Catch(func() {
		for _, s := range shards {
			db.Merge(s)
		}
	}); ft != nil {
		return nil, errors.Wrap(ft, "collect: merge")
	}
	if family.Caps().ExactV2PX {
		if err := c.clkEnable(db, family, cfg); err != nil {
			return nil, err
		}
	}

	if overlaps := tiledb.Audit(db, cfg.Exceptions); len(overlaps) > 0 {
		for _, o := range overlaps {
			glog.Warningf("collect: shared bits: %s", o)
		}
		if cfg.StrictDiscard {
			return nil, errors.Errorf("collect: %d unexcused bit overlaps, first %s", len(overlaps), overlaps[0])
		}
	}
	if partial := tiledb.CheckEnumTotality(db); len(partial) > 0 {
		for _, k := range partial {
			glog.Warningf("collect: enum without a default or with duplicate encodings: %s", k)
		}
		if cfg.StrictDiscard {
			return nil, errors.Errorf("collect: %d enums without a default or with duplicate encodings, first %s", len(partial), partial[0])
		}
	}
	if cfg.RequireConsumed {
		kinds := make(map[string]bool)
		for _, j := range jobs {
			kinds[j.kind] = true
		}
		if left := c.Store.Unconsumed(func(k samples.Key) bool { return kinds[k.Tile] }); len(left) > 0 {
			return nil, errors.Errorf("collect: %d samples never classified, first %s", len(left), left[0])
		}
	}
	glog.Infof("collect: %s: %d items, %d misc values", c.Device.Name, db.Len(), db.Misc.Len())
	return db, nil
}

// jobs lists the tile kinds to classify in sorted order.
func (c *Collector) jobs(cfg *Config, family iostd.Family) []job {
	var jobs []job
	for _, k := range topology.IoiKinds(family) {
		k := k
		if !cfg.ShouldCollect(k.Kind) || len(c.Device.Sites(k.Kind)) == 0 {
			continue
		}
		jobs = append(jobs, job{k.Kind, func(t *tile) { t.collectIoi(k) }})
	}
	for _, l := range topology.LayoutsFor(family) {
		l := l
		if !cfg.ShouldCollect(l.Kind) || len(c.Device.Sites(l.Kind)) == 0 {
			continue
		}
		jobs = append(jobs, job{l.Kind, func(t *tile) { t.collectIob(l) }})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].kind < jobs[j].kind })
	return jobs
}

func (c *Collector) newTile(kind string, family iostd.Family) *tile {
	return &tile{
		kind:   kind,
		family: family,
		caps:   family.Caps(),
		device: c.Device,
		store:  c.Store,
		db:     tiledb.New(),
	}
}

// clkPads are the Virtex-2 Pro X clock pad tiles and the ordinary tile
// whose input buffer they copy.
var clkPads = []struct {
	kind, src string
	ioi, iob  int
}{
	{"IOB_V2P_SE2_CLK", "IOB_V2P_SE2", 2, 1},
	{"IOB_V2P_NE2_CLK", "IOB_V2P_NE2", 0, 5},
}

// clkEnable collects the Virtex-2 Pro X clock pad enables. The dedicated
// clock pad is a differential-only copy of an ordinary buffer, so its input
// mode is the ordinary one without the single-ended values.
func (c *Collector) clkEnable(db *tiledb.Database, family iostd.Family, cfg *Config) error {
	for _, cp := range clkPads {
		if !cfg.ShouldCollect(cp.kind) || len(c.Device.Sites(cp.kind)) == 0 {
			continue
		}
		t := c.newTile(cp.kind, family)
		t.db = db
		ioi := topology.IoiBel(cp.ioi)
		iob := topology.IobPosition{Index: cp.iob}.Bel()
		ft := fault.Catch(func() {
			t.within(ioi, "CLK_ENABLE", func() {
				mode := db.MustGet(tiledb.Key{Tile: cp.src, Bel: iob, Attr: "IBUF_MODE"}).Clone()
				d := t.get(ioi, "CLK_ENABLE", "1")
				d.ApplyEnumDiff(mode, "DIFF", "NONE")
				d.AssertEmpty()
				delete(mode.Values, "VREF")
				delete(mode.Values, "CMOS")
				t.insert(iob, "IBUF_MODE", mode)
			})
		})
		if ft != nil {
			return errors.Wrapf(ft, "collect: %s", cp.kind)
		}
	}
	return nil
}

// Describe summarises the outcome of a run for the CLI: item counts per
// kind and the manual overrides.
func Describe(db *tiledb.Database) string {
	counts := make(map[tiledb.Kind]int)
	var manual []string
	for _, k := range db.Keys() {
		it, _ := db.Get(k)
		counts[it.Kind]++
		if note := db.Note(k); note != "" {
			manual = append(manual, k.String()+": "+note)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d items (%d bool, %d bitvec, %d enum), %d misc values\n",
		db.Len(), counts[tiledb.KindBool], counts[tiledb.KindBitVec], counts[tiledb.KindEnum], db.Misc.Len())
	for _, m := range manual {
		fmt.Fprintf(&sb, "  %s\n", m)
	}
	return sb.String()
}
