package fuzzgen

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/iostd"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// candidate is one instance a request may be placed on.
type candidate struct {
	site topology.Site
	bel  string
	io   *topology.IoCoord
}

type relUse struct {
	rel  Relation
	mode Mode
}

// Builder accumulates one request. It is a value: every method returns a
// modified copy and leaves the receiver alone, so a partly configured
// builder can be shared by sibling requests.
//
// Constraints added before Test form the base configuration; constraints
// added after it form the diff.
type Builder struct {
	e           *emitter
	tile        string
	bel         string
	cands       []candidate
	base        Constraints
	diff        Constraints
	testing     bool
	key         samples.Key
	extra       [][2]string
	rels        []relUse
	filters     []Filter
	multi       *Multi
	workarounds []string
	quirk       string
}

func (b Builder) add(c Constraint) Builder {
	if b.testing {
		b.diff = b.diff.With(c)
	} else {
		b.base = b.base.With(c)
	}
	return b
}

func self(kind Kind, name, value string) Constraint {
	return Constraint{Kind: kind, Name: name, Value: value}
}

func onBel(bel string, kind Kind, name, value string) Constraint {
	return Constraint{Kind: kind, Target: Target{Bel: bel}, Name: name, Value: value}
}

func (b Builder) Mode(m string) Builder { return b.add(self(KindMode, "", m)) }

func (b Builder) Attr(name, value string) Builder { return b.add(self(KindAttr, name, value)) }

func (b Builder) Pin(name string) Builder { return b.add(self(KindPin, name, "")) }

func (b Builder) Pip(from, to string) Builder { return b.add(self(KindPip, from, to)) }

func (b Builder) Global(name, value string) Builder { return b.add(self(KindGlobal, name, value)) }

func (b Builder) NoGlobal(name string) Builder { return b.add(self(KindNoGlobal, name, "")) }

func (b Builder) Mutex(name, value string) Builder { return b.add(self(KindMutex, name, value)) }

func (b Builder) Raw(key, value string) Builder { return b.add(self(KindRaw, key, value)) }

func (b Builder) BelMode(bel, m string) Builder { return b.add(onBel(bel, KindMode, "", m)) }

func (b Builder) BelAttr(bel, name, value string) Builder {
	return b.add(onBel(bel, KindAttr, name, value))
}

func (b Builder) BelPin(bel, name string) Builder { return b.add(onBel(bel, KindPin, name, "")) }

// BelUnused requires another bel of the tile to stay unconfigured.
func (b Builder) BelUnused(bel string) Builder { return b.add(onBel(bel, KindMode, "", "")) }

// ModeDiff sets the mode to from in the base and to to under test.
func (b Builder) ModeDiff(from, to string) Builder {
	b.base = b.base.With(self(KindMode, "", from))
	b.diff = b.diff.With(self(KindMode, "", to))
	return b
}

// AttrDiff sets an attribute to from in the base and to to under test. An
// empty value leaves the attribute unset.
func (b Builder) AttrDiff(name, from, to string) Builder {
	b.base = b.base.With(self(KindAttr, name, from))
	b.diff = b.diff.With(self(KindAttr, name, to))
	return b
}

// Relate attaches a relation that must resolve.
func (b Builder) Relate(r Relation) Builder { return b.relate(r, Must) }

// Prefer attaches a relation the request can do without.
func (b Builder) Prefer(r Relation) Builder { return b.relate(r, Prefer) }

// RelateOrSkip attaches a relation without which the request is dropped.
func (b Builder) RelateOrSkip(r Relation) Builder { return b.relate(r, OrSkip) }

func (b Builder) relate(r Relation, m Mode) Builder {
	b.rels = append(slices.Clip(b.rels), relUse{r, m})
	return b
}

// Where restricts the instances the request may be placed on.
func (b Builder) Where(f Filter) Builder {
	b.filters = append(slices.Clip(b.filters), f)
	return b
}

// Extra adds an identity fed from the same run, filed under the bel the
// request is placed on rather than the identity's own tile.
func (b Builder) Extra(attr, val string) Builder {
	b.extra = append(slices.Clip(b.extra), [2]string{attr, val})
	return b
}

// Multi turns the request into a binary multi-value probe of attr.
func (b Builder) Multi(attr string, width int) Builder {
	b.multi = &Multi{Attr: attr, Width: width}
	return b
}

// Workaround tags the request with a named entry of Workarounds.
func (b Builder) Workaround(name string) Builder {
	if _, ok := Workarounds[name]; !ok {
		panic(fmt.Sprintf("fuzzgen: unknown workaround %q", name))
	}
	b.workarounds = append(slices.Clip(b.workarounds), name)
	return b
}

// Quirk notes that the request hits a known toolchain quirk.
func (b Builder) Quirk(q Quirk) Builder {
	b.quirk = q.Reason
	return b
}

// Test names the identity the request is for and switches to recording the
// diff.
func (b Builder) Test(attr, val string) Builder {
	if b.testing {
		panic(fmt.Sprintf("fuzzgen: Test(%s, %s) on a builder already testing %s", attr, val, b.key))
	}
	b.key = samples.Key{Tile: b.tile, Bel: b.bel, Attr: attr, Val: val}
	b.testing = true
	return b
}

// Commit emits the request.
func (b Builder) Commit() {
	if !b.testing {
		panic("fuzzgen: Commit without Test")
	}
	b.e.commit(b)
}

// Choice is one value of an enum probe and the setting that selects it.
type Choice struct {
	Val     string
	Setting string
}

// TestEnum emits one request per choice, each setting setting.
func (b Builder) TestEnum(attr, setting string, choices ...Choice) {
	for _, c := range choices {
		b.Test(attr, c.Val).Attr(setting, c.Setting).Commit()
	}
}

// TestBool emits the requests for a flag: value "0" sets setting to v0 and
// value "1" sets it to v1.
func (b Builder) TestBool(attr, setting, v0, v1 string) {
	b.TestEnum(attr, setting, Choice{"0", v0}, Choice{"1", v1})
}

// TestInv emits the two polarities of an input inverter.
func (b Builder) TestInv(pin string) {
	b = b.Pin(pin)
	b.TestEnum(pin+"INV", pin+"INV", Choice{pin, pin}, Choice{pin + "_B", pin + "_B"})
}

// TestBits emits a presence probe for attr.
func (b Builder) TestBits(attr string) Builder { return b.Test(attr, "1") }

// emitter collects committed requests and places them on instances.
type emitter struct {
	dev    *topology.Device
	family iostd.Family
	pkg    string
	reqs   []Request
	seen   map[samples.Key]bool
	first  map[samples.Key]int // index in reqs of the first request per identity
	err    error
}

func newEmitter(dev *topology.Device, f iostd.Family, pkg string) *emitter {
	return &emitter{
		dev:    dev,
		family: f,
		pkg:    pkg,
		seen:   make(map[samples.Key]bool),
		first:  make(map[samples.Key]int),
	}
}

func (e *emitter) builder(tile, bel string, cands []candidate) Builder {
	return Builder{e: e, tile: tile, bel: bel, cands: cands}
}

// commit places the request described by b. A request for an identity
// already asked for under other constraints is kept as a cross-check: both
// runs must produce the same sample.
func (e *emitter) commit(b Builder) {
	dup := e.seen[b.key]

	pkg := e.pkg
	if c, ok := b.base.Find(KindRaw, Target{}, RawPackage); ok {
		pkg = c.Value
	}
	var alt *bool
	if c, ok := b.base.Find(KindRaw, Target{}, RawAltVr); ok {
		v, err := strconv.ParseBool(c.Value)
		if err != nil {
			panic(fmt.Sprintf("fuzzgen: %s: bad AltVr %q", b.key, c.Value))
		}
		alt = &v
	}

	placed := false
	var failed *relUse
	var res resolved
	var chosen candidate
	// Strict pass first; then let Prefer relations go.
	for _, strict := range []bool{true, false} {
		for _, cand := range b.cands {
			sc := &siteCtx{dev: e.dev, family: e.family, pkg: pkg, site: cand.site, bel: cand.bel, io: cand.io, alt: alt}
			if !b.accept(sc) {
				continue
			}
			r, miss := b.resolveAll(sc, strict)
			if miss != nil {
				if failed == nil || miss.mode == Must {
					failed = miss
				}
				continue
			}
			placed, res, chosen = true, r, cand
			break
		}
		if placed {
			if !strict {
				glog.Warningf("fuzzgen: %s: placed on %s without its preferred relations", b.key, chosen.site)
			}
			break
		}
	}

	if !placed {
		switch {
		case dup:
			glog.V(1).Infof("fuzzgen: %s: cross-check skipped, no instance of %s qualifies", b.key, b.tile)
		case failed != nil && failed.mode == Must:
			if e.err == nil {
				e.err = fmt.Errorf("fuzzgen: %s: %s resolves on no instance of %s", b.key, failed.rel, b.tile)
			}
		case failed != nil:
			glog.V(1).Infof("fuzzgen: %s: skipped, %s does not resolve", b.key, failed.rel)
		default:
			glog.V(1).Infof("fuzzgen: %s: no instance of %s qualifies", b.key, b.tile)
		}
		return
	}

	req := Request{
		Key:         b.key,
		Site:        chosen.site,
		Bel:         chosen.bel,
		Io:          chosen.io,
		Base:        b.base.With(res.base...),
		Diff:        b.diff.With(res.diff...),
		Multi:       b.multi,
		Workarounds: b.workarounds,
		Quirk:       b.quirk,
	}
	if i, ok := e.first[b.key]; ok && e.reqs[i].sameRun(req) {
		glog.V(2).Infof("fuzzgen: %s already requested", b.key)
		return
	}
	for _, k := range req.Keys() {
		if e.seen[k] {
			req.Check = true
		}
	}
	if req.Check {
		glog.V(1).Infof("fuzzgen: %s requested again on %s, cross-checking", b.key, chosen.site)
	}
	for _, x := range b.extra {
		k := samples.Key{Tile: chosen.site.Kind, Bel: chosen.bel, Attr: x[0], Val: x[1]}
		if !e.seen[k] && !slices.Contains(req.Extra, k) {
			req.Extra = append(req.Extra, k)
		}
	}
	for _, k := range req.Keys() {
		e.seen[k] = true
	}
	e.seen[b.key] = true
	if _, ok := e.first[b.key]; !ok {
		e.first[b.key] = len(e.reqs)
	}
	e.reqs = append(e.reqs, req)
}

func (b Builder) accept(sc *siteCtx) bool {
	for _, f := range b.filters {
		if !f.accept(sc) {
			return false
		}
	}
	return true
}

// resolveAll resolves every relation on one candidate. It returns the first
// relation that failed; Prefer relations only count when strict.
func (b Builder) resolveAll(sc *siteCtx, strict bool) (resolved, *relUse) {
	var res resolved
	for i := range b.rels {
		u := &b.rels[i]
		r, ok := u.rel.resolve(sc)
		if !ok {
			if u.mode == Prefer && !strict {
				continue
			}
			return resolved{}, u
		}
		res.base = res.base.With(r.base...)
		res.diff = res.diff.With(r.diff...)
	}
	return res, nil
}
