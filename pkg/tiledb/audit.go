package tiledb

import (
	"fmt"
	"sort"
)

// SharedBits names a pair of attributes of one bel that are allowed to share
// physical bits because they drive the same net.
type SharedBits struct {
	A, B   string
	Reason string
}

func (s SharedBits) covers(a, b string) bool {
	return (s.A == a && s.B == b) || (s.A == b && s.B == a)
}

// Overlap is a group of attributes of one bel whose supports intersect
// without an excuse.
type Overlap struct {
	Tile  string    `json:"tile"`
	Bel   string    `json:"bel"`
	Attrs []string  `json:"attrs"`
	Bits  []TileBit `json:"bits"`
}

func (o Overlap) String() string {
	return fmt.Sprintf("%s/%s: %v share %v", o.Tile, o.Bel, o.Attrs, o.Bits)
}

// attrSets groups attribute names using union-find so that chains of pairwise
// overlaps (A-B, B-C) are reported as a single group.
type attrSets struct {
	parent map[string]string
	rank   map[string]int
}

func newAttrSets() *attrSets {
	return &attrSets{parent: make(map[string]string), rank: make(map[string]int)}
}

func (s *attrSets) add(a string) {
	if _, ok := s.parent[a]; !ok {
		s.parent[a] = a
	}
}

// find returns the representative of a, compressing the path behind it.
func (s *attrSets) find(a string) string {
	root := a
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for a != root {
		next := s.parent[a]
		s.parent[a] = root
		a = next
	}
	return root
}

func (s *attrSets) union(a, b string) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	switch {
	case s.rank[ra] < s.rank[rb]:
		s.parent[ra] = rb
	case s.rank[ra] > s.rank[rb]:
		s.parent[rb] = ra
	default:
		s.parent[rb] = ra
		s.rank[ra]++
	}
}

// Audit checks that no two attributes of the same bel claim the same bit,
// unless the pair is listed in allowed.
func Audit(db *Database, allowed []SharedBits) []Overlap {
	type belKey struct{ tile, bel string }
	owners := make(map[belKey]map[TileBit][]string)
	for _, k := range db.Keys() {
		bk := belKey{k.Tile, k.Bel}
		if owners[bk] == nil {
			owners[bk] = make(map[TileBit][]string)
		}
		for _, b := range db.items[k].SupportBits() {
			owners[bk][b] = append(owners[bk][b], k.Attr)
		}
	}

	bels := make([]belKey, 0, len(owners))
	for bk := range owners {
		bels = append(bels, bk)
	}
	sort.Slice(bels, func(i, j int) bool {
		if bels[i].tile != bels[j].tile {
			return bels[i].tile < bels[j].tile
		}
		return bels[i].bel < bels[j].bel
	})

	var res []Overlap
	for _, bk := range bels {
		sets := newAttrSets()
		shared := make(map[TileBit]bool)
		for bit, attrs := range owners[bk] {
			for i := range attrs {
				for j := i + 1; j < len(attrs); j++ {
					if excused(allowed, attrs[i], attrs[j]) {
						continue
					}
					sets.add(attrs[i])
					sets.add(attrs[j])
					sets.union(attrs[i], attrs[j])
					shared[bit] = true
				}
			}
		}
		groups := make(map[string][]string)
		for a := range sets.parent {
			r := sets.find(a)
			groups[r] = append(groups[r], a)
		}
		var found []Overlap
		for _, attrs := range groups {
			sort.Strings(attrs)
			o := Overlap{Tile: bk.tile, Bel: bk.bel, Attrs: attrs}
			for bit := range shared {
				for _, a := range owners[bk][bit] {
					if sets.find(a) == sets.find(attrs[0]) {
						o.Bits = append(o.Bits, bit)
						break
					}
				}
			}
			SortBits(o.Bits)
			found = append(found, o)
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Attrs[0] < found[j].Attrs[0] })
		res = append(res, found...)
	}
	return res
}

func excused(allowed []SharedBits, a, b string) bool {
	if a == b {
		return true
	}
	for _, s := range allowed {
		if s.covers(a, b) {
			return true
		}
	}
	return false
}

// CheckEnumTotality returns the keys of enum items that have no default
// value or that have two values with the same encoding. The default is the
// all-false vector, or the NONE value when the field carries inverted bits.
func CheckEnumTotality(db *Database) []Key {
	var bad []Key
	for _, k := range db.Keys() {
		it := db.items[k]
		if it.Kind != KindEnum {
			continue
		}
		_, hasDefault := it.Values["NONE"]
		seen := make(map[string]bool)
		dup := false
		for _, name := range it.ValueNames() {
			v := it.Values[name]
			if v.IsZero() {
				hasDefault = true
			}
			if seen[v.String()] {
				dup = true
			}
			seen[v.String()] = true
		}
		if !hasDefault || dup {
			bad = append(bad, k)
		}
	}
	return bad
}
