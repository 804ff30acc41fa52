// Package samples holds the bit diffs returned by the toolchain for each
// configuration request, keyed by request identity.
//
// Samples are read with Get, which consumes them, or Peek, which leaves them
// in place for later comparisons. Reading an identity that was never
// recorded, or was already consumed, raises a fault: the set of expected
// samples is fixed by the generator.
package samples

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/OpenTraceLab/bitfuzz/pkg/bitdiff"
	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

// Key is the identity of one sample.
type Key struct {
	Tile string `json:"tile"`
	Bel  string `json:"bel"`
	Attr string `json:"attr"`
	Val  string `json:"val"`
}

func (k Key) String() string { return k.Tile + "/" + k.Bel + "/" + k.Attr + "=" + k.Val }

func (k Key) less(o Key) bool {
	if k.Tile != o.Tile {
		return k.Tile < o.Tile
	}
	if k.Bel != o.Bel {
		return k.Bel < o.Bel
	}
	if k.Attr != o.Attr {
		return k.Attr < o.Attr
	}
	return k.Val < o.Val
}

// SortKeys sorts keys by tile, bel, attribute and value.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}

// Probe is anything that expects samples, usually a configuration request.
type Probe interface {
	Keys() []Key
}

type entry struct {
	diff     bitdiff.Diff
	consumed bool
}

// Store maps identities to samples. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	submitted map[Key]bool
	entries   map[Key]*entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		submitted: make(map[Key]bool),
		entries:   make(map[Key]*entry),
	}
}

// CrossChecker is a request that may repeat identities an earlier request
// asked for under a different configuration. Its samples land on the same
// keys, so Record compares them with the first ones.
type CrossChecker interface {
	Probe
	CrossCheck() bool
}

// Submit registers the identities p expects. Submitting an identity twice
// is a generator bug and panics, unless the second submission is a
// cross-check.
func (s *Store) Submit(p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	check := false
	if c, ok := p.(CrossChecker); ok {
		check = c.CrossCheck()
	}
	for _, k := range p.Keys() {
		if s.submitted[k] && !check {
			fault.Raise("submit", "duplicate identity %s", k)
		}
		s.submitted[k] = true
	}
}

// Record attaches a sample. Recording the same diff again is a no-op; a
// different diff for the same identity is a fault.
func (s *Store) Record(k Key, d bitdiff.Diff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[k]; ok {
		if !e.diff.Equal(d) {
			fault.Raise("record", "%s: conflicting samples %s and %s", k, e.diff, d)
		}
		return
	}
	s.entries[k] = &entry{diff: d.Clone()}
}

func (s *Store) lookup(op string, k Key) *entry {
	e, ok := s.entries[k]
	if !ok {
		fault.Raise(op, "no sample for %s", k)
	}
	if e.consumed {
		fault.Raise(op, "sample %s already consumed", k)
	}
	return e
}

// Get returns a copy of the sample for k and consumes it. The caller may
// carve the copy up; the stored sample still checks later records.
func (s *Store) Get(k Key) bitdiff.Diff {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup("get", k)
	e.consumed = true
	return e.diff.Clone()
}

// Peek returns a copy of the sample for k without consuming it.
func (s *Store) Peek(k Key) bitdiff.Diff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup("peek", k).diff.Clone()
}

// Has reports whether an unconsumed sample exists for k.
func (s *Store) Has(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	return ok && !e.consumed
}

// Len returns the number of recorded samples, consumed or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns every recorded identity, sorted.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Pending returns the submitted identities that have no sample yet.
func (s *Store) Pending() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []Key
	for k := range s.submitted {
		if _, ok := s.entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	SortKeys(keys)
	return keys
}

// Unconsumed returns the recorded identities accepted by match that were
// never read with Get.
func (s *Store) Unconsumed(match func(Key) bool) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []Key
	for k, e := range s.entries {
		if !e.consumed && (match == nil || match(k)) {
			keys = append(keys, k)
		}
	}
	SortKeys(keys)
	return keys
}

// MultiPatterns returns the number of samples a binary multi-value probe of
// the given width takes.
func MultiPatterns(width int) int { return bits.Len(uint(width)) }

// MultiPattern returns the field value set in pattern j of a binary
// multi-value probe: field bit i is set iff bit j of i+1 is.
func MultiPattern(width, j int) tiledb.BitVec {
	v := tiledb.Zeros(width)
	for i := range v {
		v[i] = (i+1)>>j&1 != 0
	}
	return v
}

// DecodeMulti turns the samples of a binary multi-value probe into one diff
// per field bit. A tile bit whose pattern code names no field bit, or whose
// polarity differs between patterns, is a fault.
func DecodeMulti(width int, diffs []bitdiff.Diff) []bitdiff.Diff {
	if len(diffs) != MultiPatterns(width) {
		fault.Raise("decode_multi", "width %d needs %d samples, got %d", width, MultiPatterns(width), len(diffs))
	}
	type code struct {
		pol bool
		cw  int
	}
	codes := make(map[tiledb.TileBit]code)
	for j, d := range diffs {
		for b, pol := range d {
			c, ok := codes[b]
			if ok && c.pol != pol {
				fault.Raise("decode_multi", "bit %s flips polarity between patterns", b)
			}
			codes[b] = code{pol: pol, cw: c.cw | 1<<j}
		}
	}
	res := make([]bitdiff.Diff, width)
	for i := range res {
		res[i] = bitdiff.New()
	}
	for b, c := range codes {
		i := c.cw - 1
		if i < 0 || i >= width {
			fault.Raise("decode_multi", "bit %s has code %d outside width %d", b, c.cw, width)
		}
		res[i][b] = c.pol
	}
	return res
}
