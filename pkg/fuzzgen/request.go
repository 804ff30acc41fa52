package fuzzgen

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/samples"
	"github.com/OpenTraceLab/bitfuzz/pkg/topology"
)

// Multi describes a binary multi-value probe: one run per pattern, each
// setting Attr to samples.MultiPattern(Width, j).
type Multi struct {
	Attr  string `json:"attr"`
	Width int    `json:"width"`
}

// Patterns returns the number of runs the probe takes.
func (m Multi) Patterns() int { return samples.MultiPatterns(m.Width) }

// PatternVal is the identity value of run j.
func PatternVal(j int) string { return "P" + strconv.Itoa(j) }

// Request is one configuration request: a base configuration, and the
// constraints that turn it into the configuration under test. The sample
// is the bit difference between the two.
type Request struct {
	Key         samples.Key       `json:"key"`
	Extra       []samples.Key     `json:"extra,omitempty"`
	Site        topology.Site     `json:"site"`
	Bel         string            `json:"bel"`
	Io          *topology.IoCoord `json:"io,omitempty"`
	Base        Constraints       `json:"base"`
	Diff        Constraints       `json:"diff"`
	Multi       *Multi            `json:"multi,omitempty"`
	Workarounds []string          `json:"workarounds,omitempty"`
	Quirk       string            `json:"quirk,omitempty"`
	Check       bool              `json:"check,omitempty"`
}

// CrossCheck reports whether the request repeats an identity requested
// before under other constraints. Its sample must match the first one.
func (r Request) CrossCheck() bool { return r.Check }

// sameRun reports whether r and o configure the same run on the same bel.
func (r Request) sameRun(o Request) bool {
	return r.Site == o.Site && r.Bel == o.Bel &&
		reflect.DeepEqual(r.Base, o.Base) &&
		reflect.DeepEqual(r.Diff, o.Diff) &&
		reflect.DeepEqual(r.Multi, o.Multi)
}

// Keys returns every identity the request expects a sample for. A multi
// probe expects one per pattern, named P0, P1, ...; Extra identities are fed
// from the same run and share its sample.
func (r Request) Keys() []samples.Key {
	var keys []samples.Key
	if r.Multi != nil {
		for j := 0; j < r.Multi.Patterns(); j++ {
			k := r.Key
			k.Val = PatternVal(j)
			keys = append(keys, k)
		}
	} else {
		keys = append(keys, r.Key)
	}
	return append(keys, r.Extra...)
}

// Pattern returns the diff constraints of run j of a multi probe.
func (r Request) Pattern(j int) Constraints {
	if r.Multi == nil {
		return r.Diff
	}
	v := samples.MultiPattern(r.Multi.Width, j)
	return r.Diff.With(Constraint{Kind: KindAttr, Name: r.Multi.Attr, Value: v.String()})
}

// Submit registers the identities of every request with s, so that the
// store can report the ones no capture answered. Two requests expecting the
// same identity fail unless the later one is a cross-check.
func Submit(s *samples.Store, reqs []Request) error {
	if ft := fault.Catch(func() {
		for _, r := range reqs {
			s.Submit(r)
		}
	}); ft != nil {
		return fmt.Errorf("fuzzgen: %w", ft)
	}
	return nil
}
