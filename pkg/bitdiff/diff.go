// Package bitdiff implements the sparse signed bit sets that every
// classification step is built from, and the translations that turn sets of
// them into tile database items.
//
// A Diff maps a tile-relative bit to its polarity: true when the bit went
// from 0 to 1 relative to the baseline sample, false when it went from 1 to
// 0. Operations that detect inconsistent evidence raise a *Fault.
package bitdiff

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

// Fault is the panic payload raised by failed consistency checks.
type Fault = fault.Fault

// Diff is a sparse set of changed bits. The zero value is an empty diff that
// must not be written to; use New or the pointer-receiver helpers.
type Diff map[tiledb.TileBit]bool

// New returns an empty diff.
func New() Diff { return make(Diff) }

// Of builds a diff from polarised bits. A PolBit with Inv set records a 1
// to 0 transition.
func Of(bits ...tiledb.PolBit) Diff {
	d := make(Diff, len(bits))
	for _, b := range bits {
		if old, ok := d[b.Bit]; ok && old == b.Inv {
			fault.Raise("of", "bit %s given with both polarities", b.Bit)
		}
		d[b.Bit] = !b.Inv
	}
	return d
}

// Clone returns a copy of d.
func (d Diff) Clone() Diff {
	c := make(Diff, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Len returns the number of changed bits.
func (d Diff) Len() int { return len(d) }

// IsEmpty reports whether no bit changed.
func (d Diff) IsEmpty() bool { return len(d) == 0 }

// Bits returns the changed bits in canonical order.
func (d Diff) Bits() []tiledb.TileBit {
	res := make([]tiledb.TileBit, 0, len(d))
	for b := range d {
		res = append(res, b)
	}
	tiledb.SortBits(res)
	return res
}

// Equal reports whether d and o hold the same bits with the same polarity.
func (d Diff) Equal(o Diff) bool {
	if len(d) != len(o) {
		return false
	}
	for k, v := range d {
		ov, ok := o[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func (d Diff) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range d.Bits() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if d[b] {
			sb.WriteByte('+')
		} else {
			sb.WriteByte('-')
		}
		sb.WriteString(b.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Not flips every polarity.
func (d Diff) Not() Diff {
	res := make(Diff, len(d))
	for k, v := range d {
		res[k] = !v
	}
	return res
}

// Combine merges o into a copy of d. A bit present in both must carry
// opposite polarities and cancels out; a bit present in one is kept. With o
// inverted this is subtraction: d.Combine(o.Not()) leaves the bits of d not
// explained by o, and fails if o changed a bit the other way.
func (d Diff) Combine(o Diff) Diff {
	res := d.Clone()
	for k, v := range o {
		if old, ok := res[k]; ok {
			if old != !v {
				fault.Raise("combine", "bit %s: polarity %v combined with %v", k, old, v)
			}
			delete(res, k)
			continue
		}
		res[k] = v
	}
	return res
}

// Union returns the bits of both diffs. Shared bits must agree.
func (d Diff) Union(o Diff) Diff {
	res := d.Clone()
	for k, v := range o {
		if old, ok := res[k]; ok && old != v {
			fault.Raise("union", "bit %s: conflicting polarities", k)
		}
		res[k] = v
	}
	return res
}

// Subtract removes o from a copy of d. Every bit of o must be present in d
// with the same polarity.
func (d Diff) Subtract(o Diff) Diff {
	res := d.Clone()
	for k, v := range o {
		old, ok := res[k]
		if !ok {
			fault.Raise("subtract", "bit %s not present in minuend %s", k, d)
		}
		if old != v {
			fault.Raise("subtract", "bit %s: polarity %v subtracted from %v", k, v, old)
		}
		delete(res, k)
	}
	return res
}

// Split partitions two diffs into the bits only a has, the bits only b has
// and the bits both have. Common bits must agree.
func Split(a, b Diff) (aOnly, bOnly, common Diff) {
	aOnly, bOnly, common = a.Clone(), b.Clone(), New()
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			continue
		}
		if av != bv {
			fault.Raise("split", "bit %s: conflicting polarities", k)
		}
		common[k] = av
		delete(aOnly, k)
		delete(bOnly, k)
	}
	return aOnly, bOnly, common
}

// SplitBitsBy removes the bits matching pred from d and returns them.
func (d Diff) SplitBitsBy(pred func(tiledb.TileBit) bool) Diff {
	res := New()
	for k, v := range d {
		if pred(k) {
			res[k] = v
			delete(d, k)
		}
	}
	return res
}

// SplitBits removes the bits present in set from d and returns them.
func (d Diff) SplitBits(set map[tiledb.TileBit]bool) Diff {
	return d.SplitBitsBy(func(b tiledb.TileBit) bool { return set[b] })
}

// DiscardBits removes the support of an already classified item from d.
// Each removed bit must have changed in a direction the item can produce;
// a bit the item can never set that way means two attributes are claiming
// the same bit.
func (d Diff) DiscardBits(it tiledb.Item) {
	for _, b := range it.SupportBits() {
		v, ok := d[b]
		if !ok {
			continue
		}
		if !it.Explains(b, v) {
			fault.Raise("discard_bits", "bit %s changed to %v, which %s cannot produce", b, v, it)
		}
		delete(d, b)
	}
}

// DiscardSupport removes bits without checking polarity. Only use it for a
// documented shared-net exception.
func (d Diff) DiscardSupport(bits []tiledb.TileBit) {
	for _, b := range bits {
		delete(d, b)
	}
}

// DiscardPolBits removes the bits of bits, ignoring their polarity.
func (d Diff) DiscardPolBits(bits []tiledb.PolBit) {
	for _, b := range bits {
		delete(d, b.Bit)
	}
}

// ApplyBitVecDiff records moving the field stored in bits from one value to
// another. Where d already holds the opposite change the two cancel.
func (d *Diff) ApplyBitVecDiff(bits []tiledb.PolBit, from, to tiledb.BitVec) {
	if len(from) != len(bits) || len(to) != len(bits) {
		fault.Raise("apply_bitvec_diff", "width mismatch: %d bits, from %d, to %d", len(bits), len(from), len(to))
	}
	if *d == nil {
		*d = New()
	}
	for i, pb := range bits {
		if from[i] == to[i] {
			continue
		}
		if old, ok := (*d)[pb.Bit]; ok {
			if old != (from[i] != pb.Inv) {
				fault.Raise("apply_bitvec_diff", "bit %s: diff holds %v, field moves from %v", pb.Bit, old, from[i])
			}
			delete(*d, pb.Bit)
			continue
		}
		(*d)[pb.Bit] = to[i] != pb.Inv
	}
}

// ApplyBitVecDiffInt is ApplyBitVecDiff with integer endpoints.
func (d *Diff) ApplyBitVecDiffInt(bits []tiledb.PolBit, from, to uint64) {
	d.ApplyBitVecDiff(bits, tiledb.FromUint(from, len(bits)), tiledb.FromUint(to, len(bits)))
}

// ApplyBitDiff records flipping one flag.
func (d *Diff) ApplyBitDiff(bit tiledb.PolBit, from, to bool) {
	d.ApplyBitVecDiff([]tiledb.PolBit{bit}, tiledb.BitVec{from}, tiledb.BitVec{to})
}

// ApplyEnumDiff records moving an enum item from one named value to another.
func (d *Diff) ApplyEnumDiff(it tiledb.Item, from, to string) {
	fv, ok := it.Values[from]
	if !ok {
		fault.Raise("apply_enum_diff", "no value %s in %s", from, it)
	}
	tv, ok := it.Values[to]
	if !ok {
		fault.Raise("apply_enum_diff", "no value %s in %s", to, it)
	}
	if *d == nil {
		*d = New()
	}
	for i, b := range it.Support {
		if fv[i] == tv[i] {
			continue
		}
		if old, ok := (*d)[b]; ok {
			if old != fv[i] {
				fault.Raise("apply_enum_diff", "bit %s: diff holds %v, enum moves from %v", b, old, fv[i])
			}
			delete(*d, b)
			continue
		}
		(*d)[b] = tv[i]
	}
}

// AssertEmpty raises a fault if any bit is left unexplained.
func (d Diff) AssertEmpty() {
	if len(d) != 0 {
		fault.Raise("assert_empty", "unexplained bits %s", d)
	}
}

// Require raises a fault naming what if cond is false. It is the bitdiff
// counterpart of an inline assertion in a classification step.
func Require(cond bool, what string, args ...any) {
	if !cond {
		fault.Raise("check", "%s", fmt.Sprintf(what, args...))
	}
}
