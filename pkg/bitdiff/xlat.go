package bitdiff

import (
	"cmp"
	"sort"
	"strconv"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

// XlatBit turns a single-bit diff into a flag.
func XlatBit(d Diff) tiledb.PolBit {
	if len(d) != 1 {
		fault.Raise("xlat_bit", "expected exactly one bit, got %s", d)
	}
	for b, v := range d {
		return tiledb.PolBit{Bit: b, Inv: !v}
	}
	panic("unreachable")
}

// XlatBitWide turns every bit of d into a flag bit, sorted.
func XlatBitWide(d Diff) []tiledb.PolBit {
	res := make([]tiledb.PolBit, 0, len(d))
	for _, b := range d.Bits() {
		res = append(res, tiledb.PolBit{Bit: b, Inv: !d[b]})
	}
	return res
}

// XlatBitVec translates one single-bit diff per field bit, in field order.
func XlatBitVec(diffs []Diff) []tiledb.PolBit {
	res := make([]tiledb.PolBit, len(diffs))
	for i, d := range diffs {
		fault.Within(func() { res[i] = XlatBit(d) }, "bitvec index", strconv.Itoa(i))
	}
	return res
}

// XlatBitBiDefault takes the diffs of setting a flag to 0 and to 1. Exactly
// one of them must be empty; the other gives the bit, and the returned bool
// is the value the flag has by default.
func XlatBitBiDefault(d0, d1 Diff) (tiledb.PolBit, bool) {
	if d0.IsEmpty() {
		return XlatBit(d1), false
	}
	d1.AssertEmpty()
	return XlatBit(d0.Not()), true
}

// XlatBitWideBiDefault is XlatBitBiDefault for flags spread over several
// bits. The returned vector tells which bits are set by default.
func XlatBitWideBiDefault(d0, d1 Diff) ([]tiledb.PolBit, tiledb.BitVec) {
	bits := XlatBitWide(d1.Combine(d0.Not()))
	if len(bits) != len(d0)+len(d1) {
		fault.Raise("xlat_bit_wide_bi", "diffs %s and %s overlap", d0, d1)
	}
	def := make(tiledb.BitVec, len(bits))
	for i, b := range bits {
		_, def[i] = d0[b.Bit]
	}
	return bits, def
}

// OcdMode selects how XlatEnumRaw orders the support of an enum.
type OcdMode int

const (
	// BitOrder keeps canonical bit order.
	BitOrder OcdMode = iota
	// ValueOrder sorts bits by the values that set them, first value first.
	ValueOrder
	// Mux puts enable bits first, then one-hot groups, largest first.
	Mux
	// FixedOrder uses the order given by the caller.
	FixedOrder
)

// Ocd is an ordering request for XlatEnumRaw.
type Ocd struct {
	Mode  OcdMode
	Fixed []tiledb.TileBit
}

// Fixed requests the given bit order.
func Fixed(bits ...tiledb.TileBit) Ocd { return Ocd{Mode: FixedOrder, Fixed: bits} }

// Keyed pairs a diff with the enum value it was sampled for.
type Keyed[K cmp.Ordered] struct {
	Key  K
	Diff Diff
}

// Value is a diff sampled for a named enum value.
type Value = Keyed[string]

// EnumData is the raw form of an enum: support and one vector per key.
type EnumData[K cmp.Ordered] struct {
	Bits   []tiledb.TileBit
	Values map[K]tiledb.BitVec
}

// XlatEnumRaw builds an enum from one diff per value. Every bit keeps one
// polarity across all diffs. A value's vector holds the state each support
// bit has in that value's sample, so a value whose diff lacks an inverted
// bit reads 1 there. The same key may appear more than once only with the
// same encoding.
func XlatEnumRaw[K cmp.Ordered](diffs []Keyed[K], ocd Ocd) EnumData[K] {
	pol := make(map[tiledb.TileBit]bool)
	for _, kd := range diffs {
		for b, v := range kd.Diff {
			if old, ok := pol[b]; ok && old != v {
				fault.Raise("xlat_enum", "bit %s has both polarities (value %v)", b, kd.Key)
			}
			pol[b] = v
		}
	}
	bits := make([]tiledb.TileBit, 0, len(pol))
	for b := range pol {
		bits = append(bits, b)
	}
	tiledb.SortBits(bits)

	state := func(d Diff, b tiledb.TileBit) bool {
		_, ok := d[b]
		return pol[b] != !ok
	}

	switch ocd.Mode {
	case FixedOrder:
		if len(ocd.Fixed) != len(pol) {
			fault.Raise("xlat_enum", "fixed order names %d bits, diffs touch %d", len(ocd.Fixed), len(pol))
		}
		for _, b := range ocd.Fixed {
			if _, ok := pol[b]; !ok {
				fault.Raise("xlat_enum", "fixed order bit %s never changes", b)
			}
		}
		bits = append([]tiledb.TileBit(nil), ocd.Fixed...)
	case ValueOrder, Mux:
		sort.SliceStable(bits, func(i, j int) bool {
			a, b := bits[i], bits[j]
			for _, kd := range diffs {
				va, vb := state(kd.Diff, a), state(kd.Diff, b)
				if va != vb {
					return va
				}
			}
			return false
		})
	}
	if ocd.Mode == Mux {
		bits = muxOrder(bits, diffs, state)
	}

	res := EnumData[K]{Bits: bits, Values: make(map[K]tiledb.BitVec, len(diffs))}
	for _, kd := range diffs {
		v := make(tiledb.BitVec, len(bits))
		for i, b := range bits {
			v[i] = state(kd.Diff, b)
		}
		if old, ok := res.Values[kd.Key]; ok && !old.Equal(v) {
			fault.Raise("xlat_enum", "value %v encoded as both %s and %s", kd.Key, old, v)
		}
		res.Values[kd.Key] = v
	}
	return res
}

func muxOrder[K cmp.Ordered](bits []tiledb.TileBit, diffs []Keyed[K], state func(Diff, tiledb.TileBit) bool) []tiledb.TileBit {
	vals := make([][]bool, len(diffs))
	for i, kd := range diffs {
		vals[i] = make([]bool, len(bits))
		for j, b := range bits {
			vals[i][j] = state(kd.Diff, b)
		}
	}
	taken := make([]bool, len(bits))
	var enables []int
	var groups [][]int
	for s := range bits {
		if taken[s] {
			continue
		}
		group := []int{s}
		for n := s + 1; n < len(bits); n++ {
			if taken[n] {
				continue
			}
			disjoint := true
			for _, c := range group {
				for _, v := range vals {
					if v[n] && v[c] {
						disjoint = false
					}
				}
			}
			if disjoint {
				group = append(group, n)
			}
		}
		full := true
		for _, v := range vals {
			cnt, set := 0, false
			for _, g := range group {
				if v[g] {
					cnt++
				}
			}
			for _, x := range v {
				set = set || x
			}
			if cnt > 1 {
				fault.Raise("xlat_enum", "one-hot group %v has %d bits set", group, cnt)
			}
			if cnt == 0 && set {
				full = false
				break
			}
		}
		if !full {
			continue
		}
		for _, g := range group {
			taken[g] = true
		}
		if len(group) == 1 {
			enables = append(enables, group[0])
		} else {
			groups = append(groups, group)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i]) > len(groups[j]) })
	res := make([]tiledb.TileBit, 0, len(bits))
	for _, e := range enables {
		res = append(res, bits[e])
	}
	for _, g := range groups {
		for _, i := range g {
			res = append(res, bits[i])
		}
	}
	for i, b := range bits {
		if !taken[i] {
			res = append(res, b)
		}
	}
	return res
}

// XlatEnum builds a named enum item in value order.
func XlatEnum(diffs []Value) tiledb.Item {
	return XlatEnumOcd(diffs, Ocd{Mode: ValueOrder})
}

// XlatEnumOcd builds a named enum item with the given bit ordering.
func XlatEnumOcd(diffs []Value, ocd Ocd) tiledb.Item {
	ed := XlatEnumRaw(diffs, ocd)
	return tiledb.EnumItem(ed.Bits, ed.Values)
}

// VecDiff pairs a diff with the field value it was sampled for.
type VecDiff struct {
	Val  tiledb.BitVec
	Diff Diff
}

// XlatBitVecSparse recovers a bit vector field from samples of arbitrary
// values rather than one sample per bit. The sample with an empty diff is
// the baseline value. Each round resolves the bits that one remaining
// sample alone isolates, falling back to pairs of samples that differ in a
// single unresolved bit.
func XlatBitVecSparse(diffs []VecDiff) []tiledb.PolBit {
	if len(diffs) == 0 {
		fault.Raise("xlat_bitvec_sparse", "no samples")
	}
	width := len(diffs[0].Val)
	known := make([]*tiledb.PolBit, width)
	xor := tiledb.Zeros(width)
	for _, vd := range diffs {
		if len(vd.Val) != width {
			fault.Raise("xlat_bitvec_sparse", "value %s is not %d wide", vd.Val, width)
		}
		if vd.Diff.IsEmpty() {
			xor = vd.Val.Clone()
		}
	}
	strip := func(vd VecDiff) (tiledb.BitVec, Diff) {
		val, d := vd.Val.Clone(), vd.Diff.Clone()
		for i, pb := range known {
			if pb == nil || val[i] == xor[i] {
				continue
			}
			d.ApplyBitDiff(*pb, val[i], xor[i])
			val[i] = xor[i]
		}
		return val, d
	}
	for {
		progress, done := false, true
		for _, vd := range diffs {
			val, d := strip(vd)
			idx, n := oneHot(val, xor)
			switch {
			case n == 0:
				d.AssertEmpty()
			case n == 1:
				pb := XlatBit(d)
				pb.Inv = pb.Inv != xor[idx]
				known[idx] = &pb
				progress = true
			default:
				done = false
			}
		}
		if done {
			res := make([]tiledb.PolBit, width)
			for i, pb := range known {
				if pb == nil {
					fault.Raise("xlat_bitvec_sparse", "bit %d never sampled", i)
				}
				res[i] = *pb
			}
			return res
		}
		if !progress {
		pairs:
			for _, a := range diffs {
				va, da := strip(a)
				for _, b := range diffs {
					vb, db := strip(b)
					idx, n := oneHot(va, vb)
					if n != 1 {
						continue
					}
					if known[idx] != nil {
						fault.Raise("xlat_bitvec_sparse", "bit %d resolved twice", idx)
					}
					var d Diff
					if vb[idx] {
						d = db.Combine(da.Not())
					} else {
						d = da.Combine(db.Not())
					}
					pb := XlatBit(d)
					known[idx] = &pb
					progress = true
					break pairs
				}
			}
		}
		if !progress {
			fault.Raise("xlat_bitvec_sparse", "no progress after resolving %d of %d bits", countKnown(known), width)
		}
	}
}

// XlatBitVecSparseU32 is XlatBitVecSparse for integer-valued samples. The
// field is as wide as the largest value needs.
func XlatBitVecSparseU32(diffs []Keyed[uint32]) []tiledb.PolBit {
	width := 0
	for _, kd := range diffs {
		w := 0
		for v := kd.Key; v != 0; v >>= 1 {
			w++
		}
		width = max(width, w)
	}
	vds := make([]VecDiff, len(diffs))
	for i, kd := range diffs {
		vds[i] = VecDiff{Val: tiledb.FromUint(uint64(kd.Key), width), Diff: kd.Diff}
	}
	return XlatBitVecSparse(vds)
}

func oneHot(a, b tiledb.BitVec) (idx, n int) {
	idx = -1
	for i := range a {
		if a[i] != b[i] {
			n++
			idx = i
		}
	}
	return idx, n
}

func countKnown(known []*tiledb.PolBit) int {
	n := 0
	for _, pb := range known {
		if pb != nil {
			n++
		}
	}
	return n
}

// ExtractCommonDiff removes the bits every diff shares and returns them.
func ExtractCommonDiff[K cmp.Ordered](diffs []Keyed[K]) Diff {
	if len(diffs) == 0 {
		return New()
	}
	common := diffs[0].Diff.Clone()
	for _, kd := range diffs {
		for b := range common {
			if _, ok := kd.Diff[b]; !ok {
				delete(common, b)
			}
		}
	}
	for _, kd := range diffs {
		for b, v := range common {
			if kd.Diff[b] != v {
				fault.Raise("extract_common_diff", "bit %s: value %v disagrees", b, kd.Key)
			}
			delete(kd.Diff, b)
		}
	}
	return common
}

// ExtractBitVecVal reads the field value a diff moves bits to, starting from
// base. Every bit of d must belong to the field and must actually change it.
func ExtractBitVecVal(bits []tiledb.PolBit, base tiledb.BitVec, d Diff) tiledb.BitVec {
	rest := d.Clone()
	res := ExtractBitVecValPart(bits, base, rest)
	rest.AssertEmpty()
	return res
}

// ExtractBitVecValPart is ExtractBitVecVal that removes the field bits from
// d and leaves the rest in place.
func ExtractBitVecValPart(bits []tiledb.PolBit, base tiledb.BitVec, d Diff) tiledb.BitVec {
	if len(bits) != len(base) {
		fault.Raise("extract_bitvec_val", "field has %d bits, base %d", len(bits), len(base))
	}
	res := base.Clone()
	for i, pb := range bits {
		v, ok := d[pb.Bit]
		if !ok {
			continue
		}
		nv := v != pb.Inv
		if res[i] == nv {
			fault.Raise("extract_bitvec_val", "bit %s already %v in base", pb.Bit, nv)
		}
		res[i] = nv
		delete(d, pb.Bit)
	}
	return res
}

// EnumSwapBits exchanges two support positions of an enum item.
func EnumSwapBits(it *tiledb.Item, a, b int) {
	it.Support[a], it.Support[b] = it.Support[b], it.Support[a]
	for _, v := range it.Values {
		v[a], v[b] = v[b], v[a]
	}
}
