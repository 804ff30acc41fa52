package bitdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
	"github.com/OpenTraceLab/bitfuzz/pkg/tiledb"
)

func TestXlatBitSingleFlag(t *testing.T) {
	// ISR_USED=0 against baseline touches only frame 2 bit 13
	pb := XlatBit(Of(b1.Pos()))
	assert.Equal(t, b1, pb.Bit)
	assert.False(t, pb.Inv)

	assert.True(t, XlatBit(Of(b1.Neg())).Inv)

	f := fault.Catch(func() { XlatBit(Of(b1.Pos(), b2.Pos())) })
	require.NotNil(t, f)
	assert.Equal(t, "xlat_bit", f.Op)
}

func TestXlatBitVec(t *testing.T) {
	bits := XlatBitVec([]Diff{Of(b2.Pos()), Of(b1.Neg())})
	assert.Equal(t, []tiledb.PolBit{b2.Pos(), b1.Neg()}, bits)

	f := fault.Catch(func() { XlatBitVec([]Diff{Of(b2.Pos()), New()}) })
	require.NotNil(t, f)
	assert.Equal(t, []string{"bitvec index", "1"}, f.Context)
}

func TestXlatBitBiDefault(t *testing.T) {
	pb, def := XlatBitBiDefault(New(), Of(b1.Pos()))
	assert.Equal(t, b1.Pos(), pb)
	assert.False(t, def)

	pb, def = XlatBitBiDefault(Of(b1.Neg()), New())
	assert.Equal(t, b1.Pos(), pb)
	assert.True(t, def)

	assert.NotNil(t, fault.Catch(func() { XlatBitBiDefault(Of(b1.Neg()), Of(b2.Pos())) }))
}

func TestXlatBitWideBiDefault(t *testing.T) {
	bits, def := XlatBitWideBiDefault(Of(b1.Neg()), Of(b2.Pos()))
	assert.Equal(t, []tiledb.PolBit{b1.Pos(), b2.Pos()}, bits)
	assert.Equal(t, tiledb.BitVec{true, false}, def)
}

func omuxDiffs() []Value {
	x, y, z := tiledb.NewBit(0, 1, 10), tiledb.NewBit(0, 1, 11), tiledb.NewBit(0, 2, 3)
	return []Value{
		{"O1", Of(x.Pos())},
		{"O2", Of(y.Pos())},
		{"OFF1", Of(x.Pos(), z.Pos())},
		{"OFF2", Of(y.Pos(), z.Pos())},
		{"OFFDDR", Of(x.Pos(), y.Pos(), z.Pos())},
		{"NONE", New()},
	}
}

func TestXlatEnumWithImplicitNone(t *testing.T) {
	it := XlatEnum(omuxDiffs())
	require.Equal(t, tiledb.KindEnum, it.Kind)
	assert.Len(t, it.Support, 3)
	assert.Len(t, it.Values, 6)
	assert.True(t, it.Values["NONE"].IsZero())
	for name, v := range it.Values {
		if name != "NONE" {
			assert.False(t, v.IsZero(), name)
		}
	}
	// value order: the bit O1 sets comes first, then the one O2 sets
	assert.Equal(t, tiledb.NewBit(0, 1, 10), it.Support[0])
	assert.Equal(t, tiledb.NewBit(0, 1, 11), it.Support[1])
	assert.Equal(t, tiledb.BitVec{true, true, true}, it.Values["OFFDDR"])
}

func TestXlatEnumIsDeterministic(t *testing.T) {
	a := XlatEnum(omuxDiffs())
	for i := 0; i < 20; i++ {
		assert.True(t, a.Equal(XlatEnum(omuxDiffs())))
	}
}

func TestXlatEnumInvertedBit(t *testing.T) {
	it := XlatEnum([]Value{{"NONE", New()}, {"A", Of(b1.Neg())}})
	assert.Equal(t, tiledb.BitVec{true}, it.Values["NONE"])
	assert.Equal(t, tiledb.BitVec{false}, it.Values["A"])
}

func TestXlatEnumConflicts(t *testing.T) {
	assert.NotNil(t, fault.Catch(func() { XlatEnum([]Value{{"A", Of(b1.Pos())}, {"B", Of(b1.Neg())}}) }))
	assert.NotNil(t, fault.Catch(func() { XlatEnum([]Value{{"A", Of(b1.Pos())}, {"A", New()}}) }))
}

func TestXlatEnumOrderModes(t *testing.T) {
	diffs := []Value{{"A", Of(b3.Pos())}, {"B", Of(b1.Pos())}, {"NONE", New()}}

	bo := XlatEnumOcd(diffs, Ocd{Mode: BitOrder})
	assert.Equal(t, []tiledb.TileBit{b1, b3}, bo.Support)

	vo := XlatEnumOcd(diffs, Ocd{Mode: ValueOrder})
	assert.Equal(t, []tiledb.TileBit{b3, b1}, vo.Support)

	fo := XlatEnumOcd(diffs, Fixed(b1, b3))
	assert.Equal(t, []tiledb.TileBit{b1, b3}, fo.Support)
	assert.NotNil(t, fault.Catch(func() { XlatEnumOcd(diffs, Fixed(b1)) }))
}

func TestXlatEnumMux(t *testing.T) {
	// b4 enables the mux; b1, b2, b3 select one of three inputs
	diffs := []Value{
		{"NONE", New()},
		{"I0", Of(b4.Pos(), b1.Pos())},
		{"I1", Of(b4.Pos(), b2.Pos())},
		{"I2", Of(b4.Pos(), b3.Pos())},
	}
	it := XlatEnumOcd(diffs, Ocd{Mode: Mux})
	assert.Equal(t, []tiledb.TileBit{b4, b1, b2, b3}, it.Support)
	assert.Equal(t, tiledb.BitVec{true, false, true, false}, it.Values["I1"])
}

func TestXlatBitVecSparse(t *testing.T) {
	// three-bit field at baseline 000, bit 1 inverted
	diffs := []VecDiff{
		{tiledb.BitVec{false, false, false}, New()},
		{tiledb.BitVec{true, false, false}, Of(b1.Pos())},
		{tiledb.BitVec{true, true, false}, Of(b1.Pos(), b2.Neg())},
		{tiledb.BitVec{false, true, true}, Of(b2.Neg(), b3.Pos())},
	}
	bits := XlatBitVecSparse(diffs)
	assert.Equal(t, []tiledb.PolBit{b1.Pos(), b2.Neg(), b3.Pos()}, bits)
}

func TestXlatBitVecSparseNonZeroBase(t *testing.T) {
	// the baseline holds value 1; flipping bit 0 down clears b1
	diffs := []Keyed[uint32]{
		{1, New()},
		{0, Of(b1.Neg())},
		{3, Of(b2.Pos())},
	}
	bits := XlatBitVecSparseU32(diffs)
	assert.Equal(t, []tiledb.PolBit{b1.Pos(), b2.Pos()}, bits)
}

func TestXlatBitVecSparseNeedsPairs(t *testing.T) {
	// no sample isolates a single bit against the baseline; 110 and 111
	// together isolate bit 2
	diffs := []VecDiff{
		{tiledb.BitVec{false, false, false}, New()},
		{tiledb.BitVec{true, true, false}, Of(b1.Pos(), b2.Pos())},
		{tiledb.BitVec{true, true, true}, Of(b1.Pos(), b2.Pos(), b3.Pos())},
		{tiledb.BitVec{false, true, true}, Of(b2.Pos(), b3.Pos())},
	}
	bits := XlatBitVecSparse(diffs)
	assert.Equal(t, []tiledb.PolBit{b1.Pos(), b2.Pos(), b3.Pos()}, bits)
}

func TestXlatBitVecSparseNoProgress(t *testing.T) {
	diffs := []VecDiff{
		{tiledb.BitVec{false, false}, New()},
		{tiledb.BitVec{true, true}, Of(b1.Pos(), b2.Pos())},
	}
	f := fault.Catch(func() { XlatBitVecSparse(diffs) })
	require.NotNil(t, f)
	assert.Contains(t, f.Msg, "no progress")
}

func TestExtractCommonDiff(t *testing.T) {
	diffs := []Value{
		{"A", Of(b1.Pos(), b2.Pos())},
		{"B", Of(b1.Pos(), b3.Pos())},
	}
	common := ExtractCommonDiff(diffs)
	assert.True(t, common.Equal(Of(b1.Pos())))
	assert.True(t, diffs[0].Diff.Equal(Of(b2.Pos())))
	assert.True(t, diffs[1].Diff.Equal(Of(b3.Pos())))
}

func TestExtractBitVecVal(t *testing.T) {
	field := []tiledb.PolBit{b1.Pos(), b2.Neg(), b3.Pos()}
	v := ExtractBitVecVal(field, tiledb.Ones(3), Of(b1.Neg(), b2.Pos()))
	assert.Equal(t, tiledb.BitVec{false, false, true}, v)

	assert.NotNil(t, fault.Catch(func() { ExtractBitVecVal(field, tiledb.Ones(3), Of(b1.Pos())) }))
	assert.NotNil(t, fault.Catch(func() { ExtractBitVecVal(field, tiledb.Ones(3), Of(b4.Pos())) }))

	d := Of(b3.Neg(), b4.Pos())
	v = ExtractBitVecValPart(field, tiledb.Ones(3), d)
	assert.Equal(t, tiledb.BitVec{true, true, false}, v)
	assert.True(t, d.Equal(Of(b4.Pos())))
}

func TestEnumSwapBits(t *testing.T) {
	it := XlatEnumOcd([]Value{{"A", Of(b1.Pos())}, {"B", Of(b2.Pos())}, {"NONE", New()}}, Ocd{Mode: BitOrder})
	EnumSwapBits(&it, 0, 1)
	assert.Equal(t, []tiledb.TileBit{b2, b1}, it.Support)
	assert.Equal(t, tiledb.BitVec{false, true}, it.Values["A"])
}
