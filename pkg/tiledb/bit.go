package tiledb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TileBit addresses one configuration bit relative to a tile instance.
// Tile is the sub-tile (cell) index within a multi-cell tile kind.
type TileBit struct {
	Tile  int `json:"tile" bson:"tile"`
	Frame int `json:"frame" bson:"frame"`
	Bit   int `json:"bit" bson:"bit"`
}

// NewBit returns the TileBit at (tile, frame, bit).
func NewBit(tile, frame, bit int) TileBit {
	return TileBit{Tile: tile, Frame: frame, Bit: bit}
}

// Compare orders bits by tile, then frame, then bit.
func (b TileBit) Compare(o TileBit) int {
	switch {
	case b.Tile != o.Tile:
		return cmpInt(b.Tile, o.Tile)
	case b.Frame != o.Frame:
		return cmpInt(b.Frame, o.Frame)
	default:
		return cmpInt(b.Bit, o.Bit)
	}
}

// Less reports whether b sorts before o.
func (b TileBit) Less(o TileBit) bool { return b.Compare(o) < 0 }

func (b TileBit) String() string {
	return fmt.Sprintf("%d.%d.%d", b.Tile, b.Frame, b.Bit)
}

// Pos returns b as a non-inverted PolBit.
func (b TileBit) Pos() PolBit { return PolBit{Bit: b} }

// Neg returns b as an inverted PolBit.
func (b TileBit) Neg() PolBit { return PolBit{Bit: b, Inv: true} }

// ParseBit parses the "tile.frame.bit" form produced by String.
func ParseBit(s string) (TileBit, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return TileBit{}, fmt.Errorf("tiledb: malformed bit %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TileBit{}, fmt.Errorf("tiledb: malformed bit %q: %w", s, err)
		}
		v[i] = n
	}
	return NewBit(v[0], v[1], v[2]), nil
}

// SortBits sorts bits in place in canonical order.
func SortBits(bits []TileBit) {
	sort.Slice(bits, func(i, j int) bool { return bits[i].Less(bits[j]) })
}

// PolBit is a bit together with its inversion sense. With Inv false a set bit
// means the attribute is true.
type PolBit struct {
	Bit TileBit `json:"bit" bson:"bit"`
	Inv bool    `json:"inv" bson:"inv"`
}

// Not flips the inversion sense.
func (p PolBit) Not() PolBit { return PolBit{Bit: p.Bit, Inv: !p.Inv} }

func (p PolBit) String() string {
	if p.Inv {
		return "~" + p.Bit.String()
	}
	return p.Bit.String()
}

// BitVec is an ordered vector of bit values; index 0 is the first bit of the
// owning item's support.
type BitVec []bool

// Zeros returns an all-false vector of width n.
func Zeros(n int) BitVec { return make(BitVec, n) }

// Ones returns an all-true vector of width n.
func Ones(n int) BitVec {
	v := make(BitVec, n)
	for i := range v {
		v[i] = true
	}
	return v
}

// FromUint returns the low width bits of val, least significant first.
func FromUint(val uint64, width int) BitVec {
	v := make(BitVec, width)
	for i := range v {
		v[i] = val&(1<<uint(i)) != 0
	}
	return v
}

// Uint packs v back into an integer, least significant first.
func (v BitVec) Uint() uint64 {
	var r uint64
	for i, b := range v {
		if b {
			r |= 1 << uint(i)
		}
	}
	return r
}

// Clone returns a copy of v.
func (v BitVec) Clone() BitVec { return append(BitVec(nil), v...) }

// Equal reports whether v and o hold the same values.
func (v BitVec) Equal(o BitVec) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether every bit of v is false.
func (v BitVec) IsZero() bool {
	for _, b := range v {
		if b {
			return false
		}
	}
	return true
}

// String renders v index-first, e.g. "0110".
func (v BitVec) String() string {
	var sb strings.Builder
	for _, b := range v {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseBitVec parses the form produced by BitVec.String.
func ParseBitVec(s string) (BitVec, error) {
	v := make(BitVec, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			v[i] = true
		default:
			return nil, fmt.Errorf("tiledb: malformed bit vector %q", s)
		}
	}
	return v, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
