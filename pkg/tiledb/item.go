package tiledb

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects the TileItem variant.
type Kind int

const (
	KindBool Kind = iota
	KindEnum
	KindBitVec
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindBitVec:
		return "bitvec"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "bool":
		return KindBool, nil
	case "enum":
		return KindEnum, nil
	case "bitvec":
		return KindBitVec, nil
	}
	return 0, fmt.Errorf("tiledb: unknown item kind %q", s)
}

// Item is the classified encoding of one attribute.
//
// Bool items hold exactly one entry in Bits. BitVec items hold their bits in
// field order. Enum items hold their support in Support and one vector per
// value name in Values, each vector indexed like Support.
type Item struct {
	Kind    Kind
	Bits    []PolBit
	Support []TileBit
	Values  map[string]BitVec
}

// BoolItem returns a single-bit flag.
func BoolItem(bit PolBit) Item {
	return Item{Kind: KindBool, Bits: []PolBit{bit}}
}

// BitVecItem returns a fixed-order bit vector.
func BitVecItem(bits []PolBit) Item {
	return Item{Kind: KindBitVec, Bits: append([]PolBit(nil), bits...)}
}

// EnumItem returns an enumeration over support.
func EnumItem(support []TileBit, values map[string]BitVec) Item {
	vals := make(map[string]BitVec, len(values))
	for k, v := range values {
		if len(v) != len(support) {
			panic(fmt.Sprintf("tiledb: enum value %s has width %d, support has %d", k, len(v), len(support)))
		}
		vals[k] = v.Clone()
	}
	return Item{Kind: KindEnum, Support: append([]TileBit(nil), support...), Values: vals}
}

// Bit returns the bit of a bool item.
func (it Item) Bit() PolBit {
	if it.Kind != KindBool {
		panic(fmt.Sprintf("tiledb: Bit on %s item", it.Kind))
	}
	return it.Bits[0]
}

// SupportBits returns every physical bit the item owns, sorted.
func (it Item) SupportBits() []TileBit {
	var res []TileBit
	if it.Kind == KindEnum {
		res = append(res, it.Support...)
	} else {
		for _, pb := range it.Bits {
			res = append(res, pb.Bit)
		}
	}
	SortBits(res)
	return res
}

// ValueNames returns the enum value names in sorted order.
func (it Item) ValueNames() []string {
	names := make([]string, 0, len(it.Values))
	for k := range it.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Explains reports whether a sample taken with the item at its default can
// show bit changed to val. Bits outside the support are never explained.
// A bool item defaults to off, so its bit only moves to the set polarity.
// A bitvec field has no default of its own and moves its bits either way.
// An enum only moves a bit to a state some named value encodes.
func (it Item) Explains(bit TileBit, val bool) bool {
	switch it.Kind {
	case KindBool:
		pb := it.Bits[0]
		return pb.Bit == bit && val != pb.Inv
	case KindBitVec:
		for _, pb := range it.Bits {
			if pb.Bit == bit {
				return true
			}
		}
		return false
	}
	idx := -1
	for i, b := range it.Support {
		if b == bit {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	for _, v := range it.Values {
		if v[idx] == val {
			return true
		}
	}
	return false
}

// Equal reports structural equality.
func (it Item) Equal(o Item) bool {
	if it.Kind != o.Kind || len(it.Bits) != len(o.Bits) || len(it.Support) != len(o.Support) || len(it.Values) != len(o.Values) {
		return false
	}
	for i := range it.Bits {
		if it.Bits[i] != o.Bits[i] {
			return false
		}
	}
	for i := range it.Support {
		if it.Support[i] != o.Support[i] {
			return false
		}
	}
	for k, v := range it.Values {
		ov, ok := o.Values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (it Item) Clone() Item {
	c := Item{Kind: it.Kind, Bits: append([]PolBit(nil), it.Bits...), Support: append([]TileBit(nil), it.Support...)}
	if it.Values != nil {
		c.Values = make(map[string]BitVec, len(it.Values))
		for k, v := range it.Values {
			c.Values[k] = v.Clone()
		}
	}
	return c
}

func (it Item) String() string {
	var sb strings.Builder
	sb.WriteString(it.Kind.String())
	switch it.Kind {
	case KindEnum:
		sb.WriteString(" [")
		for i, b := range it.Support {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(b.String())
		}
		sb.WriteString("]")
		for _, name := range it.ValueNames() {
			fmt.Fprintf(&sb, " %s=%s", name, it.Values[name])
		}
	default:
		sb.WriteString(" [")
		for i, b := range it.Bits {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(b.String())
		}
		sb.WriteString("]")
	}
	return sb.String()
}
