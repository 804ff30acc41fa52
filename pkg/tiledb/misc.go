package tiledb

import (
	"sort"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
)

// MiscKey addresses one entry of the misc-data side table.
type MiscKey struct {
	Family string `json:"family" bson:"family"`
	Class  string `json:"class" bson:"class"`
	Value  string `json:"value" bson:"value"`
}

func (k MiscKey) String() string { return k.Family + ":" + k.Class + ":" + k.Value }

// MiscTable stores bit vectors that are shared by many tiles, such as the
// drive-strength encoding used by every standard at a given current.
type MiscTable struct {
	entries map[MiscKey]BitVec
}

// NewMiscTable returns an empty table.
func NewMiscTable() *MiscTable {
	return &MiscTable{entries: make(map[MiscKey]BitVec)}
}

// Insert registers v. Every tile that reports the same key must report the
// same vector.
func (t *MiscTable) Insert(k MiscKey, v BitVec) {
	if old, ok := t.entries[k]; ok {
		if !old.Equal(v) {
			fault.Raise("misc_insert", "%s: conflicting values %s and %s", k, old, v)
		}
		return
	}
	t.entries[k] = v.Clone()
}

// Lookup returns a copy of the vector registered under k.
func (t *MiscTable) Lookup(k MiscKey) (BitVec, bool) {
	v, ok := t.entries[k]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Len returns the number of entries.
func (t *MiscTable) Len() int { return len(t.entries) }

// Keys returns all keys sorted by family, class, value.
func (t *MiscTable) Keys() []MiscKey {
	keys := make([]MiscKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.Value < b.Value
	})
	return keys
}

// Merge inserts every entry of o.
func (t *MiscTable) Merge(o *MiscTable) {
	for _, k := range o.Keys() {
		t.Insert(k, o.entries[k])
	}
}
