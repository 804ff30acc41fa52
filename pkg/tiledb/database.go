package tiledb

import (
	"sort"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
)

// Key identifies one classified attribute.
type Key struct {
	Tile string `json:"tile" bson:"tile"`
	Bel  string `json:"bel" bson:"bel"`
	Attr string `json:"attr" bson:"attr"`
}

func (k Key) String() string { return k.Tile + "/" + k.Bel + "/" + k.Attr }

func (k Key) less(o Key) bool {
	if k.Tile != o.Tile {
		return k.Tile < o.Tile
	}
	if k.Bel != o.Bel {
		return k.Bel < o.Bel
	}
	return k.Attr < o.Attr
}

// Database accumulates classified items for one device family. It is not
// safe for concurrent writers; parallel runs use one Database per tile kind
// and Merge them.
type Database struct {
	items map[Key]Item
	notes map[Key]string

	// Misc holds values shared across tiles, keyed by family, class and value.
	Misc *MiscTable
}

// New returns an empty database.
func New() *Database {
	return &Database{
		items: make(map[Key]Item),
		notes: make(map[Key]string),
		Misc:  NewMiscTable(),
	}
}

// Insert stores it under k. Inserting an equal item again is a no-op;
// inserting a different one raises a fault.
func (db *Database) Insert(k Key, it Item) {
	if old, ok := db.items[k]; ok {
		if !old.Equal(it) {
			fault.Raise("insert", "%s: conflicting items %v and %v", k, old, it)
		}
		return
	}
	db.items[k] = it.Clone()
}

// Override replaces whatever is stored under k and records why.
func (db *Database) Override(k Key, it Item, reason string) {
	db.items[k] = it.Clone()
	db.notes[k] = reason
}

// Note returns the provenance recorded by Override, if any.
func (db *Database) Note(k Key) string { return db.notes[k] }

// Get returns the item stored under k.
func (db *Database) Get(k Key) (Item, bool) {
	it, ok := db.items[k]
	return it, ok
}

// MustGet returns the item stored under k or raises a fault.
func (db *Database) MustGet(k Key) Item {
	it, ok := db.items[k]
	if !ok {
		fault.Raise("lookup", "%s: no such item", k)
	}
	return it
}

// Len returns the number of items.
func (db *Database) Len() int { return len(db.items) }

// Keys returns all keys in canonical order.
func (db *Database) Keys() []Key {
	keys := make([]Key, 0, len(db.items))
	for k := range db.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Merge folds o into db using Insert semantics, so shards that disagree on a
// key raise a fault.
func (db *Database) Merge(o *Database) {
	for _, k := range o.Keys() {
		if note, ok := o.notes[k]; ok {
			db.Override(k, o.items[k], note)
			continue
		}
		db.Insert(k, o.items[k])
	}
	db.Misc.Merge(o.Misc)
}
