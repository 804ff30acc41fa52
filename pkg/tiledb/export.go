package tiledb

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/mgo.v2/bson"
)

// FormatVersion is written into every exported document.
const FormatVersion = "1.0"

type itemWire struct {
	Kind    string            `json:"kind" bson:"kind"`
	Bits    []PolBit          `json:"bits,omitempty" bson:"bits,omitempty"`
	Support []TileBit         `json:"support,omitempty" bson:"support,omitempty"`
	Values  map[string]string `json:"values,omitempty" bson:"values,omitempty"`
}

type itemEntry struct {
	Key  `bson:",inline"`
	Note string   `json:"note,omitempty" bson:"note,omitempty"`
	Item itemWire `json:"item" bson:"item"`
}

type miscEntry struct {
	MiscKey `bson:",inline"`
	Bits    string `json:"bits" bson:"bits"`
}

type document struct {
	Version     string      `json:"version" bson:"version"`
	GeneratedBy string      `json:"generated_by" bson:"generated_by"`
	Items       []itemEntry `json:"items" bson:"items"`
	Misc        []miscEntry `json:"misc" bson:"misc"`
}

func toWire(it Item) itemWire {
	w := itemWire{Kind: it.Kind.String(), Bits: it.Bits, Support: it.Support}
	if it.Kind == KindEnum {
		w.Values = make(map[string]string, len(it.Values))
		for k, v := range it.Values {
			w.Values[k] = v.String()
		}
	}
	return w
}

func fromWire(w itemWire) (Item, error) {
	kind, err := parseKind(w.Kind)
	if err != nil {
		return Item{}, err
	}
	switch kind {
	case KindBool:
		if len(w.Bits) != 1 {
			return Item{}, fmt.Errorf("tiledb: bool item with %d bits", len(w.Bits))
		}
		return BoolItem(w.Bits[0]), nil
	case KindBitVec:
		return BitVecItem(w.Bits), nil
	}
	vals := make(map[string]BitVec, len(w.Values))
	for k, s := range w.Values {
		v, err := ParseBitVec(s)
		if err != nil {
			return Item{}, err
		}
		if len(v) != len(w.Support) {
			return Item{}, fmt.Errorf("tiledb: enum value %s has width %d, support has %d", k, len(v), len(w.Support))
		}
		vals[k] = v
	}
	return EnumItem(w.Support, vals), nil
}

func (db *Database) document(generatedBy string) document {
	doc := document{Version: FormatVersion, GeneratedBy: generatedBy}
	for _, k := range db.Keys() {
		doc.Items = append(doc.Items, itemEntry{Key: k, Note: db.notes[k], Item: toWire(db.items[k])})
	}
	for _, k := range db.Misc.Keys() {
		doc.Misc = append(doc.Misc, miscEntry{MiscKey: k, Bits: db.Misc.entries[k].String()})
	}
	return doc
}

// ExportJSON writes the database as an indented JSON document. Keys are
// sorted so that identical databases produce identical bytes.
func (db *Database) ExportJSON(w io.Writer) error {
	data, err := json.MarshalIndent(db.document("bitfuzz"), "", "  ")
	if err != nil {
		return fmt.Errorf("tiledb: failed to marshal database: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("tiledb: failed to write database: %w", err)
	}
	return nil
}

// ExportBSON returns the database as a single BSON document.
func (db *Database) ExportBSON() ([]byte, error) {
	data, err := bson.Marshal(db.document("bitfuzz"))
	if err != nil {
		return nil, fmt.Errorf("tiledb: failed to marshal database as bson: %w", err)
	}
	return data, nil
}

// ImportJSON reads a document written by ExportJSON.
func ImportJSON(r io.Reader) (*Database, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("tiledb: failed to decode database: %w", err)
	}
	return fromDocument(doc)
}

// ImportBSON reads a document written by ExportBSON.
func ImportBSON(data []byte) (*Database, error) {
	var doc document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tiledb: failed to decode bson database: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc document) (*Database, error) {
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("tiledb: unsupported format version %q", doc.Version)
	}
	db := New()
	for _, e := range doc.Items {
		it, err := fromWire(e.Item)
		if err != nil {
			return nil, fmt.Errorf("tiledb: %s: %w", e.Key, err)
		}
		if e.Note != "" {
			db.Override(e.Key, it, e.Note)
		} else {
			db.items[e.Key] = it
		}
	}
	for _, e := range doc.Misc {
		v, err := ParseBitVec(e.Bits)
		if err != nil {
			return nil, fmt.Errorf("tiledb: %s: %w", e.MiscKey, err)
		}
		db.Misc.entries[e.MiscKey] = v
	}
	return db, nil
}
