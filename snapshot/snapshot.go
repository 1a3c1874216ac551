package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ElementKind classifies a structural element.
type ElementKind string

const (
	KindTable      ElementKind = "table"
	KindColumn     ElementKind = "column"
	KindConstraint ElementKind = "constraint"
	KindIndex      ElementKind = "index"
	KindRow        ElementKind = "row"
)

// Element is one structural unit of a snapshot. Key is the fully-qualified
// name (e.g. "app.users.id") and must be unique within a snapshot. Value
// holds the element's definition; two elements are structurally equal only
// when kind, key, and value all match exactly.
type Element struct {
	Key   string      `json:"key"`
	Kind  ElementKind `json:"kind"`
	Value []byte      `json:"value,omitempty"`
}

// Equal reports exact structural equality.
func (e Element) Equal(other Element) bool {
	return e.Key == other.Key && e.Kind == other.Kind && bytes.Equal(e.Value, other.Value)
}

// TableElement builds a table element.
func TableElement(name string) Element {
	return Element{Key: name, Kind: KindTable}
}

// ColumnElement builds a column element with its JSON definition.
func ColumnElement(table, column string, definition []byte) Element {
	return Element{Key: table + "." + column, Kind: KindColumn, Value: definition}
}

// ConstraintElement builds a constraint element.
func ConstraintElement(table, name string, definition []byte) Element {
	return Element{Key: table + "." + name, Kind: KindConstraint, Value: definition}
}

// RowElement builds a row-changeset element keyed by table and primary key.
func RowElement(table, key string, data []byte) Element {
	return Element{Key: table + "/" + key, Kind: KindRow, Value: data}
}

// Snapshot is a structural description of a schema or data state.
type Snapshot struct {
	Elements []Element `json:"elements"`
}

// Lookup returns the element with the given key, if present.
func (s Snapshot) Lookup(key string) (Element, bool) {
	for _, e := range s.Elements {
		if e.Key == key {
			return e, true
		}
	}
	return Element{}, false
}

// sorted returns a copy of the elements in canonical (key) order.
func (s Snapshot) sorted() []Element {
	elems := make([]Element, len(s.Elements))
	copy(elems, s.Elements)
	sort.Slice(elems, func(i, j int) bool { return elems[i].Key < elems[j].Key })
	return elems
}

// Encode serializes the snapshot in canonical order. The result is
// deterministic for equal logical content and is what gets stored as a
// commit payload.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(Snapshot{Elements: s.sorted()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot payload produced by Encode.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// Index returns the elements as a map keyed by element key. Duplicate keys
// are invalid input; the last one wins.
func (s Snapshot) Index() map[string]Element {
	m := make(map[string]Element, len(s.Elements))
	for _, e := range s.Elements {
		m[e.Key] = e
	}
	return m
}
