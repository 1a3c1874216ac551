package snapshot

import (
	"bytes"
	"testing"
)

func TestElementEqual(t *testing.T) {
	a := ColumnElement("app.users", "id", []byte(`{"type":"INTEGER"}`))

	if !a.Equal(a) {
		t.Error("Expected element to equal itself")
	}
	if a.Equal(ColumnElement("app.users", "id", []byte(`{"type":"TEXT"}`))) {
		t.Error("Expected value change to break equality")
	}
	if a.Equal(Element{Key: a.Key, Kind: KindConstraint, Value: a.Value}) {
		t.Error("Expected kind change to break equality")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Snapshot{Elements: []Element{
		TableElement("app.users"),
		TableElement("app.orders"),
	}}
	b := Snapshot{Elements: []Element{
		TableElement("app.orders"),
		TableElement("app.users"),
	}}

	dataA, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	dataB, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Equal(dataA, dataB) {
		t.Error("Expected canonical encoding regardless of element order")
	}
}

func TestEncodeDecodePreservesFingerprint(t *testing.T) {
	snap := Snapshot{Elements: []Element{
		TableElement("app.users"),
		ColumnElement("app.users", "id", []byte(`{"type":"INTEGER"}`)),
		RowElement("app.users", "1", []byte(`{"id":1,"name":"Alice"}`)),
	}}

	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Fingerprint() != snap.Fingerprint() {
		t.Error("Expected decoded snapshot to keep its fingerprint")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

func TestLookup(t *testing.T) {
	snap := Snapshot{Elements: []Element{
		TableElement("app.users"),
		ColumnElement("app.users", "id", nil),
	}}

	if _, ok := snap.Lookup("app.users.id"); !ok {
		t.Error("Expected to find column element")
	}
	if _, ok := snap.Lookup("app.orders"); ok {
		t.Error("Expected missing key to report absent")
	}
}

func TestElementKeys(t *testing.T) {
	tests := []struct {
		element Element
		key     string
		kind    ElementKind
	}{
		{TableElement("app.users"), "app.users", KindTable},
		{ColumnElement("app.users", "id", nil), "app.users.id", KindColumn},
		{ConstraintElement("app.users", "pk", nil), "app.users.pk", KindConstraint},
		{RowElement("app.users", "42", nil), "app.users/42", KindRow},
	}

	for _, test := range tests {
		if test.element.Key != test.key {
			t.Errorf("Expected key %q, got %q", test.key, test.element.Key)
		}
		if test.element.Kind != test.kind {
			t.Errorf("Expected kind %q, got %q", test.kind, test.element.Kind)
		}
	}
}
