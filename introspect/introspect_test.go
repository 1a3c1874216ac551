package introspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/pggit/pggit/snapshot"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, query string) {
	t.Helper()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Exec failed: %v\n%s", err, query)
	}
}

func TestCaptureSchemaTables(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT PRIMARY KEY, name VARCHAR NOT NULL)`)
	mustExec(t, db, `CREATE TABLE orders (id BIGINT, user_id BIGINT)`)

	snap, err := CaptureSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}

	for _, key := range []string{"main.users", "main.orders"} {
		el, ok := snap.Lookup(key)
		if !ok {
			t.Fatalf("Expected table element %s", key)
		}
		if el.Kind != snapshot.KindTable {
			t.Errorf("Expected table kind for %s, got %s", key, el.Kind)
		}
	}
}

func TestCaptureSchemaColumns(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT NOT NULL, email VARCHAR)`)

	snap, err := CaptureSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}

	el, ok := snap.Lookup("main.users.id")
	if !ok {
		t.Fatal("Expected column element main.users.id")
	}
	if el.Kind != snapshot.KindColumn {
		t.Errorf("Expected column kind, got %s", el.Kind)
	}

	var def columnDef
	if err := json.Unmarshal(el.Value, &def); err != nil {
		t.Fatalf("Failed to decode column definition: %v", err)
	}
	if def.Type != "BIGINT" {
		t.Errorf("Expected BIGINT, got %s", def.Type)
	}
	if def.Nullable {
		t.Error("Expected id to be NOT NULL")
	}
	if def.Position != 1 {
		t.Errorf("Expected position 1, got %d", def.Position)
	}

	el, ok = snap.Lookup("main.users.email")
	if !ok {
		t.Fatal("Expected column element main.users.email")
	}
	if err := json.Unmarshal(el.Value, &def); err != nil {
		t.Fatalf("Failed to decode column definition: %v", err)
	}
	if !def.Nullable {
		t.Error("Expected email to be nullable")
	}
}

func TestCaptureSchemaConstraints(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT PRIMARY KEY)`)

	snap, err := CaptureSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}

	found := false
	for _, el := range snap.Elements {
		if el.Kind != snapshot.KindConstraint {
			continue
		}
		if !strings.HasPrefix(el.Key, "main.users.") {
			continue
		}
		var def constraintDef
		if err := json.Unmarshal(el.Value, &def); err != nil {
			t.Fatalf("Failed to decode constraint definition: %v", err)
		}
		if def.Type == "PRIMARY KEY" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a primary key constraint on main.users")
	}
}

func TestCaptureSchemaExcludesSystemSchemas(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT)`)

	snap, err := CaptureSchema(context.Background(), db)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}

	for _, el := range snap.Elements {
		if strings.HasPrefix(el.Key, "information_schema.") || strings.HasPrefix(el.Key, "pg_catalog.") {
			t.Errorf("Expected system schemas to be excluded, got %s", el.Key)
		}
	}
}

func TestCaptureSchemaFingerprintIgnoresCreationOrder(t *testing.T) {
	dbA := newTestDB(t)
	mustExec(t, dbA, `CREATE TABLE users (id BIGINT)`)
	mustExec(t, dbA, `CREATE TABLE orders (id BIGINT)`)

	dbB := newTestDB(t)
	mustExec(t, dbB, `CREATE TABLE orders (id BIGINT)`)
	mustExec(t, dbB, `CREATE TABLE users (id BIGINT)`)

	snapA, err := CaptureSchema(context.Background(), dbA)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}
	snapB, err := CaptureSchema(context.Background(), dbB)
	if err != nil {
		t.Fatalf("CaptureSchema failed: %v", err)
	}

	if snapA.Fingerprint() != snapB.Fingerprint() {
		t.Error("Expected identical fingerprints regardless of creation order")
	}
}

func TestCaptureRows(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT, name VARCHAR)`)
	mustExec(t, db, `INSERT INTO users VALUES (1, 'alice'), (2, 'bob')`)

	snap, err := CaptureRows(context.Background(), db, "users", "id")
	if err != nil {
		t.Fatalf("CaptureRows failed: %v", err)
	}
	if len(snap.Elements) != 2 {
		t.Fatalf("Expected 2 row elements, got %d", len(snap.Elements))
	}

	el, ok := snap.Lookup("users/1")
	if !ok {
		t.Fatal("Expected row element users/1")
	}
	if el.Kind != snapshot.KindRow {
		t.Errorf("Expected row kind, got %s", el.Kind)
	}

	var record map[string]any
	if err := json.Unmarshal(el.Value, &record); err != nil {
		t.Fatalf("Failed to decode row record: %v", err)
	}
	if record["name"] != "alice" {
		t.Errorf("Expected alice, got %v", record["name"])
	}
}

func TestCaptureRowsUnknownKeyColumn(t *testing.T) {
	db := newTestDB(t)
	mustExec(t, db, `CREATE TABLE users (id BIGINT)`)

	_, err := CaptureRows(context.Background(), db, "users", "uuid")
	if err == nil {
		t.Fatal("Expected error for unknown key column")
	}
	if !strings.Contains(err.Error(), "uuid") {
		t.Errorf("Expected error to name the column, got %v", err)
	}
}

func TestCaptureRowsRejectsUnsafeIdentifiers(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{``, `users; DROP TABLE users`, `users"`} {
		if _, err := CaptureRows(context.Background(), db, table, "id"); err == nil {
			t.Errorf("Expected %q to be rejected", table)
		}
	}
	if _, err := CaptureRows(context.Background(), db, "users", `id'`); err == nil {
		t.Error("Expected quoted key column to be rejected")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("users"); got != `"users"` {
		t.Errorf(`Expected "users", got %s`, got)
	}
	if got := quoteIdent("app.users"); got != `"app"."users"` {
		t.Errorf(`Expected "app"."users", got %s`, got)
	}
}
