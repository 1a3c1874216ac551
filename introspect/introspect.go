package introspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pggit/pggit/snapshot"
)

// systemSchemas are excluded from schema capture.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"pg_catalog":         true,
}

// columnDef is the JSON definition stored in a column element's value.
type columnDef struct {
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Position int    `json:"position"`
}

// constraintDef is the JSON definition stored in a constraint element's value.
type constraintDef struct {
	Type string `json:"type"`
}

// CaptureSchema introspects all user tables, columns, and constraints of
// the connected database into a snapshot.
func CaptureSchema(ctx context.Context, db *sql.DB) (snapshot.Snapshot, error) {
	snap := snapshot.Snapshot{}

	if err := captureTables(ctx, db, &snap); err != nil {
		return snapshot.Snapshot{}, err
	}
	if err := captureColumns(ctx, db, &snap); err != nil {
		return snapshot.Snapshot{}, err
	}
	if err := captureConstraints(ctx, db, &snap); err != nil {
		return snapshot.Snapshot{}, err
	}

	return snap, nil
}

func captureTables(ctx context.Context, db *sql.DB, snap *snapshot.Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'`)
	if err != nil {
		return fmt.Errorf("failed to introspect tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return err
		}
		if systemSchemas[schema] {
			continue
		}
		snap.Elements = append(snap.Elements, snapshot.TableElement(schema+"."+name))
	}
	return rows.Err()
}

func captureColumns(ctx context.Context, db *sql.DB, snap *snapshot.Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name, column_name, data_type,
		       is_nullable, COALESCE(column_default, ''), ordinal_position
		FROM information_schema.columns`)
	if err != nil {
		return fmt.Errorf("failed to introspect columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schema, table, column, dataType, nullable, dflt string
			position                                        int
		)
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable, &dflt, &position); err != nil {
			return err
		}
		if systemSchemas[schema] {
			continue
		}

		def, err := json.Marshal(columnDef{
			Type:     dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
			Default:  dflt,
			Position: position,
		})
		if err != nil {
			return err
		}
		snap.Elements = append(snap.Elements, snapshot.ColumnElement(schema+"."+table, column, def))
	}
	return rows.Err()
}

func captureConstraints(ctx context.Context, db *sql.DB, snap *snapshot.Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name, constraint_name, constraint_type
		FROM information_schema.table_constraints`)
	if err != nil {
		return fmt.Errorf("failed to introspect constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, name, ctype string
		if err := rows.Scan(&schema, &table, &name, &ctype); err != nil {
			return err
		}
		if systemSchemas[schema] {
			continue
		}

		def, err := json.Marshal(constraintDef{Type: ctype})
		if err != nil {
			return err
		}
		snap.Elements = append(snap.Elements, snapshot.ConstraintElement(schema+"."+table, name, def))
	}
	return rows.Err()
}

// CaptureRows builds a row-changeset snapshot of one table, keyed by the
// given key column. The table and column names must be plain identifiers.
func CaptureRows(ctx context.Context, db *sql.DB, table, keyColumn string) (snapshot.Snapshot, error) {
	if err := validIdentifier(table); err != nil {
		return snapshot.Snapshot{}, err
	}
	if err := validIdentifier(keyColumn); err != nil {
		return snapshot.Snapshot{}, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(table)))
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("failed to read rows of %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	keyIdx := -1
	for i, col := range columns {
		if strings.EqualFold(col, keyColumn) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return snapshot.Snapshot{}, fmt.Errorf("key column %q not found in %s", keyColumn, table)
	}

	snap := snapshot.Snapshot{}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return snapshot.Snapshot{}, err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalize(values[i])
		}

		data, err := json.Marshal(record)
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		key := fmt.Sprintf("%v", normalize(values[keyIdx]))
		snap.Elements = append(snap.Elements, snapshot.RowElement(table, key, data))
	}
	return snap, rows.Err()
}

// normalize makes driver-specific scan values JSON-friendly.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func validIdentifier(name string) error {
	if name == "" || strings.ContainsAny(name, `"';`) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}

// quoteIdent quotes a possibly schema-qualified identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}
