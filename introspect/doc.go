// Package introspect builds snapshots from a live relational database.
//
// CaptureSchema reads tables, columns, and constraints through
// information_schema, so it works against any engine exposing it (DuckDB,
// PostgreSQL, and compatibles). CaptureRows builds row-changeset snapshots
// for a single table. Introspection runs concurrently with regular traffic
// and returns elements in whatever order the engine produces them; the
// snapshot layer canonicalizes before fingerprinting.
package introspect
