// Package snapshot describes schema and data states and fingerprints them.
//
// A Snapshot is a flat collection of structural elements (tables, columns,
// constraints, or row changesets), each addressed by a fully-qualified key.
// Snapshots are produced by concurrent introspection of live structures, so
// element order carries no meaning: fingerprinting and encoding always
// canonicalize by sorting on the element key first.
//
//	snap := snapshot.Snapshot{Elements: []snapshot.Element{
//	    snapshot.TableElement("app.users"),
//	    snapshot.ColumnElement("app.users", "id", []byte(`{"type":"INTEGER"}`)),
//	}}
//	fp := snap.Fingerprint()
//
// Equal logical content always yields an equal fingerprint.
package snapshot
