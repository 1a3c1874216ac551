// Package pggit provides a version-control engine for structured data.
//
// pgGit tracks schema and data changes as commits organized into branches,
// computes structural diffs and three-way merges between branch states, and
// tiers historical payloads between hot and cold storage. Commit identity
// comes from Trinity IDs: shard-partitioned, monotonic-within-shard
// identifiers that stay collision-free under concurrent allocation.
//
// # Quick Start
//
// Open an ephemeral engine and commit a snapshot:
//
//	instance, _ := pggit.Open(ctx, pggit.Config{Path: ":memory:"})
//	defer instance.Close()
//
//	identity := core.Identity{Name: "App", Email: "app@example.com"}
//	instance.Store.Init(ctx, identity)
//
//	snap := snapshot.Snapshot{Elements: []snapshot.Element{
//	    snapshot.TableElement("app.users"),
//	}}
//	commit, _ := instance.Store.Commit(ctx, "main", "Adding users table", snap, identity)
//
// Branch, diff, and merge:
//
//	instance.Store.CreateBranch(ctx, "feature", commit.ID)
//	result, _ := instance.Merger.Merge(ctx, "feature", "main", identity, merge.Options{})
package pggit
