// Package store persists the pgGit commit graph.
//
// The store owns two logical tables, commits (keyed by Trinity ID) and
// branches (keyed by name), plus the shard claims backing Trinity ID
// allocation, all inside one transactional SQLite database. Payload bytes
// live outside the database in tiered blob stores (see package tier); the
// store holds only the content-addressed reference and current tier.
//
// # Concurrency
//
// Branch heads are advanced with compare-and-swap updates inside the host
// transaction. Two sessions committing to the same branch race on the head
// pointer: exactly one wins, the other receives ErrConcurrentModification
// and may retry after re-reading the branch. The store never retries on the
// caller's behalf.
//
// # Graph invariants
//
// Commits are immutable and form a DAG: parents must exist before a child
// is created and a commit's Trinity ID is never reused, so cycles cannot be
// constructed. A branch head only moves to a descendant of its current
// commit.
package store
