// Package merge computes structural diffs and three-way merges between
// pgGit commits.
//
// Diff compares two snapshots element by element in canonical key order.
// Merge finds the lowest common ancestor of two branch heads, applies each
// side's changes relative to it, and either writes a two-parent merge
// commit or returns a ConflictReport enumerating every element both sides
// changed differently. A conflicted merge mutates nothing.
//
// Divergent changes are conflicts by default. Auto-resolution exists but
// is an explicit, per-merge choice, and every resolution it makes is
// logged.
package merge
