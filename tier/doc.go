// Package tier manages where commit payload bytes live.
//
// Payloads are content-addressed blobs. The hot tier is a Git object store
// (in memory or on disk) serving recent, frequently read commits; the cold
// tier is an archive on a local directory or an S3 bucket. The Manager
// periodically migrates payloads from hot to cold according to a Policy,
// using copy-then-repoint-then-delete sequencing so a concurrent reader
// never observes a torn payload: the bytes are identical in both tiers
// before the location pointer moves.
//
// Moving a payload between tiers never changes the owning commit's
// identity, fingerprint, or graph position.
package tier
