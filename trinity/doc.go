// Package trinity provides Trinity ID generation for pgGit commits.
//
// A Trinity ID is composed of three parts: a sequence number that is
// monotonic within a shard, the shard that allocated it, and a checksum
// byte guarding against corrupted or hand-forged identifiers. Because
// each allocator owns its shard exclusively, concurrent allocators never
// collide without coordinating on a shared counter.
//
// # Allocation
//
// Claim a shard (the store hands these out) and allocate locally:
//
//	alloc := trinity.NewAllocator(shard, lastSeq)
//	id, err := alloc.Next()
//
// Allocated IDs are never reused: if the enclosing transaction aborts,
// the sequence number is simply a gap.
package trinity
