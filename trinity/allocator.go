package trinity

import (
	"fmt"
	"sync/atomic"
)

// Allocator hands out IDs for a single shard. The sequence counter lives in
// process memory, so allocation never takes a lock shared with other
// sessions; uniqueness follows from exclusive shard ownership.
//
// The counter only moves forward. An ID drawn for a transaction that later
// aborts is never handed out again by this allocator.
type Allocator struct {
	shard uint16
	seq   atomic.Uint64
}

// NewAllocator creates an allocator for the given shard. lastSeq is the
// highest sequence number already persisted for that shard; allocation
// resumes above it.
func NewAllocator(shard uint16, lastSeq uint64) *Allocator {
	a := &Allocator{shard: shard}
	a.seq.Store(lastSeq)
	return a
}

// Shard returns the shard this allocator draws from.
func (a *Allocator) Shard() uint16 {
	return a.shard
}

// Next allocates the next ID. It fails only when the shard's sequence space
// is exhausted, which is a configuration-level condition: the caller must
// claim a fresh shard rather than retry.
func (a *Allocator) Next() (ID, error) {
	seq := a.seq.Add(1)
	if seq > MaxSeq {
		return ID{}, fmt.Errorf("%w: shard %d has no sequence numbers left", ErrExhausted, a.shard)
	}
	return New(seq, a.shard)
}
