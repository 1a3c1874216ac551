package store

import (
	"container/heap"
	"context"
	"fmt"
	"iter"

	"github.com/pggit/pggit/trinity"
)

// commitHeap orders commits newest-first by creation time, breaking ties by
// Trinity ID so traversal order is deterministic.
type commitHeap []Commit

func (h commitHeap) Len() int { return len(h) }

func (h commitHeap) Less(i, j int) bool {
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.After(h[j].CreatedAt)
	}
	return h[i].ID.Compare(h[j].ID) > 0
}

func (h commitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commitHeap) Push(x any) { *h = append(*h, x.(Commit)) }

func (h *commitHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// History walks the ancestry of a commit, newest-first, yielding each
// commit exactly once. Both lineages of a merge commit are traversed. The
// sequence is lazy and restartable; iteration stops early on the first
// yielded error.
func (s *Store) History(ctx context.Context, from trinity.ID) iter.Seq2[Commit, error] {
	return func(yield func(Commit, error) bool) {
		start, err := s.GetCommit(ctx, from)
		if err != nil {
			yield(Commit{}, err)
			return
		}

		pending := &commitHeap{start}
		heap.Init(pending)
		seen := map[trinity.ID]bool{start.ID: true}

		for pending.Len() > 0 {
			c := heap.Pop(pending).(Commit)
			if !yield(c, nil) {
				return
			}

			for _, pid := range c.Parents {
				if seen[pid] {
					continue
				}
				seen[pid] = true

				parent, err := s.GetCommit(ctx, pid)
				if err != nil {
					yield(Commit{}, fmt.Errorf("broken parent link %s -> %s: %w", c.ID, pid, err))
					return
				}
				heap.Push(pending, parent)
			}
		}
	}
}

// IsAncestor reports whether ancestor is reachable from descendant
// (a commit counts as its own ancestor).
func (s *Store) IsAncestor(ctx context.Context, ancestor, descendant trinity.ID) (bool, error) {
	for c, err := range s.History(ctx, descendant) {
		if err != nil {
			return false, err
		}
		if c.ID == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// MergeBase finds the lowest common ancestor of two commits by walking both
// histories. Disjoint graphs fail with ErrUnrelatedHistory.
func (s *Store) MergeBase(ctx context.Context, a, b trinity.ID) (Commit, error) {
	ancestors := make(map[trinity.ID]bool)
	for c, err := range s.History(ctx, a) {
		if err != nil {
			return Commit{}, err
		}
		ancestors[c.ID] = true
	}

	for c, err := range s.History(ctx, b) {
		if err != nil {
			return Commit{}, err
		}
		if ancestors[c.ID] {
			return c, nil
		}
	}

	return Commit{}, fmt.Errorf("%w: %s and %s", ErrUnrelatedHistory, a, b)
}
