package merge

import (
	"sort"

	"github.com/pggit/pggit/snapshot"
)

// ChangeKind tags what happened to a structural element.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is one element's difference between two snapshots. Old is nil for
// Added, New is nil for Removed.
type Change struct {
	Kind ChangeKind
	Key  string
	Old  *snapshot.Element
	New  *snapshot.Element
}

// Diff compares two snapshots and returns the changes from a to b, in
// canonical key order. Identical inputs always produce identical output.
func Diff(a, b snapshot.Snapshot) []Change {
	left := a.Index()
	right := b.Index()

	keys := make([]string, 0, len(left)+len(right))
	for k := range left {
		keys = append(keys, k)
	}
	for k := range right {
		if _, ok := left[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	changes := []Change{}
	for _, key := range keys {
		before, inLeft := left[key]
		after, inRight := right[key]

		switch {
		case !inLeft:
			changes = append(changes, Change{Kind: Added, Key: key, New: ref(after)})
		case !inRight:
			changes = append(changes, Change{Kind: Removed, Key: key, Old: ref(before)})
		case !before.Equal(after):
			changes = append(changes, Change{Kind: Modified, Key: key, Old: ref(before), New: ref(after)})
		}
	}
	return changes
}

func ref(e snapshot.Element) *snapshot.Element {
	return &e
}
