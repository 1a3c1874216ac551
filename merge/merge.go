package merge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/trinity"
)

// Strategy defines how conflicting changes are handled.
type Strategy string

const (
	// StrategyManual surfaces conflicts in a ConflictReport. Default.
	StrategyManual Strategy = "manual"
	// StrategySourceWins auto-resolves conflicts to the source branch's value.
	StrategySourceWins Strategy = "source-wins"
	// StrategyTargetWins auto-resolves conflicts to the target branch's value.
	StrategyTargetWins Strategy = "target-wins"
	// StrategyLatestWins auto-resolves to the side whose head committed later.
	StrategyLatestWins Strategy = "latest-wins"
)

// Options configures a merge.
type Options struct {
	Strategy Strategy
	Message  string // optional commit message override
}

// Conflict is an element both sides changed differently relative to the
// merge base. Nil sides mean the element was deleted on that side (or, for
// Base, did not exist).
type Conflict struct {
	Key    string
	Base   *snapshot.Element
	Source *snapshot.Element
	Target *snapshot.Element
}

// ConflictReport enumerates every conflicting element of an attempted
// merge. It is a first-class result, not an error; the store was left
// untouched.
type ConflictReport struct {
	SourceBranch string
	TargetBranch string
	Base         trinity.ID
	Conflicts    []Conflict
}

// Result describes a completed or rejected merge.
type Result struct {
	// Commit is the new merge commit, or the source head after a
	// fast-forward. Nil when UpToDate or when Report is set.
	Commit *store.Commit
	// UpToDate means the source branch contributed nothing new.
	UpToDate bool
	// FastForward means the target head was advanced without a new commit.
	FastForward bool
	// Resolved lists conflicts an auto-resolution strategy decided.
	Resolved []Conflict
	// Report is set when conflicts remain under StrategyManual.
	Report *ConflictReport
}

// Engine performs merges against a commit store.
type Engine struct {
	store  *store.Store
	logger *log.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the destination for auto-resolution logging.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a merge engine over the given store.
func NewEngine(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: s, logger: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diff loads both commits' snapshots and returns the changes from a to b.
func (e *Engine) Diff(ctx context.Context, a, b trinity.ID) ([]Change, error) {
	snapA, err := e.store.SnapshotAt(ctx, a)
	if err != nil {
		return nil, err
	}
	snapB, err := e.store.SnapshotAt(ctx, b)
	if err != nil {
		return nil, err
	}
	return Diff(snapA, snapB), nil
}

// Merge merges the source branch into the target branch.
//
// The merge is all-or-nothing: a conflicted merge under StrategyManual
// returns a ConflictReport and mutates nothing; otherwise a single merge
// commit with parents [target.head, source.head] is written and the target
// head repointed atomically.
func (e *Engine) Merge(ctx context.Context, source, target string, identity core.Identity, opts Options) (Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyManual
	}

	src, err := e.store.GetBranch(ctx, source)
	if err != nil {
		return Result{}, err
	}
	tgt, err := e.store.GetBranch(ctx, target)
	if err != nil {
		return Result{}, err
	}

	// Source already merged - nothing to do.
	if src.Head == tgt.Head {
		return Result{UpToDate: true}, nil
	}
	merged, err := e.store.IsAncestor(ctx, src.Head, tgt.Head)
	if err != nil {
		return Result{}, err
	}
	if merged {
		return Result{UpToDate: true}, nil
	}

	// Target has no commits of its own since the fork: fast-forward.
	canFF, err := e.store.IsAncestor(ctx, tgt.Head, src.Head)
	if err != nil {
		return Result{}, err
	}
	if canFF {
		if err := e.store.AdvanceBranch(ctx, target, tgt.Head, src.Head); err != nil {
			return Result{}, err
		}
		head, err := e.store.GetCommit(ctx, src.Head)
		if err != nil {
			return Result{}, err
		}
		return Result{Commit: &head, FastForward: true}, nil
	}

	base, err := e.store.MergeBase(ctx, src.Head, tgt.Head)
	if err != nil {
		return Result{}, err
	}

	baseSnap, err := e.store.SnapshotAt(ctx, base.ID)
	if err != nil {
		return Result{}, err
	}
	srcSnap, err := e.store.SnapshotAt(ctx, src.Head)
	if err != nil {
		return Result{}, err
	}
	tgtSnap, err := e.store.SnapshotAt(ctx, tgt.Head)
	if err != nil {
		return Result{}, err
	}

	mergedSnap, conflicts := threeWay(baseSnap, srcSnap, tgtSnap)

	var resolved []Conflict
	if len(conflicts) > 0 {
		if opts.Strategy == StrategyManual {
			return Result{Report: &ConflictReport{
				SourceBranch: source,
				TargetBranch: target,
				Base:         base.ID,
				Conflicts:    conflicts,
			}}, nil
		}

		srcHead, err := e.store.GetCommit(ctx, src.Head)
		if err != nil {
			return Result{}, err
		}
		tgtHead, err := e.store.GetCommit(ctx, tgt.Head)
		if err != nil {
			return Result{}, err
		}

		mergedSnap, err = e.resolve(mergedSnap, conflicts, opts.Strategy, srcHead.CreatedAt, tgtHead.CreatedAt)
		if err != nil {
			return Result{}, err
		}
		resolved = conflicts
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merging branch '%s' into '%s'", source, target)
	}

	commit, err := e.store.CommitMerge(ctx, target, tgt.Head, src.Head, message, mergedSnap, identity)
	if err != nil {
		return Result{}, err
	}
	return Result{Commit: &commit, Resolved: resolved}, nil
}

// resolve applies an auto-resolution strategy to each conflict, logging
// every decision it makes.
func (e *Engine) resolve(merged snapshot.Snapshot, conflicts []Conflict, strategy Strategy, srcTime, tgtTime time.Time) (snapshot.Snapshot, error) {
	elems := merged.Index()

	for _, c := range conflicts {
		var winner *snapshot.Element
		var side string

		switch strategy {
		case StrategySourceWins:
			winner, side = c.Source, "source"
		case StrategyTargetWins:
			winner, side = c.Target, "target"
		case StrategyLatestWins:
			if srcTime.After(tgtTime) {
				winner, side = c.Source, "source"
			} else {
				winner, side = c.Target, "target"
			}
		default:
			return snapshot.Snapshot{}, fmt.Errorf("unknown merge strategy: %q", strategy)
		}

		if winner == nil {
			delete(elems, c.Key)
			e.logger.Printf("merge: auto-resolved %q as deletion (%s side, %s strategy)", c.Key, side, strategy)
		} else {
			elems[c.Key] = *winner
			e.logger.Printf("merge: auto-resolved %q to %s side (%s strategy)", c.Key, side, strategy)
		}
	}

	out := snapshot.Snapshot{Elements: make([]snapshot.Element, 0, len(elems))}
	for _, el := range elems {
		out.Elements = append(out.Elements, el)
	}
	return out, nil
}

// threeWay merges source and target element sets against their common
// base. A change applies cleanly when only one side made it, or when both
// sides made exactly the same change; anything else is a conflict, with
// both sides' values preserved.
func threeWay(base, source, target snapshot.Snapshot) (snapshot.Snapshot, []Conflict) {
	baseIdx := base.Index()
	srcIdx := source.Index()
	tgtIdx := target.Index()

	keySet := make(map[string]bool, len(baseIdx)+len(srcIdx)+len(tgtIdx))
	for k := range baseIdx {
		keySet[k] = true
	}
	for k := range srcIdx {
		keySet[k] = true
	}
	for k := range tgtIdx {
		keySet[k] = true
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := snapshot.Snapshot{Elements: []snapshot.Element{}}
	conflicts := []Conflict{}
	keep := func(e snapshot.Element) {
		merged.Elements = append(merged.Elements, e)
	}

	for _, key := range keys {
		b, inBase := baseIdx[key]
		s, inSrc := srcIdx[key]
		t, inTgt := tgtIdx[key]

		srcChanged := sideChanged(inBase, b, inSrc, s)
		tgtChanged := sideChanged(inBase, b, inTgt, t)

		switch {
		case !srcChanged && !tgtChanged:
			if inBase {
				keep(b)
			}
		case srcChanged && !tgtChanged:
			if inSrc {
				keep(s)
			}
			// deleted in source: drop
		case tgtChanged && !srcChanged:
			if inTgt {
				keep(t)
			}
		default:
			// Both changed. Identical changes apply once; exact structural
			// equality only - near-identical changes are conflicts.
			if !inSrc && !inTgt {
				continue // both deleted
			}
			if inSrc && inTgt && s.Equal(t) {
				keep(s)
				continue
			}

			conflict := Conflict{Key: key}
			if inBase {
				conflict.Base = ref(b)
			}
			if inSrc {
				conflict.Source = ref(s)
			}
			if inTgt {
				conflict.Target = ref(t)
			}
			conflicts = append(conflicts, conflict)
		}
	}

	return merged, conflicts
}

// sideChanged reports whether one side differs from the base element.
func sideChanged(inBase bool, base snapshot.Element, inSide bool, side snapshot.Element) bool {
	switch {
	case !inBase && !inSide:
		return false
	case inBase != inSide:
		return true
	default:
		return !base.Equal(side)
	}
}
