package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pggit/pggit"
	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/merge"
	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/trinity"
)

var benchIdentity = core.Identity{Name: "benchmark", Email: "bench@test.com"}

// setupBenchmarkInstance creates an in-memory instance with an initialized graph
func setupBenchmarkInstance(b *testing.B) *pggit.Instance {
	instance, err := pggit.Open(context.Background(), pggit.Config{})
	if err != nil {
		b.Fatalf("Failed to open instance: %v", err)
	}
	b.Cleanup(func() { instance.Close() })

	if _, err := instance.Store.Init(context.Background(), benchIdentity); err != nil {
		b.Fatalf("Failed to init store: %v", err)
	}
	return instance
}

// benchSnapshot builds a schema snapshot with the given number of tables,
// five columns each
func benchSnapshot(tables int, idType string) snapshot.Snapshot {
	snap := snapshot.Snapshot{}
	for i := 0; i < tables; i++ {
		table := fmt.Sprintf("bench.table_%d", i)
		snap.Elements = append(snap.Elements, snapshot.TableElement(table))
		for j := 0; j < 5; j++ {
			def, _ := json.Marshal(map[string]any{"type": idType, "position": j + 1})
			snap.Elements = append(snap.Elements,
				snapshot.ColumnElement(table, fmt.Sprintf("col_%d", j), def))
		}
	}
	return snap
}

// BenchmarkFingerprint benchmarks canonical fingerprinting at several schema sizes
func BenchmarkFingerprint(b *testing.B) {
	for _, tables := range []int{1, 10, 100} {
		snap := benchSnapshot(tables, "INTEGER")
		b.Run(fmt.Sprintf("Tables%d", tables), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = snap.Fingerprint()
			}
		})
	}
}

// BenchmarkIDAllocation benchmarks identifier allocation
func BenchmarkIDAllocation(b *testing.B) {
	alloc := trinity.NewAllocator(1, 0)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := alloc.Next(); err != nil {
			b.Fatalf("Next error: %v", err)
		}
	}
}

// BenchmarkCommit benchmarks appending commits to a branch
func BenchmarkCommit(b *testing.B) {
	instance := setupBenchmarkInstance(b)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		snap := benchSnapshot(10, fmt.Sprintf("TYPE_%d", i))
		_, err := instance.Store.Commit(ctx, store.DefaultBranch, "Benchmark commit", snap, benchIdentity)
		if err != nil {
			b.Fatalf("Commit error: %v", err)
		}
	}
}

// BenchmarkDiff benchmarks diffing two schema snapshots
func BenchmarkDiff(b *testing.B) {
	left := benchSnapshot(100, "INTEGER")
	right := benchSnapshot(100, "BIGINT")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = merge.Diff(left, right)
	}
}

// BenchmarkHistory benchmarks walking a 100-commit lineage
func BenchmarkHistory(b *testing.B) {
	instance := setupBenchmarkInstance(b)
	ctx := context.Background()

	var head trinity.ID
	for i := 0; i < 100; i++ {
		commit, err := instance.Store.Commit(ctx, store.DefaultBranch,
			fmt.Sprintf("Commit %d", i), benchSnapshot(1, fmt.Sprintf("TYPE_%d", i)), benchIdentity)
		if err != nil {
			b.Fatalf("Commit error: %v", err)
		}
		head = commit.ID
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		count := 0
		for _, err := range instance.Store.History(ctx, head) {
			if err != nil {
				b.Fatalf("History error: %v", err)
			}
			count++
		}
		if count != 101 {
			b.Fatalf("Expected 101 commits, got %d", count)
		}
	}
}

// BenchmarkMerge benchmarks a non-conflicting three-way merge
func BenchmarkMerge(b *testing.B) {
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		instance := setupBenchmarkInstance(b)
		base, err := instance.Store.Commit(ctx, store.DefaultBranch, "Base", benchSnapshot(10, "INTEGER"), benchIdentity)
		if err != nil {
			b.Fatalf("Commit error: %v", err)
		}
		if _, err := instance.Store.CreateBranch(ctx, "feature", base.ID); err != nil {
			b.Fatalf("CreateBranch error: %v", err)
		}
		featureSnap := benchSnapshot(10, "INTEGER")
		featureSnap.Elements = append(featureSnap.Elements, snapshot.TableElement("bench.extra"))
		if _, err := instance.Store.Commit(ctx, "feature", "Feature", featureSnap, benchIdentity); err != nil {
			b.Fatalf("Commit error: %v", err)
		}
		mainSnap := benchSnapshot(10, "INTEGER")
		mainSnap.Elements = append(mainSnap.Elements, snapshot.TableElement("bench.other"))
		if _, err := instance.Store.Commit(ctx, store.DefaultBranch, "Main", mainSnap, benchIdentity); err != nil {
			b.Fatalf("Commit error: %v", err)
		}
		b.StartTimer()

		result, err := instance.Merger.Merge(ctx, "feature", store.DefaultBranch, benchIdentity, merge.Options{})
		if err != nil {
			b.Fatalf("Merge error: %v", err)
		}
		if result.Commit == nil {
			b.Fatal("Expected a merge commit")
		}
	}
}
