package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pggit/pggit/tier"
)

func newTieredStore(t *testing.T) (*Store, *tier.GitStore, *tier.Archive) {
	ctx := context.Background()
	hot := tier.NewMemoryStore()
	cold, err := tier.NewArchive(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}

	s, err := Open(ctx, Options{Path: ":memory:", Hot: hot, Cold: cold})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Init(ctx, testIdentity); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s, hot, cold
}

func TestPayloadRoundTrip(t *testing.T) {
	s, _ := initTestStore(t)
	ctx := context.Background()

	snap := tableSnap("app.users", "app.orders")
	commit, err := s.Commit(ctx, DefaultBranch, "Work", snap, testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	expected, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	payload, err := s.Payload(ctx, commit.ID)
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if !bytes.Equal(payload, expected) {
		t.Error("Expected payload to be byte-identical to the committed snapshot")
	}

	loaded, err := s.SnapshotAt(ctx, commit.ID)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if loaded.Fingerprint() != snap.Fingerprint() {
		t.Error("Expected snapshot to survive the round trip")
	}
}

func TestPayloadUnknownCommit(t *testing.T) {
	s, root := initTestStore(t)

	missing := root.ID
	missing.Seq += 1000
	if _, err := s.Payload(context.Background(), missing); err == nil {
		t.Error("Expected error for unknown commit")
	}
}

func TestPayloadReadsFromColdTier(t *testing.T) {
	s, hot, cold := newTieredStore(t)
	ctx := context.Background()

	commit, err := s.Commit(ctx, DefaultBranch, "Work", tableSnap("app.users"), testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	before, err := s.Payload(ctx, commit.ID)
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}

	// Copy, repoint, then delete the hot copy
	if err := cold.Put(ctx, commit.PayloadRef, before); err != nil {
		t.Fatalf("Cold put failed: %v", err)
	}
	if err := s.RepointTier(ctx, commit.ID.String(), tier.Hot, tier.Cold); err != nil {
		t.Fatalf("RepointTier failed: %v", err)
	}
	if err := hot.Delete(ctx, commit.PayloadRef); err != nil {
		t.Fatalf("Hot delete failed: %v", err)
	}

	after, err := s.Payload(ctx, commit.ID)
	if err != nil {
		t.Fatalf("Payload after migration failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("Expected byte-identical payload after migration")
	}
}

func TestPayloadFallsBackAcrossTiers(t *testing.T) {
	s, _, _ := newTieredStore(t)
	ctx := context.Background()

	commit, err := s.Commit(ctx, DefaultBranch, "Work", tableSnap("app.users"), testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Catalog says cold, but the blob has not been copied yet. The reader
	// must fall back to the hot copy.
	if err := s.RepointTier(ctx, commit.ID.String(), tier.Hot, tier.Cold); err != nil {
		t.Fatalf("RepointTier failed: %v", err)
	}

	payload, err := s.Payload(ctx, commit.ID)
	if err != nil {
		t.Fatalf("Expected fallback read to succeed: %v", err)
	}

	expected, _ := tableSnap("app.users").Encode()
	if !bytes.Equal(payload, expected) {
		t.Error("Expected fallback read to return the hot copy")
	}
}

func TestMigrationCandidates(t *testing.T) {
	s, _ := initTestStore(t)
	ctx := context.Background()

	oldCommit, err := s.Commit(ctx, DefaultBranch, "Old", tableSnap("app.users"), testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	hotCommit, err := s.Commit(ctx, DefaultBranch, "Frequently read", tableSnap("app.users", "app.orders"), testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Push the hot commit's read counter above the threshold
	for i := 0; i < 5; i++ {
		if _, err := s.Payload(ctx, hotCommit.ID); err != nil {
			t.Fatalf("Payload failed: %v", err)
		}
	}

	cands, err := s.MigrationCandidates(ctx, time.Now().Add(time.Minute), 3)
	if err != nil {
		t.Fatalf("MigrationCandidates failed: %v", err)
	}

	ids := map[string]bool{}
	for _, cand := range cands {
		ids[cand.CommitID] = true
	}
	if !ids[oldCommit.ID.String()] {
		t.Error("Expected rarely read commit to be a candidate")
	}
	if ids[hotCommit.ID.String()] {
		t.Error("Expected frequently read commit to be excluded")
	}

	// Nothing qualifies when the age window excludes everything
	cands, err = s.MigrationCandidates(ctx, time.Now().Add(-time.Hour), 3)
	if err != nil {
		t.Fatalf("MigrationCandidates failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("Expected no candidates, got %d", len(cands))
	}
}

func TestRepointTierCompareAndSwap(t *testing.T) {
	s, _ := initTestStore(t)
	ctx := context.Background()

	commit, err := s.Commit(ctx, DefaultBranch, "Work", tableSnap("app.users"), testIdentity)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := s.RepointTier(ctx, commit.ID.String(), tier.Hot, tier.Cold); err != nil {
		t.Fatalf("RepointTier failed: %v", err)
	}

	// Second repoint from hot must fail: the commit is already cold
	if err := s.RepointTier(ctx, commit.ID.String(), tier.Hot, tier.Cold); err == nil {
		t.Error("Expected error repointing from the wrong tier")
	}

	loaded, err := s.GetCommit(ctx, commit.ID)
	if err != nil {
		t.Fatalf("GetCommit failed: %v", err)
	}
	if loaded.Tier != tier.Cold {
		t.Errorf("Expected cold tier, got %s", loaded.Tier)
	}
	if loaded.Fingerprint != commit.Fingerprint || loaded.PayloadRef != commit.PayloadRef {
		t.Error("Expected repoint to leave commit identity untouched")
	}
}
