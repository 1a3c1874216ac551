package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/tier"
	"github.com/pggit/pggit/trinity"
)

// Payload returns the commit's snapshot bytes, regardless of which tier
// currently holds them. A read racing a migration falls back to the other
// tier; both copies are byte-identical under the same content-addressed
// reference, so the caller never observes a torn payload.
func (s *Store) Payload(ctx context.Context, id trinity.ID) ([]byte, error) {
	var ref, tierStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_ref, tier FROM commits WHERE id = ?`, id.String()).Scan(&ref, &tierStr)
	if err == sql.ErrNoRows {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to locate payload for %s: %w", id, err)
	}

	// Access counting feeds the tiering policy; losing an increment to a
	// crash is acceptable.
	_, _ = s.db.ExecContext(ctx, `UPDATE commits SET reads = reads + 1 WHERE id = ?`, id.String())

	var primary, secondary tier.BlobStore = s.hot, s.cold
	if tier.Tier(tierStr) == tier.Cold {
		primary, secondary = s.cold, s.hot
	}
	if primary == nil {
		return nil, fmt.Errorf("no %s tier configured for payload of %s", tierStr, id)
	}

	data, err := primary.Get(ctx, ref)
	if errors.Is(err, tier.ErrNotFound) && secondary != nil {
		data, err = secondary.Get(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload for %s: %w", id, err)
	}
	return data, nil
}

// SnapshotAt returns the snapshot a commit captured.
func (s *Store) SnapshotAt(ctx context.Context, id trinity.ID) (snapshot.Snapshot, error) {
	data, err := s.Payload(ctx, id)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Decode(data)
}

// MigrationCandidates lists hot commits older than olderThan that have been
// read fewer than maxReads times. Implements tier.Catalog.
func (s *Store) MigrationCandidates(ctx context.Context, olderThan time.Time, maxReads int64) ([]tier.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload_ref FROM commits
		WHERE tier = ? AND created_at < ? AND reads < ?
		ORDER BY created_at`,
		string(tier.Hot), olderThan.UnixNano(), maxReads)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration candidates: %w", err)
	}
	defer rows.Close()

	var candidates []tier.Candidate
	for rows.Next() {
		var cand tier.Candidate
		if err := rows.Scan(&cand.CommitID, &cand.Ref); err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// RepointTier atomically moves a commit's payload pointer between tiers.
// The graph, fingerprint, and identity of the commit are untouched.
// Implements tier.Catalog.
func (s *Store) RepointTier(ctx context.Context, commitID string, from, to tier.Tier) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commits SET tier = ? WHERE id = ? AND tier = ?`,
		string(to), commitID, string(from))
	if err != nil {
		return fmt.Errorf("failed to repoint tier of %s: %w", commitID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("commit %s is not on the %s tier", commitID, from)
	}
	return nil
}
