package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/tier"
	"github.com/pggit/pggit/trinity"
)

// DefaultBranch is the branch created by Init.
const DefaultBranch = "main"

// Commit is an immutable node in the commit graph.
type Commit struct {
	ID          trinity.ID
	Parents     []trinity.ID // empty for root, two for merge commits
	Branch      string
	Message     string
	Fingerprint snapshot.Hash
	PayloadRef  string
	Tier        tier.Tier
	Author      core.Identity
	CreatedAt   time.Time
}

// IsMerge reports whether the commit has two parents.
func (c Commit) IsMerge() bool {
	return len(c.Parents) == 2
}

func (c Commit) String() string {
	return fmt.Sprintf("Commit{Id: %s, Branch: %s, Message: %s}", c.ID, c.Branch, c.Message)
}

// Init creates the repository root: an empty-snapshot commit and the
// default branch pointing at it. Calling Init on an initialized store
// returns the existing root branch head.
func (s *Store) Init(ctx context.Context, identity core.Identity) (Commit, error) {
	if b, err := s.GetBranch(ctx, DefaultBranch); err == nil {
		return s.GetCommit(ctx, b.Head)
	}

	payload, err := snapshot.Snapshot{}.Encode()
	if err != nil {
		return Commit{}, err
	}
	ref, err := s.hot.PutBlob(ctx, payload)
	if err != nil {
		return Commit{}, fmt.Errorf("failed to store root payload: %w", err)
	}

	id, err := s.alloc.Next()
	if err != nil {
		return Commit{}, err
	}

	commit := Commit{
		ID:          id,
		Branch:      DefaultBranch,
		Message:     "Creating repository root",
		Fingerprint: snapshot.EmptyFingerprint,
		PayloadRef:  ref,
		Tier:        tier.Hot,
		Author:      identity,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Commit{}, err
	}
	defer tx.Rollback()

	if err := insertCommit(ctx, tx, commit); err != nil {
		return Commit{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO branches (name, head, created_from) VALUES (?, ?, ?)`,
		DefaultBranch, id.String(), id.String())
	if err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, fmt.Errorf("failed to create default branch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, err
	}
	return commit, nil
}

// Commit appends a snapshot to a branch. The whole operation is one host
// transaction: either the commit node and the branch repoint both become
// visible, or neither does.
//
// Returns ErrNoChange when the snapshot fingerprint matches the branch
// head, and ErrConcurrentModification when another session moved the head
// first.
func (s *Store) Commit(ctx context.Context, branch, message string, snap snapshot.Snapshot, identity core.Identity) (Commit, error) {
	fp := snap.Fingerprint()

	payload, err := snap.Encode()
	if err != nil {
		return Commit{}, err
	}
	// Blob goes in before the transaction. If the transaction aborts the
	// blob is an orphan, which content addressing makes harmless.
	ref, err := s.hot.PutBlob(ctx, payload)
	if err != nil {
		return Commit{}, fmt.Errorf("failed to store payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, err
	}
	defer tx.Rollback()

	head, err := branchHead(ctx, tx, branch)
	if err != nil {
		return Commit{}, err
	}
	if head.Fingerprint == fp {
		return Commit{}, fmt.Errorf("%w: branch %q head %s", ErrNoChange, branch, head.ID)
	}

	id, err := s.alloc.Next()
	if err != nil {
		return Commit{}, err
	}

	commit := Commit{
		ID:          id,
		Parents:     []trinity.ID{head.ID},
		Branch:      branch,
		Message:     message,
		Fingerprint: fp,
		PayloadRef:  ref,
		Tier:        tier.Hot,
		Author:      identity,
		CreatedAt:   time.Now(),
	}

	if err := insertCommit(ctx, tx, commit); err != nil {
		return Commit{}, err
	}
	if err := repointHead(ctx, tx, branch, head.ID, id); err != nil {
		return Commit{}, err
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, err
	}
	return commit, nil
}

// CommitMerge appends a two-parent merge commit to branch. expectedHead is
// the target head the merged snapshot was computed against; if the branch
// has moved since, the merge fails with ErrConcurrentModification and
// nothing is written.
func (s *Store) CommitMerge(ctx context.Context, branch string, expectedHead, second trinity.ID, message string, snap snapshot.Snapshot, identity core.Identity) (Commit, error) {
	payload, err := snap.Encode()
	if err != nil {
		return Commit{}, err
	}
	ref, err := s.hot.PutBlob(ctx, payload)
	if err != nil {
		return Commit{}, fmt.Errorf("failed to store payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, err
	}
	defer tx.Rollback()

	head, err := branchHead(ctx, tx, branch)
	if err != nil {
		return Commit{}, err
	}
	if head.ID != expectedHead {
		return Commit{}, fmt.Errorf("%w: branch %q moved from %s to %s",
			ErrConcurrentModification, branch, expectedHead, head.ID)
	}

	id, err := s.alloc.Next()
	if err != nil {
		return Commit{}, err
	}

	commit := Commit{
		ID:          id,
		Parents:     []trinity.ID{expectedHead, second},
		Branch:      branch,
		Message:     message,
		Fingerprint: snap.Fingerprint(),
		PayloadRef:  ref,
		Tier:        tier.Hot,
		Author:      identity,
		CreatedAt:   time.Now(),
	}

	if err := insertCommit(ctx, tx, commit); err != nil {
		return Commit{}, err
	}
	if err := repointHead(ctx, tx, branch, expectedHead, id); err != nil {
		return Commit{}, err
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return Commit{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Commit{}, err
	}
	return commit, nil
}

// GetCommit loads a commit by id.
func (s *Store) GetCommit(ctx context.Context, id trinity.ID) (Commit, error) {
	return scanCommit(s.db.QueryRowContext(ctx, commitSelect+` WHERE id = ?`, id.String()))
}

const commitSelect = `
	SELECT id, branch, message, fingerprint, payload_ref, tier,
	       parent1, parent2, author_name, author_email, created_at
	FROM commits`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommit(row rowScanner) (Commit, error) {
	var (
		c                    Commit
		idStr, fpStr, tierStr string
		parent1, parent2     sql.NullString
		createdAt            int64
	)
	err := row.Scan(&idStr, &c.Branch, &c.Message, &fpStr, &c.PayloadRef, &tierStr,
		&parent1, &parent2, &c.Author.Name, &c.Author.Email, &createdAt)
	if err == sql.ErrNoRows {
		return Commit{}, ErrCommitNotFound
	}
	if err != nil {
		return Commit{}, fmt.Errorf("failed to scan commit: %w", err)
	}

	if c.ID, err = trinity.Parse(idStr); err != nil {
		return Commit{}, err
	}
	if c.Fingerprint, err = snapshot.ParseHash(fpStr); err != nil {
		return Commit{}, err
	}
	c.Tier = tier.Tier(tierStr)
	c.CreatedAt = time.Unix(0, createdAt)

	for _, p := range []sql.NullString{parent1, parent2} {
		if !p.Valid {
			continue
		}
		pid, err := trinity.Parse(p.String)
		if err != nil {
			return Commit{}, err
		}
		c.Parents = append(c.Parents, pid)
	}
	return c, nil
}

func insertCommit(ctx context.Context, tx *sql.Tx, c Commit) error {
	var parent1, parent2 sql.NullString
	if len(c.Parents) > 0 {
		// A commit can never be its own parent; the allocator hands out
		// fresh ids, so this only guards hand-built commits.
		for _, p := range c.Parents {
			if p == c.ID {
				return fmt.Errorf("commit %s cannot be its own parent", c.ID)
			}
		}
		parent1 = sql.NullString{String: c.Parents[0].String(), Valid: true}
	}
	if len(c.Parents) > 1 {
		parent2 = sql.NullString{String: c.Parents[1].String(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO commits (id, id_shard, id_seq, branch, message, fingerprint,
		                     payload_ref, tier, parent1, parent2,
		                     author_name, author_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.ID.Shard, c.ID.Seq, c.Branch, c.Message, c.Fingerprint.String(),
		c.PayloadRef, string(c.Tier), parent1, parent2,
		c.Author.Name, c.Author.Email, c.CreatedAt.UnixNano())
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to insert commit %s: %w", c.ID, err)
	}
	return nil
}

// branchHead loads the branch's current head commit inside tx.
func branchHead(ctx context.Context, tx *sql.Tx, branch string) (Commit, error) {
	var headStr string
	err := tx.QueryRowContext(ctx, `SELECT head FROM branches WHERE name = ?`, branch).Scan(&headStr)
	if err == sql.ErrNoRows {
		return Commit{}, fmt.Errorf("%w: %q", ErrBranchNotFound, branch)
	}
	if err != nil {
		return Commit{}, fmt.Errorf("failed to read branch %q: %w", branch, err)
	}
	return scanCommit(tx.QueryRowContext(ctx, commitSelect+` WHERE id = ?`, headStr))
}

// repointHead is the compare-and-swap advancing a branch pointer.
func repointHead(ctx context.Context, tx *sql.Tx, branch string, from, to trinity.ID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE branches SET head = ? WHERE name = ? AND head = ?`,
		to.String(), branch, from.String())
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to repoint branch %q: %w", branch, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: branch %q is no longer at %s", ErrConcurrentModification, branch, from)
	}
	return nil
}
