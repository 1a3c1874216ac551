package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pggit/pggit/trinity"
)

// Branch is a mutable pointer into the commit graph.
type Branch struct {
	Name        string
	Head        trinity.ID
	CreatedFrom trinity.ID
}

// CreateBranch creates a branch pointing at from. No new commit is written.
func (s *Store) CreateBranch(ctx context.Context, name string, from trinity.ID) (Branch, error) {
	if name == "" {
		return Branch{}, fmt.Errorf("branch name must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Branch{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return Branch{}, fmt.Errorf("failed to check branch %q: %w", name, err)
	}
	if exists > 0 {
		return Branch{}, fmt.Errorf("%w: %q", ErrDuplicateBranch, name)
	}

	if _, err := scanCommit(tx.QueryRowContext(ctx, commitSelect+` WHERE id = ?`, from.String())); err != nil {
		return Branch{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO branches (name, head, created_from) VALUES (?, ?, ?)`,
		name, from.String(), from.String())
	if err != nil {
		if isBusy(err) {
			return Branch{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Branch{}, fmt.Errorf("failed to create branch %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return Branch{}, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return Branch{}, err
	}
	return Branch{Name: name, Head: from, CreatedFrom: from}, nil
}

// GetBranch loads a branch by name.
func (s *Store) GetBranch(ctx context.Context, name string) (Branch, error) {
	var headStr, fromStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT head, created_from FROM branches WHERE name = ?`, name).Scan(&headStr, &fromStr)
	if err == sql.ErrNoRows {
		return Branch{}, fmt.Errorf("%w: %q", ErrBranchNotFound, name)
	}
	if err != nil {
		return Branch{}, fmt.Errorf("failed to read branch %q: %w", name, err)
	}

	b := Branch{Name: name}
	if b.Head, err = trinity.Parse(headStr); err != nil {
		return Branch{}, err
	}
	if b.CreatedFrom, err = trinity.Parse(fromStr); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// Branches returns all branch names.
func (s *Store) Branches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteBranch removes a branch pointer. Commits stay reachable from other
// branches or become unreachable garbage for an external reclamation pass.
func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = ?`, name)
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to delete branch %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrBranchNotFound, name)
	}
	return nil
}

// AdvanceBranch fast-forwards a branch head from one commit to another with
// a compare-and-swap. The caller must have verified that to descends from
// from; branch history is never truncated.
func (s *Store) AdvanceBranch(ctx context.Context, name string, from, to trinity.ID) error {
	if _, err := s.GetCommit(ctx, to); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE branches SET head = ? WHERE name = ? AND head = ?`,
		to.String(), name, from.String())
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to advance branch %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: branch %q is no longer at %s", ErrConcurrentModification, name, from)
	}
	return nil
}
