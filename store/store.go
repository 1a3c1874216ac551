package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pggit/pggit/tier"
	"github.com/pggit/pggit/trinity"
)

const driverName = "sqlite"

var (
	// ErrNoChange is returned when a commit's fingerprint matches the
	// current branch head. The caller decides whether to skip.
	ErrNoChange = errors.New("no change since branch head")
	// ErrDuplicateBranch is returned when creating a branch whose name exists.
	ErrDuplicateBranch = errors.New("branch already exists")
	// ErrConcurrentModification is returned when another session moved the
	// branch head first. Retry with a fresh read of the branch.
	ErrConcurrentModification = errors.New("branch modified concurrently")
	// ErrUnrelatedHistory is returned when two commits share no ancestor.
	ErrUnrelatedHistory = errors.New("histories are unrelated")
	// ErrBranchNotFound is returned for unknown branch names.
	ErrBranchNotFound = errors.New("branch not found")
	// ErrCommitNotFound is returned for unknown commit ids.
	ErrCommitNotFound = errors.New("commit not found")
)

// Store persists commits, branches, and shard claims. One Store owns one
// Trinity shard for the lifetime of the session.
type Store struct {
	db    *sql.DB
	hot   *tier.GitStore
	cold  tier.BlobStore
	alloc *trinity.Allocator
	owner string
}

// Options configures Open.
type Options struct {
	// Path is the SQLite database path, or ":memory:".
	Path string
	// Hot is the hot-tier payload store. Required.
	Hot *tier.GitStore
	// Cold is the cold-tier archive. Optional; without it tiering is off.
	Cold tier.BlobStore
	// Owner labels this session's shard claim. Defaults to host and pid.
	Owner string
}

// OpenMemory opens an ephemeral store for testing.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, Options{Path: ":memory:", Hot: tier.NewMemoryStore()})
}

// Open opens (creating if needed) a store and claims a Trinity shard for
// this session.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Hot == nil {
		return nil, errors.New("hot payload store is required")
	}
	if opts.Owner == "" {
		host, _ := os.Hostname()
		opts.Owner = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	db, err := openDatabase(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, hot: opts.Hot, cold: opts.Cold, owner: opts.Owner}

	if err := s.claimShard(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}

	// WAL mode lets concurrent sessions read while one writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite benefits from a single writer per connection pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS commits (
		id           TEXT PRIMARY KEY,
		id_shard     INTEGER NOT NULL,
		id_seq       INTEGER NOT NULL,
		branch       TEXT NOT NULL,
		message      TEXT NOT NULL,
		fingerprint  TEXT NOT NULL,
		payload_ref  TEXT NOT NULL,
		tier         TEXT NOT NULL DEFAULT 'hot',
		reads        INTEGER NOT NULL DEFAULT 0,
		parent1      TEXT REFERENCES commits(id),
		parent2      TEXT REFERENCES commits(id),
		author_name  TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commits_shard_seq ON commits(id_shard, id_seq);
	CREATE INDEX IF NOT EXISTS idx_commits_tier_created ON commits(tier, created_at);

	CREATE TABLE IF NOT EXISTS branches (
		name         TEXT PRIMARY KEY,
		head         TEXT NOT NULL REFERENCES commits(id),
		created_from TEXT NOT NULL REFERENCES commits(id)
	);

	CREATE TABLE IF NOT EXISTS shards (
		shard      INTEGER PRIMARY KEY,
		owner      TEXT NOT NULL,
		claimed_at INTEGER NOT NULL
	);`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// claimShard reserves the lowest free shard for this session and prepares
// the allocator above the shard's persisted high-water mark.
func (s *Store) claimShard(ctx context.Context) error {
	for {
		var next int64
		err := s.db.QueryRowContext(ctx, `
			SELECT CASE
				WHEN NOT EXISTS (SELECT 1 FROM shards WHERE shard = 0) THEN 0
				ELSE (SELECT MIN(shard)+1 FROM shards
				      WHERE shard+1 NOT IN (SELECT shard FROM shards))
			END`).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to find free shard: %w", err)
		}
		if next > int64(trinity.MaxShard) {
			return fmt.Errorf("%w: all %d shards are claimed", trinity.ErrExhausted, int(trinity.MaxShard)+1)
		}

		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO shards (shard, owner, claimed_at) VALUES (?, ?, ?)`,
			next, s.owner, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to claim shard %d: %w", next, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost the race for this shard, try the next free one.
			continue
		}

		var lastSeq uint64
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(id_seq), 0) FROM commits WHERE id_shard = ?`, next).Scan(&lastSeq)
		if err != nil {
			return fmt.Errorf("failed to read shard high-water mark: %w", err)
		}

		s.alloc = trinity.NewAllocator(uint16(next), lastSeq)
		return nil
	}
}

// Shard returns the Trinity shard claimed by this session.
func (s *Store) Shard() uint16 {
	return s.alloc.Shard()
}

// Close releases this session's shard claim and closes the database.
func (s *Store) Close() error {
	if s.alloc != nil {
		_, _ = s.db.Exec(`DELETE FROM shards WHERE shard = ? AND owner = ?`, s.alloc.Shard(), s.owner)
	}
	return s.db.Close()
}

// isBusy reports whether err is the host database's write-conflict signal.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
