package tier

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Policy controls which commits stay hot.
type Policy struct {
	// HotWindow keeps commits newer than this in the hot tier.
	HotWindow time.Duration

	// ColdAfterAccessCount keeps commits older than HotWindow hot while
	// they are still read at least this often. Commits read fewer times
	// are migrated.
	ColdAfterAccessCount int64
}

// Candidate is a hot commit payload eligible for migration.
type Candidate struct {
	CommitID string
	Ref      string
}

// Catalog is the store-side view the manager needs: which payloads are
// eligible, and the atomic tier repoint. RepointTier must fail without
// effect when the payload is no longer on the from tier.
type Catalog interface {
	MigrationCandidates(ctx context.Context, olderThan time.Time, maxReads int64) ([]Candidate, error)
	RepointTier(ctx context.Context, commitID string, from, to Tier) error
}

// Manager migrates commit payloads from the hot tier to the cold tier.
type Manager struct {
	catalog Catalog
	hot     BlobStore
	cold    BlobStore
	policy  Policy
	workers int
	logger  *log.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWorkers sets the number of concurrent migration workers.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger sets the migration log destination.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a tiering manager.
func NewManager(catalog Catalog, hot, cold BlobStore, policy Policy, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog: catalog,
		hot:     hot,
		cold:    cold,
		policy:  policy,
		workers: 4,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EvaluateAndMigrate applies the policy once and returns how many commit
// payloads were migrated to the cold tier.
//
// Each payload is copied to the cold tier first, then the catalog pointer
// is repointed, and only then is the hot copy deleted. A reader racing the
// migration either still finds the hot copy or falls back to the cold copy;
// both hold identical bytes under the same content-addressed reference.
func (m *Manager) EvaluateAndMigrate(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.policy.HotWindow)

	candidates, err := m.catalog.MigrationCandidates(ctx, cutoff, m.policy.ColdAfterAccessCount)
	if err != nil {
		return 0, fmt.Errorf("failed to list migration candidates: %w", err)
	}

	var migrated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, cand := range candidates {
		g.Go(func() error {
			if err := m.migrateOne(gctx, cand); err != nil {
				return err
			}
			migrated.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(migrated.Load()), err
	}
	return int(migrated.Load()), nil
}

func (m *Manager) migrateOne(ctx context.Context, cand Candidate) error {
	data, err := m.hot.Get(ctx, cand.Ref)
	if err != nil {
		return fmt.Errorf("failed to read hot payload for %s: %w", cand.CommitID, err)
	}

	if err := m.cold.Put(ctx, cand.Ref, data); err != nil {
		return fmt.Errorf("failed to archive payload for %s: %w", cand.CommitID, err)
	}

	if err := m.catalog.RepointTier(ctx, cand.CommitID, Hot, Cold); err != nil {
		return fmt.Errorf("failed to repoint %s to cold: %w", cand.CommitID, err)
	}

	// Best-effort: the cold copy is authoritative now. A leftover hot blob
	// only costs space.
	if err := m.hot.Delete(ctx, cand.Ref); err != nil {
		m.logger.Printf("tier: could not delete hot copy of %s (%s): %v", cand.CommitID, cand.Ref, err)
	}

	return nil
}
