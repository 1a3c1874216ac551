package pggit

import (
	"context"
	"fmt"

	"github.com/pggit/pggit/merge"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/tier"
)

// Config configures an engine instance.
type Config struct {
	// Path is the commit-graph database path, or ":memory:".
	Path string

	// HotDir persists hot payloads under a directory; empty keeps them in
	// memory.
	HotDir string

	// ColdLocation enables tiering to a directory, file:// path, or
	// s3://bucket/prefix location. Empty disables the cold tier.
	ColdLocation string

	// S3 configures access for s3:// cold locations.
	S3 *tier.S3Config

	// Policy drives the tiering manager.
	Policy tier.Policy
}

// Instance bundles the engine's components over one open store.
type Instance struct {
	Store   *store.Store
	Merger  *merge.Engine
	Tiering *tier.Manager
}

// Open opens an engine instance.
func Open(ctx context.Context, cfg Config) (*Instance, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	hot := tier.NewMemoryStore()
	if cfg.HotDir != "" {
		var err error
		hot, err = tier.NewFileStore(cfg.HotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open hot store: %w", err)
		}
	}

	var cold tier.BlobStore
	if cfg.ColdLocation != "" {
		archive, err := tier.NewArchive(ctx, cfg.ColdLocation, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to open cold archive: %w", err)
		}
		cold = archive
	}

	st, err := store.Open(ctx, store.Options{Path: cfg.Path, Hot: hot, Cold: cold})
	if err != nil {
		return nil, err
	}

	instance := &Instance{
		Store:  st,
		Merger: merge.NewEngine(st),
	}
	if cold != nil {
		instance.Tiering = tier.NewManager(st, hot, cold, cfg.Policy)
	}
	return instance, nil
}

// Close releases the instance's shard claim and closes the store.
func (instance *Instance) Close() error {
	return instance.Store.Close()
}
