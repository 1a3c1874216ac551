package tier

import (
	"context"
	"errors"
)

// Tier names a payload storage tier.
type Tier string

const (
	Hot  Tier = "hot"
	Cold Tier = "cold"
)

var (
	ErrNotFound    = errors.New("payload not found")
	ErrRefMismatch = errors.New("payload bytes do not match reference")
)

// BlobStore stores payload bytes under content-addressed references.
// Implementations must make Put atomic: a concurrent Get for the same ref
// either misses entirely or returns the complete payload.
type BlobStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
