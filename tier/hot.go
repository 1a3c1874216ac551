package tier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/storer"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
)

// GitStore is the hot tier: a Git object store holding payloads as blob
// objects, keyed by their blob hash.
type GitStore struct {
	storer storer.EncodedObjectStorer
}

// NewMemoryStore creates an in-memory hot store, for testing or ephemeral
// engines.
func NewMemoryStore() *GitStore {
	return &GitStore{storer: memory.NewStorage()}
}

// NewFileStore creates a hot store persisted under baseDir.
func NewFileStore(baseDir string) (*GitStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	fs := osfs.New(baseDir)
	st := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	return &GitStore{storer: st}, nil
}

// PutBlob stores data as a blob object and returns its content-addressed
// reference (the blob hash).
func (g *GitStore) PutBlob(ctx context.Context, data []byte) (string, error) {
	obj := g.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return "", fmt.Errorf("failed to create blob writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	hash, err := g.storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	return hash.String(), nil
}

// Put stores data under ref. The ref must be the blob hash of data.
func (g *GitStore) Put(ctx context.Context, ref string, data []byte) error {
	hash, err := g.PutBlob(ctx, data)
	if err != nil {
		return err
	}
	if hash != ref {
		return fmt.Errorf("%w: stored %s, expected %s", ErrRefMismatch, hash, ref)
	}
	return nil
}

// Get reads the payload bytes stored under ref.
func (g *GitStore) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := g.storer.EncodedObject(plumbing.BlobObject, plumbing.NewHash(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", ref, err)
	}

	reader, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", ref, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}

	return data, nil
}

// looseDeleter is implemented by the filesystem object storage.
type looseDeleter interface {
	DeleteLooseObject(plumbing.Hash) error
}

// Delete removes the blob if the underlying storage supports deletion.
// Stores without deletion keep the blob; that is safe, reads simply keep
// hitting the hot copy. The memory storage advertises DeleteLooseObject but
// rejects it at call time, so an unsupported result is a no-op too.
func (g *GitStore) Delete(ctx context.Context, ref string) error {
	d, ok := g.storer.(looseDeleter)
	if !ok {
		return nil
	}
	if err := d.DeleteLooseObject(plumbing.NewHash(ref)); err != nil {
		if errors.Is(err, errors.ErrUnsupported) || strings.Contains(err.Error(), "not supported") {
			return nil
		}
		return err
	}
	return nil
}
