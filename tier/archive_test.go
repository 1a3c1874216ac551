package tier

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestArchivePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive, err := NewArchive(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	data := []byte("archived schema payload")
	if err := archive.Put(ctx, "abc123", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := archive.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}
}

func TestArchivePutOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	archive, err := NewArchive(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	if err := archive.Put(ctx, "ref1", []byte("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := archive.Put(ctx, "ref1", []byte("second")); err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}

	got, err := archive.Get(ctx, "ref1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Expected second, got %s", got)
	}
}

func TestArchiveGetNotFound(t *testing.T) {
	ctx := context.Background()
	archive, err := NewArchive(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	_, err = archive.Get(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestArchiveDelete(t *testing.T) {
	ctx := context.Background()
	archive, err := NewArchive(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	if err := archive.Put(ctx, "gone", []byte("bytes")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := archive.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := archive.Get(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing object is not an error.
	if err := archive.Delete(ctx, "gone"); err != nil {
		t.Errorf("Expected repeated delete to succeed, got %v", err)
	}
}

func TestArchiveFileSchemeLocation(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cold")

	archive, err := NewArchive(ctx, "file://"+dir, nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	if err := archive.Put(ctx, "ref", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ref")); err != nil {
		t.Errorf("Expected object file under %s, got %v", dir, err)
	}
}

func TestArchivePutLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	archive, err := NewArchive(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	if err := archive.Put(ctx, "ref", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ref" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the published object, got %v", names)
	}
}

func TestDetectScheme(t *testing.T) {
	tests := []struct {
		location string
		expected locationScheme
	}{
		{"s3://bucket/prefix", schemeS3},
		{"S3://bucket", schemeS3},
		{"file:///var/lib/pggit/cold", schemeFile},
		{"/var/lib/pggit/cold", schemeLocal},
		{"relative/cold", schemeLocal},
	}

	for _, tt := range tests {
		if got := detectScheme(tt.location); got != tt.expected {
			t.Errorf("detectScheme(%q): expected %s, got %s", tt.location, tt.expected, got)
		}
	}
}

func TestParseS3Location(t *testing.T) {
	tests := []struct {
		location string
		bucket   string
		prefix   string
		wantErr  bool
	}{
		{"s3://bucket", "bucket", "", false},
		{"s3://bucket/prefix", "bucket", "prefix", false},
		{"s3://bucket/a/b/", "bucket", "a/b", false},
		{"s3://", "", "", true},
	}

	for _, tt := range tests {
		bucket, prefix, err := parseS3Location(tt.location)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseS3Location(%q): expected error", tt.location)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseS3Location(%q): unexpected error %v", tt.location, err)
			continue
		}
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("parseS3Location(%q): expected (%s, %s), got (%s, %s)",
				tt.location, tt.bucket, tt.prefix, bucket, prefix)
		}
	}
}

func TestArchiveKeyPrefix(t *testing.T) {
	a := &Archive{prefix: "cold/payloads"}
	if got := a.key("abc"); got != "cold/payloads/abc" {
		t.Errorf("Expected cold/payloads/abc, got %s", got)
	}

	a = &Archive{}
	if got := a.key("abc"); got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
}
