// Package blobstore is the durable byte storage for uploaded documents.
//
// Each uploaded file is stored once under an opaque key generated at intake.
// Writes are all-or-nothing: content is staged to a temp file and renamed
// into place, so a failed write leaves nothing behind. Keys are never
// overwritten, so the original bytes survive every job state.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is a filesystem-backed content store rooted at one directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Put stores data under key. The key must not already exist; blobs are
// write-once. Staging via temp file + rename keeps the operation atomic on
// the same filesystem.
func (s *Store) Put(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	final := filepath.Join(s.root, key)
	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("blobstore: key %q already exists", key)
	}

	tmp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return fmt.Errorf("blobstore: stage: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: close: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: commit: %w", err)
	}
	return nil
}

// Get returns the bytes stored under key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob stored under key, or returns ErrNotFound.
// Intake uses it to undo a stored upload whose job record could not be
// created; completed jobs never delete their content.
func (s *Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

// Size returns the stored size of a blob without reading it.
func (s *Store) Size(key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("blobstore: stat %s: %w", key, err)
	}
	return info.Size(), nil
}

// validateKey rejects keys that could escape the store root. Keys are
// generated server-side, so a failure here indicates a programming error
// or tampering, not user input.
func validateKey(key string) error {
	if key == "" {
		return errors.New("blobstore: empty key")
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return fmt.Errorf("blobstore: unsafe key %q", key)
	}
	return nil
}
