// Package artifacts persists generated starter archives keyed by order
// number so a customer can re-download within their license limits.
// Backends: local filesystem (default), S3, and GCS behind the gcp build
// tag.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNotFound is returned by Open and reported by Exists when no archive
// has been published for the order.
var ErrNotFound = errors.New("artifacts: archive not found")

// Ref identifies a stored archive.
type Ref struct {
	Key    string `json:"key"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Store is the archive storage contract. Put is idempotent per order
// number: re-publishing overwrites the previous archive.
type Store interface {
	// Put persists the archive for an order and returns its reference.
	Put(ctx context.Context, orderNumber string, data []byte) (Ref, error)
	// Open returns a reader over the stored archive, or ErrNotFound.
	Open(ctx context.Context, orderNumber string) (io.ReadCloser, error)
	// Exists reports whether an archive is stored for the order.
	Exists(ctx context.Context, orderNumber string) (bool, error)
	// Delete removes the stored archive. Deleting an absent archive is
	// not an error.
	Delete(ctx context.Context, orderNumber string) error
}

// orderKeyPattern constrains order numbers used as storage keys. Order
// numbers are generated upstream but the store never trusts them as path
// components.
var orderKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func archiveKey(prefix, orderNumber string) (string, error) {
	if !orderKeyPattern.MatchString(orderNumber) {
		return "", fmt.Errorf("artifacts: invalid order number %q", orderNumber)
	}
	return prefix + orderNumber + ".zip", nil
}

func refFor(key string, data []byte) Ref {
	sum := sha256.Sum256(data)
	return Ref{Key: key, SHA256: hex.EncodeToString(sum[:]), Size: int64(len(data))}
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates an archive store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(ctx context.Context, orderNumber string, data []byte) (Ref, error) {
	key, err := archiveKey("", orderNumber)
	if err != nil {
		return Ref{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp, then rename, so readers never see a partial archive.
	path := filepath.Join(s.baseDir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("artifacts: write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Ref{}, fmt.Errorf("artifacts: commit archive: %w", err)
	}
	return refFor(key, data), nil
}

func (s *FileStore) Open(ctx context.Context, orderNumber string) (io.ReadCloser, error) {
	key, err := archiveKey("", orderNumber)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(filepath.Join(s.baseDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderNumber)
		}
		return nil, fmt.Errorf("artifacts: open archive: %w", err)
	}
	return f, nil
}

func (s *FileStore) Exists(ctx context.Context, orderNumber string) (bool, error) {
	key, err := archiveKey("", orderNumber)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(filepath.Join(s.baseDir, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("artifacts: stat archive: %w", err)
}

func (s *FileStore) Delete(ctx context.Context, orderNumber string) error {
	key, err := archiveKey("", orderNumber)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.baseDir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: delete archive: %w", err)
	}
	return nil
}
