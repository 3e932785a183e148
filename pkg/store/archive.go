package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/22388o/sapio/pkg/canonical"
)

// Archive is content-addressed storage for compiled bundles. Put returns
// the prefixed SHA-256 hash of the data; all other operations address by
// that hash.
type Archive interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// rawDigest strips and validates the "sha256:" prefix.
func rawDigest(hash string) (string, error) {
	if !canonical.ValidHash(hash) {
		return "", fmt.Errorf("store: invalid bundle hash %q", hash)
	}
	return strings.TrimPrefix(hash, canonical.HashPrefix), nil
}

// FileArchive keeps bundles as flat .blob files under a directory.
type FileArchive struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileArchive creates the directory if needed.
func NewFileArchive(baseDir string) (*FileArchive, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure archive dir: %w", err)
	}
	return &FileArchive{baseDir: baseDir}, nil
}

func (a *FileArchive) Put(_ context.Context, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hash, err := canonical.HashBytes(data)
	if err != nil {
		return "", err
	}
	digest := strings.TrimPrefix(hash, canonical.HashPrefix)
	path := filepath.Join(a.baseDir, digest+".blob")

	// Idempotent: an existing blob with this hash is the same content.
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("store: write bundle: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("store: commit bundle: %w", err)
	}
	return hash, nil
}

func (a *FileArchive) Get(_ context.Context, hash string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	digest, err := rawDigest(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(a.baseDir, digest+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("store: bundle %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("store: open bundle: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("store: read bundle: %w", err)
	}
	return data, nil
}

func (a *FileArchive) Exists(_ context.Context, hash string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	digest, err := rawDigest(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(a.baseDir, digest+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("store: stat bundle: %w", err)
}

func (a *FileArchive) Delete(_ context.Context, hash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	digest, err := rawDigest(hash)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(a.baseDir, digest+".blob"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete bundle: %w", err)
	}
	return nil
}
