//go:build gcp

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/22388o/sapio/pkg/canonical"
)

// GCSArchive keeps bundles in a Google Cloud Storage bucket. Built only
// with -tags gcp so default builds avoid the GCS dependency surface.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSArchiveConfig configures a GCS archive.
type GCSArchiveConfig struct {
	Bucket string
	Prefix string
}

// NewGCSArchive builds a GCS-backed archive using application default
// credentials.
func NewGCSArchive(ctx context.Context, cfg GCSArchiveConfig) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create GCS client: %w", err)
	}
	return &GCSArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchive) object(digest string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.prefix + digest + ".blob")
}

func (a *GCSArchive) Put(ctx context.Context, data []byte) (string, error) {
	hash, err := canonical.HashBytes(data)
	if err != nil {
		return "", err
	}
	obj := a.object(strings.TrimPrefix(hash, canonical.HashPrefix))

	if _, err := obj.Attrs(ctx); err == nil {
		return hash, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("store: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("store: gcs close: %w", err)
	}
	return hash, nil
}

func (a *GCSArchive) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := rawDigest(hash)
	if err != nil {
		return nil, err
	}
	r, err := a.object(digest).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("store: bundle %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("store: gcs get %s: %w", hash, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: gcs read %s: %w", hash, err)
	}
	return data, nil
}

func (a *GCSArchive) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := rawDigest(hash)
	if err != nil {
		return false, err
	}
	_, err = a.object(digest).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("store: gcs stat %s: %w", hash, err)
}

func (a *GCSArchive) Delete(ctx context.Context, hash string) error {
	digest, err := rawDigest(hash)
	if err != nil {
		return err
	}
	if err := a.object(digest).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("store: gcs delete %s: %w", hash, err)
	}
	return nil
}

// Close releases the GCS client.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}
