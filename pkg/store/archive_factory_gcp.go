//go:build gcp

package store

import (
	"context"
	"fmt"
	"os"
)

func newGCSArchiveFromEnv(ctx context.Context) (Archive, error) {
	bucket := os.Getenv("SAPIO_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("store: SAPIO_GCS_BUCKET is required for the gcs archive")
	}
	return NewGCSArchive(ctx, GCSArchiveConfig{
		Bucket: bucket,
		Prefix: os.Getenv("SAPIO_GCS_PREFIX"),
	})
}
