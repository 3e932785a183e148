package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ArchiveType selects a bundle archive backend.
type ArchiveType string

const (
	ArchiveTypeFS  ArchiveType = "fs"
	ArchiveTypeS3  ArchiveType = "s3"
	ArchiveTypeGCS ArchiveType = "gcs"
)

// NewArchiveFromEnv builds an archive from environment variables.
//
//   - SAPIO_ARCHIVE_TYPE: "fs" (default), "s3", or "gcs"
//   - SAPIO_DATA_DIR: base directory for the fs archive (default "data")
//
// For S3:
//   - SAPIO_S3_BUCKET (required)
//   - SAPIO_S3_REGION or AWS_REGION
//   - SAPIO_S3_ENDPOINT (optional, MinIO/LocalStack)
//   - SAPIO_S3_PREFIX (optional)
//
// For GCS (requires a -tags gcp build):
//   - SAPIO_GCS_BUCKET (required)
//   - SAPIO_GCS_PREFIX (optional)
func NewArchiveFromEnv(ctx context.Context) (Archive, error) {
	archiveType := ArchiveType(os.Getenv("SAPIO_ARCHIVE_TYPE"))
	if archiveType == "" {
		archiveType = ArchiveTypeFS
	}

	switch archiveType {
	case ArchiveTypeFS:
		dataDir := os.Getenv("SAPIO_DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileArchive(filepath.Join(dataDir, "bundles"))
	case ArchiveTypeS3:
		bucket := os.Getenv("SAPIO_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("store: SAPIO_S3_BUCKET is required for the s3 archive")
		}
		region := os.Getenv("SAPIO_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Archive(ctx, S3ArchiveConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("SAPIO_S3_ENDPOINT"),
			Prefix:   os.Getenv("SAPIO_S3_PREFIX"),
		})
	case ArchiveTypeGCS:
		return newGCSArchiveFromEnv(ctx)
	default:
		return nil, fmt.Errorf("store: unsupported archive type %q", archiveType)
	}
}
