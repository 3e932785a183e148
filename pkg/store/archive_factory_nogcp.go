//go:build !gcp

package store

import (
	"context"
	"fmt"
)

func newGCSArchiveFromEnv(ctx context.Context) (Archive, error) {
	return nil, fmt.Errorf("store: gcs archive is not enabled in this build (use -tags gcp)")
}
