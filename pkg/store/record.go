// Package store persists compilation records and archives compiled
// bundles. Records are small rows in SQL (sqlite or Postgres) pointing at
// content-addressed bundle blobs held in an Archive (filesystem, S3 or
// GCS).
package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// CompilationRecord is one persisted compilation: identifiers, the
// canonical contract hash, the archive pointer to the full bundle, and
// the signed receipt document.
type CompilationRecord struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Kind         string          `json:"kind"`
	Network      string          `json:"network"`
	ContractHash string          `json:"contract_hash"`
	BundleHash   string          `json:"bundle_hash"`
	Receipt      json.RawMessage `json:"receipt,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
