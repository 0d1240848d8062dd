package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// LoadStatus tracks where a data load sits in the trust lifecycle.
type LoadStatus string

const (
	LoadPending     LoadStatus = "pending"
	LoadValidated   LoadStatus = "validated"
	LoadQuarantined LoadStatus = "quarantined"
	LoadPromoted    LoadStatus = "promoted"
)

// Load is one ingested batch of registry data. Loads are never deleted;
// status changes are applied as per-record updates.
type Load struct {
	LoadID           string     `json:"load_id" db:"load_id"`
	SourceType       string     `json:"source_type" db:"source_type"`
	SourceFile       string     `json:"source_file" db:"source_file"`
	Status           LoadStatus `json:"status" db:"status"`
	RowCount         int        `json:"row_count" db:"row_count"`
	RowCountPrevious *int       `json:"row_count_previous,omitempty" db:"row_count_previous"`
	QuarantineReason string     `json:"quarantine_reason,omitempty" db:"quarantine_reason"`
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty" db:"quarantined_at"`
	ExportsCancelled int        `json:"exports_cancelled" db:"exports_cancelled"`
	ExportsReversed  int        `json:"exports_reversed" db:"exports_reversed"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// NewLoadID derives a deterministic 12-character load identifier from the
// source path and ingestion timestamp. The same file ingested at the same
// instant always maps to the same load.
func NewLoadID(sourceFile string, ts time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s", sourceFile, ts.Format(time.RFC3339))))
	return hex.EncodeToString(sum[:])[:12]
}
