package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// ExportStatus tracks an export record through the queue. Status only
// moves forward (queued → approved → scheduled → sent) or diverts to
// cancelled/failed; sent records may additionally gain ReversedAt.
type ExportStatus string

const (
	ExportQueued    ExportStatus = "queued"
	ExportApproved  ExportStatus = "approved"
	ExportScheduled ExportStatus = "scheduled"
	ExportSent      ExportStatus = "sent"
	ExportFailed    ExportStatus = "failed"
	ExportCancelled ExportStatus = "cancelled"
)

// ActiveExportStatuses are the statuses that count toward the dedup
// invariant: at most one active export per (provider, destination).
var ActiveExportStatuses = []ExportStatus{ExportQueued, ExportApproved, ExportScheduled}

// Active reports whether the status still occupies the dedup slot.
func (s ExportStatus) Active() bool {
	return s == ExportQueued || s == ExportApproved || s == ExportScheduled
}

// ExportRecord is one candidate outbound send. Records are never
// physically deleted; failed and cancelled rows remain for audit.
type ExportRecord struct {
	ExportID         string            `json:"export_id" db:"export_id"`
	ProviderID       string            `json:"provider_id" db:"provider_id"`
	Destination      Destination       `json:"destination" db:"destination"`
	Payload          map[string]string `json:"payload" db:"payload"`
	DataLoadID       string            `json:"data_load_id,omitempty" db:"data_load_id"`
	MatchConfidence  int               `json:"match_confidence" db:"match_confidence"`
	RequiresApproval bool              `json:"requires_approval" db:"requires_approval"`
	Status           ExportStatus      `json:"status" db:"status"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy       string            `json:"approved_by,omitempty" db:"approved_by"`
	ScheduledSendAt  *time.Time        `json:"scheduled_send_at,omitempty" db:"scheduled_send_at"`
	QueuedAt         time.Time         `json:"queued_at" db:"queued_at"`
	SentAt           *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
	ExternalID       string            `json:"external_id,omitempty" db:"external_id"`
	ErrorMessage     string            `json:"error_message,omitempty" db:"error_message"`
	ReversedAt       *time.Time        `json:"reversed_at,omitempty" db:"reversed_at"`
	ReversalReason   string            `json:"reversal_reason,omitempty" db:"reversal_reason"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// ExportCandidate is the enqueue input: one golden record or event row
// proposed for a destination. ProviderID is required; candidates without
// a stable subject identity are skipped.
type ExportCandidate struct {
	ProviderID      string            `json:"provider_id"`
	MatchConfidence int               `json:"match_confidence"`
	Email           string            `json:"email,omitempty"`
	LicenseNumber   string            `json:"license_number,omitempty"`
	NPI             string            `json:"npi,omitempty"`
	Payload         map[string]string `json:"payload"`
}

// NewExportID derives an export identifier from the subject, destination
// and queue time.
func NewExportID(providerID string, dest Destination, ts time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s-%s", providerID, dest, ts.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])[:12]
}

// HistoryEntry is one row of the permanent sent ledger. The ledger is
// independent of the queue: it backs cost accounting and "sent today"
// reporting even after queue rows are cancelled or reversed.
type HistoryEntry struct {
	HistoryID     string            `json:"history_id" db:"history_id"`
	ExportID      string            `json:"export_id" db:"export_id"`
	ProviderID    string            `json:"provider_id" db:"provider_id"`
	Destination   Destination       `json:"destination" db:"destination"`
	Payload       map[string]string `json:"payload" db:"payload"`
	SentAt        time.Time         `json:"sent_at" db:"sent_at"`
	ExternalID    string            `json:"external_id,omitempty" db:"external_id"`
	EstimatedCost float64           `json:"estimated_cost" db:"estimated_cost"`
}

// NewHistoryID derives the ledger key for a sent export. One export can
// only be sent once, so the ID is deterministic on the export ID.
func NewHistoryID(exportID string) string {
	sum := md5.Sum([]byte(exportID + "-sent"))
	return hex.EncodeToString(sum[:])[:12]
}

// QueueStatus is the operator-facing queue summary.
type QueueStatus struct {
	TotalInQueue    int                               `json:"total_in_queue"`
	ByStatus        map[ExportStatus]int              `json:"by_status"`
	ByDestination   map[Destination]map[ExportStatus]int `json:"by_destination"`
	PendingApproval int                               `json:"pending_approval"`
	ReadyToSend     int                               `json:"ready_to_send"`
	SentToday       int                               `json:"total_sent_today"`
	SentAllTime     int                               `json:"total_sent_all_time"`
}
