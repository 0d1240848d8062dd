package queue

import (
	"context"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// Repository defines the data access contract for export queue rows and
// the sent-history ledger.
type Repository interface {
	// Create inserts a new export row.
	Create(ctx context.Context, rec *domain.ExportRecord) error

	// Get returns one export by ID, or ErrNotFound.
	Get(ctx context.Context, exportID string) (*domain.ExportRecord, error)

	// ActiveExportExists reports whether the subject already has a
	// queued, approved or scheduled export for the destination.
	ActiveExportExists(ctx context.Context, providerID string, dest domain.Destination) (bool, error)

	// GetPendingApproval returns queued exports, optionally filtered by
	// destination.
	GetPendingApproval(ctx context.Context, dest domain.Destination, limit int) ([]domain.ExportRecord, error)

	// GetReadyToSend returns approved exports whose scheduled send time
	// (if any) is at or before now.
	GetReadyToSend(ctx context.Context, dest domain.Destination, limit int, now time.Time) ([]domain.ExportRecord, error)

	// Approve transitions matching queued exports to approved and
	// returns how many rows changed.
	Approve(ctx context.Context, f ApproveFilter, approver string, at time.Time) (int, error)

	// MarkSent transitions an export to sent with its external ID.
	MarkSent(ctx context.Context, exportID, externalID string, at time.Time) error

	// MarkFailed transitions an export to failed with the error text.
	// Failed exports stay failed; nothing re-drives them automatically.
	MarkFailed(ctx context.Context, exportID, errMsg string, at time.Time) error

	// RecordHistory appends one row to the permanent sent ledger.
	RecordHistory(ctx context.Context, h *domain.HistoryEntry) error

	// Status returns the operator-facing queue summary. "Today" is the
	// calendar date of now.
	Status(ctx context.Context, now time.Time) (*domain.QueueStatus, error)
}

// ApproveFilter selects which queued exports an approval touches. Empty
// fields match everything; MinConfidence zero means no floor.
type ApproveFilter struct {
	ExportIDs     []string
	Destination   domain.Destination
	MinConfidence int
}

// Suppressions is the read/write contract for the do-not-contact list.
type Suppressions interface {
	// ActiveEntries returns entries that apply to the destination:
	// destination-scoped matches plus global (unscoped) ones.
	ActiveEntries(ctx context.Context, dest domain.Destination) ([]domain.SuppressionEntry, error)

	// Add inserts a new suppression entry.
	Add(ctx context.Context, e *domain.SuppressionEntry) error
}
