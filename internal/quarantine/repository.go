package quarantine

import (
	"context"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// Loads is the data access contract for the load registry.
type Loads interface {
	// Get returns one load, or ErrLoadNotFound.
	Get(ctx context.Context, loadID string) (*domain.Load, error)

	// Register inserts a new load row.
	Register(ctx context.Context, l *domain.Load) error

	// MarkQuarantined flips the load to quarantined with the reason.
	MarkQuarantined(ctx context.Context, loadID, reason string, at time.Time) error

	// SetQuarantineCounts records how many exports were cancelled and
	// reversed by the quarantine pass.
	SetQuarantineCounts(ctx context.Context, loadID string, cancelled, reversed int) error

	// ListQuarantined returns all quarantined loads, newest first.
	ListQuarantined(ctx context.Context) ([]domain.Load, error)
}

// Exports is the slice of the export store the quarantine pass needs.
type Exports interface {
	// ForLoad returns the load's exports in any of the given statuses.
	ForLoad(ctx context.Context, loadID string, statuses ...domain.ExportStatus) ([]domain.ExportRecord, error)

	// Cancel transitions an export to cancelled with the reason.
	Cancel(ctx context.Context, exportID, reason string, at time.Time) error

	// MarkReversed stamps a sent export as reversed. Status stays sent;
	// the reversal timestamp is the audit marker.
	MarkReversed(ctx context.Context, exportID, reason string, at time.Time) error
}
