package quarantine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

// Reversers resolves the undo adapter for a destination. Satisfied by
// *destination.Registry.
type Reversers interface {
	Reverser(dest domain.Destination) (destination.Reverser, error)
}

// Service implements quarantine and rollback logic.
type Service struct {
	loads        Loads
	exports      Exports
	reversers    Reversers
	destinations map[domain.Destination]domain.DestinationConfig
	now          func() time.Time
}

// NewService creates a quarantine service. destinations is the same
// policy table the export queue uses, so both sides agree on which
// channels are reversible.
func NewService(loads Loads, exports Exports, reversers Reversers, destinations map[domain.Destination]domain.DestinationConfig) *Service {
	return &Service{
		loads:        loads,
		exports:      exports,
		reversers:    reversers,
		destinations: destinations,
		now:          time.Now,
	}
}

// Quarantine isolates a load and rolls back its downstream effects.
// Pending exports (queued, approved, scheduled) are always cancelled;
// sent exports are reversed only when reverseExports is set. A load ID
// that is not in the registry still gets a quarantine row, so the
// quarantine takes effect even when registration was skipped.
func (s *Service) Quarantine(ctx context.Context, loadID, reason string, reverseExports bool) (*domain.QuarantineResult, error) {
	if loadID == "" {
		return nil, fmt.Errorf("load id is required")
	}
	if reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	now := s.now()
	if err := s.markLoad(ctx, loadID, reason, now); err != nil {
		return nil, err
	}

	cancelled, err := s.cancelPending(ctx, loadID, reason, now)
	if err != nil {
		return nil, err
	}

	var (
		reversed int
		failures []domain.ReversalFailure
	)
	if reverseExports {
		reversed, failures, err = s.reverseSent(ctx, loadID, reason)
		if err != nil {
			return nil, err
		}
	}

	if err := s.loads.SetQuarantineCounts(ctx, loadID, cancelled, reversed); err != nil {
		return nil, fmt.Errorf("update load counts: %w", err)
	}

	logger.Info("quarantine complete",
		"load_id", loadID,
		"cancelled", cancelled, "reversed", reversed, "failed_reversal", len(failures))

	return &domain.QuarantineResult{
		LoadID:                loadID,
		QuarantinedAt:         now.UTC().Format(time.RFC3339),
		Reason:                reason,
		ExportsCancelled:      cancelled,
		ExportsReversed:       reversed,
		ExportsFailedReversal: len(failures),
		ReversalFailures:      failures,
	}, nil
}

func (s *Service) markLoad(ctx context.Context, loadID, reason string, now time.Time) error {
	_, err := s.loads.Get(ctx, loadID)
	switch {
	case err == nil:
		if err := s.loads.MarkQuarantined(ctx, loadID, reason, now); err != nil {
			return fmt.Errorf("mark load quarantined: %w", err)
		}
	case errors.Is(err, ErrLoadNotFound):
		logger.Warn("load not in registry, creating quarantine entry", "load_id", loadID)
		q := now
		if err := s.loads.Register(ctx, &domain.Load{
			LoadID:           loadID,
			Status:           domain.LoadQuarantined,
			QuarantineReason: reason,
			QuarantinedAt:    &q,
			CreatedAt:        now,
			UpdatedAt:        now,
		}); err != nil {
			return fmt.Errorf("register quarantined load: %w", err)
		}
	default:
		return fmt.Errorf("get load: %w", err)
	}
	return nil
}

func (s *Service) cancelPending(ctx context.Context, loadID, reason string, now time.Time) (int, error) {
	pending, err := s.exports.ForLoad(ctx, loadID, domain.ActiveExportStatuses...)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	cancelled := 0
	for _, e := range pending {
		if err := s.exports.Cancel(ctx, e.ExportID, "Source load quarantined: "+reason, now); err != nil {
			return cancelled, fmt.Errorf("cancel export %s: %w", e.ExportID, err)
		}
		cancelled++
		logger.Info("export cancelled", "export_id", e.ExportID, "destination", string(e.Destination))
	}
	return cancelled, nil
}

func (s *Service) reverseSent(ctx context.Context, loadID, reason string) (int, []domain.ReversalFailure, error) {
	sent, err := s.exports.ForLoad(ctx, loadID, domain.ExportSent)
	if err != nil {
		return 0, nil, fmt.Errorf("list sent exports: %w", err)
	}

	reversed := 0
	var failures []domain.ReversalFailure
	for _, e := range sent {
		if e.ReversedAt != nil {
			continue
		}

		// The policy table gates before the adapter is consulted, so a
		// destination marked non-reversible is never even attempted.
		cfg, ok := s.destinations[e.Destination]
		if !ok {
			logger.Warn("no policy for destination, skipping reversal",
				"export_id", e.ExportID, "destination", string(e.Destination))
			continue
		}
		if !cfg.IsReversible {
			failures = append(failures, domain.ReversalFailure{
				ExportID:    e.ExportID,
				Destination: e.Destination,
				Reason:      "Destination does not support reversal",
			})
			continue
		}

		rv, err := s.reversers.Reverser(e.Destination)
		if err != nil {
			failures = append(failures, domain.ReversalFailure{
				ExportID:    e.ExportID,
				Destination: e.Destination,
				Reason:      "Destination does not support reversal",
			})
			continue
		}

		if err := rv.Reverse(ctx, &e); err != nil {
			why := "Reversal failed: " + err.Error()
			if errors.Is(err, destination.ErrAlreadyDelivered) {
				why = "Already delivered, cannot cancel"
			}
			failures = append(failures, domain.ReversalFailure{
				ExportID:    e.ExportID,
				Destination: e.Destination,
				Reason:      why,
			})
			logger.Warn("reversal failed", "export_id", e.ExportID, "destination", string(e.Destination), "error", err.Error())
			continue
		}

		if err := s.exports.MarkReversed(ctx, e.ExportID, "Source load quarantined: "+reason, s.now()); err != nil {
			return reversed, failures, fmt.Errorf("mark reversed %s: %w", e.ExportID, err)
		}
		reversed++
		logger.Info("export reversed", "export_id", e.ExportID, "destination", string(e.Destination))
	}
	return reversed, failures, nil
}

// ListQuarantined returns all quarantined loads for operator review.
func (s *Service) ListQuarantined(ctx context.Context) ([]domain.Load, error) {
	return s.loads.ListQuarantined(ctx)
}
