package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/distlock"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

// Senders resolves the outbound adapter for a destination. Satisfied by
// *destination.Registry.
type Senders interface {
	Sender(dest domain.Destination) (destination.Sender, error)
}

// Service implements export queue business logic. It is safe for
// concurrent use.
// LockFactory creates the named lock guarding one send pass.
type LockFactory func(key string) distlock.Lock

type Service struct {
	repo         Repository
	suppressions Suppressions
	senders      Senders
	limiter      *destination.RateLimiter
	destinations map[domain.Destination]domain.DestinationConfig
	concurrency  int
	locks        LockFactory
	now          func() time.Time
}

// NewService creates an export queue service. limiter may be nil, which
// disables rate limiting. concurrency bounds the send worker pool; it
// defaults to 4.
func NewService(repo Repository, suppressions Suppressions, senders Senders, limiter *destination.RateLimiter, destinations map[domain.Destination]domain.DestinationConfig, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		repo:         repo,
		suppressions: suppressions,
		senders:      senders,
		limiter:      limiter,
		destinations: destinations,
		concurrency:  concurrency,
		now:          time.Now,
	}
}

// SetLockFactory enables per-destination send locking. Without it two
// concurrent send passes can read the same approved rows and deliver
// them twice; the CLIs and the server wire a Redis or advisory lock.
func (s *Service) SetLockFactory(f LockFactory) { s.locks = f }

func (s *Service) destConfig(dest domain.Destination) (domain.DestinationConfig, error) {
	cfg, ok := s.destinations[dest]
	if !ok {
		return domain.DestinationConfig{}, fmt.Errorf("%w: %q", ErrUnknownDestination, dest)
	}
	return cfg, nil
}

// EnqueueResult counts what happened to each candidate in one enqueue
// pass.
type EnqueueResult struct {
	Queued       int `json:"queued"`
	AutoApproved int `json:"auto_approved"`
	Suppressed   int `json:"suppressed"`
	Skipped      int `json:"skipped"`
}

// Enqueue adds candidates to the queue for one destination. Candidates
// without a provider ID are skipped, suppressed candidates are dropped,
// and a candidate with an active export for the same destination is
// skipped to hold the one-active-export invariant. High-confidence
// candidates on auto-approve destinations skip the manual approval step;
// destinations with a cooling-off delay get a scheduled send time.
func (s *Service) Enqueue(ctx context.Context, candidates []domain.ExportCandidate, dest domain.Destination, loadID string) (*EnqueueResult, error) {
	cfg, err := s.destConfig(dest)
	if err != nil {
		return nil, err
	}

	entries, err := s.suppressions.ActiveEntries(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("load suppressions: %w", err)
	}

	result := &EnqueueResult{}
	for _, c := range candidates {
		if c.ProviderID == "" {
			result.Skipped++
			continue
		}
		if suppressed(entries, c, dest) {
			result.Suppressed++
			continue
		}

		exists, err := s.repo.ActiveExportExists(ctx, c.ProviderID, dest)
		if err != nil {
			return nil, fmt.Errorf("check active export: %w", err)
		}
		if exists {
			result.Skipped++
			continue
		}

		now := s.now()
		autoApprove := cfg.AutoApprove && c.MatchConfidence >= cfg.MinConfidenceForAuto

		rec := &domain.ExportRecord{
			ExportID:         domain.NewExportID(c.ProviderID, dest, now),
			ProviderID:       c.ProviderID,
			Destination:      dest,
			Payload:          c.Payload,
			DataLoadID:       loadID,
			MatchConfidence:  c.MatchConfidence,
			RequiresApproval: !autoApprove,
			Status:           domain.ExportQueued,
			QueuedAt:         now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if autoApprove {
			rec.Status = domain.ExportApproved
			rec.ApprovedAt = &now
			rec.ApprovedBy = "auto"
		}
		if cfg.DelayHours > 0 {
			at := now.Add(time.Duration(cfg.DelayHours) * time.Hour)
			rec.ScheduledSendAt = &at
		}

		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("create export %s: %w", rec.ExportID, err)
		}
		result.Queued++
		if autoApprove {
			result.AutoApproved++
		}
	}

	logger.Info("enqueue complete",
		"destination", string(dest), "load_id", loadID,
		"queued", result.Queued, "auto_approved", result.AutoApproved,
		"suppressed", result.Suppressed, "skipped", result.Skipped)
	return result, nil
}

func suppressed(entries []domain.SuppressionEntry, c domain.ExportCandidate, dest domain.Destination) bool {
	for _, e := range entries {
		if e.Matches(c, dest) {
			return true
		}
	}
	return false
}

// PendingApproval returns queued exports awaiting a human decision.
func (s *Service) PendingApproval(ctx context.Context, dest domain.Destination, limit int) ([]domain.ExportRecord, error) {
	return s.repo.GetPendingApproval(ctx, dest, limit)
}

// Approve transitions queued exports to approved. With an empty filter
// it approves everything queued; AutoApprove applies the destination's
// confidence floor instead.
func (s *Service) Approve(ctx context.Context, f ApproveFilter, approver string) (int, error) {
	if approver == "" {
		approver = "manual"
	}
	n, err := s.repo.Approve(ctx, f, approver, s.now())
	if err != nil {
		return 0, err
	}
	logger.Info("exports approved", "count", n, "approver", approver, "destination", string(f.Destination))
	return n, nil
}

// AutoApprove approves queued exports for a destination at or above its
// configured confidence floor.
func (s *Service) AutoApprove(ctx context.Context, dest domain.Destination) (int, error) {
	cfg, err := s.destConfig(dest)
	if err != nil {
		return 0, err
	}
	return s.Approve(ctx, ApproveFilter{
		Destination:   dest,
		MinConfidence: cfg.MinConfidenceForAuto,
	}, "auto")
}

// SendResult summarizes one send pass.
type SendResult struct {
	Ready       int  `json:"ready"`
	Sent        int  `json:"sent"`
	Failed      int  `json:"failed"`
	RateLimited int  `json:"rate_limited"`
	DryRun      bool `json:"dry_run,omitempty"`
}

// Send delivers approved exports whose scheduled time has passed. A
// bounded worker pool drives the destination adapter; one failed export
// is marked failed and the pass continues. Rate-limited exports stay
// approved and are picked up by a later pass. With dryRun the pass
// reports what it would send and touches nothing.
func (s *Service) Send(ctx context.Context, dest domain.Destination, limit int, dryRun bool) (*SendResult, error) {
	cfg, err := s.destConfig(dest)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	if s.locks != nil && !dryRun {
		lock := s.locks("exportq:send:" + string(dest))
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire send lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSendInProgress, dest)
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("release send lock", "destination", string(dest), "error", err.Error())
			}
		}()
	}

	ready, err := s.repo.GetReadyToSend(ctx, dest, limit, s.now())
	if err != nil {
		return nil, fmt.Errorf("get ready to send: %w", err)
	}

	result := &SendResult{Ready: len(ready), DryRun: dryRun}
	if len(ready) == 0 {
		return result, nil
	}
	if dryRun {
		for _, rec := range ready {
			logger.Info("dry run: would send", "export_id", rec.ExportID, "provider_id", rec.ProviderID, "destination", string(dest))
		}
		return result, nil
	}

	sender, err := s.senders.Sender(dest)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan domain.ExportRecord)
	)
	workers := s.concurrency
	if workers > len(ready) {
		workers = len(ready)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				outcome := s.sendOne(ctx, sender, cfg, rec)
				mu.Lock()
				switch outcome {
				case sendOK:
					result.Sent++
				case sendFailed:
					result.Failed++
				case sendRateLimited:
					result.RateLimited++
				}
				mu.Unlock()
			}
		}()
	}
	for _, rec := range ready {
		work <- rec
	}
	close(work)
	wg.Wait()

	logger.Info("send pass complete",
		"destination", string(dest),
		"ready", result.Ready, "sent", result.Sent,
		"failed", result.Failed, "rate_limited", result.RateLimited)
	return result, nil
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendFailed
	sendRateLimited
)

func (s *Service) sendOne(ctx context.Context, sender destination.Sender, cfg domain.DestinationConfig, rec domain.ExportRecord) sendOutcome {
	if ok, reason := s.limiter.Allow(ctx, rec.Destination, cfg); !ok {
		logger.Warn("send deferred by rate limit", "export_id", rec.ExportID, "reason", reason)
		return sendRateLimited
	}

	externalID, err := sender.Send(ctx, &rec)
	now := s.now()
	if err != nil {
		logger.Warn("send failed", "export_id", rec.ExportID, "provider_id", rec.ProviderID, "error", err.Error())
		if markErr := s.repo.MarkFailed(ctx, rec.ExportID, err.Error(), now); markErr != nil {
			logger.Error("mark failed", "export_id", rec.ExportID, "error", markErr.Error())
		}
		return sendFailed
	}

	if err := s.repo.MarkSent(ctx, rec.ExportID, externalID, now); err != nil {
		logger.Error("mark sent", "export_id", rec.ExportID, "error", err.Error())
		return sendFailed
	}
	if err := s.repo.RecordHistory(ctx, &domain.HistoryEntry{
		HistoryID:     domain.NewHistoryID(rec.ExportID),
		ExportID:      rec.ExportID,
		ProviderID:    rec.ProviderID,
		Destination:   rec.Destination,
		Payload:       rec.Payload,
		SentAt:        now,
		ExternalID:    externalID,
		EstimatedCost: cfg.CostPerRecord,
	}); err != nil {
		logger.Error("record history", "export_id", rec.ExportID, "error", err.Error())
	}
	return sendOK
}

// Status returns the operator-facing queue summary.
func (s *Service) Status(ctx context.Context) (*domain.QueueStatus, error) {
	return s.repo.Status(ctx, s.now())
}

// AddSuppression blocks an identity from future exports. At least one
// identity field is required; dest empty means the block is global.
func (s *Service) AddSuppression(ctx context.Context, email, licenseNumber, npi string, dest domain.Destination, reason string) error {
	if email == "" && licenseNumber == "" && npi == "" {
		return fmt.Errorf("at least one of email, license number or NPI is required")
	}
	if reason == "" {
		reason = "manual"
	}
	return s.suppressions.Add(ctx, &domain.SuppressionEntry{
		SuppressionID: domain.NewSuppressionID(email, licenseNumber, npi),
		Email:         email,
		LicenseNumber: licenseNumber,
		NPI:           npi,
		Destination:   dest,
		Reason:        reason,
		IsActive:      true,
		CreatedAt:     s.now(),
	})
}
