// Package events turns two dated snapshots into typed business events.
// Detection is deterministic and idempotent: the same snapshot pair
// always yields the same event IDs, so consumers can de-duplicate.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

// Detector diffs snapshots for one source type (one state registry).
type Detector struct {
	store  snapshot.Store
	source config.SourceConfig
	active map[int]bool
	lapsed map[int]bool
}

// NewDetector creates a detector for the given source. The status-code
// sets in use are logged up front: they are configuration, not checked
// against the live registry, and a renumbered code list would silently
// stop transitions from firing.
func NewDetector(store snapshot.Store, source config.SourceConfig) *Detector {
	d := &Detector{
		store:  store,
		source: source,
		active: map[int]bool{},
		lapsed: map[int]bool{},
	}
	for _, c := range source.ActiveStatuses {
		d.active[c] = true
	}
	for _, c := range source.LapsedStatuses {
		d.lapsed[c] = true
	}
	logger.Info("event detector status sets",
		"state", source.StateCode,
		"active_statuses", fmt.Sprint(source.ActiveStatuses),
		"lapsed_statuses", fmt.Sprint(source.LapsedStatuses))
	return d
}

// DetectAll runs detection for every professional type across the
// snapshot pair. A missing snapshot or a missing required column skips
// that type with a warning; it never fails the whole run.
func (d *Detector) DetectAll(ctx context.Context, currentDate, previousDate string, types []string) ([]domain.Event, error) {
	if len(types) == 0 {
		types = d.source.ProfessionalTypes
	}

	var all []domain.Event
	for _, ptype := range types {
		current, err := d.loadRecords(ctx, ptype, currentDate)
		if err != nil {
			logger.Warn("skipping professional type: current snapshot unusable",
				"type", ptype, "date", currentDate, "error", err.Error())
			continue
		}
		previous, err := d.loadRecords(ctx, ptype, previousDate)
		if err != nil {
			logger.Warn("skipping professional type: previous snapshot unusable",
				"type", ptype, "date", previousDate, "error", err.Error())
			continue
		}

		newEvents := d.detectNewLicenses(current, previous, ptype, currentDate)
		statusEvents := d.detectStatusChanges(current, previous, ptype, currentDate)
		logger.Info("detection complete for type",
			"type", ptype,
			"current_rows", len(current), "previous_rows", len(previous),
			"new_license", len(newEvents), "status_changes", len(statusEvents))

		all = append(all, newEvents...)
		all = append(all, statusEvents...)
	}
	return all, nil
}

func (d *Detector) loadRecords(ctx context.Context, ptype, date string) ([]domain.LicenseRecord, error) {
	ds, err := d.store.Read(ctx, d.source.StateCode, ptype, date)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	recs, err := snapshot.MapRecords(ds, d.source)
	if err != nil {
		return nil, fmt.Errorf("map columns: %w", err)
	}
	return recs, nil
}

// detectNewLicenses emits NEW_LICENSE for identifiers present in the
// current snapshot but not the previous one. A record appearing for
// the first time already inactive is not a marketing opportunity and
// is dropped.
func (d *Detector) detectNewLicenses(current, previous []domain.LicenseRecord, ptype, snapshotDate string) []domain.Event {
	prevNumbers := make(map[string]bool, len(previous))
	for _, r := range previous {
		if r.LicenseNumber != "" {
			prevNumbers[r.LicenseNumber] = true
		}
	}

	now := time.Now().UTC()
	var events []domain.Event
	for _, r := range current {
		if r.LicenseNumber == "" || prevNumbers[r.LicenseNumber] {
			continue
		}
		if !d.active[r.StatusCode] {
			continue
		}
		events = append(events, domain.Event{
			EventID:          domain.NewEventID(domain.EventNewLicense, d.source.StateCode, r.LicenseNumber, snapshotDate),
			EventType:        domain.EventNewLicense,
			Timestamp:        now,
			StateCode:        d.source.StateCode,
			ProfessionalType: ptype,
			LicenseNumber:    r.LicenseNumber,
			FirstName:        r.FirstName,
			LastName:         r.LastName,
			City:             r.City,
			County:           r.County,
			ZipCode:          r.ZipCode,
			CurrentValue:     r.StatusDesc,
			Priority:         domain.PriorityHigh,
			MarketingAction:  "onboarding_sequence",
			RawData:          rawFields(r),
		})
	}
	return events
}

// detectStatusChanges inner-joins the two snapshots on license number
// and classifies active→lapsed and lapsed→active transitions. Any
// other status movement is ignored by this rule family.
func (d *Detector) detectStatusChanges(current, previous []domain.LicenseRecord, ptype, snapshotDate string) []domain.Event {
	prevByNumber := make(map[string]domain.LicenseRecord, len(previous))
	for _, r := range previous {
		if r.LicenseNumber != "" {
			prevByNumber[r.LicenseNumber] = r
		}
	}

	now := time.Now().UTC()
	var events []domain.Event
	for _, curr := range current {
		prev, ok := prevByNumber[curr.LicenseNumber]
		if !ok || prev.StatusCode == curr.StatusCode {
			continue
		}

		switch {
		case d.active[prev.StatusCode] && d.lapsed[curr.StatusCode]:
			events = append(events, d.statusEvent(domain.EventLapsed, curr, prev, ptype, snapshotDate, now,
				domain.PriorityMedium, "suppress_or_winback"))
		case d.lapsed[prev.StatusCode] && d.active[curr.StatusCode]:
			events = append(events, d.statusEvent(domain.EventReinstated, curr, prev, ptype, snapshotDate, now,
				domain.PriorityHigh, "reengagement_sequence"))
		}
	}
	return events
}

func (d *Detector) statusEvent(t domain.EventType, curr, prev domain.LicenseRecord, ptype, snapshotDate string, now time.Time, priority domain.Priority, action string) domain.Event {
	return domain.Event{
		EventID:          domain.NewEventID(t, d.source.StateCode, curr.LicenseNumber, snapshotDate),
		EventType:        t,
		Timestamp:        now,
		StateCode:        d.source.StateCode,
		ProfessionalType: ptype,
		LicenseNumber:    curr.LicenseNumber,
		FirstName:        curr.FirstName,
		LastName:         curr.LastName,
		City:             curr.City,
		County:           curr.County,
		ZipCode:          curr.ZipCode,
		PreviousValue:    prev.StatusDesc,
		CurrentValue:     curr.StatusDesc,
		Priority:         priority,
		MarketingAction:  action,
	}
}

func rawFields(r domain.LicenseRecord) map[string]string {
	raw := map[string]string{
		"license_id":  r.LicenseID,
		"status_code": fmt.Sprintf("%d", r.StatusCode),
	}
	for k, v := range r.Extra {
		raw[k] = v
	}
	return raw
}
