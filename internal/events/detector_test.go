package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

// fakeStore serves pre-built datasets keyed by state/type/date.
type fakeStore struct {
	snapshots map[string]*snapshot.Dataset
}

func (s *fakeStore) key(state, ptype, date string) string {
	return fmt.Sprintf("%s/%s/%s", state, ptype, date)
}

func (s *fakeStore) Read(_ context.Context, state, ptype, date string) (*snapshot.Dataset, error) {
	ds, ok := s.snapshots[s.key(state, ptype, date)]
	if !ok {
		return nil, snapshot.ErrNotFound
	}
	return ds, nil
}

func (s *fakeStore) ListDates(_ context.Context, state string) ([]string, error) {
	return nil, nil
}

var txHeaders = []string{"LIC_ID", "LIC_NBR", "LIC_STA_CDE", "LIC_STA_DESC", "FIRST_NME", "LAST_NME", "CITY"}

func txRow(id, nbr, status, desc, first, last, city string) []string {
	return []string{id, nbr, status, desc, first, last, city}
}

func txSource() config.SourceConfig {
	return config.SourceConfig{
		StateCode:         "TX",
		KeyFields:         []string{"LIC_ID"},
		IDField:           "LIC_ID",
		NumberField:       "LIC_NBR",
		StatusField:       "LIC_STA_CDE",
		StatusDescField:   "LIC_STA_DESC",
		FirstNameField:    "FIRST_NME",
		LastNameField:     "LAST_NME",
		CityField:         "CITY",
		ActiveStatuses:    []int{20, 46},
		LapsedStatuses:    []int{45, 60},
		ProfessionalTypes: []string{"dentist"},
		Aliases:           map[string][]string{"LAST_NME": {"LAST_MNE"}},
	}
}

func newTestDetector(snaps map[string]*snapshot.Dataset) *Detector {
	return NewDetector(&fakeStore{snapshots: snaps}, txSource())
}

func TestDetectNewLicense(t *testing.T) {
	prev := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
	})
	curr := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
		txRow("2", "200", "20", "Active", "Amit", "Patel", "Dallas"),
		txRow("3", "300", "45", "Expired", "Lee", "Wong", "Houston"),
	})
	d := newTestDetector(map[string]*snapshot.Dataset{
		"TX/dentist/2026-08-24": curr,
		"TX/dentist/2026-08-17": prev,
	})

	events, err := d.DetectAll(context.Background(), "2026-08-24", "2026-08-17", nil)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (inactive newcomer dropped)", len(events))
	}
	e := events[0]
	if e.EventType != domain.EventNewLicense {
		t.Errorf("type = %s", e.EventType)
	}
	if e.EventID != "NEW_LICENSE_TX_200_2026-08-24" {
		t.Errorf("event id = %s", e.EventID)
	}
	if e.LicenseNumber != "200" || e.FirstName != "Amit" || e.City != "Dallas" {
		t.Errorf("record fields not carried: %+v", e)
	}
	if e.Priority != domain.PriorityHigh || e.MarketingAction != "onboarding_sequence" {
		t.Errorf("routing = %s/%s", e.Priority, e.MarketingAction)
	}
}

func TestDetectStatusTransitions(t *testing.T) {
	prev := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),   // stays active
		txRow("2", "200", "20", "Active", "Amit", "Patel", "Dallas"),   // lapses
		txRow("3", "300", "45", "Expired", "Lee", "Wong", "Houston"),   // reinstates
		txRow("4", "400", "45", "Expired", "Ana", "Silva", "El Paso"),  // lapsed both sides
		txRow("5", "500", "20", "Active", "Kim", "Park", "San Antonio"), // moves within active set
	})
	curr := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
		txRow("2", "200", "45", "Expired", "Amit", "Patel", "Dallas"),
		txRow("3", "300", "20", "Active", "Lee", "Wong", "Houston"),
		txRow("4", "400", "60", "Cancelled", "Ana", "Silva", "El Paso"),
		txRow("5", "500", "46", "Active/Probate", "Kim", "Park", "San Antonio"),
	})
	d := newTestDetector(map[string]*snapshot.Dataset{
		"TX/dentist/2026-08-24": curr,
		"TX/dentist/2026-08-17": prev,
	})

	events, err := d.DetectAll(context.Background(), "2026-08-24", "2026-08-17", nil)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}

	byType := map[domain.EventType][]domain.Event{}
	for _, e := range events {
		byType[e.EventType] = append(byType[e.EventType], e)
	}
	if n := len(byType[domain.EventLapsed]); n != 1 {
		t.Fatalf("lapsed = %d, want 1", n)
	}
	if n := len(byType[domain.EventReinstated]); n != 1 {
		t.Fatalf("reinstated = %d, want 1", n)
	}
	lapsed := byType[domain.EventLapsed][0]
	if lapsed.LicenseNumber != "200" || lapsed.PreviousValue != "Active" || lapsed.CurrentValue != "Expired" {
		t.Errorf("lapsed event = %+v", lapsed)
	}
	if lapsed.MarketingAction != "suppress_or_winback" || lapsed.Priority != domain.PriorityMedium {
		t.Errorf("lapsed routing = %s/%s", lapsed.Priority, lapsed.MarketingAction)
	}
	re := byType[domain.EventReinstated][0]
	if re.LicenseNumber != "300" || re.MarketingAction != "reengagement_sequence" {
		t.Errorf("reinstated event = %+v", re)
	}
}

func TestDetectIdempotentEventIDs(t *testing.T) {
	prev := snapshot.NewDataset(txHeaders, nil)
	curr := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
	})
	snaps := map[string]*snapshot.Dataset{
		"TX/dentist/2026-08-24": curr,
		"TX/dentist/2026-08-17": prev,
	}

	first, _ := newTestDetector(snaps).DetectAll(context.Background(), "2026-08-24", "2026-08-17", nil)
	second, _ := newTestDetector(snaps).DetectAll(context.Background(), "2026-08-24", "2026-08-17", nil)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("events = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].EventID != second[0].EventID {
		t.Errorf("re-run changed event id: %s vs %s", first[0].EventID, second[0].EventID)
	}
}

func TestDetectSkipsMissingSnapshot(t *testing.T) {
	curr := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
	})
	// No previous snapshot for dentist, nothing at all for hygienist.
	d := newTestDetector(map[string]*snapshot.Dataset{
		"TX/dentist/2026-08-24": curr,
	})

	events, err := d.DetectAll(context.Background(), "2026-08-24", "2026-08-17", []string{"dentist", "hygienist"})
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0 when snapshots are missing", len(events))
	}
}

func TestDetectResolvesHeaderAlias(t *testing.T) {
	// The previous snapshot still carries the registry's misspelled
	// last-name header.
	aliasHeaders := []string{"LIC_ID", "LIC_NBR", "LIC_STA_CDE", "LIC_STA_DESC", "FIRST_NME", "LAST_MNE", "CITY"}
	prev := snapshot.NewDataset(aliasHeaders, [][]string{
		txRow("1", "100", "20", "Active", "Jane", "Smith", "Austin"),
	})
	curr := snapshot.NewDataset(txHeaders, [][]string{
		txRow("1", "100", "45", "Expired", "Jane", "Smith", "Austin"),
	})
	d := newTestDetector(map[string]*snapshot.Dataset{
		"TX/dentist/2026-08-24": curr,
		"TX/dentist/2026-08-17": prev,
	})

	events, err := d.DetectAll(context.Background(), "2026-08-24", "2026-08-17", nil)
	if err != nil {
		t.Fatalf("DetectAll: %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventLapsed {
		t.Fatalf("events = %+v, want one LAPSED despite header alias", events)
	}
}
