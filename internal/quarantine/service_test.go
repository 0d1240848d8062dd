package quarantine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// mockLoads is an in-memory load registry.
type mockLoads struct {
	mu    sync.RWMutex
	loads map[string]*domain.Load
}

func newMockLoads() *mockLoads {
	return &mockLoads{loads: make(map[string]*domain.Load)}
}

func (m *mockLoads) Get(_ context.Context, loadID string) (*domain.Load, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loads[loadID]
	if !ok {
		return nil, ErrLoadNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLoads) Register(_ context.Context, l *domain.Load) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.loads[l.LoadID] = &cp
	return nil
}

func (m *mockLoads) MarkQuarantined(_ context.Context, loadID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loads[loadID]
	if !ok {
		return ErrLoadNotFound
	}
	l.Status = domain.LoadQuarantined
	l.QuarantineReason = reason
	l.QuarantinedAt = &at
	return nil
}

func (m *mockLoads) SetQuarantineCounts(_ context.Context, loadID string, cancelled, reversed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loads[loadID]
	if !ok {
		return ErrLoadNotFound
	}
	l.ExportsCancelled = cancelled
	l.ExportsReversed = reversed
	return nil
}

func (m *mockLoads) ListQuarantined(_ context.Context) ([]domain.Load, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Load
	for _, l := range m.loads {
		if l.Status == domain.LoadQuarantined {
			out = append(out, *l)
		}
	}
	return out, nil
}

// mockExports is an in-memory export store.
type mockExports struct {
	mu      sync.RWMutex
	exports map[string]*domain.ExportRecord
}

func newMockExports() *mockExports {
	return &mockExports{exports: make(map[string]*domain.ExportRecord)}
}

func (m *mockExports) add(exportID, loadID string, dest domain.Destination, status domain.ExportStatus, externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[exportID] = &domain.ExportRecord{
		ExportID:    exportID,
		ProviderID:  "prov-" + exportID,
		Destination: dest,
		DataLoadID:  loadID,
		Status:      status,
		ExternalID:  externalID,
	}
}

func (m *mockExports) ForLoad(_ context.Context, loadID string, statuses ...domain.ExportStatus) ([]domain.ExportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[domain.ExportStatus]bool)
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.ExportRecord
	for _, e := range m.exports {
		if e.DataLoadID == loadID && want[e.Status] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockExports) Cancel(_ context.Context, exportID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exports[exportID]
	if !ok {
		return fmt.Errorf("export %s not found", exportID)
	}
	e.Status = domain.ExportCancelled
	e.ErrorMessage = reason
	return nil
}

func (m *mockExports) MarkReversed(_ context.Context, exportID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exports[exportID]
	if !ok {
		return fmt.Errorf("export %s not found", exportID)
	}
	e.ReversedAt = &at
	e.ReversalReason = reason
	return nil
}

func (m *mockExports) byStatus(status domain.ExportStatus) []*domain.ExportRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ExportRecord
	for _, e := range m.exports {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// stubReverser succeeds or fails per external ID.
type stubReverser struct {
	mu       sync.Mutex
	reversed []string
	failFor  map[string]error
}

func (r *stubReverser) Reverse(_ context.Context, rec *domain.ExportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[rec.ExternalID]; ok {
		return err
	}
	r.reversed = append(r.reversed, rec.ExternalID)
	return nil
}

// stubReversers only has an adapter for reversible destinations.
type stubReversers struct{ reverser destination.Reverser }

func (s stubReversers) Reverser(dest domain.Destination) (destination.Reverser, error) {
	switch dest {
	case domain.DestGHL, domain.DestLobPostcard, domain.DestLobLetter:
		return s.reverser, nil
	}
	return nil, destination.ErrNotReversible
}

func testDestinations() map[domain.Destination]domain.DestinationConfig {
	return map[domain.Destination]domain.DestinationConfig{
		domain.DestGHL:         {Name: domain.DestGHL, IsReversible: true},
		domain.DestInstantly:   {Name: domain.DestInstantly, IsReversible: false},
		domain.DestLobPostcard: {Name: domain.DestLobPostcard, IsReversible: true},
		domain.DestWebhook:     {Name: domain.DestWebhook, IsReversible: false},
	}
}

func TestQuarantineCancelsAllPendingStatuses(t *testing.T) {
	loads := newMockLoads()
	loads.Register(context.Background(), &domain.Load{LoadID: "load-1", Status: domain.LoadValidated})

	exports := newMockExports()
	exports.add("e1", "load-1", domain.DestGHL, domain.ExportQueued, "")
	exports.add("e2", "load-1", domain.DestGHL, domain.ExportQueued, "")
	exports.add("e3", "load-1", domain.DestInstantly, domain.ExportQueued, "")
	exports.add("e4", "load-1", domain.DestGHL, domain.ExportApproved, "")
	exports.add("e5", "load-1", domain.DestLobPostcard, domain.ExportApproved, "")
	exports.add("e6", "load-1", domain.DestLobPostcard, domain.ExportScheduled, "")
	exports.add("e7", "load-1", domain.DestGHL, domain.ExportSent, "ext-7")
	exports.add("e8", "load-2", domain.DestGHL, domain.ExportQueued, "")

	svc := NewService(loads, exports, stubReversers{&stubReverser{}}, testDestinations())
	res, err := svc.Quarantine(context.Background(), "load-1", "Corrupt source file", false)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}

	if res.ExportsCancelled != 6 {
		t.Errorf("cancelled = %d, want 6", res.ExportsCancelled)
	}
	if res.ExportsReversed != 0 {
		t.Errorf("reversed = %d without --reverse-exports", res.ExportsReversed)
	}

	// Sent export untouched, other load untouched.
	if got := len(exports.byStatus(domain.ExportSent)); got != 1 {
		t.Errorf("sent rows = %d", got)
	}
	if exports.exports["e8"].Status != domain.ExportQueued {
		t.Error("export from another load was cancelled")
	}
	if exports.exports["e1"].ErrorMessage == "" {
		t.Error("cancelled export missing reason")
	}

	l, _ := loads.Get(context.Background(), "load-1")
	if l.Status != domain.LoadQuarantined || l.ExportsCancelled != 6 {
		t.Errorf("load = %+v", l)
	}
}

func TestQuarantineReversesOnlyReversibleDestinations(t *testing.T) {
	loads := newMockLoads()
	loads.Register(context.Background(), &domain.Load{LoadID: "load-1", Status: domain.LoadValidated})

	exports := newMockExports()
	exports.add("e1", "load-1", domain.DestGHL, domain.ExportSent, "ghl-1")
	exports.add("e2", "load-1", domain.DestInstantly, domain.ExportSent, "lead-2")
	exports.add("e3", "load-1", domain.DestWebhook, domain.ExportSent, "wh-3")
	exports.add("e4", "load-1", domain.DestLobPostcard, domain.ExportSent, "psc-4")

	reverser := &stubReverser{failFor: map[string]error{
		"psc-4": destination.ErrAlreadyDelivered,
	}}
	svc := NewService(loads, exports, stubReversers{reverser}, testDestinations())
	res, err := svc.Quarantine(context.Background(), "load-1", "Bad data", true)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}

	if res.ExportsReversed != 1 {
		t.Errorf("reversed = %d, want 1 (only ghl)", res.ExportsReversed)
	}
	if res.ExportsFailedReversal != 3 {
		t.Errorf("failed = %d, want 3", res.ExportsFailedReversal)
	}

	// Non-reversible destinations were never attempted.
	if len(reverser.reversed) != 1 || reverser.reversed[0] != "ghl-1" {
		t.Errorf("reverser calls = %v", reverser.reversed)
	}

	byExport := make(map[string]domain.ReversalFailure)
	for _, f := range res.ReversalFailures {
		byExport[f.ExportID] = f
	}
	if byExport["e2"].Reason != "Destination does not support reversal" {
		t.Errorf("e2 reason = %q", byExport["e2"].Reason)
	}
	if byExport["e4"].Reason != "Already delivered, cannot cancel" {
		t.Errorf("e4 reason = %q", byExport["e4"].Reason)
	}

	if exports.exports["e1"].ReversedAt == nil {
		t.Error("reversed export missing reversed_at")
	}
	if exports.exports["e1"].Status != domain.ExportSent {
		t.Error("reversal should not change status away from sent")
	}
	if exports.exports["e2"].ReversedAt != nil {
		t.Error("failed reversal should not stamp reversed_at")
	}
}

func TestQuarantineSkipsAlreadyReversed(t *testing.T) {
	loads := newMockLoads()
	loads.Register(context.Background(), &domain.Load{LoadID: "load-1", Status: domain.LoadValidated})

	exports := newMockExports()
	exports.add("e1", "load-1", domain.DestGHL, domain.ExportSent, "ghl-1")
	at := time.Now()
	exports.exports["e1"].ReversedAt = &at

	reverser := &stubReverser{}
	svc := NewService(loads, exports, stubReversers{reverser}, testDestinations())
	res, err := svc.Quarantine(context.Background(), "load-1", "again", true)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if res.ExportsReversed != 0 || len(reverser.reversed) != 0 {
		t.Errorf("second quarantine re-reversed: %+v", res)
	}
}

func TestQuarantineUnknownLoadCreatesEntry(t *testing.T) {
	loads := newMockLoads()
	svc := NewService(loads, newMockExports(), stubReversers{&stubReverser{}}, testDestinations())

	res, err := svc.Quarantine(context.Background(), "ghost-load", "Never registered", false)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if res.ExportsCancelled != 0 {
		t.Errorf("cancelled = %d", res.ExportsCancelled)
	}

	l, err := loads.Get(context.Background(), "ghost-load")
	if err != nil {
		t.Fatalf("load not registered: %v", err)
	}
	if l.Status != domain.LoadQuarantined || l.QuarantineReason != "Never registered" {
		t.Errorf("load = %+v", l)
	}
}

func TestQuarantineRequiresReason(t *testing.T) {
	svc := NewService(newMockLoads(), newMockExports(), stubReversers{&stubReverser{}}, testDestinations())
	if _, err := svc.Quarantine(context.Background(), "load-1", "", false); err == nil {
		t.Fatal("expected error for empty reason")
	}
}

func TestListQuarantined(t *testing.T) {
	loads := newMockLoads()
	ctx := context.Background()
	loads.Register(ctx, &domain.Load{LoadID: "a", Status: domain.LoadQuarantined})
	loads.Register(ctx, &domain.Load{LoadID: "b", Status: domain.LoadValidated})

	svc := NewService(loads, newMockExports(), stubReversers{&stubReverser{}}, testDestinations())
	got, err := svc.ListQuarantined(ctx)
	if err != nil {
		t.Fatalf("ListQuarantined: %v", err)
	}
	if len(got) != 1 || got[0].LoadID != "a" {
		t.Errorf("quarantined = %v", got)
	}
}
