package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/quarantine"
	"github.com/consciousfounders/dental-leads-etl/internal/queue"
)

// stubExportRepo serves canned queue state to the read-only endpoints.
type stubExportRepo struct {
	status  *domain.QueueStatus
	pending []domain.ExportRecord
}

func (s *stubExportRepo) Create(context.Context, *domain.ExportRecord) error { return nil }
func (s *stubExportRepo) Get(context.Context, string) (*domain.ExportRecord, error) {
	return nil, queue.ErrNotFound
}
func (s *stubExportRepo) ActiveExportExists(context.Context, string, domain.Destination) (bool, error) {
	return false, nil
}
func (s *stubExportRepo) GetPendingApproval(_ context.Context, dest domain.Destination, limit int) ([]domain.ExportRecord, error) {
	if dest == "" {
		return s.pending, nil
	}
	var out []domain.ExportRecord
	for _, r := range s.pending {
		if r.Destination == dest {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *stubExportRepo) GetReadyToSend(context.Context, domain.Destination, int, time.Time) ([]domain.ExportRecord, error) {
	return nil, nil
}
func (s *stubExportRepo) Approve(context.Context, queue.ApproveFilter, string, time.Time) (int, error) {
	return 0, nil
}
func (s *stubExportRepo) MarkSent(context.Context, string, string, time.Time) error   { return nil }
func (s *stubExportRepo) MarkFailed(context.Context, string, string, time.Time) error { return nil }
func (s *stubExportRepo) RecordHistory(context.Context, *domain.HistoryEntry) error   { return nil }
func (s *stubExportRepo) Status(context.Context, time.Time) (*domain.QueueStatus, error) {
	return s.status, nil
}

type stubSuppressions struct{}

func (stubSuppressions) ActiveEntries(context.Context, domain.Destination) ([]domain.SuppressionEntry, error) {
	return nil, nil
}
func (stubSuppressions) Add(context.Context, *domain.SuppressionEntry) error { return nil }

type stubSenders struct{}

func (stubSenders) Sender(domain.Destination) (destination.Sender, error) {
	return nil, destination.ErrNotConfigured
}

type stubReversers struct{}

func (stubReversers) Reverser(domain.Destination) (destination.Reverser, error) {
	return nil, destination.ErrNotReversible
}

type stubLoads struct {
	quarantined []domain.Load
}

func (s *stubLoads) Get(context.Context, string) (*domain.Load, error) {
	return nil, quarantine.ErrLoadNotFound
}
func (s *stubLoads) Register(context.Context, *domain.Load) error               { return nil }
func (s *stubLoads) MarkQuarantined(context.Context, string, string, time.Time) error { return nil }
func (s *stubLoads) SetQuarantineCounts(context.Context, string, int, int) error { return nil }
func (s *stubLoads) ListQuarantined(context.Context) ([]domain.Load, error) {
	return s.quarantined, nil
}

type stubExports struct{}

func (stubExports) ForLoad(context.Context, string, ...domain.ExportStatus) ([]domain.ExportRecord, error) {
	return nil, nil
}
func (stubExports) Cancel(context.Context, string, string, time.Time) error       { return nil }
func (stubExports) MarkReversed(context.Context, string, string, time.Time) error { return nil }

func setupTestRouter(t *testing.T, repo *stubExportRepo, loads *stubLoads) http.Handler {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectPing()

	dests := map[domain.Destination]domain.DestinationConfig{
		domain.DestGHL: {Name: domain.DestGHL, IsReversible: true},
	}
	queueSvc := queue.NewService(repo, stubSuppressions{}, stubSenders{}, nil, dests, 1)
	quarantineSvc := quarantine.NewService(loads, stubExports{}, stubReversers{}, dests)
	return SetupRoutes(NewHandlers(db, queueSvc, quarantineSvc))
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t, &stubExportRepo{status: &domain.QueueStatus{}}, &stubLoads{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestQueueStatusEndpoint(t *testing.T) {
	repo := &stubExportRepo{status: &domain.QueueStatus{
		TotalInQueue:    5,
		PendingApproval: 2,
		ReadyToSend:     3,
		SentToday:       7,
		ByStatus:        map[domain.ExportStatus]int{domain.ExportQueued: 2, domain.ExportApproved: 3},
	}}
	router := setupTestRouter(t, repo, &stubLoads{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var st domain.QueueStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 5, st.TotalInQueue)
	assert.Equal(t, 3, st.ReadyToSend)
	assert.Equal(t, 7, st.SentToday)
}

func TestPendingExportsEndpoint(t *testing.T) {
	repo := &stubExportRepo{pending: []domain.ExportRecord{
		{ExportID: "e-1", ProviderID: "p-1", Destination: domain.DestGHL, Status: domain.ExportQueued},
		{ExportID: "e-2", ProviderID: "p-2", Destination: domain.DestInstantly, Status: domain.ExportQueued},
	}}
	router := setupTestRouter(t, repo, &stubLoads{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/pending?destination=ghl", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count   int                   `json:"count"`
		Exports []domain.ExportRecord `json:"exports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "e-1", body.Exports[0].ExportID)
}

func TestPendingExportsRejectsBadLimit(t *testing.T) {
	router := setupTestRouter(t, &stubExportRepo{}, &stubLoads{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/pending?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuarantinedLoadsEndpoint(t *testing.T) {
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	loads := &stubLoads{quarantined: []domain.Load{{
		LoadID:           "bad-load",
		SourceType:       "tx_license",
		Status:           domain.LoadQuarantined,
		QuarantineReason: "row count collapsed",
		QuarantinedAt:    &at,
	}}}
	router := setupTestRouter(t, &stubExportRepo{}, loads)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loads/quarantined", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int           `json:"count"`
		Loads []domain.Load `json:"loads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "bad-load", body.Loads[0].LoadID)
}
