package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/queue"
)

// ExportRepo implements queue.Repository and quarantine.Exports against
// PostgreSQL. The dedup invariant (one active export per provider and
// destination) is also enforced by a partial unique index, so a race
// between two enqueuers resolves in the database.
type ExportRepo struct{ db *sql.DB }

// NewExportRepo creates a Postgres-backed export repository.
func NewExportRepo(db *sql.DB) *ExportRepo { return &ExportRepo{db: db} }

const exportColumns = `export_id, provider_id, destination, payload, data_load_id,
	match_confidence, requires_approval, status, approved_at, approved_by,
	scheduled_send_at, queued_at, sent_at, external_id, error_message,
	reversed_at, reversal_reason, created_at, updated_at`

func (r *ExportRepo) Create(ctx context.Context, rec *domain.ExportRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO etl_exports (export_id, provider_id, destination, payload, data_load_id,
			match_confidence, requires_approval, status, approved_at, approved_by,
			scheduled_send_at, queued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`, rec.ExportID, rec.ProviderID, rec.Destination, payload, nullString(rec.DataLoadID),
		rec.MatchConfidence, rec.RequiresApproval, rec.Status, rec.ApprovedAt,
		nullString(rec.ApprovedBy), rec.ScheduledSendAt, rec.QueuedAt)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	return nil
}

func (r *ExportRepo) Get(ctx context.Context, exportID string) (*domain.ExportRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+exportColumns+` FROM etl_exports WHERE export_id = $1`, exportID)
	rec, err := scanExport(row)
	if err == sql.ErrNoRows {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return rec, nil
}

func (r *ExportRepo) ActiveExportExists(ctx context.Context, providerID string, dest domain.Destination) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM etl_exports
			WHERE provider_id = $1 AND destination = $2
			  AND status IN ('queued', 'approved', 'scheduled')
		)
	`, providerID, dest).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active export: %w", err)
	}
	return exists, nil
}

func (r *ExportRepo) GetPendingApproval(ctx context.Context, dest domain.Destination, limit int) ([]domain.ExportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM etl_exports
		WHERE status = 'queued' AND ($1 = '' OR destination = $1)
		ORDER BY queued_at ASC
		LIMIT $2
	`, string(dest), limit)
	if err != nil {
		return nil, fmt.Errorf("pending approval: %w", err)
	}
	return collectExports(rows)
}

func (r *ExportRepo) GetReadyToSend(ctx context.Context, dest domain.Destination, limit int, now time.Time) ([]domain.ExportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM etl_exports
		WHERE status = 'approved'
		  AND ($1 = '' OR destination = $1)
		  AND (scheduled_send_at IS NULL OR scheduled_send_at <= $2)
		ORDER BY queued_at ASC
		LIMIT $3
	`, string(dest), now, limit)
	if err != nil {
		return nil, fmt.Errorf("ready to send: %w", err)
	}
	return collectExports(rows)
}

func (r *ExportRepo) Approve(ctx context.Context, f queue.ApproveFilter, approver string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_exports
		SET status = 'approved', approved_at = $1, approved_by = $2,
		    requires_approval = false, updated_at = NOW()
		WHERE status = 'queued'
		  AND ($3 = '' OR destination = $3)
		  AND match_confidence >= $4
		  AND (cardinality($5::text[]) = 0 OR export_id = ANY($5))
	`, at, approver, string(f.Destination), f.MinConfidence, pq.Array(f.ExportIDs))
	if err != nil {
		return 0, fmt.Errorf("approve exports: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ExportRepo) MarkSent(ctx context.Context, exportID, externalID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_exports
		SET status = 'sent', sent_at = $2, external_id = $3, updated_at = NOW()
		WHERE export_id = $1
	`, exportID, at, nullString(externalID))
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (r *ExportRepo) MarkFailed(ctx context.Context, exportID, errMsg string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_exports
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE export_id = $1
	`, exportID, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (r *ExportRepo) RecordHistory(ctx context.Context, h *domain.HistoryEntry) error {
	payload, err := json.Marshal(h.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO etl_export_history (history_id, export_id, provider_id, destination,
			payload, sent_at, external_id, estimated_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (history_id) DO NOTHING
	`, h.HistoryID, h.ExportID, h.ProviderID, h.Destination, payload,
		h.SentAt, nullString(h.ExternalID), h.EstimatedCost)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (r *ExportRepo) Status(ctx context.Context, now time.Time) (*domain.QueueStatus, error) {
	st := &domain.QueueStatus{
		ByStatus:      make(map[domain.ExportStatus]int),
		ByDestination: make(map[domain.Destination]map[domain.ExportStatus]int),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT destination, status, COUNT(*)
		FROM etl_exports
		GROUP BY destination, status
	`)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dest domain.Destination
		var status domain.ExportStatus
		var n int
		if err := rows.Scan(&dest, &status, &n); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		st.TotalInQueue += n
		st.ByStatus[status] += n
		if st.ByDestination[dest] == nil {
			st.ByDestination[dest] = make(map[domain.ExportStatus]int)
		}
		st.ByDestination[dest][status] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	st.PendingApproval = st.ByStatus[domain.ExportQueued]

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM etl_exports
		WHERE status = 'approved' AND (scheduled_send_at IS NULL OR scheduled_send_at <= $1)
	`, now).Scan(&st.ReadyToSend); err != nil {
		return nil, fmt.Errorf("ready count: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sent_at::date = $1::date),
			COUNT(*)
		FROM etl_export_history
	`, now).Scan(&st.SentToday, &st.SentAllTime); err != nil {
		return nil, fmt.Errorf("history counts: %w", err)
	}
	return st, nil
}

// ForLoad returns the load's exports in any of the given statuses.
func (r *ExportRepo) ForLoad(ctx context.Context, loadID string, statuses ...domain.ExportStatus) ([]domain.ExportRecord, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM etl_exports
		WHERE data_load_id = $1 AND status = ANY($2)
		ORDER BY queued_at ASC
	`, loadID, pq.Array(ss))
	if err != nil {
		return nil, fmt.Errorf("exports for load: %w", err)
	}
	return collectExports(rows)
}

func (r *ExportRepo) Cancel(ctx context.Context, exportID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_exports
		SET status = 'cancelled', error_message = $2, updated_at = NOW()
		WHERE export_id = $1 AND status IN ('queued', 'approved', 'scheduled')
	`, exportID, reason)
	if err != nil {
		return fmt.Errorf("cancel export: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (r *ExportRepo) MarkReversed(ctx context.Context, exportID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_exports
		SET reversed_at = $2, reversal_reason = $3, updated_at = NOW()
		WHERE export_id = $1 AND status = 'sent'
	`, exportID, at, reason)
	if err != nil {
		return fmt.Errorf("mark reversed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (*domain.ExportRecord, error) {
	var rec domain.ExportRecord
	var payload []byte
	var loadID, approvedBy, externalID, errMsg, reversalReason sql.NullString
	err := row.Scan(
		&rec.ExportID, &rec.ProviderID, &rec.Destination, &payload, &loadID,
		&rec.MatchConfidence, &rec.RequiresApproval, &rec.Status, &rec.ApprovedAt, &approvedBy,
		&rec.ScheduledSendAt, &rec.QueuedAt, &rec.SentAt, &externalID, &errMsg,
		&rec.ReversedAt, &reversalReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	rec.DataLoadID = loadID.String
	rec.ApprovedBy = approvedBy.String
	rec.ExternalID = externalID.String
	rec.ErrorMessage = errMsg.String
	rec.ReversalReason = reversalReason.String
	return &rec, nil
}

func collectExports(rows *sql.Rows) ([]domain.ExportRecord, error) {
	defer rows.Close()
	var out []domain.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
