// Package postgres implements the repository contracts against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/quarantine"
)

// LoadRepo implements quarantine.Loads against PostgreSQL.
type LoadRepo struct{ db *sql.DB }

// NewLoadRepo creates a Postgres-backed load registry.
func NewLoadRepo(db *sql.DB) *LoadRepo { return &LoadRepo{db: db} }

func (r *LoadRepo) Register(ctx context.Context, l *domain.Load) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO etl_loads (load_id, source_type, source_file, status, row_count,
			row_count_previous, quarantine_reason, quarantined_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (load_id) DO UPDATE SET
			status = EXCLUDED.status,
			row_count = EXCLUDED.row_count,
			updated_at = NOW()
	`, l.LoadID, l.SourceType, l.SourceFile, l.Status, l.RowCount,
		l.RowCountPrevious, nullString(l.QuarantineReason), l.QuarantinedAt)
	if err != nil {
		return fmt.Errorf("register load: %w", err)
	}
	return nil
}

func (r *LoadRepo) Get(ctx context.Context, loadID string) (*domain.Load, error) {
	var l domain.Load
	var reason sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT load_id, source_type, source_file, status, row_count, row_count_previous,
			quarantine_reason, quarantined_at, exports_cancelled, exports_reversed,
			created_at, updated_at
		FROM etl_loads WHERE load_id = $1
	`, loadID).Scan(
		&l.LoadID, &l.SourceType, &l.SourceFile, &l.Status, &l.RowCount, &l.RowCountPrevious,
		&reason, &l.QuarantinedAt, &l.ExportsCancelled, &l.ExportsReversed,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, quarantine.ErrLoadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get load: %w", err)
	}
	l.QuarantineReason = reason.String
	return &l, nil
}

func (r *LoadRepo) MarkQuarantined(ctx context.Context, loadID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE etl_loads
		SET status = 'quarantined', quarantine_reason = $2, quarantined_at = $3, updated_at = NOW()
		WHERE load_id = $1
	`, loadID, reason, at)
	if err != nil {
		return fmt.Errorf("mark quarantined: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return quarantine.ErrLoadNotFound
	}
	return nil
}

func (r *LoadRepo) SetQuarantineCounts(ctx context.Context, loadID string, cancelled, reversed int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE etl_loads
		SET exports_cancelled = $2, exports_reversed = $3, updated_at = NOW()
		WHERE load_id = $1
	`, loadID, cancelled, reversed)
	if err != nil {
		return fmt.Errorf("set quarantine counts: %w", err)
	}
	return nil
}

func (r *LoadRepo) ListQuarantined(ctx context.Context) ([]domain.Load, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT load_id, source_type, source_file, status, row_count, row_count_previous,
			quarantine_reason, quarantined_at, exports_cancelled, exports_reversed,
			created_at, updated_at
		FROM etl_loads
		WHERE status = 'quarantined'
		ORDER BY quarantined_at DESC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("list quarantined: %w", err)
	}
	defer rows.Close()

	var out []domain.Load
	for rows.Next() {
		var l domain.Load
		var reason sql.NullString
		if err := rows.Scan(
			&l.LoadID, &l.SourceType, &l.SourceFile, &l.Status, &l.RowCount, &l.RowCountPrevious,
			&reason, &l.QuarantinedAt, &l.ExportsCancelled, &l.ExportsReversed,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		l.QuarantineReason = reason.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
