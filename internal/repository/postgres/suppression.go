package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// SuppressionRepo implements queue.Suppressions against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

// ActiveEntries returns active entries scoped to the destination plus
// global ones.
func (r *SuppressionRepo) ActiveEntries(ctx context.Context, dest domain.Destination) ([]domain.SuppressionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT suppression_id, email, license_number, npi, destination, reason, is_active, created_at
		FROM etl_suppressions
		WHERE is_active = true AND (destination IS NULL OR destination = $1)
	`, dest)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		var email, license, npi, destCol sql.NullString
		if err := rows.Scan(&e.SuppressionID, &email, &license, &npi, &destCol, &e.Reason, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		e.Email = email.String
		e.LicenseNumber = license.String
		e.NPI = npi.String
		e.Destination = domain.Destination(destCol.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Add inserts a suppression entry. Re-adding the same identity
// reactivates the existing row.
func (r *SuppressionRepo) Add(ctx context.Context, e *domain.SuppressionEntry) error {
	if e.SuppressionID == "" {
		e.SuppressionID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO etl_suppressions (suppression_id, email, license_number, npi, destination,
			reason, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, NOW())
		ON CONFLICT (suppression_id) DO UPDATE SET
			reason = EXCLUDED.reason, is_active = true
	`, e.SuppressionID, nullString(e.Email), nullString(e.LicenseNumber), nullString(e.NPI),
		nullString(string(e.Destination)), e.Reason)
	if err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}
