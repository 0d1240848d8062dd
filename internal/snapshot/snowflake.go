package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/consciousfounders/dental-leads-etl/internal/config"
)

// SnowflakeStore reads snapshots from the production registry mirror.
// Every scraper run lands as rows tagged with STATE_CODE,
// PROFESSIONAL_TYPE and SNAPSHOT_DATE; a read reconstitutes one dated
// snapshot as a Dataset.
type SnowflakeStore struct {
	db    *sql.DB
	table string
}

// NewSnowflakeStore opens a pooled connection to Snowflake.
func NewSnowflakeStore(cfg config.SnowflakeConfig) (*SnowflakeStore, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SnowflakeStore{db: db, table: cfg.Table}, nil
}

// Close releases the connection pool.
func (s *SnowflakeStore) Close() error { return s.db.Close() }

// Ping verifies the connection.
func (s *SnowflakeStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SnowflakeStore) Read(ctx context.Context, state, professionalType, date string) (*Dataset, error) {
	date, err := normalizeDate(date)
	if err != nil {
		return nil, err
	}
	if date == "current" {
		query := fmt.Sprintf(
			`SELECT MAX(SNAPSHOT_DATE) FROM %s WHERE STATE_CODE = ? AND PROFESSIONAL_TYPE = ?`, s.table)
		var latest sql.NullString
		if err := s.db.QueryRowContext(ctx, query, state, professionalType).Scan(&latest); err != nil {
			return nil, fmt.Errorf("resolve current snapshot date: %w", err)
		}
		if !latest.Valid {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, state, professionalType)
		}
		date = latest.String
	}

	query := fmt.Sprintf(
		`SELECT * FROM %s WHERE STATE_CODE = ? AND PROFESSIONAL_TYPE = ? AND SNAPSHOT_DATE = ?`, s.table)
	rows, err := s.db.QueryContext(ctx, query, state, professionalType, date)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("snapshot columns: %w", err)
	}

	var data [][]string
	vals := make([]sql.NullString, len(headers))
	ptrs := make([]any, len(headers))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		row := make([]string, len(headers))
		for i, v := range vals {
			row[i] = v.String
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s/%s@%s", ErrNotFound, state, professionalType, date)
	}
	return NewDataset(headers, data), nil
}

func (s *SnowflakeStore) ListDates(ctx context.Context, state string) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT SNAPSHOT_DATE FROM %s WHERE STATE_CODE = ? ORDER BY SNAPSHOT_DATE`, s.table)
	rows, err := s.db.QueryContext(ctx, query, state)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan snapshot date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
