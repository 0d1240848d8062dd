package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no snapshot exists for the requested
// (state, professional type, date).
var ErrNotFound = errors.New("snapshot not found")

// Store reads dated snapshots. Implementations: FilesystemStore,
// S3Store, SnowflakeStore.
type Store interface {
	// Read returns the snapshot for a state and professional type as of
	// date ("YYYY-MM-DD" or "current"). Returns ErrNotFound when the
	// snapshot does not exist.
	Read(ctx context.Context, state, professionalType, date string) (*Dataset, error)

	// ListDates returns the available snapshot dates for a state in
	// ascending order.
	ListDates(ctx context.Context, state string) ([]string, error)
}

// FilesystemStore reads scraper output from a local directory laid out
// as <root>/<state>/<date>/<type>.csv, with <root>/<state>/current/ as
// the "latest" alias.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a store rooted at dir.
func NewFilesystemStore(dir string) *FilesystemStore {
	return &FilesystemStore{root: dir}
}

func (s *FilesystemStore) Read(_ context.Context, state, professionalType, date string) (*Dataset, error) {
	date, err := normalizeDate(date)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, strings.ToLower(state), date, professionalType+".csv")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return ParseCSV(data)
}

func (s *FilesystemStore) ListDates(_ context.Context, state string) ([]string, error) {
	dir := filepath.Join(s.root, strings.ToLower(state))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "current" || name == "raw" {
			continue
		}
		if _, err := time.Parse("2006-01-02", name); err == nil {
			dates = append(dates, name)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
