package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

// ParseCSV parses raw CSV bytes into a Dataset. Registry exports are
// messy: mismatched column counts are padded or truncated rather than
// rejected, and a count of repaired rows is logged. A header-only file
// yields an empty dataset; row_count_min is the gate for that, not the
// parser.
func ParseCSV(data []byte) (*Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(stripBOM(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: no header row")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}

	width := len(headers)
	var rows [][]string
	var repaired, skipped int

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(row) != width {
			repaired++
			if len(row) < width {
				padded := make([]string, width)
				copy(padded, row)
				row = padded
			} else {
				row = row[:width]
			}
		}
		rows = append(rows, row)
	}

	if repaired > 0 || skipped > 0 {
		logger.Warn("snapshot csv needed repair",
			"repaired_rows", repaired, "skipped_rows", skipped)
	}

	return NewDataset(headers, rows), nil
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}

// normalizeDate lower-bounds sloppy date inputs from callers ("current"
// passes through, anything else must look like YYYY-MM-DD).
func normalizeDate(date string) (string, error) {
	if date == "current" || date == "" {
		return "current", nil
	}
	if len(date) != 10 || strings.Count(date, "-") != 2 {
		return "", fmt.Errorf("invalid snapshot date %q, want YYYY-MM-DD or \"current\"", date)
	}
	return date, nil
}
