package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
)

// MapRecords converts a raw dataset into typed LicenseRecords using the
// source's column layout and alias table. Missing or renamed columns
// fail here, at the mapping boundary, instead of propagating empty
// values through business logic: a missing required column returns an
// error so the caller can skip that professional type with a warning.
func MapRecords(d *Dataset, sc config.SourceConfig) ([]domain.LicenseRecord, error) {
	idCol, ok := d.ResolveColumn(sc.IDField, sc.Aliases)
	if !ok {
		return nil, fmt.Errorf("required column %q missing (no alias matched)", sc.IDField)
	}
	numCol, ok := d.ResolveColumn(sc.NumberField, sc.Aliases)
	if !ok {
		return nil, fmt.Errorf("required column %q missing (no alias matched)", sc.NumberField)
	}

	statusCol, hasStatus := d.ResolveColumn(sc.StatusField, sc.Aliases)
	if sc.StatusField != "" && !hasStatus {
		return nil, fmt.Errorf("required column %q missing (no alias matched)", sc.StatusField)
	}

	// Optional columns degrade to empty fields.
	descCol, _ := d.ResolveColumn(sc.StatusDescField, sc.Aliases)
	firstCol, _ := d.ResolveColumn(sc.FirstNameField, sc.Aliases)
	lastCol, _ := d.ResolveColumn(sc.LastNameField, sc.Aliases)
	cityCol, _ := d.ResolveColumn(sc.CityField, sc.Aliases)
	countyCol, _ := d.ResolveColumn(sc.CountyField, sc.Aliases)
	zipCol, _ := d.ResolveColumn(sc.ZipField, sc.Aliases)

	records := make([]domain.LicenseRecord, 0, d.RowCount())
	for i := 0; i < d.RowCount(); i++ {
		rec := domain.LicenseRecord{
			LicenseID:     strings.TrimSpace(d.Value(i, idCol)),
			LicenseNumber: strings.TrimSpace(d.Value(i, numCol)),
			FirstName:     strings.TrimSpace(d.Value(i, firstCol)),
			LastName:      strings.TrimSpace(d.Value(i, lastCol)),
			City:          strings.TrimSpace(d.Value(i, cityCol)),
			County:        strings.TrimSpace(d.Value(i, countyCol)),
			StatusDesc:    strings.TrimSpace(d.Value(i, descCol)),
		}
		if zipCol != "" {
			zip := strings.TrimSpace(d.Value(i, zipCol))
			if len(zip) > 5 {
				zip = zip[:5]
			}
			rec.ZipCode = zip
		}
		if hasStatus {
			// Unparseable status codes map to 0, which is in neither
			// the active nor the lapsed set.
			code, _ := strconv.Atoi(strings.TrimSpace(d.Value(i, statusCol)))
			rec.StatusCode = code
		}
		records = append(records, rec)
	}
	return records, nil
}
