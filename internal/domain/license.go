package domain

// LicenseRecord is one row of a registry snapshot after the column
// mapping layer has run. LicenseID is the stable identifier: license
// numbers can be reused by the registry when a license is cancelled,
// the internal ID cannot.
//
// Records are read-only. The detector diffs them, nothing mutates them.
type LicenseRecord struct {
	LicenseID     string `json:"license_id"`
	LicenseNumber string `json:"license_number"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	City          string `json:"city"`
	County        string `json:"county"`
	ZipCode       string `json:"zip_code"`
	StatusCode    int    `json:"status_code"`
	StatusDesc    string `json:"status_desc"`

	// Extra holds schema-specific columns that survive the mapping
	// boundary untyped (certification codes, specialty fields).
	Extra map[string]string `json:"extra,omitempty"`
}
