package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SuppressionEntry is a standing block rule. A candidate matches when
// any populated identity field (email, license number, NPI) equals the
// candidate's, and the entry is either global (Destination empty) or
// scoped to the candidate's destination. IsActive allows soft removal
// without losing the audit trail.
type SuppressionEntry struct {
	SuppressionID string      `json:"suppression_id" db:"suppression_id"`
	Email         string      `json:"email,omitempty" db:"email"`
	LicenseNumber string      `json:"license_number,omitempty" db:"license_number"`
	NPI           string      `json:"npi,omitempty" db:"npi"`
	Destination   Destination `json:"destination,omitempty" db:"destination"`
	Reason        string      `json:"reason" db:"reason"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// NewSuppressionID derives a stable identifier from the entry's
// identity fields, so re-adding the same block is a no-op upsert.
func NewSuppressionID(email, licenseNumber, npi string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s-%s", email, licenseNumber, npi)))
	return hex.EncodeToString(sum[:])[:12]
}

// Matches reports whether the entry blocks the given candidate for the
// given destination. Email comparison is case-insensitive.
func (s SuppressionEntry) Matches(c ExportCandidate, dest Destination) bool {
	if !s.IsActive {
		return false
	}
	if s.Destination != "" && s.Destination != dest {
		return false
	}
	if s.Email != "" && c.Email != "" && strings.EqualFold(s.Email, c.Email) {
		return true
	}
	if s.LicenseNumber != "" && s.LicenseNumber == c.LicenseNumber {
		return true
	}
	if s.NPI != "" && s.NPI == c.NPI {
		return true
	}
	return false
}
