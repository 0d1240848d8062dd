package domain

import "time"

// Severity classifies a validation result. Errors fail the load;
// warnings are surfaced but never block promotion.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationResult is the outcome of a single rule against one dataset.
type ValidationResult struct {
	RuleName string         `json:"rule_name"`
	Passed   bool           `json:"passed"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// LoadValidationResult aggregates every rule outcome for one load.
// It is immutable once produced: Passed is true iff no error-severity
// rule failed.
type LoadValidationResult struct {
	LoadID           string             `json:"load_id"`
	SourceType       string             `json:"source_type"`
	SourceFile       string             `json:"source_file"`
	ValidatedAt      time.Time          `json:"validated_at"`
	Passed           bool               `json:"passed"`
	RowCount         int                `json:"row_count"`
	RowCountPrevious *int               `json:"row_count_previous,omitempty"`
	RowCountDeltaPct *float64           `json:"row_count_delta_pct,omitempty"`
	Errors           []ValidationResult `json:"errors"`
	Warnings         []ValidationResult `json:"warnings"`
}
