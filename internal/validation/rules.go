package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

// Rule is one compiled validation check. Rules are pure: they read the
// dataset(s) and return a result, never mutating anything. Each rule
// family is a concrete type so adding a rule is a compile-time-checked
// extension, not a string match that can silently no-op.
type Rule interface {
	Name() string
	Apply(ds, prev *snapshot.Dataset) domain.ValidationResult
}

// currentDateSentinel in a date_range max bound means "now".
const currentDateSentinel = "CURRENT_DATE()"

// dateLayouts are the formats registry exports have been seen to use.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "2006-01-02 15:04:05", time.RFC3339}

func parseAnyDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// RowCountMin fails when the load has fewer rows than the floor.
// Catches truncated and empty loads.
type RowCountMin struct {
	MinRows int
}

func (r RowCountMin) Name() string { return "row_count_min" }

func (r RowCountMin) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	count := ds.RowCount()
	passed := count >= r.MinRows
	verb := "meets"
	if !passed {
		verb = "below"
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message:  fmt.Sprintf("Row count %d %s minimum %d", count, verb, r.MinRows),
		Details:  map[string]any{"row_count": count, "min_required": r.MinRows},
	}
}

// RowCountDelta bounds the percentage change against the previous load.
// Catches partial scrapes and duplicated runs. Skipped with a warning
// when there is no previous load to compare against.
type RowCountDelta struct {
	MaxDeltaPct float64
}

func (r RowCountDelta) Name() string { return "row_count_delta" }

func (r RowCountDelta) Apply(ds, prev *snapshot.Dataset) domain.ValidationResult {
	if prev == nil || prev.RowCount() == 0 {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   true,
			Severity: domain.SeverityWarning,
			Message:  "No previous data to compare - skipping delta check",
			Details:  map[string]any{"skipped": true},
		}
	}

	current, previous := ds.RowCount(), prev.RowCount()
	deltaPct := abs(float64(current-previous)) / float64(previous)
	passed := deltaPct <= r.MaxDeltaPct
	verb := "within"
	if !passed {
		verb = "exceeds"
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message: fmt.Sprintf("Row count delta %.1f%% %s %.0f%% threshold",
			deltaPct*100, verb, r.MaxDeltaPct*100),
		Details: map[string]any{
			"current_count":  current,
			"previous_count": previous,
			"delta_pct":      round4(deltaPct),
			"max_delta_pct":  r.MaxDeltaPct,
		},
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func round4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}

// FieldPopulated requires a minimum fraction of non-null, non-blank
// values in a column.
type FieldPopulated struct {
	Field  string
	MinPct float64
}

func (r FieldPopulated) Name() string { return "field_populated_" + r.Field }

func (r FieldPopulated) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	col := ds.Column(r.Field)
	if col == nil {
		avail := ds.Headers()
		if len(avail) > 20 {
			avail = avail[:20]
		}
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Field %q not found in data", r.Field),
			Details:  map[string]any{"field": r.Field, "available_columns": avail},
		}
	}

	populated := 0
	for _, v := range col {
		if !isBlank(v) {
			populated++
		}
	}
	pct := 0.0
	if len(col) > 0 {
		pct = float64(populated) / float64(len(col))
	}
	passed := pct >= r.MinPct
	verb := "meets"
	if !passed {
		verb = "below"
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message: fmt.Sprintf("Field %q %.1f%% populated %s %.0f%% threshold",
			r.Field, pct*100, verb, r.MinPct*100),
		Details: map[string]any{
			"field":         r.Field,
			"populated_pct": round4(pct),
			"min_required":  r.MinPct,
		},
	}
}

// FieldFormat requires a minimum fraction of non-blank values to match
// a pattern, and records a small sample of non-matching values for
// diagnosis. The pattern is anchored at the start of the value.
type FieldFormat struct {
	Field   string
	Pattern *regexp.Regexp
	Raw     string
	MinPct  float64
}

func (r FieldFormat) Name() string { return "field_format_" + r.Field }

func (r FieldFormat) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	col := ds.Column(r.Field)
	if col == nil {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Field %q not found in data", r.Field),
			Details:  map[string]any{"field": r.Field},
		}
	}

	var nonNull, matched int
	var sample []string
	for _, v := range col {
		if isBlank(v) {
			continue
		}
		nonNull++
		if r.Pattern.MatchString(v) {
			matched++
		} else if len(sample) < 5 {
			sample = append(sample, v)
		}
	}
	if nonNull == 0 {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Field %q has no non-null values to validate", r.Field),
			Details:  map[string]any{"field": r.Field},
		}
	}

	pct := float64(matched) / float64(nonNull)
	passed := pct >= r.MinPct
	verb := "meets"
	if !passed {
		verb = "below"
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message: fmt.Sprintf("Field %q %.1f%% match pattern %s %.0f%%",
			r.Field, pct*100, verb, r.MinPct*100),
		Details: map[string]any{
			"field":               r.Field,
			"pattern":             r.Raw,
			"match_pct":           round4(pct),
			"min_required":        r.MinPct,
			"sample_non_matching": sample,
		},
	}
}

// NoDuplicates is zero-tolerance on duplicate rows over the key fields
// and reports a sample of offending keys.
type NoDuplicates struct {
	KeyFields []string
}

func (r NoDuplicates) Name() string { return "no_duplicates" }

func (r NoDuplicates) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	var missing []string
	for _, f := range r.KeyFields {
		if !ds.HasColumn(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Key fields not found: %v", missing),
			Details:  map[string]any{"missing_fields": missing},
		}
	}

	counts := make(map[string]int, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		parts := make([]string, len(r.KeyFields))
		for j, f := range r.KeyFields {
			parts[j] = ds.Value(i, f)
		}
		counts[strings.Join(parts, "\x1f")]++
	}

	dupRows := 0
	var dupKeys []string
	for key, n := range counts {
		if n > 1 {
			dupRows += n
			dupKeys = append(dupKeys, strings.ReplaceAll(key, "\x1f", "|"))
		}
	}
	sort.Strings(dupKeys)
	if len(dupKeys) > 5 {
		dupKeys = dupKeys[:5]
	}

	passed := dupRows == 0
	msg := "No duplicates found"
	if !passed {
		msg = fmt.Sprintf("%d duplicate records on %v", dupRows, r.KeyFields)
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message:  msg,
		Details: map[string]any{
			"key_fields":        r.KeyFields,
			"duplicate_count":   dupRows,
			"sample_duplicates": dupKeys,
		},
	}
}

// DateRange requires parsed dates in a column to fall within bounds.
// Unparseable dates are excluded from the check, not counted as
// violations; a column with no parseable dates passes with a warning.
type DateRange struct {
	Field   string
	MinDate string
	MaxDate string
}

func (r DateRange) Name() string { return "date_range_" + r.Field }

func (r DateRange) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	col := ds.Column(r.Field)
	if col == nil {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Field %q not found", r.Field),
			Details:  map[string]any{"field": r.Field},
		}
	}

	var valid []time.Time
	for _, v := range col {
		if t, ok := parseAnyDate(v); ok {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   true,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("No valid dates in %q to validate", r.Field),
			Details:  map[string]any{"field": r.Field},
		}
	}

	var issues []string
	if r.MinDate != "" {
		if minDt, ok := parseAnyDate(r.MinDate); ok {
			tooOld := 0
			for _, t := range valid {
				if t.Before(minDt) {
					tooOld++
				}
			}
			if tooOld > 0 {
				issues = append(issues, fmt.Sprintf("%d dates before %s", tooOld, r.MinDate))
			}
		}
	}
	if r.MaxDate != "" {
		maxDt := time.Now()
		if r.MaxDate != currentDateSentinel {
			if t, ok := parseAnyDate(r.MaxDate); ok {
				maxDt = t
			}
		}
		tooNew := 0
		for _, t := range valid {
			if t.After(maxDt) {
				tooNew++
			}
		}
		if tooNew > 0 {
			issues = append(issues, fmt.Sprintf("%d dates after %s", tooNew, r.MaxDate))
		}
	}

	lo, hi := valid[0], valid[0]
	for _, t := range valid[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}

	passed := len(issues) == 0
	msg := "Date range check: all dates in range"
	if !passed {
		msg = "Date range check: " + strings.Join(issues, "; ")
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message:  msg,
		Details: map[string]any{
			"field":    r.Field,
			"min_date": lo.Format("2006-01-02"),
			"max_date": hi.Format("2006-01-02"),
			"issues":   issues,
		},
	}
}

// ValueDistribution requires a specific value to account for at least a
// minimum share of a column, guarding against a load that is mostly
// lapsed or garbage status codes.
type ValueDistribution struct {
	Field  string
	Value  string
	MinPct float64
}

func (r ValueDistribution) Name() string {
	return fmt.Sprintf("value_distribution_%s_%s", r.Field, r.Value)
}

func (r ValueDistribution) Apply(ds, _ *snapshot.Dataset) domain.ValidationResult {
	col := ds.Column(r.Field)
	if col == nil {
		return domain.ValidationResult{
			RuleName: r.Name(),
			Passed:   false,
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("Field %q not found", r.Field),
			Details:  map[string]any{"field": r.Field},
		}
	}

	counts := map[string]int{}
	hits := 0
	for _, v := range col {
		v = strings.TrimSpace(v)
		counts[v]++
		if v == r.Value {
			hits++
		}
	}
	pct := 0.0
	if len(col) > 0 {
		pct = float64(hits) / float64(len(col))
	}
	passed := pct >= r.MinPct
	verb := "meets"
	if !passed {
		verb = "below"
	}
	return domain.ValidationResult{
		RuleName: r.Name(),
		Passed:   passed,
		Severity: domain.SeverityError,
		Message: fmt.Sprintf("Value %q in %q at %.1f%% %s %.0f%%",
			r.Value, r.Field, pct*100, verb, r.MinPct*100),
		Details: map[string]any{
			"field":        r.Field,
			"target_value": r.Value,
			"actual_pct":   round4(pct),
			"min_required": r.MinPct,
			"value_counts": topCounts(counts, 10),
		},
	}
}

func topCounts(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	all := make([]kv, 0, len(counts))
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make(map[string]int, len(all))
	for _, e := range all {
		out[e.k] = e.v
	}
	return out
}
