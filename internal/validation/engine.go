// Package validation runs the declarative rule set that gates a data
// load before it is trusted downstream. Validation is a gate, not a
// filter: a failing load is rejected wholesale, never silently
// repaired.
package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

// Engine validates datasets against per-source-type rule lists.
type Engine struct {
	sources map[string]config.SourceConfig
	now     func() time.Time
}

// NewEngine creates a validation engine over the given source configs.
func NewEngine(sources map[string]config.SourceConfig) *Engine {
	return &Engine{sources: sources, now: time.Now}
}

// Request names one validation run.
type Request struct {
	Dataset    *snapshot.Dataset
	SourceType string
	Previous   *snapshot.Dataset // optional
	LoadID     string            // generated when empty
	SourceFile string
}

// Validate runs every configured rule for the source type and produces
// the aggregate result. An unknown source type is a configuration error
// and fails hard; everything below that is converted into structured
// rule results: an unknown rule name becomes a warning, a panicking
// rule becomes an error-severity result, and neither aborts the pass.
func (e *Engine) Validate(req Request) (*domain.LoadValidationResult, error) {
	sc, ok := e.sources[req.SourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", req.SourceType)
	}

	now := e.now()
	loadID := req.LoadID
	if loadID == "" {
		src := req.SourceFile
		if src == "" {
			src = "unknown"
		}
		loadID = domain.NewLoadID(src, now)
	}

	result := &domain.LoadValidationResult{
		LoadID:      loadID,
		SourceType:  req.SourceType,
		SourceFile:  req.SourceFile,
		ValidatedAt: now,
		RowCount:    req.Dataset.RowCount(),
	}
	if req.Previous != nil {
		prev := req.Previous.RowCount()
		result.RowCountPrevious = &prev
		if prev > 0 {
			delta := float64(result.RowCount-prev) / float64(prev)
			result.RowCountDeltaPct = &delta
		}
	}

	for _, spec := range sc.Rules {
		rule, err := buildRule(spec)
		if err != nil {
			if err == errUnknownRule {
				result.Warnings = append(result.Warnings, domain.ValidationResult{
					RuleName: spec.Rule,
					Passed:   false,
					Severity: domain.SeverityWarning,
					Message:  fmt.Sprintf("Unknown rule: %s", spec.Rule),
				})
			} else {
				result.Errors = append(result.Errors, domain.ValidationResult{
					RuleName: spec.Rule,
					Passed:   false,
					Severity: domain.SeverityError,
					Message:  fmt.Sprintf("Rule configuration invalid: %v", err),
				})
			}
			continue
		}

		res := applyRule(rule, req.Dataset, req.Previous)
		switch {
		case !res.Passed && res.Severity == domain.SeverityError:
			result.Errors = append(result.Errors, res)
		case !res.Passed || res.Severity == domain.SeverityWarning:
			result.Warnings = append(result.Warnings, res)
		}
	}

	result.Passed = len(result.Errors) == 0
	return result, nil
}

// applyRule isolates one rule execution: a panic inside a rule is
// converted into an error-severity result so one bad rule cannot abort
// the whole validation pass.
func applyRule(rule Rule, ds, prev *snapshot.Dataset) (res domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.ValidationResult{
				RuleName: rule.Name(),
				Passed:   false,
				Severity: domain.SeverityError,
				Message:  fmt.Sprintf("Rule execution failed: %v", r),
			}
		}
	}()
	return rule.Apply(ds, prev)
}

var errUnknownRule = fmt.Errorf("unknown rule")

// buildRule compiles a configured spec into a concrete rule value.
func buildRule(spec config.RuleSpec) (Rule, error) {
	p := params(spec.Params)
	switch spec.Rule {
	case "row_count_min":
		min, err := p.intVal("min_rows")
		if err != nil {
			return nil, err
		}
		return RowCountMin{MinRows: min}, nil
	case "row_count_delta":
		max, err := p.floatVal("max_delta_pct")
		if err != nil {
			return nil, err
		}
		return RowCountDelta{MaxDeltaPct: max}, nil
	case "field_populated":
		field, err := p.stringVal("field")
		if err != nil {
			return nil, err
		}
		min, err := p.floatVal("min_pct")
		if err != nil {
			return nil, err
		}
		return FieldPopulated{Field: field, MinPct: min}, nil
	case "field_format":
		field, err := p.stringVal("field")
		if err != nil {
			return nil, err
		}
		raw, err := p.stringVal("pattern")
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile("^(?:" + raw + ")")
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", raw, err)
		}
		min, err := p.floatVal("min_pct")
		if err != nil {
			return nil, err
		}
		return FieldFormat{Field: field, Pattern: re, Raw: raw, MinPct: min}, nil
	case "no_duplicates":
		keys, err := p.stringsVal("key_fields")
		if err != nil {
			return nil, err
		}
		return NoDuplicates{KeyFields: keys}, nil
	case "date_range":
		field, err := p.stringVal("field")
		if err != nil {
			return nil, err
		}
		return DateRange{
			Field:   field,
			MinDate: p.optString("min_date"),
			MaxDate: p.optString("max_date"),
		}, nil
	case "value_distribution":
		field, err := p.stringVal("field")
		if err != nil {
			return nil, err
		}
		value, err := p.stringVal("value")
		if err != nil {
			return nil, err
		}
		min, err := p.floatVal("min_pct")
		if err != nil {
			return nil, err
		}
		return ValueDistribution{Field: field, Value: value, MinPct: min}, nil
	default:
		return nil, errUnknownRule
	}
}

// params reads rule parameters that may come from compiled-in defaults
// (Go-typed) or YAML (any-typed).
type params map[string]any

func (p params) intVal(key string) (int, error) {
	switch v := p[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("missing required param %q", key)
	default:
		return 0, fmt.Errorf("param %q: want int, got %T", key, v)
	}
}

func (p params) floatVal(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("missing required param %q", key)
	default:
		return 0, fmt.Errorf("param %q: want float, got %T", key, v)
	}
}

func (p params) stringVal(key string) (string, error) {
	switch v := p[key].(type) {
	case string:
		return v, nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case nil:
		return "", fmt.Errorf("missing required param %q", key)
	default:
		return "", fmt.Errorf("param %q: want string, got %T", key, v)
	}
}

func (p params) optString(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p params) stringsVal(key string) ([]string, error) {
	switch v := p[key].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("param %q: want strings, got %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("missing required param %q", key)
	default:
		return nil, fmt.Errorf("param %q: want string list, got %T", key, v)
	}
}
