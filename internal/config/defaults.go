package config

import "github.com/consciousfounders/dental-leads-etl/internal/domain"

// DefaultSources returns the compiled-in source-type configurations.
// Thresholds mirror what each registry has historically delivered; the
// TX rule list is the strictest because TX is the revenue driver.
func DefaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		"tx_license": {
			StateCode: "TX",
			// LIC_ID is unique; LIC_NBR can be reused for cancelled licenses.
			KeyFields:         []string{"LIC_ID"},
			IDField:           "LIC_ID",
			NumberField:       "LIC_NBR",
			StatusField:       "LIC_STA_CDE",
			StatusDescField:   "LIC_STA_DESC",
			FirstNameField:    "FIRST_NME",
			LastNameField:     "LAST_NME",
			CityField:         "CITY",
			CountyField:       "COUNTY",
			ZipField:          "ZIP",
			ActiveStatuses:    []int{20, 46, 70}, // Active, Active/Probate, Charity
			LapsedStatuses:    []int{45, 48, 60}, // Expired, Expired-NSF, Cancelled
			ProfessionalTypes: []string{"dentist", "hygienist", "dental_assistant"},
			Aliases: map[string][]string{
				// The registry shipped a misspelled header for a stretch.
				"LAST_NME": {"LAST_MNE"},
			},
			Rules: []RuleSpec{
				{Rule: "row_count_min", Params: map[string]any{"min_rows": 1000}},
				{Rule: "row_count_delta", Params: map[string]any{"max_delta_pct": 0.20}},
				{Rule: "field_populated", Params: map[string]any{"field": "LIC_NBR", "min_pct": 0.99}},
				{Rule: "field_populated", Params: map[string]any{"field": "LAST_NME", "min_pct": 0.99}},
				{Rule: "field_populated", Params: map[string]any{"field": "FIRST_NME", "min_pct": 0.98}},
				{Rule: "field_populated", Params: map[string]any{"field": "CITY", "min_pct": 0.90}},
				{Rule: "no_duplicates", Params: map[string]any{"key_fields": []string{"LIC_ID"}}},
				{Rule: "date_range", Params: map[string]any{"field": "LIC_ORIG_DTE", "min_date": "1900-01-01", "max_date": "CURRENT_DATE()"}},
				{Rule: "value_distribution", Params: map[string]any{"field": "LIC_STA_CDE", "value": "20", "min_pct": 0.50}},
			},
		},
		"wa_license": {
			StateCode:   "WA",
			KeyFields:   []string{"credential_number"},
			IDField:     "credential_number",
			NumberField: "credential_number",
			Rules: []RuleSpec{
				{Rule: "row_count_min", Params: map[string]any{"min_rows": 1000}},
				{Rule: "row_count_delta", Params: map[string]any{"max_delta_pct": 0.20}},
				{Rule: "field_populated", Params: map[string]any{"field": "credential_number", "min_pct": 0.99}},
				{Rule: "field_populated", Params: map[string]any{"field": "last_name", "min_pct": 0.99}},
				{Rule: "no_duplicates", Params: map[string]any{"key_fields": []string{"credential_number"}}},
			},
		},
		"co_license": {
			StateCode:   "CO",
			KeyFields:   []string{"license_number"},
			IDField:     "license_number",
			NumberField: "license_number",
			Rules: []RuleSpec{
				{Rule: "row_count_min", Params: map[string]any{"min_rows": 500}},
				{Rule: "row_count_delta", Params: map[string]any{"max_delta_pct": 0.20}},
				{Rule: "field_populated", Params: map[string]any{"field": "license_number", "min_pct": 0.99}},
				{Rule: "field_populated", Params: map[string]any{"field": "last_name", "min_pct": 0.99}},
				{Rule: "no_duplicates", Params: map[string]any{"key_fields": []string{"license_number"}}},
			},
		},
		"npi": {
			KeyFields:   []string{"NPI"},
			IDField:     "NPI",
			NumberField: "NPI",
			Rules: []RuleSpec{
				{Rule: "row_count_min", Params: map[string]any{"min_rows": 100000}},
				{Rule: "row_count_delta", Params: map[string]any{"max_delta_pct": 0.10}},
				{Rule: "field_populated", Params: map[string]any{"field": "NPI", "min_pct": 0.9999}},
				{Rule: "field_format", Params: map[string]any{"field": "NPI", "pattern": `^\d{10}$`, "min_pct": 0.99}},
				{Rule: "no_duplicates", Params: map[string]any{"key_fields": []string{"NPI"}}},
			},
		},
	}
}

// DefaultDestinations returns the compiled-in destination policy table.
// Cost and reversibility drive the approval tier: free reversible
// channels auto-approve at moderate confidence, paid physical mail
// requires manual approval and a cooling-off delay.
func DefaultDestinations() map[domain.Destination]domain.DestinationConfig {
	return map[domain.Destination]domain.DestinationConfig{
		domain.DestGHL: {
			Name:                 domain.DestGHL,
			DisplayName:          "GoHighLevel CRM",
			CostPerRecord:        0,
			IsReversible:         true,
			AutoApprove:          true,
			MinConfidenceForAuto: 70,
			DelayHours:           0,
			RetryPolicy:          domain.RetryNever,
		},
		domain.DestInstantly: {
			Name:                 domain.DestInstantly,
			DisplayName:          "Instantly (Cold Email)",
			CostPerRecord:        0.01,
			IsReversible:         false,
			AutoApprove:          true,
			MinConfidenceForAuto: 85,
			DelayHours:           0,
			RateLimitPerDay:      500,
			RetryPolicy:          domain.RetryNever,
		},
		domain.DestLobPostcard: {
			Name:                 domain.DestLobPostcard,
			DisplayName:          "Lob Postcard",
			CostPerRecord:        0.50,
			IsReversible:         true, // until Lob hands it to production
			AutoApprove:          false,
			MinConfidenceForAuto: 95,
			DelayHours:           24,
			RetryPolicy:          domain.RetryNever,
		},
		domain.DestLobLetter: {
			Name:                 domain.DestLobLetter,
			DisplayName:          "Lob Letter",
			CostPerRecord:        1.50,
			IsReversible:         true,
			AutoApprove:          false,
			MinConfidenceForAuto: 95,
			DelayHours:           48,
			RetryPolicy:          domain.RetryNever,
		},
		domain.DestWebhook: {
			Name:                 domain.DestWebhook,
			DisplayName:          "Custom Webhook",
			CostPerRecord:        0,
			IsReversible:         false,
			AutoApprove:          true,
			MinConfidenceForAuto: 70,
			DelayHours:           0,
			RetryPolicy:          domain.RetryNever,
		},
	}
}
