package domain

// Destination identifies an outbound marketing/CRM channel.
type Destination string

const (
	DestGHL         Destination = "ghl"
	DestInstantly   Destination = "instantly"
	DestLobPostcard Destination = "lob_postcard"
	DestLobLetter   Destination = "lob_letter"
	DestWebhook     Destination = "webhook"
)

// RetryPolicy names the failed-send retry stance for a destination.
// There is exactly one policy today: failed sends are never re-driven
// automatically. The constant exists so the stance is visible in config
// and status output instead of being an absence of code.
type RetryPolicy string

// RetryNever means a failed send stays failed until a human or a fresh
// enqueue re-drives it. Automatic retries against irreversible channels
// are judged too risky.
const RetryNever RetryPolicy = "never"

// DestinationConfig is the static policy for one channel. Both the
// export queue and the quarantine manager consult the same table, so
// their views of reversibility never diverge.
type DestinationConfig struct {
	Name                 Destination `yaml:"name" json:"name"`
	DisplayName          string      `yaml:"display_name" json:"display_name"`
	CostPerRecord        float64     `yaml:"cost_per_record" json:"cost_per_record"`
	IsReversible         bool        `yaml:"is_reversible" json:"is_reversible"`
	AutoApprove          bool        `yaml:"auto_approve" json:"auto_approve"`
	MinConfidenceForAuto int         `yaml:"min_confidence_for_auto" json:"min_confidence_for_auto"`
	DelayHours           int         `yaml:"delay_hours" json:"delay_hours"`
	RateLimitPerHour     int         `yaml:"rate_limit_per_hour,omitempty" json:"rate_limit_per_hour,omitempty"`
	RateLimitPerDay      int         `yaml:"rate_limit_per_day,omitempty" json:"rate_limit_per_day,omitempty"`
	RetryPolicy          RetryPolicy `yaml:"retry_policy" json:"retry_policy"`
}

// QuarantineResult summarizes one quarantine pass over a load.
type QuarantineResult struct {
	LoadID                string            `json:"load_id"`
	QuarantinedAt         string            `json:"quarantined_at"`
	Reason                string            `json:"reason"`
	ExportsCancelled      int               `json:"exports_cancelled"`
	ExportsReversed       int               `json:"exports_reversed"`
	ExportsFailedReversal int               `json:"exports_failed_reversal"`
	ReversalFailures      []ReversalFailure `json:"reversal_failures"`
}

// ReversalFailure records one sent export that could not be undone and
// needs manual follow-up.
type ReversalFailure struct {
	ExportID    string      `json:"export_id"`
	Destination Destination `json:"destination"`
	Reason      string      `json:"reason"`
}
