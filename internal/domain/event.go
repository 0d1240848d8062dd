package domain

import (
	"fmt"
	"time"
)

// EventType enumerates the business events the detector can emit.
type EventType string

const (
	EventNewLicense       EventType = "NEW_LICENSE"
	EventLapsed           EventType = "LAPSED"
	EventReinstated       EventType = "REINSTATED"
	EventAddressChange    EventType = "ADDRESS_CHANGE"
	EventNewCertification EventType = "NEW_CERTIFICATION"
	EventStatusChange     EventType = "STATUS_CHANGE"
)

// Priority ranks an event for the downstream trigger layer.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Event is a derived fact about a change between two snapshots.
// Events are created once per detection run and never mutated.
// MarketingAction is a routing hint consumed by the trigger layer;
// the core does not interpret it.
type Event struct {
	EventID          string            `json:"event_id"`
	EventType        EventType         `json:"event_type"`
	Timestamp        time.Time         `json:"timestamp"`
	StateCode        string            `json:"state_code"`
	ProfessionalType string            `json:"professional_type"`
	LicenseNumber    string            `json:"license_number"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	City             string            `json:"city,omitempty"`
	County           string            `json:"county,omitempty"`
	ZipCode          string            `json:"zip_code,omitempty"`
	PreviousValue    string            `json:"previous_value,omitempty"`
	CurrentValue     string            `json:"current_value,omitempty"`
	Priority         Priority          `json:"priority"`
	MarketingAction  string            `json:"marketing_action"`
	RawData          map[string]string `json:"raw_data,omitempty"`
}

// NewEventID builds the deterministic event identifier. It is derived
// from the snapshot date rather than the wall clock, so re-running
// detection on the same snapshot pair reproduces identical IDs and
// consumers can de-duplicate safely.
func NewEventID(t EventType, stateCode, licenseNumber, snapshotDate string) string {
	return fmt.Sprintf("%s_%s_%s_%s", t, stateCode, licenseNumber, snapshotDate)
}
