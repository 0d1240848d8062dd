package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/httpretry"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

// GHL pushes contacts into a GoHighLevel CRM location. Reversal deletes
// the created contact, which GHL treats as idempotent.
type GHL struct {
	apiKey     string
	locationID string
	baseURL    string
	client     httpretry.HTTPDoer
	reverser   httpretry.HTTPDoer
}

// NewGHL creates the GoHighLevel adapter.
func NewGHL(cfg config.GHLConfig, client, reverser httpretry.HTTPDoer) *GHL {
	base := cfg.BaseURL
	if base == "" {
		base = "https://rest.gohighlevel.com/v1"
	}
	return &GHL{
		apiKey:     cfg.APIKey,
		locationID: cfg.LocationID,
		baseURL:    base,
		client:     client,
		reverser:   reverser,
	}
}

// Send creates a contact from the export payload and returns the GHL
// contact ID.
func (g *GHL) Send(ctx context.Context, rec *domain.ExportRecord) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("ghl: %w", ErrNotConfigured)
	}

	contact := map[string]any{
		"locationId": g.locationID,
		"firstName":  rec.Payload["first_name"],
		"lastName":   rec.Payload["last_name"],
		"email":      rec.Payload["email"],
		"phone":      rec.Payload["phone"],
		"city":       rec.Payload["city"],
		"state":      rec.Payload["state"],
		"postalCode": rec.Payload["zip"],
		"tags":       []string{"dental-leads-etl", "provider:" + rec.ProviderID},
		"customField": map[string]string{
			"license_number": rec.Payload["license_number"],
			"npi":            rec.Payload["npi"],
			"export_id":      rec.ExportID,
		},
	}
	body, err := json.Marshal(contact)
	if err != nil {
		return "", fmt.Errorf("marshal contact: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/contacts/", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ghl request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ghl error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	json.Unmarshal(respBody, &result)
	if result.Contact.ID == "" {
		return "", fmt.Errorf("ghl response missing contact id: %s", string(respBody))
	}
	logger.Info("ghl contact created", "export_id", rec.ExportID, "contact_id", result.Contact.ID)
	return result.Contact.ID, nil
}

// Reverse deletes the contact created by Send. A 404 counts as success:
// the contact is already gone.
func (g *GHL) Reverse(ctx context.Context, rec *domain.ExportRecord) error {
	if g.apiKey == "" {
		return fmt.Errorf("ghl: %w", ErrNotConfigured)
	}
	if rec.ExternalID == "" {
		return fmt.Errorf("ghl reverse: export %s has no external id", rec.ExportID)
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", g.baseURL+"/contacts/"+rec.ExternalID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.reverser.Do(req)
	if err != nil {
		return fmt.Errorf("ghl delete: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("ghl delete error %d: %s", resp.StatusCode, string(respBody))
	}
	logger.Info("ghl contact deleted", "export_id", rec.ExportID, "contact_id", rec.ExternalID)
	return nil
}
