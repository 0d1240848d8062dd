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

// Instantly adds leads to a cold-email campaign. Delivered email cannot
// be unsent, so this adapter has no Reverser.
type Instantly struct {
	apiKey     string
	campaignID string
	baseURL    string
	client     httpretry.HTTPDoer
}

// NewInstantly creates the Instantly adapter.
func NewInstantly(cfg config.InstantlyConfig, client httpretry.HTTPDoer) *Instantly {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.instantly.ai/api/v1"
	}
	return &Instantly{
		apiKey:     cfg.APIKey,
		campaignID: cfg.CampaignID,
		baseURL:    base,
		client:     client,
	}
}

// Send adds the export's contact as a campaign lead. The lead email
// doubles as the external identifier; Instantly keys leads by email
// within a campaign.
func (i *Instantly) Send(ctx context.Context, rec *domain.ExportRecord) (string, error) {
	if i.apiKey == "" {
		return "", fmt.Errorf("instantly: %w", ErrNotConfigured)
	}
	email := rec.Payload["email"]
	if email == "" {
		return "", fmt.Errorf("instantly: export %s has no email", rec.ExportID)
	}

	payload := map[string]any{
		"api_key":     i.apiKey,
		"campaign_id": i.campaignID,
		"skip_if_in_workspace": true,
		"leads": []map[string]any{{
			"email":      email,
			"first_name": rec.Payload["first_name"],
			"last_name":  rec.Payload["last_name"],
			"custom_variables": map[string]string{
				"city":           rec.Payload["city"],
				"license_number": rec.Payload["license_number"],
				"export_id":      rec.ExportID,
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal leads: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", i.baseURL+"/lead/add", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instantly request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("instantly error %d: %s", resp.StatusCode, string(respBody))
	}
	logger.Info("instantly lead added", "export_id", rec.ExportID, "campaign_id", i.campaignID)
	return email, nil
}
