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

// Webhook posts the export payload to a configured trigger URL. Once
// the receiver has seen the payload there is nothing to take back, so
// the adapter has no Reverser.
type Webhook struct {
	url    string
	client httpretry.HTTPDoer
}

// NewWebhook creates the trigger webhook adapter.
func NewWebhook(cfg config.WebhookConfig, client httpretry.HTTPDoer) *Webhook {
	return &Webhook{url: cfg.URL, client: client}
}

// Send posts the export as JSON. Any 2xx answer counts as delivered;
// the export ID is echoed back as the external identifier since the
// receiver assigns none.
func (w *Webhook) Send(ctx context.Context, rec *domain.ExportRecord) (string, error) {
	if w.url == "" {
		return "", fmt.Errorf("webhook: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(map[string]any{
		"export_id":        rec.ExportID,
		"provider_id":      rec.ProviderID,
		"match_confidence": rec.MatchConfidence,
		"payload":          rec.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook error %d: %s", resp.StatusCode, string(respBody))
	}
	logger.Info("webhook triggered", "export_id", rec.ExportID)
	return rec.ExportID, nil
}
