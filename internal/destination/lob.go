package destination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/osteele/liquid"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/httpretry"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

const (
	defaultPostcardTemplate = `<html style="padding: 1in; font-size: 14px;">
<body>Dear Dr. {{ last_name }},<br><br>
Welcome to the {{ city }} dental community! We help new practices get
patients in the door from day one.<br><br>
Call us for a free practice growth consultation.</body></html>`

	defaultLetterTemplate = `<html style="padding: 1in; font-size: 12px;">
<body>Dear Dr. {{ first_name }} {{ last_name }},<br><br>
Congratulations on your {{ state }} dental license. As you plan your
practice in {{ city }}, we would love to show you how local dentists are
filling their schedules.<br><br>
Sincerely,<br>The Practice Growth Team</body></html>`
)

// Lob sends physical mail through the Lob print API. One adapter
// instance handles one product line ("postcards" or "letters"); the
// body is a Liquid template rendered against the export payload.
// Reversal cancels the piece while it is still in Lob's production
// window; after that Lob answers 422 and the mail is on its way.
type Lob struct {
	apiKey        string
	baseURL       string
	fromAddressID string
	product       string
	template      string
	engine        *liquid.Engine
	client        httpretry.HTTPDoer
	reverser      httpretry.HTTPDoer
}

// NewLob creates a Lob adapter for one product line. An empty template
// falls back to the built-in default for that product.
func NewLob(cfg config.LobConfig, product, template string, client, reverser httpretry.HTTPDoer) *Lob {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.lob.com/v1"
	}
	if template == "" {
		if product == "letters" {
			template = defaultLetterTemplate
		} else {
			template = defaultPostcardTemplate
		}
	}
	return &Lob{
		apiKey:        cfg.APIKey,
		baseURL:       base,
		fromAddressID: cfg.FromAddressID,
		product:       product,
		template:      template,
		engine:        liquid.NewEngine(),
		client:        client,
		reverser:      reverser,
	}
}

// Send renders the message template and creates the mail piece. The
// returned Lob ID is what Reverse later cancels.
func (l *Lob) Send(ctx context.Context, rec *domain.ExportRecord) (string, error) {
	if l.apiKey == "" {
		return "", fmt.Errorf("lob: %w", ErrNotConfigured)
	}
	if rec.Payload["address_line1"] == "" {
		return "", fmt.Errorf("lob: export %s has no mailing address", rec.ExportID)
	}

	message, err := l.renderMessage(rec)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	form := url.Values{}
	form.Add("description", "export "+rec.ExportID)
	form.Add("to[name]", strings.TrimSpace(rec.Payload["first_name"]+" "+rec.Payload["last_name"]))
	form.Add("to[address_line1]", rec.Payload["address_line1"])
	if v := rec.Payload["address_line2"]; v != "" {
		form.Add("to[address_line2]", v)
	}
	form.Add("to[address_city]", rec.Payload["city"])
	form.Add("to[address_state]", rec.Payload["state"])
	form.Add("to[address_zip]", rec.Payload["zip"])
	form.Add("metadata[export_id]", rec.ExportID)
	if l.fromAddressID != "" {
		form.Add("from", l.fromAddressID)
	}
	if l.product == "letters" {
		form.Add("file", message)
		form.Add("color", "false")
	} else {
		form.Add("front", message)
		form.Add("back", message)
		form.Add("size", "4x6")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/"+l.product, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(l.apiKey, "")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lob request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("lob error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	json.Unmarshal(respBody, &result)
	if result.ID == "" {
		return "", fmt.Errorf("lob response missing id: %s", string(respBody))
	}
	logger.Info("lob piece created", "product", l.product, "export_id", rec.ExportID, "lob_id", result.ID)
	return result.ID, nil
}

// Reverse cancels the mail piece. Lob returns 422 once the piece has
// entered production; that maps to ErrAlreadyDelivered so the caller
// can record a reversal failure rather than an API fault.
func (l *Lob) Reverse(ctx context.Context, rec *domain.ExportRecord) error {
	if l.apiKey == "" {
		return fmt.Errorf("lob: %w", ErrNotConfigured)
	}
	if rec.ExternalID == "" {
		return fmt.Errorf("lob reverse: export %s has no external id", rec.ExportID)
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", l.baseURL+"/"+l.product+"/"+rec.ExternalID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(l.apiKey, "")

	resp, err := l.reverser.Do(req)
	if err != nil {
		return fmt.Errorf("lob cancel: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrAlreadyDelivered
	case resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound:
		return fmt.Errorf("lob cancel error %d: %s", resp.StatusCode, string(respBody))
	}
	logger.Info("lob piece cancelled", "product", l.product, "export_id", rec.ExportID, "lob_id", rec.ExternalID)
	return nil
}

func (l *Lob) renderMessage(rec *domain.ExportRecord) (string, error) {
	bindings := make(map[string]any, len(rec.Payload)+1)
	for k, v := range rec.Payload {
		bindings[k] = v
	}
	bindings["export_id"] = rec.ExportID
	return l.engine.ParseAndRenderString(l.template, bindings)
}
