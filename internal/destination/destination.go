// Package destination holds the outbound channel adapters. Each
// destination implements Sender (deliver one export) and, where the
// vendor supports it, Reverser (best-effort undo of a sent export).
//
// Senders use a plain timeout-bounded HTTP client: a failed send is
// recorded, never re-driven automatically. Reversals go through the
// retrying client since a vendor delete is idempotent.
package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/httpretry"
)

var (
	// ErrNotReversible means the destination cannot undo a send at all
	// (delivered cold email, fired webhook).
	ErrNotReversible = errors.New("destination does not support reversal")

	// ErrAlreadyDelivered means the vendor accepted the cancel call but
	// the piece already left production and cannot be pulled back.
	ErrAlreadyDelivered = errors.New("already delivered, cannot cancel")

	// ErrNotConfigured means the adapter is missing credentials.
	ErrNotConfigured = errors.New("destination not configured")
)

// Sender delivers one export record to its destination and returns the
// destination's own identifier for the created resource.
type Sender interface {
	Send(ctx context.Context, rec *domain.ExportRecord) (string, error)
}

// Reverser attempts an idempotent delete/cancel against the destination
// using the stored external ID.
type Reverser interface {
	Reverse(ctx context.Context, rec *domain.ExportRecord) error
}

// Registry resolves the adapter for each configured destination.
type Registry struct {
	senders   map[domain.Destination]Sender
	reversers map[domain.Destination]Reverser
}

// NewRegistry wires every known destination from config. Destinations
// with missing credentials still get an adapter; it fails at call time
// with ErrNotConfigured so a dry run works without secrets.
func NewRegistry(cfg *config.Config) *Registry {
	sendClient := &http.Client{Timeout: cfg.Send.Timeout()}
	reverseClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Send.Timeout()}, 3)

	ghl := NewGHL(cfg.GHL, sendClient, reverseClient)
	lobPostcard := NewLob(cfg.Lob, "postcards", cfg.Lob.PostcardTemplate, sendClient, reverseClient)
	lobLetter := NewLob(cfg.Lob, "letters", cfg.Lob.LetterTemplate, sendClient, reverseClient)

	return &Registry{
		senders: map[domain.Destination]Sender{
			domain.DestGHL:         ghl,
			domain.DestInstantly:   NewInstantly(cfg.Instantly, sendClient),
			domain.DestLobPostcard: lobPostcard,
			domain.DestLobLetter:   lobLetter,
			domain.DestWebhook:     NewWebhook(cfg.Webhook, sendClient),
		},
		reversers: map[domain.Destination]Reverser{
			domain.DestGHL:         ghl,
			domain.DestLobPostcard: lobPostcard,
			domain.DestLobLetter:   lobLetter,
		},
	}
}

// Sender returns the sender for a destination. Unknown destinations are
// a configuration error.
func (r *Registry) Sender(dest domain.Destination) (Sender, error) {
	s, ok := r.senders[dest]
	if !ok {
		return nil, fmt.Errorf("no sender for destination %q", dest)
	}
	return s, nil
}

// Reverser returns the reverser for a destination, or ErrNotReversible
// when the channel has no undo.
func (r *Registry) Reverser(dest domain.Destination) (Reverser, error) {
	rv, ok := r.reversers[dest]
	if !ok {
		return nil, ErrNotReversible
	}
	return rv, nil
}
