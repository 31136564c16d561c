package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultBrevoEndpoint is Brevo's transactional email API.
const DefaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoConfig holds the Brevo HTTP API settings.
type BrevoConfig struct {
	APIKey   string
	Endpoint string
	From     Sender
}

// BrevoNotifier sends mail through Brevo's transactional email API.
type BrevoNotifier struct {
	cfg    BrevoConfig
	client *http.Client
}

// NewBrevoNotifier creates a new BrevoNotifier. A nil client uses
// http.DefaultClient; timeouts come from the caller's context.
func NewBrevoNotifier(cfg BrevoConfig, client *http.Client) *BrevoNotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultBrevoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &BrevoNotifier{cfg: cfg, client: client}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

// Send posts the message to the API. Any non-2xx response is an error.
func (n *BrevoNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.APIKey == "" || n.cfg.From.Address == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	payload, err := json.Marshal(brevoEmail{
		Sender:      brevoContact{Email: n.cfg.From.Address, Name: n.cfg.From.Name},
		To:          []brevoContact{{Email: to}},
		Subject:     subject,
		TextContent: body,
	})
	if err != nil {
		return fmt.Errorf("encode brevo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	log.Info().Str("to", to).Str("subject", subject).Msg("Email sent via Brevo")
	return nil
}
