package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TemplateInvitation = "client_invitation"
)

// Client dispatches transactional email through an HTTP webhook.
// Dispatch is strictly best-effort: methods never return errors, all
// failures are logged at WARN level, and each send runs detached from
// the calling request so a slow or failing mail provider cannot affect
// the parent operation's outcome.
type Client struct {
	httpClient *http.Client
	webhookURL string
	timeout    time.Duration
}

// NewClient creates a mail client. An empty webhookURL disables real
// delivery; sends are logged instead (useful in dev).
func NewClient(webhookURL string, timeoutMS int) *Client {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
		timeout:    timeout,
	}
}

// payload is the JSON body sent to the mail webhook
type payload struct {
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}

// SendInvitation dispatches an invitation email in the background
func (c *Client) SendInvitation(toEmail, acceptURL string, expiresAt time.Time) {
	go c.send(payload{
		To:       toEmail,
		Template: TemplateInvitation,
		Variables: map[string]string{
			"accept_url": acceptURL,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})
}

func (c *Client) send(p payload) {
	if c.webhookURL == "" {
		log.Info().
			Str("to", p.To).
			Str("template", p.Template).
			Msg("Mail webhook not configured; skipping delivery")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("to", p.To).Msg("Failed to marshal mail payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		log.Warn().Err(err).Str("to", p.To).Msg("Failed to create mail request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Str("to", p.To).
				Msg("Mail dispatch timed out")
		} else {
			log.Warn().Err(err).Str("to", p.To).Msg("Failed to dispatch mail")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("to", p.To).
			Str("template", p.Template).
			Msg("Mail webhook returned error status")
		return
	}

	log.Info().
		Str("to", p.To).
		Str("template", p.Template).
		Msg("Mail dispatched successfully")
}
