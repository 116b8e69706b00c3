package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const webhookTimeout = 30 * time.Second

// webhookPayload is the subset of a Discord-compatible webhook body the relay sends.
type webhookPayload struct {
	Content         string           `json:"content"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users,omitempty"`
}

type webhookMessage struct {
	ID string `json:"id"`
}

// WebhookClient posts plain-text messages to chat webhooks.
type WebhookClient struct {
	client *http.Client
}

// NewWebhookClient creates a client. A nil http.Client uses a default with a timeout.
func NewWebhookClient(client *http.Client) *WebhookClient {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookClient{client: client}
}

// Post sends content to webhookURL.
func (c *WebhookClient) Post(ctx context.Context, webhookURL, content string) error {
	_, err := c.do(ctx, http.MethodPost, webhookURL, webhookPayload{
		Content:         content,
		AllowedMentions: &allowedMentions{Parse: []string{}},
	})
	return err
}

func (c *WebhookClient) do(ctx context.Context, method, target string, payload webhookPayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode webhook payload: %w", ErrDeliveryFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build webhook request: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound && method == http.MethodPatch {
		return nil, ErrMessageNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: webhook returned %d %s", ErrDeliveryFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	log.Debug().Str("url", truncate(target, 50)).Msg("webhook delivered")
	return respBody, nil
}

// WebhookSink delivers reminder fallbacks to the webhook configured for a location.
type WebhookSink struct {
	client    *WebhookClient
	locations map[string]string
}

// NewWebhookSink maps location ids to webhook URLs.
func NewWebhookSink(client *WebhookClient, locations map[string]string) *WebhookSink {
	return &WebhookSink{client: client, locations: locations}
}

// NotifyFallback posts msg to the location, mentioning the user.
func (s *WebhookSink) NotifyFallback(ctx context.Context, locationID, userID string, msg Message) error {
	target, ok := s.locations[locationID]
	if !ok || target == "" {
		return fmt.Errorf("%w: no webhook for location %q", ErrDeliveryFailed, locationID)
	}

	content := fmt.Sprintf("<@%s> %s", userID, msg.Body)
	if msg.Title != "" {
		content = fmt.Sprintf("<@%s> **%s**\n%s", userID, msg.Title, msg.Body)
	}
	_, err := s.client.do(ctx, http.MethodPost, target, webhookPayload{
		Content:         content,
		AllowedMentions: &allowedMentions{Parse: []string{}, Users: []string{userID}},
	})
	return err
}

// WebhookPublisher creates and edits one message through a webhook.
type WebhookPublisher struct {
	client *WebhookClient
	url    string
}

// NewWebhookPublisher publishes to webhookURL.
func NewWebhookPublisher(client *WebhookClient, webhookURL string) *WebhookPublisher {
	return &WebhookPublisher{client: client, url: strings.TrimRight(webhookURL, "/")}
}

// Create posts a new message and returns its id.
func (p *WebhookPublisher) Create(ctx context.Context, content string) (string, error) {
	target, err := withQuery(p.url, "wait", "true")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	body, err := p.client.do(ctx, http.MethodPost, target, webhookPayload{
		Content:         content,
		AllowedMentions: &allowedMentions{Parse: []string{}},
	})
	if err != nil {
		return "", err
	}
	var msg webhookMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.ID == "" {
		return "", fmt.Errorf("%w: webhook response carries no message id", ErrDeliveryFailed)
	}
	return msg.ID, nil
}

// Edit replaces the content of a message created earlier. It returns
// ErrMessageNotFound when the message was deleted.
func (p *WebhookPublisher) Edit(ctx context.Context, id, content string) error {
	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	u = u.JoinPath("messages", id)
	_, err = p.client.do(ctx, http.MethodPatch, u.String(), webhookPayload{
		Content:         content,
		AllowedMentions: &allowedMentions{Parse: []string{}},
	})
	return err
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
