package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// Message is what a notification channel delivers for one result
type Message struct {
	Channel     string             `json:"channel"`
	To          []string           `json:"to"`
	ImageID     string             `json:"image_id"`
	Camera      string             `json:"camera"`
	Timestamp   int64              `json:"timestamp"`
	Labels      []string           `json:"labels"`
	Objects     []detection.Object `json:"objects"`
	ImageURL    string             `json:"image_url,omitempty"`
	RawImageURL string             `json:"raw_image_url,omitempty"`
}

// Sender delivers a message to an external service
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookSender posts messages as JSON to a URL
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSender creates a sender for url, authenticating with token when set
func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
