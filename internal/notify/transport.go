package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vpsbot/internal/logger"
)

// WebhookTransport posts messages as JSON to the chat gateway.
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{url: url, client: &http.Client{Timeout: timeout}}
}

func (t *WebhookTransport) Deliver(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat gateway: status %d", resp.StatusCode)
	}
	return nil
}

// LogTransport writes messages to the log. Used when no chat gateway is
// configured.
type LogTransport struct{}

func (LogTransport) Deliver(_ context.Context, m Message) error {
	logger.Info("chat message", "chat_id", m.ChatID, "text", m.Text, "has_image", len(m.Image) > 0)
	return nil
}
