package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/emergency-dispatch/internal/models"
)

// WebhookNotifier posts status events to a push backend.
type WebhookNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewWebhookNotifier(endpoint, key string) *WebhookNotifier {
	return &WebhookNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (w *WebhookNotifier) Publish(ctx context.Context, ev models.StatusEvent) error {
	body := map[string]any{
		"request_id": ev.RequestID,
		"label":      ev.Snapshot.State.Label(),
		"event":      ev,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Key != "" {
		req.Header.Set("Authorization", "Bearer "+w.Key)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
