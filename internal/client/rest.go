package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mfglink/realtime/internal/domain"
)

// RESTClient consumes the narrow request/response contracts the realtime layer
// depends on: chat-history backfill per room and notification fetch/ack. The
// services behind them are external collaborators.
type RESTClient struct {
	base       string
	credential string
	http       *http.Client
}

func NewRESTClient(base, credential string) *RESTClient {
	return &RESTClient{
		base:       base,
		credential: credential,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RESTClient) put(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: PUT %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// ChatHistory backfills the persisted messages of a room; live frames only
// carry what happened since the page loaded.
func (c *RESTClient) ChatHistory(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	if err := c.get(ctx, fmt.Sprintf("/api/rfqs/%d/messages", room), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications fetches the persisted notification records for the identity.
func (c *RESTClient) Notifications(ctx context.Context) ([]domain.Notification, error) {
	var out []domain.Notification
	if err := c.get(ctx, "/api/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead acknowledges one notification.
func (c *RESTClient) MarkRead(ctx context.Context, id int64) error {
	return c.put(ctx, fmt.Sprintf("/api/notifications/%d/read", id))
}

// MarkAllRead acknowledges every unread notification.
func (c *RESTClient) MarkAllRead(ctx context.Context) error {
	return c.put(ctx, "/api/notifications/read-all")
}
