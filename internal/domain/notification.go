package domain

import "time"

// Notification is a record persisted by the external notification service.
// The realtime layer only pushes it to live connections; the persisted copy
// stays independently fetchable over REST.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID UserID    `json:"recipient_user_id"`
	Message     string    `json:"message"`
	LinkURL     string    `json:"link_url,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
