package domain

import "time"

// ChatMessage is a persisted chat line as returned by the history backfill.
// Live delivery is ephemeral broadcast; this shape only appears on the REST
// contract.
type ChatMessage struct {
	ID          int64     `json:"id"`
	RoomID      RoomID    `json:"rfq_id"`
	UserID      UserID    `json:"user_id"`
	FullName    string    `json:"user_full_name"`
	CompanyName string    `json:"company_name"`
	Text        string    `json:"message_text"`
	CreatedAt   time.Time `json:"created_at"`
}
