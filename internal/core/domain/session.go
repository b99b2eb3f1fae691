package domain

import "time"

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatMessage is a persisted conversation turn.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
