package domain

import "time"

// ChatMessage is the provider-agnostic chat message shape used by the
// orchestration service and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StoredMessage is a single persisted chat turn half (one role's message).
type StoredMessage struct {
	SessionID string
	Role      string
	Content   string
	Timestamp time.Time
}

// ChatSession is the per-conversation record created on the first turn.
type ChatSession struct {
	UserID    string
	SessionID string
	Title     string
	CreatedAt time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
