package domain

import (
	"strings"

	"github.com/google/uuid"
)

// newSessionPrefix is the wire convention the UI uses to signal that a
// conversation has not been persisted yet. It is interpreted exactly once,
// in ParseSessionRef; nothing past the handler layer sees the raw string.
const newSessionPrefix = "new-"

// SessionRef identifies a chat session and whether it already exists in the
// store. A fresh ref means the session record must be created before the
// first exchange is persisted, and that there is no history to fetch.
type SessionRef struct {
	id    string
	fresh bool
}

// NewSession returns a ref for a conversation that has no session record yet.
func NewSession(draftID string) SessionRef {
	return SessionRef{id: draftID, fresh: true}
}

// ExistingSession returns a ref for a previously created conversation.
func ExistingSession(id string) SessionRef {
	return SessionRef{id: id}
}

// ParseSessionRef interprets the session id as sent by the client. An empty
// id starts a new conversation under a generated id; the "new-" prefix
// starts one under the caller-chosen remainder; anything else refers to an
// existing session.
func ParseSessionRef(raw string) SessionRef {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return NewSession(newSessionID())
	case strings.HasPrefix(raw, newSessionPrefix):
		return NewSession(strings.TrimPrefix(raw, newSessionPrefix))
	default:
		return ExistingSession(raw)
	}
}

// ID returns the session id with any wire sentinel already stripped.
func (r SessionRef) ID() string { return r.id }

// IsNew reports whether the session record still has to be created.
func (r SessionRef) IsNew() bool { return r.fresh }

var newSessionID = func() string {
	return uuid.NewString()
}
