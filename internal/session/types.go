// Package session provides the two-tier chat session store: a Redis hot
// tier with sliding TTL and a durable cold tier, bridged by a periodic
// migration loop.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session exists in neither tier.
var ErrNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one chat turn within a session.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Metadata carries session bookkeeping.
type Metadata struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Session is an ordered chat transcript.
type Session struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Metadata Metadata  `json:"metadata"`
}

// NewSession creates an empty session with fresh timestamps.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:       id,
		Messages: []Message{},
		Metadata: Metadata{
			CreatedAt:    now,
			UpdatedAt:    now,
			LastActivity: now,
		},
	}
}

// Append adds a message with a server-assigned timestamp and updates the
// session bookkeeping.
func (s *Session) Append(role, content string, metadata map[string]interface{}) Message {
	now := time.Now().UTC()
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}
	s.Messages = append(s.Messages, msg)
	s.Metadata.MessageCount = len(s.Messages)
	s.Metadata.UpdatedAt = now
	s.Metadata.LastActivity = now
	return msg
}
