package domain

import (
	"strings"
	"time"
)

type ConversationID string

type ConversationKind string

const (
	ConversationDirect  ConversationKind = "direct"
	ConversationGroup   ConversationKind = "group"
	ConversationChannel ConversationKind = "channel"
)

type Member struct {
	UserID      string
	DisplayName string
}

type Conversation struct {
	ID           ConversationID
	Kind         ConversationKind
	Topic        string
	Members      []Member
	Preview      string
	Unread       int
	LastActivity time.Time
	// Active is false once a listing no longer returns the conversation.
	Active bool
	// Stale is set when sync retries were exhausted and cleared by the next
	// successful sync.
	Stale   bool
	Focused bool
}

// ConversationRef is what the gateway needs to address a conversation.
type ConversationRef struct {
	ID   ConversationID
	Kind ConversationKind
}

func (c Conversation) Ref() ConversationRef {
	return ConversationRef{ID: c.ID, Kind: c.Kind}
}

// DisplayName prefers the topic, then the names of the other members.
func (c Conversation) DisplayName(selfID string) string {
	if topic := strings.TrimSpace(c.Topic); topic != "" {
		return topic
	}

	names := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m.UserID == selfID || strings.TrimSpace(m.DisplayName) == "" {
			continue
		}
		names = append(names, m.DisplayName)
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return "Chat"
}

// User is an account as reported by the remote service.
type User struct {
	ID          string
	DisplayName string
	Mail        string
}
