package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

type MessageID string

// LocalIDPrefix marks ids assigned to optimistic sends before the server
// confirms them.
const LocalIDPrefix = "local-"

func (id MessageID) IsLocal() bool {
	return strings.HasPrefix(string(id), LocalIDPrefix)
}

type ReactionKind string

const (
	ReactionLike      ReactionKind = "like"
	ReactionHeart     ReactionKind = "heart"
	ReactionLaugh     ReactionKind = "laugh"
	ReactionSurprised ReactionKind = "surprised"
	ReactionSad       ReactionKind = "sad"
	ReactionAngry     ReactionKind = "angry"
)

var reactionKinds = map[ReactionKind]struct{}{
	ReactionLike: {}, ReactionHeart: {}, ReactionLaugh: {},
	ReactionSurprised: {}, ReactionSad: {}, ReactionAngry: {},
}

func (k ReactionKind) Valid() bool {
	_, ok := reactionKinds[k]
	return ok
}

type Sender struct {
	ID          string
	DisplayName string
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         Sender
	Body           string
	CreatedAt      time.Time
	EditedAt       time.Time
	// ModifiedAt moves on any server-side change, reactions included.
	ModifiedAt time.Time
	Deleted    bool
	ReplyTo    MessageID
	// Reactions maps reactor id to the single reaction kind they placed.
	Reactions map[string]ReactionKind
	// Pending names the unconfirmed local mutation applied to this message.
	Pending   MutationKind
	ClientKey string
}

// Less orders messages by creation time, ties broken by id.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

func (m Message) Clone() Message {
	m.Reactions = maps.Clone(m.Reactions)
	return m
}

// ReactionUpdate is the authoritative reaction state of one reactor. An empty
// Kind means the reactor has no reaction.
type ReactionUpdate struct {
	Reactor string
	Kind    ReactionKind
}

// MessageRecord is a message as delivered by a delta or history page.
type MessageRecord struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         Sender
	Body           string
	CreatedAt      time.Time
	EditedAt       time.Time
	ModifiedAt     time.Time
	Deleted        bool
	ReplyTo        MessageID
	// HasReactions is set when Reactions carries reaction state as of
	// ModifiedAt. Each update decides for its own reactor only; reactors it
	// does not name keep their local reaction.
	HasReactions bool
	Reactions    []ReactionUpdate
	ClientKey    string
}

func (r MessageRecord) Validate() error {
	if strings.TrimSpace(string(r.ID)) == "" {
		return fmt.Errorf("%w: message id is empty", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: message %q has no creation time", ErrInvalidRecord, r.ID)
	}
	return nil
}

// ToMessage builds a fresh local message from the record.
func (r MessageRecord) ToMessage(conversation ConversationID) Message {
	msg := Message{
		ID:             r.ID,
		ConversationID: conversation,
		Sender:         r.Sender,
		Body:           r.Body,
		CreatedAt:      r.CreatedAt,
		EditedAt:       r.EditedAt,
		ModifiedAt:     r.ModifiedAt,
		Deleted:        r.Deleted,
		ReplyTo:        r.ReplyTo,
		ClientKey:      r.ClientKey,
	}
	if msg.Deleted {
		msg.Body = ""
	}
	for _, reaction := range r.Reactions {
		if reaction.Kind == "" {
			continue
		}
		if msg.Reactions == nil {
			msg.Reactions = make(map[string]ReactionKind)
		}
		msg.Reactions[reaction.Reactor] = reaction.Kind
	}
	return msg
}

// ReplyState describes what a reply-to reference resolves to at read time.
type ReplyState string

const (
	ReplyNone     ReplyState = ""
	ReplyResolved ReplyState = "resolved"
	ReplyDeleted  ReplyState = "deleted"
	ReplyUnknown  ReplyState = "unknown"
)
