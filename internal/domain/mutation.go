package domain

import "time"

type MutationKind string

const (
	MutationNone    MutationKind = ""
	MutationSend    MutationKind = "send"
	MutationEdit    MutationKind = "edit"
	MutationDelete  MutationKind = "delete"
	MutationReact   MutationKind = "react"
	MutationUnreact MutationKind = "unreact"
)

// PendingMutation is a local write not yet confirmed by the server.
type PendingMutation struct {
	Kind           MutationKind
	IdempotencyKey string
	ConversationID ConversationID
	MessageID      MessageID
	// ReplyTo is the parent of a send posted to a reply thread.
	ReplyTo  MessageID
	Body     string
	Reaction ReactionKind
	// Attempts counts the network calls made so far, retries included.
	Attempts  int
	CreatedAt time.Time
}

// Target is the key that serializes this mutation. Sends have no message yet
// and serialize per conversation.
func (m PendingMutation) Target() string {
	if m.Kind == MutationSend {
		return "conv:" + string(m.ConversationID)
	}
	return "msg:" + string(m.ConversationID) + "/" + string(m.MessageID)
}
