package domain

import "time"

type EventKind string

const (
	EventConversationUpdated      EventKind = "conversation_updated"
	EventMutationFailed           EventKind = "mutation_failed"
	EventCredentialStateChanged   EventKind = "credential_state_changed"
	EventCredentialStorageWarning EventKind = "credential_storage_warning"
)

// Event is a redraw hint. The model snapshot stays the source of truth.
type Event struct {
	Kind           EventKind
	ConversationID ConversationID
	MessageID      MessageID
	Mutation       MutationKind
	State          SessionState
	Err            error
	At             time.Time
}
