package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSecretNotFound = errors.New("secret not found")

	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrCredentialExpired = errors.New("credential expired, sign in again")
	ErrFlowDenied        = errors.New("authorization denied")
	ErrFlowTimeout       = errors.New("authorization flow timed out")
	ErrFlowCancelled     = errors.New("authorization flow cancelled")
	ErrRefreshRejected   = errors.New("refresh token rejected")
	ErrUnauthorized      = errors.New("remote rejected credential")

	ErrCursorStale          = errors.New("sync cursor rejected as stale")
	ErrTransient            = errors.New("transient remote failure")
	ErrConflict             = errors.New("remote state conflict")
	ErrInvalidRecord        = errors.New("invalid message record")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotAuthor            = errors.New("message was not authored by the signed-in user")
	ErrMessageDeleted       = errors.New("message is deleted")
	ErrMessagePending       = errors.New("message is not confirmed by the server yet")
	ErrInvalidReaction      = errors.New("unknown reaction kind")
	ErrEmptyBody            = errors.New("message body is empty")
	ErrReplyUnsupported     = errors.New("replies are only supported in channels")
	ErrInvalidPresence      = errors.New("unknown presence availability")
)

// AuthError reports a failed authorization, refresh or credential lookup.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SyncError reports a conversation whose sync gave up after retries.
type SyncError struct {
	ConversationID ConversationID
	Err            error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync conversation %q: %v", e.ConversationID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

type MutationErrorKind string

const (
	MutationTransient MutationErrorKind = "transient"
	MutationConflict  MutationErrorKind = "conflict"
)

type MutationError struct {
	Kind      MutationErrorKind
	Mutation  MutationKind
	MessageID MessageID
	// Attempts counts network calls made, zero when the mutation was rejected
	// before any.
	Attempts int
	Err      error
}

func (e *MutationError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s on %q after %d attempts: %v", e.Kind, e.Mutation, e.MessageID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s on %q: %v", e.Kind, e.Mutation, e.MessageID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

func (e *MutationError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Kind == MutationConflict
	case ErrTransient:
		return e.Kind == MutationTransient
	}
	return false
}

// StorageError is returned when neither secret backend accepted a write.
type StorageError struct {
	Primary  error
	Fallback error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential storage failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *StorageError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
