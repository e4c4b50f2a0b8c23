package ports

import (
	"context"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

// DeltaPage is one page of a delta round. NextLink continues the same round
// and is empty on the last page. A non-empty DeltaToken replaces the token the
// caller passes on later pages of the round; the last one seen is stored as
// the cursor once the round completes. HistoryToken is returned by a baseline
// round when older messages exist beyond it.
type DeltaPage struct {
	Records      []domain.MessageRecord
	NextLink     string
	DeltaToken   string
	HistoryToken string
}

type HistoryPage struct {
	Records  []domain.MessageRecord
	NextPage string
}

// ChatGateway is the remote messaging API. Every call is authorized with the
// credential passed in and must not retain it.
type ChatGateway interface {
	Me(ctx context.Context, cred *domain.Credential) (domain.User, error)
	ListConversations(ctx context.Context, cred *domain.Credential) ([]domain.Conversation, error)
	// Delta returns changes since token. An empty token starts a baseline
	// round; a non-empty link continues a round in progress.
	Delta(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, token, link string) (DeltaPage, error)
	History(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, pageToken string) (HistoryPage, error)
	CreateMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, body, idempotencyKey string) (domain.MessageRecord, error)
	// ReplyToMessage posts body as a reply to parent. Only channel
	// conversations support threaded replies.
	ReplyToMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, parent domain.MessageID, body, idempotencyKey string) (domain.MessageRecord, error)
	EditMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, body string) (domain.MessageRecord, error)
	SoftDeleteMessage(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID) error
	SetReaction(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error
	UnsetReaction(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error
	MarkRead(ctx context.Context, cred *domain.Credential, conv domain.ConversationRef, userID string) error

	SearchUsers(ctx context.Context, cred *domain.Credential, query string) ([]domain.User, error)
	// CreateChat opens a one-on-one chat between selfID and user, which is a
	// user id or sign-in address. An existing chat is returned as is.
	CreateChat(ctx context.Context, cred *domain.Credential, selfID, user string) (domain.Conversation, error)
	Presence(ctx context.Context, cred *domain.Credential, userIDs []string) ([]domain.Presence, error)
	SetPresence(ctx context.Context, cred *domain.Credential, availability domain.Availability, expiry time.Duration) error
}
