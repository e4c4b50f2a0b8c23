package ports

import (
	"context"

	"github.com/bnema/terms-cli/internal/domain"
)

// ConversationSnapshot is what an optional warm-start cache keeps per
// conversation.
type ConversationSnapshot struct {
	Conversation domain.Conversation
	Messages     []domain.Message
	Cursor       domain.Cursor
}

type SnapshotCache interface {
	Load(ctx context.Context) ([]ConversationSnapshot, error)
	Save(ctx context.Context, snapshot ConversationSnapshot) error
	Clear(ctx context.Context) error
	Close() error
}
