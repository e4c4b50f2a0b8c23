package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

// SearchUsers looks up people by the start of their name or address.
func (e *SyncEngine) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	var users []domain.User
	err := e.retry(ctx, "search users", func() error {
		return e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
			var err error
			users, err = e.gateway.SearchUsers(ctx, cred, query)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// StartChat opens a one-on-one chat with user, an id or sign-in address, and
// adds it to the model. An existing chat with the same person is reused.
func (e *SyncEngine) StartChat(ctx context.Context, user string) (domain.Conversation, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return domain.Conversation{}, errors.New("start chat: user is required")
	}
	self := e.model.Self()
	if self == "" {
		me, err := e.Identify(ctx)
		if err != nil {
			return domain.Conversation{}, err
		}
		self = me.ID
	}

	var conv domain.Conversation
	err := e.retry(ctx, "start chat", func() error {
		return e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
			var err error
			conv, err = e.gateway.CreateChat(ctx, cred, self, user)
			return err
		})
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("start chat with %q: %w", user, err)
	}

	if e.model.Add(conv) {
		e.publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: conv.ID})
	}
	e.opts.Metrics.SetConversations(len(e.model.Conversations()))
	added, _ := e.model.Conversation(conv.ID)
	return added, nil
}

// Presence reports the presence of userIDs, or of the signed-in user when
// none are given.
func (e *SyncEngine) Presence(ctx context.Context, userIDs ...string) ([]domain.Presence, error) {
	if len(userIDs) == 0 {
		self := e.model.Self()
		if self == "" {
			me, err := e.Identify(ctx)
			if err != nil {
				return nil, err
			}
			self = me.ID
		}
		userIDs = []string{self}
	}

	var out []domain.Presence
	err := e.retry(ctx, "get presence", func() error {
		return e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
			var err error
			out, err = e.gateway.Presence(ctx, cred, userIDs)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	return out, nil
}

// SetPresence sets the preferred presence of the signed-in user for expiry,
// or the service default when expiry is zero.
func (e *SyncEngine) SetPresence(ctx context.Context, availability domain.Availability, expiry time.Duration) error {
	err := e.retry(ctx, "set presence", func() error {
		return e.creds.WithCredential(ctx, func(cred *domain.Credential) error {
			return e.gateway.SetPresence(ctx, cred, availability, expiry)
		})
	})
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}
