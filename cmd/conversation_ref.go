package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

const maxLookupPages = 5

var (
	errNotSignedIn         = errors.New("not signed in: run terms login")
	errAmbiguousName       = errors.New("conversation name is ambiguous")
	errMessageNotInHistory = errors.New("message not found in recent history")
)

// requireSession fails early when no credential can be used, so commands do
// not start network work that is bound to fail.
func requireSession(svc *services) error {
	if !svc.credentials.Session().State.AllowsCredentialUse() {
		return errNotSignedIn
	}
	return nil
}

// loadConversations signs the user in to the model and lists conversations.
func loadConversations(cmd *cobra.Command, svc *services) error {
	if err := requireSession(svc); err != nil {
		return err
	}
	return runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Loading conversations...", svc.engine.RefreshConversations)
}

// resolveConversation accepts a conversation id or a case-insensitive
// display name. A name must match exactly one active conversation, either
// fully or as a unique prefix.
func resolveConversation(svc *services, arg string) (domain.Conversation, error) {
	if conv, ok := svc.model.Conversation(domain.ConversationID(arg)); ok {
		return conv, nil
	}

	self := svc.model.Self()
	needle := strings.ToLower(strings.TrimSpace(arg))
	var exact, prefix []domain.Conversation
	for _, conv := range svc.model.Conversations() {
		if !conv.Active {
			continue
		}
		name := strings.ToLower(conv.DisplayName(self))
		switch {
		case name == needle:
			exact = append(exact, conv)
		case strings.HasPrefix(name, needle):
			prefix = append(prefix, conv)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return domain.Conversation{}, fmt.Errorf("%w: %q matches %d conversations", errAmbiguousName, arg, len(exact))
	case len(prefix) == 1:
		return prefix[0], nil
	case len(prefix) > 1:
		return domain.Conversation{}, fmt.Errorf("%w: %q matches %d conversations", errAmbiguousName, arg, len(prefix))
	default:
		return domain.Conversation{}, fmt.Errorf("%w: %q", domain.ErrConversationNotFound, arg)
	}
}

// findMessage syncs the conversation and pages back through history until
// the message is held locally.
func findMessage(ctx context.Context, svc *services, id domain.ConversationID, msgID domain.MessageID) error {
	if _, err := svc.engine.Sync(ctx, id); err != nil {
		return err
	}
	for range maxLookupPages {
		if _, ok := svc.model.Message(id, msgID); ok {
			return nil
		}
		cursor, _ := svc.cursors.Get(id)
		if !cursor.HistoryIncomplete() {
			break
		}
		if _, err := svc.engine.Backfill(ctx, id); err != nil {
			return err
		}
	}
	if _, ok := svc.model.Message(id, msgID); ok {
		return nil
	}
	return fmt.Errorf("%w: %s", errMessageNotInHistory, msgID)
}
