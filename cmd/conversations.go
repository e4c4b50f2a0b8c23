package cmd

import (
	"fmt"
	"time"

	"github.com/bnema/terms-cli/internal/adapters/render/conversations"
	"github.com/bnema/terms-cli/internal/application"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

type conversationJSON struct {
	ID           domain.ConversationID   `json:"id"`
	Kind         domain.ConversationKind `json:"kind"`
	Name         string                  `json:"name"`
	Preview      string                  `json:"preview,omitempty"`
	Unread       int                     `json:"unread"`
	LastActivity *time.Time              `json:"last_activity,omitempty"`
	Stale        bool                    `json:"stale,omitempty"`
}

type messageJSON struct {
	ID        domain.MessageID               `json:"id"`
	Sender    string                         `json:"sender"`
	SenderID  string                         `json:"sender_id"`
	Body      string                         `json:"body,omitempty"`
	CreatedAt time.Time                      `json:"created_at"`
	EditedAt  *time.Time                     `json:"edited_at,omitempty"`
	Deleted   bool                           `json:"deleted,omitempty"`
	ReplyTo   domain.MessageID               `json:"reply_to,omitempty"`
	Reply     domain.ReplyState              `json:"reply_state,omitempty"`
	Reactions map[string]domain.ReactionKind `json:"reactions,omitempty"`
	Pending   domain.MutationKind            `json:"pending,omitempty"`
}

func newConversationsCmd(app *app) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List chats and channels, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := loadConversations(cmd, svc); err != nil {
				return err
			}
			return writeConversationsOutput(cmd, app, svc, limit, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many conversations (0 shows all)")

	return cmd
}

func writeConversationsOutput(cmd *cobra.Command, app *app, svc *services, limit int, asJSON bool) error {
	convs := svc.model.Conversations()
	self := svc.model.Self()

	if asJSON {
		out := make([]conversationJSON, 0, len(convs))
		for _, c := range convs {
			if !c.Active {
				continue
			}
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, toConversationJSON(c, self))
		}
		return writeJSON(cmd, out)
	}

	rendered, err := conversations.RenderList(convs, conversations.RenderOptions{
		Now:   app.clock.Now(),
		Self:  self,
		Limit: limit,
	})
	if err != nil {
		return fmt.Errorf("render conversations: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func toConversationJSON(c domain.Conversation, self string) conversationJSON {
	out := conversationJSON{
		ID:      c.ID,
		Kind:    c.Kind,
		Name:    c.DisplayName(self),
		Preview: c.Preview,
		Unread:  c.Unread,
		Stale:   c.Stale,
	}
	if !c.LastActivity.IsZero() {
		at := c.LastActivity
		out.LastActivity = &at
	}
	return out
}

func toMessageJSON(m application.MessageView) messageJSON {
	out := messageJSON{
		ID:        m.ID,
		Sender:    m.Sender.DisplayName,
		SenderID:  m.Sender.ID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		Deleted:   m.Deleted,
		ReplyTo:   m.ReplyTo,
		Reply:     m.Reply.State,
		Reactions: m.Reactions,
		Pending:   m.Pending,
	}
	if !m.EditedAt.IsZero() {
		at := m.EditedAt
		out.EditedAt = &at
	}
	return out
}
