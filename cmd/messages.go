package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/terms-cli/internal/adapters/render/conversations"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newMessagesCmd(app *app) *cobra.Command {
	var asJSON bool
	var limit int
	var history int
	var markRead bool

	cmd := &cobra.Command{
		Use:     "messages <conversation>",
		Aliases: []string{"show"},
		Short:   "Sync and print a conversation",
		Long:    "Sync one conversation and print its messages. The conversation is a conversation id or a unique display name prefix.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := loadConversations(cmd, svc); err != nil {
				return err
			}
			conv, err := resolveConversation(svc, args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			err = runWithSpinner(ctx, cmd.ErrOrStderr(), "Syncing messages...", func(ctx context.Context) error {
				if _, err := svc.engine.Sync(ctx, conv.ID); err != nil {
					return err
				}
				for range history {
					cursor, _ := svc.cursors.Get(conv.ID)
					if !cursor.HistoryIncomplete() {
						break
					}
					if _, err := svc.engine.Backfill(ctx, conv.ID); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			if markRead {
				if err := svc.engine.Focus(ctx, conv.ID); err != nil {
					return err
				}
			}

			return writeMessagesOutput(cmd, app, svc, conv.ID, limit, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().IntVar(&limit, "limit", 30, "Show at most this many of the newest messages (0 shows all)")
	cmd.Flags().IntVar(&history, "history", 0, "Fetch this many pages of older history")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "Mark the conversation as read")

	return cmd
}

func writeMessagesOutput(cmd *cobra.Command, app *app, svc *services, id domain.ConversationID, limit int, asJSON bool) error {
	conv, ok := svc.model.Conversation(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrConversationNotFound, id)
	}
	messages, err := svc.model.Messages(id)
	if err != nil {
		return err
	}

	if asJSON {
		if limit > 0 && len(messages) > limit {
			messages = messages[len(messages)-limit:]
		}
		out := make([]messageJSON, 0, len(messages))
		for _, m := range messages {
			out = append(out, toMessageJSON(m))
		}
		return writeJSON(cmd, out)
	}

	rendered, err := conversations.RenderMessages(conv, messages, conversations.RenderOptions{
		Now:   app.clock.Now(),
		Self:  svc.model.Self(),
		Limit: limit,
	})
	if err != nil {
		return fmt.Errorf("render messages: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
