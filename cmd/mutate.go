package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/terms-cli/internal/application"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newSendCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation> <text...>",
		Short: "Send a message",
		Long:  "Send a message to a conversation. Use - as the text to read the body from stdin.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := messageBody(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			return withConversation(cmd, app, args[0], func(svc *services, conv domain.Conversation) error {
				ticket, err := svc.mutations.Send(conv.ID, body)
				if err != nil {
					return err
				}
				if err := waitTicket(cmd, ticket, "Sending..."); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", ticket.MessageID())
				return err
			})
		},
	}

	return cmd
}

func newReplyCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <channel> <message-id> <text...>",
		Short: "Reply in the thread of a channel message",
		Long:  "Reply in the thread of a channel message. Chats have no reply threads. Use - as the text to read the body from stdin.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := messageBody(cmd.InOrStdin(), args[2:])
			if err != nil {
				return err
			}
			parent := domain.MessageID(args[1])

			return withMessage(cmd, app, args[0], parent, func(svc *services, conv domain.Conversation) error {
				ticket, err := svc.mutations.Reply(conv.ID, parent, body)
				if err != nil {
					return err
				}
				if err := waitTicket(cmd, ticket, "Replying..."); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Replied %s\n", ticket.MessageID())
				return err
			})
		},
	}
}

func newEditCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <conversation> <message-id> <text...>",
		Short: "Edit one of your messages",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := messageBody(cmd.InOrStdin(), args[2:])
			if err != nil {
				return err
			}
			msgID := domain.MessageID(args[1])

			return withMessage(cmd, app, args[0], msgID, func(svc *services, conv domain.Conversation) error {
				ticket, err := svc.mutations.Edit(conv.ID, msgID, body)
				if err != nil {
					return err
				}
				if err := waitTicket(cmd, ticket, "Editing..."); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Edited %s\n", msgID)
				return err
			})
		},
	}
}

func newDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation> <message-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your messages",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgID := domain.MessageID(args[1])

			return withMessage(cmd, app, args[0], msgID, func(svc *services, conv domain.Conversation) error {
				ticket, err := svc.mutations.Delete(conv.ID, msgID)
				if err != nil {
					return err
				}
				if err := waitTicket(cmd, ticket, "Deleting..."); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", msgID)
				return err
			})
		},
	}
}

func newReactCmd(app *app) *cobra.Command {
	var unset bool

	cmd := &cobra.Command{
		Use:   "react <conversation> <message-id> [like|heart|laugh|surprised|sad|angry]",
		Short: "Set or remove your reaction on a message",
		Args: func(cmd *cobra.Command, args []string) error {
			if unset {
				return cobra.ExactArgs(2)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			msgID := domain.MessageID(args[1])
			var kind domain.ReactionKind
			if !unset {
				kind = domain.ReactionKind(strings.ToLower(args[2]))
				if !kind.Valid() {
					return fmt.Errorf("%w: %q", domain.ErrInvalidReaction, args[2])
				}
			}

			return withMessage(cmd, app, args[0], msgID, func(svc *services, conv domain.Conversation) error {
				var (
					ticket *application.Ticket
					err    error
				)
				if unset {
					ticket, err = svc.mutations.Unreact(conv.ID, msgID)
				} else {
					ticket, err = svc.mutations.React(conv.ID, msgID, kind)
				}
				if err != nil {
					return err
				}
				if err := waitTicket(cmd, ticket, "Reacting..."); err != nil {
					return err
				}
				if unset {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed reaction from %s\n", msgID)
				} else {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "Reacted %s to %s\n", kind, msgID)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&unset, "unset", false, "Remove your reaction")

	return cmd
}

// withConversation opens the client, lists conversations and resolves arg.
func withConversation(cmd *cobra.Command, app *app, arg string, fn func(*services, domain.Conversation) error) error {
	svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := loadConversations(cmd, svc); err != nil {
		return err
	}
	conv, err := resolveConversation(svc, arg)
	if err != nil {
		return err
	}
	return fn(svc, conv)
}

// withMessage is withConversation plus a sync that makes msgID available
// locally.
func withMessage(cmd *cobra.Command, app *app, arg string, msgID domain.MessageID, fn func(*services, domain.Conversation) error) error {
	return withConversation(cmd, app, arg, func(svc *services, conv domain.Conversation) error {
		err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Syncing messages...", func(ctx context.Context) error {
			return findMessage(ctx, svc, conv.ID, msgID)
		})
		if err != nil {
			return err
		}
		return fn(svc, conv)
	})
}

func waitTicket(cmd *cobra.Command, ticket *application.Ticket, label string) error {
	return runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), label, ticket.Wait)
}

func messageBody(stdin io.Reader, args []string) (string, error) {
	body := strings.Join(args, " ")
	if body == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read message from stdin: %w", err)
		}
		body = string(raw)
	}
	body = strings.TrimRight(body, "\r\n")
	if strings.TrimSpace(body) == "" {
		return "", domain.ErrEmptyBody
	}
	return body, nil
}
