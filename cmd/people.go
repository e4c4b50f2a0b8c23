package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

const defaultPresenceExpiry = 8 * time.Hour

type userJSON struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Mail        string `json:"mail,omitempty"`
}

type presenceJSON struct {
	UserID       string `json:"user_id"`
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
}

// withSession opens the client for commands that need a usable credential
// but no conversation listing.
func withSession(cmd *cobra.Command, app *app, fn func(*services) error) error {
	svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := requireSession(svc); err != nil {
		return err
	}
	return fn(svc)
}

func newUsersCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "users <query...>",
		Aliases: []string{"search"},
		Short:   "Find people by name or address",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			return withSession(cmd, app, func(svc *services) error {
				var users []domain.User
				err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Searching...", func(ctx context.Context) error {
					var err error
					users, err = svc.engine.SearchUsers(ctx, query)
					return err
				})
				if err != nil {
					return err
				}

				if asJSON {
					out := make([]userJSON, 0, len(users))
					for _, u := range users {
						out = append(out, userJSON{ID: u.ID, DisplayName: u.DisplayName, Mail: u.Mail})
					}
					return writeJSON(cmd, out)
				}
				if len(users) == 0 {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "No users match %q\n", query)
					return err
				}
				for _, u := range users {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", u.DisplayName, u.Mail, u.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print users as JSON")

	return cmd
}

func newChatCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user>",
		Short: "Start a one-on-one chat",
		Long:  "Start a one-on-one chat with a user id or sign-in address. An existing chat with that person is reused.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(svc *services) error {
				var conv domain.Conversation
				err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Starting chat...", func(ctx context.Context) error {
					var err error
					conv, err = svc.engine.StartChat(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Chat %s with %s\n", conv.ID, conv.DisplayName(svc.model.Self()))
				return err
			})
		},
	}
}

func newPresenceCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "presence [user-id...]",
		Short: "Show presence, yours by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(svc *services) error {
				var found []domain.Presence
				err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Loading presence...", func(ctx context.Context) error {
					var err error
					found, err = svc.engine.Presence(ctx, args...)
					return err
				})
				if err != nil {
					return err
				}

				if asJSON {
					out := make([]presenceJSON, 0, len(found))
					for _, p := range found {
						out = append(out, presenceJSON{UserID: p.UserID, Availability: p.Availability, Activity: p.Activity})
					}
					return writeJSON(cmd, out)
				}
				for _, p := range found {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", p.UserID, p.Availability, p.Activity); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print presence as JSON")
	cmd.AddCommand(newPresenceSetCmd(app))

	return cmd
}

func newPresenceSetCmd(app *app) *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "set <available|busy|dnd|brb|away|offline>",
		Short: "Set your preferred presence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			availability, err := domain.ParseAvailability(args[0])
			if err != nil {
				return err
			}

			return withSession(cmd, app, func(svc *services) error {
				err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Setting presence...", func(ctx context.Context) error {
					return svc.engine.SetPresence(ctx, availability, expiry)
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Presence set to %s\n", availability)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&expiry, "for", defaultPresenceExpiry, "How long the presence holds")

	return cmd
}
