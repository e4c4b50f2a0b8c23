package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/terms-cli/internal/adapters/render/conversations"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

// sessionStatus is the JSON form of the session. It never carries tokens.
type sessionStatus struct {
	State     domain.SessionState `json:"state"`
	Flow      domain.FlowKind     `json:"flow,omitempty"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	Scopes    []string            `json:"scopes,omitempty"`
	Fallback  bool                `json:"file_fallback"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sign-in state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			return writeSessionOutput(cmd, app, svc.credentials.Session(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeSessionOutput(cmd *cobra.Command, app *app, session domain.Session, asJSON bool) error {
	if asJSON {
		status := sessionStatus{
			State:    session.State,
			Flow:     session.Flow,
			Scopes:   session.Scopes,
			Fallback: session.Fallback,
		}
		if !session.ExpiresAt.IsZero() {
			status.ExpiresAt = &session.ExpiresAt
		}
		return writeJSON(cmd, status)
	}

	rendered, err := conversations.RenderSession(session, conversations.RenderOptions{Now: app.clock.Now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
