package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bnema/terms-cli/internal/adapters/config"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/spf13/cobra"
)

type eventJSON struct {
	Kind         domain.EventKind      `json:"kind"`
	Conversation domain.ConversationID `json:"conversation,omitempty"`
	Message      domain.MessageID      `json:"message,omitempty"`
	Mutation     domain.MutationKind   `json:"mutation,omitempty"`
	State        domain.SessionState   `json:"state,omitempty"`
	Error        string                `json:"error,omitempty"`
	At           time.Time             `json:"at"`
}

const eventBuffer = 64

func newSyncCmd(app *app) *cobra.Command {
	var (
		watch         bool
		all           bool
		asJSON        bool
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync recently active conversations",
		Long:  "Sync every conversation active within sync.recent_window once, or keep polling with --watch until interrupted. Changes to sync.interval in the config file apply to a running watch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := loadConversations(cmd, svc); err != nil {
				return err
			}
			if all {
				for _, conv := range svc.model.Conversations() {
					if conv.Active {
						svc.engine.Watch(conv.ID)
					}
				}
			}

			if !watch {
				if err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Syncing...", func(ctx context.Context) error {
					svc.engine.Tick(ctx)
					return ctx.Err()
				}); err != nil {
					return err
				}
				return writeConversationsOutput(cmd, app, svc, 0, asJSON)
			}

			return runWatch(cmd, app, svc, metricsListen, asJSON)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling until interrupted and print change events")
	cmd.Flags().BoolVar(&all, "all", false, "Sync every active conversation, not only recent ones")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while watching")

	return cmd
}

func runWatch(cmd *cobra.Command, app *app, svc *services, metricsListen string, asJSON bool) error {
	ctx := cmd.Context()

	if metricsListen != "" {
		srv, err := svc.metrics.Serve(metricsListen, svc.logger.With("component", "metrics"))
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
		svc.logger.Info("serving metrics", "addr", srv.Addr())
	}

	app.loader.Watch(func(cfg config.Config) {
		svc.engine.SetInterval(cfg.Sync.Interval)
	})

	events, unsubscribe := svc.events.Subscribe(eventBuffer)
	defer unsubscribe()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(cmd.OutOrStdout(), svc, events, asJSON)
	}()

	err := svc.engine.Run(ctx)
	unsubscribe()
	<-printed
	return err
}

func printEvents(out io.Writer, svc *services, events <-chan domain.Event, asJSON bool) {
	for event := range events {
		if asJSON {
			_ = writeEventJSON(out, event)
			continue
		}
		_, _ = fmt.Fprintln(out, formatEvent(svc, event))
	}
}

func writeEventJSON(out io.Writer, event domain.Event) error {
	e := eventJSON{
		Kind:         event.Kind,
		Conversation: event.ConversationID,
		Message:      event.MessageID,
		Mutation:     event.Mutation,
		State:        event.State,
		At:           event.At,
	}
	if event.Err != nil {
		e.Error = event.Err.Error()
	}
	return json.NewEncoder(out).Encode(e)
}

func formatEvent(svc *services, event domain.Event) string {
	at := event.At.Local().Format(time.TimeOnly)
	switch event.Kind {
	case domain.EventConversationUpdated:
		conv, ok := svc.model.Conversation(event.ConversationID)
		if !ok {
			return fmt.Sprintf("%s updated %s", at, event.ConversationID)
		}
		line := fmt.Sprintf("%s updated %s", at, conv.DisplayName(svc.model.Self()))
		if conv.Unread > 0 {
			line += fmt.Sprintf(" (%d unread)", conv.Unread)
		}
		if conv.Stale {
			line += " [stale]"
		}
		return line
	case domain.EventMutationFailed:
		return fmt.Sprintf("%s %s of %s failed: %v", at, event.Mutation, event.MessageID, event.Err)
	case domain.EventCredentialStateChanged:
		return fmt.Sprintf("%s session %s", at, event.State)
	case domain.EventCredentialStorageWarning:
		return fmt.Sprintf("%s credential storage: %v", at, event.Err)
	default:
		return fmt.Sprintf("%s %s", at, event.Kind)
	}
}
