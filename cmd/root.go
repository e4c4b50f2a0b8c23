package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the CLI until it finishes or the process is interrupted.
// Cancellation lets every command wipe its credentials before exit.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "terms",
		Short:         "terms: Microsoft Teams chats from the terminal",
		Long:          "terms signs in to Microsoft Graph, keeps your chats and channels in sync and lets you send, edit, delete and react to messages from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newLoginCmd(app),
		newLogoutCmd(app),
		newStatusCmd(app),
		newConversationsCmd(app),
		newMessagesCmd(app),
		newSendCmd(app),
		newReplyCmd(app),
		newEditCmd(app),
		newDeleteCmd(app),
		newReactCmd(app),
		newUsersCmd(app),
		newChatCmd(app),
		newPresenceCmd(app),
		newSyncCmd(app),
	)

	return rootCmd
}
