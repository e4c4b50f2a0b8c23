package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var browser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Microsoft Graph",
		Long:  "Sign in with a device code, or with --browser through the authorization-code flow with PKCE and a loopback redirect.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if browser {
				err = runBrowserLogin(cmd, svc)
			} else {
				err = runDeviceLogin(cmd, svc)
			}
			if err != nil {
				return err
			}
			return printSignedIn(cmd, svc)
		},
	}

	cmd.Flags().BoolVar(&browser, "browser", false, "Sign in through the browser instead of a device code")

	return cmd
}

func runDeviceLogin(cmd *cobra.Command, svc *services) error {
	flow, err := svc.credentials.StartDeviceFlow(cmd.Context())
	if err != nil {
		return err
	}

	prompt := flow.Prompt()
	if prompt.Message != "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), prompt.Message)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Open %s and enter the code %s\n", prompt.VerificationURL, prompt.UserCode)
	}

	return runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Waiting for sign-in...", flow.Wait)
}

func runBrowserLogin(cmd *cobra.Command, svc *services) error {
	return svc.credentials.LoginBrowser(cmd.Context(), func(authURL string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to sign in:\n%s\n", authURL)
		return err
	})
}

func printSignedIn(cmd *cobra.Command, svc *services) error {
	me, err := svc.engine.Identify(cmd.Context())
	if err != nil {
		svc.logger.Warn("signed in but could not read the profile", "err", err)
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed in")
		return err
	}

	if me.Mail != "" {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", me.DisplayName, me.Mail)
	} else {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", me.DisplayName)
	}
	return err
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := svc.credentials.Logout(cmd.Context()); err != nil {
				return err
			}
			if svc.cache != nil {
				if err := svc.cache.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear snapshot cache: %w", err)
				}
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		},
	}
}
