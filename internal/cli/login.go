package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/soyeahso/parley/internal/auth"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and fetch your chat history",
		Long:  "Sign in with email and password. Without --password the password is read from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return auth.ErrPasswordRequired
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if err := auth.ValidateCredentials(email, password); err != nil {
				return err
			}
			if err := requireAPI(); err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.api.Login(cmd.Context(), strings.TrimSpace(email), password)
			if err != nil {
				return err
			}
			if err := a.auth.Login(sess.Token, sess.UserID); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s\n", sess.UserID)

			n, err := a.chats.SyncHistory(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Msg("history not loaded; run: parley sync")
				return nil
			}
			fmt.Fprintf(out, "Loaded %d chat(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.auth.Logout(); err != nil {
				return err
			}
			a.chats.ClearAll()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
