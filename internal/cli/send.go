package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/parley/internal/chats"
	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send a message and print the reply",
		Long: "Send a message on the active chat, or on --session. A new chat is " +
			"started when there is no active one.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPI(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = a.chats.ActiveSessionID()
			}
			if sessionID == "" && a.auth.IsAuthenticated() {
				sessionID = a.chats.CreateSession()
			}

			outcome, err := a.chats.SendTo(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				var sendErr *chats.SendError
				if errors.As(err, &sendErr) && sendErr.Retryable() {
					return fmt.Errorf("%w (your message was not kept; try again)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if outcome.Orphaned || outcome.BotMessage == nil {
				fmt.Fprintln(out, "(chat was deleted before the reply arrived)")
				return nil
			}
			fmt.Fprintln(out, outcome.BotMessage.Text)
			log.Debug().Str("session", outcome.SessionID).Str("title", outcome.Title).Msg("send committed")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "chat to send on (default: active chat)")
	return cmd
}
