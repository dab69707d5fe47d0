package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"chats"},
		Short:   "List and manage local chats",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsNewCmd())
	cmd.AddCommand(newSessionsRenameCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsUseCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsSearchCmd())

	return cmd
}

// withApp opens the app for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				printSessions(cmd.OutOrStdout(), a.chats.Sessions(), a.chats.ActiveSessionID())
				return nil
			})
		},
	}
}

func newSessionsNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.chats.CreateSession())
				return nil
			})
		},
	}
}

func newSessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>...",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				id := args[0]
				if a.chats.Session(id) == nil {
					return unknownSession(id)
				}
				if !a.chats.RenameSession(id, strings.Join(args[1:], " ")) {
					return errors.New("title must not be blank")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", id, a.chats.Session(id).Title)
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if !a.chats.DeleteSession(args[0]) {
					return unknownSession(args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a chat the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if !a.chats.SetActiveSession(args[0]) {
					return unknownSession(args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active chat is %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print the messages of a chat (default: active chat)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				var sess *domain.Session
				if len(args) == 1 {
					if sess = a.chats.Session(args[0]); sess == nil {
						return unknownSession(args[0])
					}
				} else if sess = a.chats.ActiveSession(); sess == nil {
					return errors.New("no active chat")
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", sess.Title)
				for _, m := range sess.Messages {
					fmt.Fprintf(out, "\n[%s] %s\n%s\n", m.Role, m.Timestamp.Local().Format(time.DateTime), m.Text)
					for _, tc := range m.ToolCalls {
						fmt.Fprintf(out, "  tool %s\n", tc.Name)
					}
				}
				return nil
			})
		},
	}
}

func newSessionsSearchCmd() *cobra.Command {
	var (
		messages bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Find chats by title, or by message text with --messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(func(a *app) error {
				out := cmd.OutOrStdout()
				if !messages {
					printSessions(out, a.chats.SearchByTitle(query), a.chats.ActiveSessionID())
					return nil
				}
				if a.search == nil {
					return errors.New("message search needs session.store sqlite")
				}
				hits, err := a.search.Search(query, limit)
				if err != nil {
					return err
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s  %-30s  %s: %s\n", h.SessionID, h.Title, h.Role, h.Snippet)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&messages, "messages", false, "search message text instead of titles")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum message hits")
	return cmd
}

func printSessions(w io.Writer, sessions []*domain.Session, activeID string) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "(no chats)")
		return
	}
	for _, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %-30s  %3d msg  %s\n",
			marker, s.ID, s.Title, len(s.Messages), s.CreatedAt.Local().Format(time.DateTime))
	}
}

func unknownSession(id string) error {
	return fmt.Errorf("no chat with id %q", id)
}
