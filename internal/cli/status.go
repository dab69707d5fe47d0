package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sign-in state, sessions and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "parley %s (commit %s)\n\n", version.Version, version.Revision())

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Database: %s\n", paths.Database)
			fmt.Fprintln(out)

			if cfgErr != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", cfgErr)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}

			api := cfg.API.BaseURL
			if api == "" {
				api = "(not configured)"
			}
			fmt.Fprintf(out, "API:      %s service=%s timeout=%s\n", api, cfg.API.Service, cfg.APITimeout())
			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
			fmt.Fprintf(out, "Sessions: store=%s\n", cfg.Session.Store)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return nil
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if v, err := a.db.SchemaVersion(); err == nil {
				fmt.Fprintf(out, "Schema:   v%d\n", v)
			}
			if a.auth.IsAuthenticated() {
				fmt.Fprintf(out, "Signed in: %s\n", a.auth.UserID())
			} else {
				fmt.Fprintln(out, "Signed in: no")
			}
			active := a.chats.ActiveSessionID()
			if active == "" {
				active = "(none)"
			}
			fmt.Fprintf(out, "Chats:    %d (active %s)\n", a.chats.Len(), active)
			return nil
		},
	}
}
