package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/parley/internal/chats"
	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/gateway"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the parley gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the local chats to UI clients over WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// raw config backs config.get/config.set
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				log.Warn().Err(err).Msg("raw config not loaded, config.get will be empty")
			}

			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(a.hooks),
			}
			if a.search != nil {
				opts = append(opts, gateway.WithMessageSearch(a.search))
			}
			if cfg.API.BaseURL == "" {
				log.Warn().Msg("api.baseUrl not set, chat.send and history.sync will fail")
			}

			srv := gateway.New(cfg, a.chats, log, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			if cfg.API.BaseURL != "" && a.auth.IsAuthenticated() {
				g.Go(func() error {
					initialSync(gctx, a.chats)
					return nil
				})
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	return cmd
}

// initialSync refreshes the chats from the server once at startup. A
// failure keeps the locally restored chats.
func initialSync(ctx context.Context, store *chats.Store) {
	n, err := store.SyncHistory(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("initial history sync failed, serving local chats")
		return
	}
	log.Info().Int("sessions", n).Msg("history synced")
}
