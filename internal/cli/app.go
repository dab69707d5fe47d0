package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/parley/internal/auth"
	"github.com/soyeahso/parley/internal/chatapi"
	"github.com/soyeahso/parley/internal/chats"
	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/store"
)

var errNoAPI = errors.New("api.baseUrl is not configured; run: parley config set api.baseUrl <url>")

// app is the wired set of components one command runs against.
type app struct {
	db     *store.DB
	auth   *auth.Manager
	api    *chatapi.Client
	hooks  *hooks.Manager
	chats  *chats.Store
	search *store.MessageSearch // nil unless sessions live in sqlite
}

// openApp validates the config, opens the database and restores the
// session state. Credentials always live in the database; session.store
// only decides whether sessions do too.
func openApp() (*app, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data dirs: %w", err)
	}

	db, err := store.Open(paths.Database, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{db: db, hooks: hooks.NewManager(log)}
	a.hooks.OnEach(hooks.StateEvents, "cli.journal", func(_ context.Context, p hooks.Payload) error {
		log.Debug().Str("event", p.Event).Fields(p.Data).Msg("session state changed")
		return nil
	})
	a.auth = auth.NewManager(store.NewCredentialStore(db), log)
	if err := a.auth.Hydrate(); err != nil {
		db.Close()
		return nil, err
	}

	a.api = chatapi.New(chatapi.Config{
		BaseURL: cfg.API.BaseURL,
		AuthURL: cfg.LoginURL(),
		Service: cfg.API.Service,
		Device:  cfg.API.Device,
		Timeout: cfg.APITimeout(),
	}, a.auth, log)

	var persister chats.Persister
	if cfg.Session.Store == "memory" {
		persister = store.NewMemorySnapshotStore()
	} else {
		persister = store.NewSnapshotStore(db)
		a.search = store.NewMessageSearch(db)
	}

	a.chats = chats.New(log,
		chats.WithPersister(persister),
		chats.WithSender(a.api),
		chats.WithHistory(a.api),
		chats.WithIdentity(a.auth),
		chats.WithHooks(a.hooks),
		chats.WithSendTimeout(cfg.SendTimeout()),
	)
	if err := a.chats.Init(); err != nil {
		log.Warn().Err(err).Msg("session state not restored, starting empty")
	}
	return a, nil
}

// requireAPI fails commands that talk to the assistant API when no
// endpoint is configured.
func requireAPI() error {
	if cfg.API.BaseURL == "" {
		return errNoAPI
	}
	return nil
}

// Close writes the final snapshot and closes the database.
func (a *app) Close() error {
	err := a.chats.Teardown()
	return errors.Join(err, a.db.Close())
}
