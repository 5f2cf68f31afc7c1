// Package app wires configuration, storage, the access control registry and
// the message handlers into a runnable gatekeeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sameehj/gatekeeper/pkg/acl"
	"github.com/sameehj/gatekeeper/pkg/adapter"
	"github.com/sameehj/gatekeeper/pkg/chat"
	"github.com/sameehj/gatekeeper/pkg/command"
	"github.com/sameehj/gatekeeper/pkg/config"
	"github.com/sameehj/gatekeeper/pkg/enforce"
	"github.com/sameehj/gatekeeper/pkg/statewatch"
	"github.com/sameehj/gatekeeper/pkg/store"
)

// Handler names in dispatch order. Commands run before enforcement so an
// operator command is answered even when the hook later deletes something.
const (
	HandlerCommands = "commands"
	HandlerEnforce  = "enforce"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Backend
	Registry *acl.Registry
	Router   *chat.Router
	Hook     *enforce.Hook

	dispatcher *command.Dispatcher
	watcher    *statewatch.Watcher
}

// New opens storage and loads the registry described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	backend, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	registry, err := acl.Open(backend, cfg.MasterID)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("load access control state: %w", err)
	}
	if registry.Seeded() {
		logger.Info("master_seeded", "master", registry.Master())
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    backend,
		Registry: registry,
		Router:   chat.NewRouter(),
		Hook:     enforce.NewHook(registry),
	}
	a.dispatcher = command.NewDispatcher(registry, cfg.CommandPrefix)
	a.dispatcher.SetLogger(logger.With("component", HandlerCommands))
	a.Hook.SetLogger(logger.With("component", HandlerEnforce))
	a.Router.SetLogger(logger.With("component", "router"))
	a.Router.Register(HandlerCommands, a.dispatcher)
	a.Router.Register(HandlerEnforce, a.Hook)

	if fs, ok := backend.(*store.FileStore); ok && cfg.WatchState {
		a.watcher = statewatch.New(fs.Dir())
		a.watcher.SetLogger(logger.With("component", "statewatch"))
		fs.OnSave(a.watcher.Observe)
	}
	return a, nil
}

// Adapter returns the platform adapter selected by the configuration.
func (a *App) Adapter() (adapter.Adapter, error) {
	switch a.Config.Platform {
	case config.PlatformDiscord:
		ad := adapter.NewDiscordAdapter(a.Config.Token, a.Router)
		ad.SetLogger(a.Logger.With("component", "discord"))
		ad.SetDrain(a.Hook.Wait)
		return ad, nil
	case config.PlatformRelay:
		ad := adapter.NewRelayAdapter(a.Config.Relay.URL, a.Router)
		ad.SetLogger(a.Logger.With("component", "relay"))
		ad.SetDrain(a.Hook.Wait)
		return ad, nil
	default:
		return nil, fmt.Errorf("unknown platform %q", a.Config.Platform)
	}
}

// Run feeds messages from ad through the router until ctx is cancelled or
// the adapter stops, then waits for pending deletions. Adapters returned by
// Adapter drain the hook themselves before closing their transport.
func (a *App) Run(ctx context.Context, ad adapter.Adapter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("state_watch_failed", "error", err)
			}
		}()
	}

	a.Logger.Info("gatekeeper_started",
		"platform", a.Config.Platform,
		"storage", a.Config.Storage.Driver,
		"master", a.Registry.Master(),
		"operators", len(a.Registry.ListOperators()),
		"channels", len(a.Registry.Channels()),
	)
	err := ad.Start(ctx)
	a.Hook.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.Logger.Info("gatekeeper_stopped")
	return err
}

func (a *App) Close() error {
	return a.Store.Close()
}
