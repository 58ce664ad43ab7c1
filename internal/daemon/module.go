package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/api"
	"github.com/pbaptista/rally/internal/auth"
	"github.com/pbaptista/rally/internal/bus"
	"github.com/pbaptista/rally/internal/chat"
	"github.com/pbaptista/rally/internal/config"
	"github.com/pbaptista/rally/internal/conn"
	"github.com/pbaptista/rally/internal/hub"
	"github.com/pbaptista/rally/internal/lock"
	"github.com/pbaptista/rally/internal/logging"
	"github.com/pbaptista/rally/internal/outbox"
	"github.com/pbaptista/rally/internal/rest"
	"github.com/pbaptista/rally/internal/session"
	intsync "github.com/pbaptista/rally/internal/sync"
	"github.com/pbaptista/rally/internal/views"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuthSource,
			provideStateMachine,
			provideDialer,
			provideManager,
			provideRESTClient,
			provideEngine,
			provideViews,
			provideSender,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore() *chat.Store {
	return chat.NewStore()
}

func provideAuthSource(b *bus.Bus, logger *zap.Logger) *auth.Source {
	return auth.NewSource(b, logger)
}

func provideStateMachine(b *bus.Bus) *conn.Machine {
	return conn.NewMachine(b)
}

func provideDialer(cfg *config.Config, logger *zap.Logger) *hub.Dialer {
	return hub.NewDialer(cfg.Hub.URL, logger)
}

func provideManager(d *hub.Dialer, machine *conn.Machine, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *conn.Manager {
	return conn.NewManager(d, machine, b, conn.Config{
		BackoffBase:  cfg.Hub.BackoffBase.Std(),
		BackoffMax:   cfg.Hub.BackoffMax.Std(),
		MaxReconnect: cfg.Hub.MaxReconnect,
	}, logger)
}

func provideRESTClient(cfg *config.Config, src *auth.Source) *rest.Client {
	return rest.NewClient(cfg.API.BaseURL, src.Token, rest.WithTimeout(cfg.API.Timeout.Std()))
}

func provideEngine(store *chat.Store, client *rest.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(store, client, b, logger)
}

func provideViews(store *chat.Store) *views.Views {
	return views.New(store)
}

func provideSender(store *chat.Store, client *rest.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(store, client, b, logger)
}

func provideHandler(src *auth.Source, machine *conn.Machine, engine *intsync.Engine, v *views.Views, sender *outbox.Sender, cfg *config.Config, logger *zap.Logger) *api.Handler {
	return api.NewHandler(src, machine, engine, v, sender, cfg.UI.PageSize, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, src *auth.Source, manager *conn.Manager, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine must be subscribed before the manager can connect,
			// or the first conn.state event would be missed.
			engine.Start(runCtx)
			sender.Start(runCtx)

			// Credential changes gate the hub connection and wipe on expiry.
			src.Watch(runCtx.Done())
			manager.Watch(runCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started, waiting for login")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			manager.Stop()
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
