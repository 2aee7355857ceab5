// Package daemon composes the chat sync daemon out of its parts with fx.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/cache"
	"github.com/fitpulse/fitchat/internal/config"
	"github.com/fitpulse/fitchat/internal/lock"
	"github.com/fitpulse/fitchat/internal/logging"
	"github.com/fitpulse/fitchat/internal/rest"
	"github.com/fitpulse/fitchat/internal/session"
	"github.com/fitpulse/fitchat/internal/socket"
	"github.com/fitpulse/fitchat/internal/status"
	"github.com/fitpulse/fitchat/internal/store"
	"github.com/fitpulse/fitchat/internal/syncer"
)

// seedWindow is how many cached messages per conversation are replayed
// into the store on startup.
const seedWindow = 50

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketURL   string // optional override for testing; empty = use config
	APIBaseURL  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideIdentity,
			provideCache,
			provideStore,
			provideWriter,
			provideConn,
			provideSnapshots,
			provideController,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	cfg := config.LoadOrDefault(session.ConfigPath())
	if p.SocketURL != "" {
		cfg.SocketURL = p.SocketURL
	}
	if p.APIBaseURL != "" {
		cfg.APIBaseURL = p.APIBaseURL
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Guard, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	g, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return g, nil
}

func provideIdentity(p Params) (*session.Credentials, error) {
	return session.LoadCredentials(session.CredentialsPath(p.SessionName))
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(creds *session.Credentials, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(creds.UserID(), b, logger)
}

func provideWriter(db *cache.DB, s *store.Store, cfg *config.Config, logger *zap.Logger) *cache.Writer {
	interval := time.Duration(cfg.CacheFlushMillis) * time.Millisecond
	return cache.NewWriter(db, s, logger, interval)
}

func provideConn(cfg *config.Config, creds *session.Credentials, m *status.Machine, b *bus.Bus, logger *zap.Logger) *socket.Conn {
	return socket.New(cfg.SocketURL, creds, m, b, logger)
}

func provideSnapshots(cfg *config.Config, creds *session.Credentials, logger *zap.Logger) syncer.Snapshots {
	return rest.New(cfg.APIBaseURL, creds, logger)
}

func provideController(s *store.Store, conn *socket.Conn, snapshots syncer.Snapshots, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *syncer.Controller {
	opts := syncer.DefaultOptions()
	opts.TypingWindow = time.Duration(cfg.TypingWindowSeconds) * time.Second
	opts.TypingTTL = 2 * opts.TypingWindow
	opts.ReceiptWindow = time.Duration(cfg.ReceiptWindowMillis) * time.Millisecond
	return syncer.New(s, conn, snapshots, b, logger, opts)
}

func registerLifecycle(lc fx.Lifecycle, g *lock.Guard, db *cache.DB, s *store.Store, w *cache.Writer, conn *socket.Conn, ctrl *syncer.Controller, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Warm start from the cache before the first sync.
			if stamp, err := db.Checkpoint(cache.CheckpointLastFlush); err == nil {
				logger.Info("cache last flushed", zap.String("at", stamp))
			}
			if err := cache.Seed(db, s, seedWindow); err != nil {
				logger.Warn("cache seed failed", zap.Error(err))
			}

			w.Start(context.Background(), b)
			ctrl.Start(context.Background())

			// First connect happens in the background. The reconnect
			// resync fires on the Connected transition, so nothing else
			// is needed here; a failure leaves the daemon serving from
			// cache until the owner retries.
			go func() {
				if err := conn.Connect(context.Background()); err != nil {
					logger.Error("initial connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			conn.Disconnect()
			ctrl.Stop()
			w.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := g.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
