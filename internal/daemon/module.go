package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/config"
	"github.com/tanklog/tanklog/internal/connectivity"
	"github.com/tanklog/tanklog/internal/lock"
	"github.com/tanklog/tanklog/internal/logging"
	"github.com/tanklog/tanklog/internal/profile"
	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/status"
	"github.com/tanklog/tanklog/internal/store"
	intsync "github.com/tanklog/tanklog/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// owner is the active owner identity the daemon syncs for. RemoteID is empty
// when signed out; the engine then skips all remote work.
type owner struct {
	LocalID  int64
	RemoteID string
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
			provideStore,
			provideRemote,
			provideWatcher,
			provideOwner,
			provideEngine,
			provideDrainer,
			newBridge,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		// No config yet: run signed out, local-only.
		return &config.Config{}, nil
	}
	return cfg, err
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config) *remote.Client {
	return remote.New(cfg.Remote.BaseURL, cfg.Remote.APIKey)
}

func provideWatcher(cfg *config.Config, client *remote.Client, b *bus.Bus, logger *zap.Logger) *connectivity.Watcher {
	return connectivity.NewWatcher(client, b, logger, cfg.ProbeInterval())
}

func provideOwner(cfg *config.Config, db *store.DB) (owner, error) {
	localID, err := db.EnsureOwner(cfg.Remote.OwnerID)
	if err != nil {
		return owner{}, err
	}
	return owner{LocalID: localID, RemoteID: cfg.Remote.OwnerID}, nil
}

func provideEngine(db *store.DB, client *remote.Client, watcher *connectivity.Watcher, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, watcher, b, logger)
}

func provideDrainer(cfg *config.Config, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger, own owner) *intsync.Drainer {
	return intsync.NewDrainer(engine, b, logger, own.LocalID, own.RemoteID, cfg.ReconcileInterval())
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, watcher *connectivity.Watcher, drainer *intsync.Drainer, engine *intsync.Engine, bridge *bridge, machine *status.Machine, own owner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The bridge must see connectivity transitions from the first
			// probe, so it starts before the watcher.
			bridge.Start(context.Background())
			watcher.Start(context.Background())
			drainer.Start(context.Background())

			_ = machine.Transition(status.Offline)
			if own.RemoteID == "" {
				logger.Info("no remote owner configured, running local-only")
			}
			logger.Info("daemon started", zap.Int64("owner", own.LocalID))
			return nil
		},
		OnStop: func(_ context.Context) error {
			drainer.Stop()
			watcher.Stop()
			// Let detached remote writes settle before the process exits;
			// anything that still fails is queued durably.
			engine.Flush()
			bridge.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
