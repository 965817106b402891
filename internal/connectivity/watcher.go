// Package connectivity tracks whether the remote record service is
// reachable. It is the engine's online predicate and the source of the
// net.online reconnect events that trigger queue draining.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tanklog/tanklog/internal/bus"
	"go.uber.org/zap"
)

// Prober checks reachability of the remote service. *remote.Client
// implements it via its health endpoint.
type Prober interface {
	Ping(ctx context.Context) error
}

const probeTimeout = 5 * time.Second

// Watcher polls the prober and publishes transitions on the bus.
type Watcher struct {
	prober   Prober
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	online bool

	cancel context.CancelFunc
}

// NewWatcher creates a watcher. It starts out offline until the first
// successful probe.
func NewWatcher(prober Prober, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		prober:   prober,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Online reports the last observed reachability.
func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Start probes once immediately, then on every tick.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		w.probe(ctx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.probe(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the probe loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := w.prober.Ping(probeCtx)
	now := err == nil

	w.mu.Lock()
	was := w.online
	w.online = now
	w.mu.Unlock()

	if was == now {
		return
	}
	if now {
		w.logger.Info("remote reachable")
		w.publish("net.online")
	} else {
		w.logger.Warn("remote unreachable", zap.Error(err))
		w.publish("net.offline")
	}
}

func (w *Watcher) publish(kind string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
}
