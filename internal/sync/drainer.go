package sync

import (
	"context"
	"time"

	"github.com/tanklog/tanklog/internal/bus"
	"go.uber.org/zap"
)

// Drainer runs the engine's reconciliation in the background: immediately
// when connectivity comes back, and periodically as a safety net. Passes run
// strictly one at a time; the engine serializes them internally as well.
type Drainer struct {
	engine        *Engine
	bus           *bus.Bus
	logger        *zap.Logger
	ownerLocalID  int64
	ownerRemoteID string
	interval      time.Duration
	cancel        context.CancelFunc
}

// NewDrainer creates a drainer bound to one owner.
func NewDrainer(engine *Engine, b *bus.Bus, logger *zap.Logger, ownerLocalID int64, ownerRemoteID string, interval time.Duration) *Drainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drainer{
		engine:        engine,
		bus:           b,
		logger:        logger,
		ownerLocalID:  ownerLocalID,
		ownerRemoteID: ownerRemoteID,
		interval:      interval,
	}
}

// Start begins listening for reconnect events and ticking.
func (d *Drainer) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	ch, unsub := d.bus.Subscribe("net.online", 16)

	go func() {
		defer unsub()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ch:
				d.logger.Info("connectivity restored, reconciling")
				d.reconcile(ctx)
			case <-ticker.C:
				d.reconcile(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the drainer loop.
func (d *Drainer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Drainer) reconcile(ctx context.Context) {
	if err := d.engine.FullReconcile(ctx, d.ownerLocalID, d.ownerRemoteID); err != nil {
		d.logger.Error("reconcile failed", zap.Error(err))
	}
}
