package daemon

import (
	"context"

	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/status"
	"go.uber.org/zap"
)

// bridge drives the daemon status machine from bus events: connectivity
// transitions flip Offline/Online, reconcile passes flip Online/Syncing.
type bridge struct {
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

func newBridge(machine *status.Machine, b *bus.Bus, logger *zap.Logger) *bridge {
	return &bridge{machine: machine, bus: b, logger: logger}
}

func (br *bridge) Start(ctx context.Context) {
	ctx, br.cancel = context.WithCancel(ctx)
	netCh, netUnsub := br.bus.Subscribe("net.", 16)
	syncCh, syncUnsub := br.bus.Subscribe("sync.", 16)

	go func() {
		defer netUnsub()
		defer syncUnsub()
		for {
			select {
			case evt := <-netCh:
				br.apply(evt)
			case evt := <-syncCh:
				br.apply(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (br *bridge) Stop() {
	if br.cancel != nil {
		br.cancel()
	}
}

func (br *bridge) apply(evt bus.Event) {
	var to status.State
	switch evt.Kind {
	case "net.online":
		to = status.Online
	case "net.offline":
		to = status.Offline
	case "sync.started":
		to = status.Syncing
	case "sync.reconciled":
		to = status.Online
	default:
		return
	}
	if err := br.machine.Transition(to); err != nil {
		// Expected for some orderings, e.g. a reconcile tick while offline.
		br.logger.Debug("state transition skipped", zap.String("event", evt.Kind), zap.Error(err))
	}
}
