package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/status"
	"go.uber.org/zap"
)

func waitForState(t *testing.T, m *status.Machine, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Current() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.Current(), want)
}

func TestBridgeFollowsConnectivityAndSync(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	br := newBridge(m, b, zap.NewNop())
	br.Start(context.Background())
	defer br.Stop()

	if err := m.Transition(status.Offline); err != nil {
		t.Fatal(err)
	}

	b.Publish(bus.Event{Kind: "net.online", Timestamp: time.Now()})
	waitForState(t, m, status.Online)

	b.Publish(bus.Event{Kind: "sync.started", Timestamp: time.Now()})
	waitForState(t, m, status.Syncing)

	b.Publish(bus.Event{Kind: "sync.reconciled", Timestamp: time.Now()})
	waitForState(t, m, status.Online)

	b.Publish(bus.Event{Kind: "net.offline", Timestamp: time.Now()})
	waitForState(t, m, status.Offline)
}

func TestBridgeIgnoresInvalidOrdering(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	br := newBridge(m, b, zap.NewNop())
	br.Start(context.Background())
	defer br.Stop()

	if err := m.Transition(status.Offline); err != nil {
		t.Fatal(err)
	}

	// A sync tick arriving while offline must not move the machine.
	b.Publish(bus.Event{Kind: "sync.started", Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)
	if got := m.Current(); got != status.Offline {
		t.Errorf("state = %s, want Offline", got)
	}
}
