package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds in use:
//
//	net.online, net.offline   connectivity transitions (connectivity.Watcher)
//	record.upserted           a fuel record was created or updated locally
//	record.deleted            a fuel record was removed locally
//	sync.started              a full reconcile began
//	sync.queue_drained        a drain pass finished
//	sync.reconciled           a full reconcile finished
//	daemon.status_changed     daemon state machine transition
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
