package store

// FuelRecord is the local representation of one refuelling event. The local
// store is the source of truth for offline reads and never holds soft-deleted
// rows; deletions here are hard deletes.
type FuelRecord struct {
	ID         int64
	OwnerID    int64
	RemoteID   string // "" until the remote store has accepted the record
	Date       string // calendar date, YYYY-MM-DD, no time component
	AmountPaid float64
	Odometer   float64
	FuelFilled float64
	Station    string
	SyncedAt   int64 // unix millis of the last confirmed remote write; 0 = never
}

// RecordFields are the domain fields of a fuel record, used as the queue
// entry payload and as the remote insert/update body.
type RecordFields struct {
	Date       string  `json:"date"`
	AmountPaid float64 `json:"amount_paid"`
	Odometer   float64 `json:"odometer"`
	FuelFilled float64 `json:"fuel_filled"`
	Station    string  `json:"station"`
}

// Fields extracts the domain fields of a record.
func (r *FuelRecord) Fields() RecordFields {
	return RecordFields{
		Date:       r.Date,
		AmountPaid: r.AmountPaid,
		Odometer:   r.Odometer,
		FuelFilled: r.FuelFilled,
		Station:    r.Station,
	}
}

// QueueKind is the kind of a deferred remote mutation.
type QueueKind string

const (
	QueueCreate QueueKind = "create"
	QueueUpdate QueueKind = "update"
	QueueDelete QueueKind = "delete"
)

// QueueEntry is a pending remote operation, persisted independently of the
// record table so it survives restarts. Entries replay in insertion order
// and are removed only after the replay confirms success.
type QueueEntry struct {
	ID         int64
	OwnerID    int64
	Kind       QueueKind
	LocalID    int64  // 0 when unknown (update/delete keyed by remote id)
	RemoteID   string // "" when unknown (create of a never-synced record)
	Payload    string // JSON-encoded RecordFields; "" for delete
	EnqueuedAt int64  // unix millis, diagnostics only
}
