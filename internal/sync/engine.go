// Package sync reconciles the local record store with the remote record
// service under intermittent connectivity. Every mutation lands in the local
// store first; the remote side is best-effort, and failed or offline remote
// operations are captured in a durable queue replayed on reconnect.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tanklog/tanklog/internal/bus"
	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/store"
	"go.uber.org/zap"
)

// Remote is the surface of the remote record service the engine needs.
// *remote.Client implements it.
type Remote interface {
	ListRecords(ctx context.Context, ownerID string, deleted bool) ([]remote.Record, error)
	InsertRecord(ctx context.Context, d remote.Draft) (*remote.Record, error)
	UpdateRecord(ctx context.Context, id string, d remote.Draft) (*remote.Record, error)
	SoftDeleteRecord(ctx context.Context, id string) error
}

// Connectivity reports whether the remote is believed reachable.
type Connectivity interface {
	Online() bool
}

// Engine orchestrates local-first reads and writes against the two stores.
//
// Failure contract: local store faults (store.StorageError) propagate to the
// caller; remote faults never do. A failed remote call degrades the
// operation to "succeeded locally, queued remotely".
type Engine struct {
	db     *store.DB
	remote Remote
	net    Connectivity
	bus    *bus.Bus
	marks  *Checkpoints
	logger *zap.Logger

	// Serializes drain/reconcile passes so a reconnect event racing the
	// periodic tick cannot interleave two replays of the same queue.
	drainMu sync.Mutex

	// Tracks the detached remote attempts spawned by Create/Update/Delete.
	inflight sync.WaitGroup
}

// NewEngine creates a sync engine over the given stores.
func NewEngine(db *store.DB, rem Remote, net Connectivity, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		remote: rem,
		net:    net,
		bus:    b,
		marks:  NewCheckpoints(db),
		logger: logger,
	}
}

func (e *Engine) online() bool {
	return e.net != nil && e.net.Online()
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// List returns the owner's records. When online with a remote identity it
// pulls the authoritative remote state into the local store first; when
// offline, or when the remote fetch fails, it falls back to the local store
// as-is. Ordering is not part of the contract.
func (e *Engine) List(ctx context.Context, ownerLocalID int64, ownerRemoteID string) ([]store.FuelRecord, error) {
	if e.online() && ownerRemoteID != "" {
		if err := e.pull(ctx, ownerLocalID, ownerRemoteID); err != nil {
			if _, ok := err.(*store.StorageError); ok {
				return nil, err
			}
			e.logger.Warn("remote pull failed, serving local state", zap.Error(err))
		}
	}
	return e.db.ListByOwner(ownerLocalID)
}

// Create inserts a record locally and returns as soon as the local write is
// durable; it never blocks on the network. The remote insert runs detached:
// on success the local record is stamped with the remote id in place, on
// failure (or when already offline) a create entry is queued instead. The
// returned record reflects the state as currently known and may lack a
// remote id.
func (e *Engine) Create(ctx context.Context, draft store.RecordFields, ownerLocalID int64, ownerRemoteID string) (*store.FuelRecord, error) {
	rec := &store.FuelRecord{
		OwnerID:    ownerLocalID,
		Date:       draft.Date,
		AmountPaid: draft.AmountPaid,
		Odometer:   draft.Odometer,
		FuelFilled: draft.FuelFilled,
		Station:    draft.Station,
	}
	if _, err := e.db.Insert(rec); err != nil {
		return nil, err
	}
	e.publish("record.upserted", rec.ID)

	if ownerRemoteID == "" {
		return rec, nil
	}

	if !e.online() {
		if err := e.enqueue(ownerLocalID, store.QueueCreate, rec.ID, "", &draft); err != nil {
			return nil, err
		}
		return rec, nil
	}

	snapshot := *rec
	e.inflight.Add(1)
	go func(ctx context.Context) {
		defer e.inflight.Done()
		row, err := e.remote.InsertRecord(ctx, toDraft(draft, ownerRemoteID))
		if err != nil {
			e.logger.Warn("remote insert failed, queueing", zap.Error(err), zap.Int64("local_id", snapshot.ID))
			if err := e.enqueue(ownerLocalID, store.QueueCreate, snapshot.ID, "", &draft); err != nil {
				e.logger.Error("failed to queue create", zap.Error(err))
			}
			return
		}
		applyRemote(&snapshot, *row)
		if err := e.db.Put(&snapshot); err != nil {
			e.logger.Error("failed to stamp remote id", zap.Error(err), zap.Int64("local_id", snapshot.ID))
		}
	}(context.WithoutCancel(ctx))

	return rec, nil
}

// Update replaces a record locally, returning once the local write lands,
// and attempts the remote update detached when the record is already known
// remotely. An update to a never-synced record needs no queue entry: the
// pending create's replay reads the record fresh.
func (e *Engine) Update(ctx context.Context, rec *store.FuelRecord, ownerRemoteID string) error {
	if err := e.db.Put(rec); err != nil {
		return err
	}
	e.publish("record.upserted", rec.ID)

	if rec.RemoteID == "" || ownerRemoteID == "" {
		return nil
	}

	fields := rec.Fields()
	if !e.online() {
		return e.enqueue(rec.OwnerID, store.QueueUpdate, rec.ID, rec.RemoteID, &fields)
	}

	snapshot := *rec
	e.inflight.Add(1)
	go func(ctx context.Context) {
		defer e.inflight.Done()
		row, err := e.remote.UpdateRecord(ctx, snapshot.RemoteID, toDraft(fields, ownerRemoteID))
		if err != nil {
			e.logger.Warn("remote update failed, queueing", zap.Error(err), zap.String("remote_id", snapshot.RemoteID))
			if err := e.enqueue(snapshot.OwnerID, store.QueueUpdate, snapshot.ID, snapshot.RemoteID, &fields); err != nil {
				e.logger.Error("failed to queue update", zap.Error(err))
			}
			return
		}
		snapshot.SyncedAt = row.SyncedAt.UnixMilli()
		if err := e.db.Put(&snapshot); err != nil {
			e.logger.Error("failed to stamp sync time", zap.Error(err), zap.Int64("local_id", snapshot.ID))
		}
	}(context.WithoutCancel(ctx))

	return nil
}

// Delete removes a record from the local store immediately (hard delete,
// the local store keeps no tombstones) and soft-deletes it remotely in a
// detached attempt, queueing the soft delete when that fails. A record that
// never reached the remote has nothing remote to delete.
func (e *Engine) Delete(ctx context.Context, ownerLocalID, localID int64, remoteID, ownerRemoteID string) error {
	if err := e.db.DeleteByID(localID); err != nil {
		return err
	}
	e.publish("record.deleted", localID)

	if remoteID == "" || ownerRemoteID == "" {
		return nil
	}

	if !e.online() {
		return e.enqueue(ownerLocalID, store.QueueDelete, localID, remoteID, nil)
	}

	e.inflight.Add(1)
	go func(ctx context.Context) {
		defer e.inflight.Done()
		if err := e.remote.SoftDeleteRecord(ctx, remoteID); err != nil {
			e.logger.Warn("remote delete failed, queueing", zap.Error(err), zap.String("remote_id", remoteID))
			if err := e.enqueue(ownerLocalID, store.QueueDelete, localID, remoteID, nil); err != nil {
				e.logger.Error("failed to queue delete", zap.Error(err))
			}
		}
	}(context.WithoutCancel(ctx))

	return nil
}

// Flush blocks until detached remote attempts spawned so far have settled.
// Called on shutdown so a queued-on-failure entry is not lost to process
// exit, and by tests.
func (e *Engine) Flush() {
	e.inflight.Wait()
}

// ClearAll wipes the owner's local records and pending queue (sign-out).
// The owner-identity map is deliberately left intact so remote ids stay
// stable across sessions.
func (e *Engine) ClearAll(ownerLocalID int64) error {
	if err := e.db.DeleteAllByOwner(ownerLocalID); err != nil {
		return err
	}
	return e.db.ClearQueue(ownerLocalID)
}

// DrainQueue replays pending queue entries in insertion order against the
// remote store. Each entry is removed only when its replay succeeds; a
// failed replay stays queued and draining continues with the next entry.
func (e *Engine) DrainQueue(ctx context.Context, ownerLocalID int64, ownerRemoteID string) error {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	return e.drainLocked(ctx, ownerLocalID, ownerRemoteID)
}

func (e *Engine) drainLocked(ctx context.Context, ownerLocalID int64, ownerRemoteID string) error {
	if !e.online() || ownerRemoteID == "" {
		return nil
	}

	entries, err := e.db.PendingQueue(ownerLocalID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	guard, err := e.fetchGuard(ctx, ownerRemoteID)
	if err != nil {
		e.logger.Warn("queue drain skipped, remote state unavailable", zap.Error(err))
		return nil
	}

	replayed := 0
	for _, entry := range entries {
		ok, err := e.replay(ctx, entry, ownerRemoteID, guard)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.db.RemoveQueueEntry(entry.ID); err != nil {
			return err
		}
		replayed++
	}

	e.logger.Info("queue drained", zap.Int("replayed", replayed), zap.Int("remaining", len(entries)-replayed))
	e.publish("sync.queue_drained", replayed)
	return nil
}

// guardState indexes the remote rows seen at drain start, keyed by identity,
// so create replays stay idempotent across partial previous attempts.
type guardState struct {
	active  map[string]remote.Record
	deleted map[string]remote.Record
}

func (e *Engine) fetchGuard(ctx context.Context, ownerRemoteID string) (*guardState, error) {
	active, err := e.remote.ListRecords(ctx, ownerRemoteID, false)
	if err != nil {
		return nil, err
	}
	deleted, err := e.remote.ListRecords(ctx, ownerRemoteID, true)
	if err != nil {
		return nil, err
	}
	g := &guardState{
		active:  make(map[string]remote.Record, len(active)),
		deleted: make(map[string]remote.Record, len(deleted)),
	}
	for _, row := range active {
		g.active[remoteIdentityKey(row)] = row
	}
	for _, row := range deleted {
		g.deleted[remoteIdentityKey(row)] = row
	}
	return g, nil
}

// replay executes one queue entry against the remote store. It reports
// whether the entry is finished (success or superseded) and may be removed.
// Remote failures return (false, nil); only storage faults return an error.
func (e *Engine) replay(ctx context.Context, entry store.QueueEntry, ownerRemoteID string, guard *guardState) (bool, error) {
	switch entry.Kind {
	case store.QueueCreate:
		return e.replayCreate(ctx, entry, ownerRemoteID, guard)
	case store.QueueUpdate:
		return e.replayUpdate(ctx, entry, ownerRemoteID)
	case store.QueueDelete:
		if err := e.remote.SoftDeleteRecord(ctx, entry.RemoteID); err != nil {
			e.logger.Warn("delete replay failed", zap.Error(err), zap.String("remote_id", entry.RemoteID))
			return false, nil
		}
		return true, nil
	default:
		e.logger.Error("unknown queue entry kind", zap.String("kind", string(entry.Kind)), zap.Int64("entry_id", entry.ID))
		return true, nil
	}
}

func (e *Engine) replayCreate(ctx context.Context, entry store.QueueEntry, ownerRemoteID string, guard *guardState) (bool, error) {
	// Read the record fresh so edits made after enqueueing are pushed too.
	// When the record was deleted locally before ever syncing the enqueued
	// payload is all that is left, and replaying it re-creates the record
	// remotely.
	rec, err := e.db.GetByID(entry.LocalID)
	if err != nil {
		return false, err
	}
	var fields store.RecordFields
	if rec != nil {
		fields = rec.Fields()
	} else if err := json.Unmarshal([]byte(entry.Payload), &fields); err != nil {
		e.logger.Error("dropping create entry with unreadable payload", zap.Error(err), zap.Int64("entry_id", entry.ID))
		return true, nil
	}

	key := identityKey(fields)

	// A matching remote tombstone means another device deleted this event
	// while we were creating it offline: the deletion wins.
	if _, ok := guard.deleted[key]; ok {
		if rec != nil {
			if err := e.db.DeleteByID(rec.ID); err != nil {
				return false, err
			}
			e.publish("record.deleted", rec.ID)
		}
		return true, nil
	}

	// A matching active row means a previous partial attempt already
	// inserted it: adopt instead of duplicating.
	if row, ok := guard.active[key]; ok {
		if rec != nil {
			applyRemote(rec, row)
			if err := e.db.Put(rec); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	row, err := e.remote.InsertRecord(ctx, toDraft(fields, ownerRemoteID))
	if err != nil {
		e.logger.Warn("create replay failed", zap.Error(err), zap.Int64("local_id", entry.LocalID))
		return false, nil
	}
	guard.active[key] = *row
	if rec != nil {
		applyRemote(rec, *row)
		if err := e.db.Put(rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Engine) replayUpdate(ctx context.Context, entry store.QueueEntry, ownerRemoteID string) (bool, error) {
	// Prefer the record's current local state over the snapshot taken at
	// enqueue time; the snapshot only matters once the record is gone.
	rec, err := e.db.GetByRemoteID(entry.OwnerID, entry.RemoteID)
	if err != nil {
		return false, err
	}
	var fields store.RecordFields
	if rec != nil {
		fields = rec.Fields()
	} else if err := json.Unmarshal([]byte(entry.Payload), &fields); err != nil {
		e.logger.Error("dropping update entry with unreadable payload", zap.Error(err), zap.Int64("entry_id", entry.ID))
		return true, nil
	}

	row, err := e.remote.UpdateRecord(ctx, entry.RemoteID, toDraft(fields, ownerRemoteID))
	if err != nil {
		e.logger.Warn("update replay failed", zap.Error(err), zap.String("remote_id", entry.RemoteID))
		return false, nil
	}
	if rec != nil {
		rec.SyncedAt = row.SyncedAt.UnixMilli()
		if err := e.db.Put(rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

// FullReconcile converges the two stores: drain the pending queue, push any
// local record the remote has never seen, then pull authoritative remote
// state. The three phases are not transactional; a crash mid-way leaves
// state the next reconcile converges, because every phase is idempotent.
func (e *Engine) FullReconcile(ctx context.Context, ownerLocalID int64, ownerRemoteID string) error {
	if !e.online() || ownerRemoteID == "" {
		return nil
	}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	e.publish("sync.started", ownerLocalID)
	if err := e.drainLocked(ctx, ownerLocalID, ownerRemoteID); err != nil {
		return err
	}
	if err := e.pushUnsynced(ctx, ownerLocalID, ownerRemoteID); err != nil {
		if _, ok := err.(*store.StorageError); ok {
			return err
		}
		e.logger.Warn("push phase incomplete", zap.Error(err))
	}
	if err := e.pull(ctx, ownerLocalID, ownerRemoteID); err != nil {
		if _, ok := err.(*store.StorageError); ok {
			return err
		}
		e.logger.Warn("pull phase incomplete", zap.Error(err))
	}

	if err := e.marks.Set(fmt.Sprintf("last_reconcile_at.%d", ownerLocalID), time.Now().UTC().Format(time.RFC3339)); err != nil {
		e.logger.Warn("failed to record reconcile checkpoint", zap.Error(err))
	}
	e.publish("sync.reconciled", ownerLocalID)
	return nil
}

// pushUnsynced pushes every local record lacking a remote id, with the same
// identity guards as a create replay.
func (e *Engine) pushUnsynced(ctx context.Context, ownerLocalID int64, ownerRemoteID string) error {
	records, err := e.db.ListByOwner(ownerLocalID)
	if err != nil {
		return err
	}
	var unsynced []store.FuelRecord
	for _, rec := range records {
		if rec.RemoteID == "" {
			unsynced = append(unsynced, rec)
		}
	}
	if len(unsynced) == 0 {
		return nil
	}

	guard, err := e.fetchGuard(ctx, ownerRemoteID)
	if err != nil {
		return err
	}

	for i := range unsynced {
		rec := &unsynced[i]
		key := identityKey(rec.Fields())

		if _, ok := guard.deleted[key]; ok {
			// Deleted on another device: discard rather than resurrect.
			if err := e.db.DeleteByID(rec.ID); err != nil {
				return err
			}
			e.publish("record.deleted", rec.ID)
			continue
		}
		if row, ok := guard.active[key]; ok {
			applyRemote(rec, row)
			if err := e.db.Put(rec); err != nil {
				return err
			}
			continue
		}

		row, err := e.remote.InsertRecord(ctx, toDraft(rec.Fields(), ownerRemoteID))
		if err != nil {
			e.logger.Warn("push failed", zap.Error(err), zap.Int64("local_id", rec.ID))
			continue
		}
		guard.active[key] = *row
		applyRemote(rec, *row)
		if err := e.db.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

// pull folds the remote state into the local store: remote field values win
// for rows already linked by remote id, unseen active rows are inserted
// (adopting an identity-matching unsynced local record instead of
// duplicating it), and remote tombstones hard-delete their local copies.
// Unmatched local-only records are left alone; they are new work awaiting
// push, not duplicates of anything pulled.
func (e *Engine) pull(ctx context.Context, ownerLocalID int64, ownerRemoteID string) error {
	active, err := e.remote.ListRecords(ctx, ownerRemoteID, false)
	if err != nil {
		return err
	}
	deleted, err := e.remote.ListRecords(ctx, ownerRemoteID, true)
	if err != nil {
		return err
	}

	records, err := e.db.ListByOwner(ownerLocalID)
	if err != nil {
		return err
	}
	byRemoteID := make(map[string]*store.FuelRecord)
	unsyncedByKey := make(map[string]*store.FuelRecord)
	for i := range records {
		rec := &records[i]
		if rec.RemoteID != "" {
			byRemoteID[rec.RemoteID] = rec
		} else {
			unsyncedByKey[identityKey(rec.Fields())] = rec
		}
	}

	for _, row := range active {
		if rec, ok := byRemoteID[row.ID]; ok {
			applyRemote(rec, row)
			if err := e.db.Put(rec); err != nil {
				return err
			}
			continue
		}
		if rec, ok := unsyncedByKey[remoteIdentityKey(row)]; ok {
			// Same real-world event created independently on both ends.
			applyRemote(rec, row)
			if err := e.db.Put(rec); err != nil {
				return err
			}
			delete(unsyncedByKey, remoteIdentityKey(row))
			continue
		}
		rec := toLocal(row, ownerLocalID)
		if _, err := e.db.Insert(&rec); err != nil {
			return err
		}
		e.publish("record.upserted", rec.ID)
	}

	for _, row := range deleted {
		if rec, ok := byRemoteID[row.ID]; ok {
			if err := e.db.DeleteByID(rec.ID); err != nil {
				return err
			}
			e.publish("record.deleted", rec.ID)
			continue
		}
		if rec, ok := unsyncedByKey[remoteIdentityKey(row)]; ok {
			// Cross-device deletion wins over an offline re-creation.
			if err := e.db.DeleteByID(rec.ID); err != nil {
				return err
			}
			e.publish("record.deleted", rec.ID)
		}
	}
	return nil
}

// enqueue captures a deferred remote operation.
func (e *Engine) enqueue(ownerLocalID int64, kind store.QueueKind, localID int64, remoteID string, fields *store.RecordFields) error {
	payload := ""
	if fields != nil {
		data, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode queue payload: %w", err)
		}
		payload = string(data)
	}
	return e.db.Enqueue(&store.QueueEntry{
		OwnerID:  ownerLocalID,
		Kind:     kind,
		LocalID:  localID,
		RemoteID: remoteID,
		Payload:  payload,
	})
}
