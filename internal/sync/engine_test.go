package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/store"
)

const remoteOwner = "owner-remote-1"

// fakeRemote is an in-memory stand-in for the hosted record service.
type fakeRemote struct {
	mu        sync.Mutex
	rows      map[string]remote.Record
	mutations []string // insert / update:<id> / softdelete:<id>
	nextID    int

	failInsert bool
	failUpdate bool
	failDelete bool
	failList   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]remote.Record)}
}

func (f *fakeRemote) ListRecords(_ context.Context, ownerID string, deleted bool) ([]remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, &remote.Error{Op: "list records", Err: errors.New("boom")}
	}
	var out []remote.Record
	for _, row := range f.rows {
		if row.OwnerID == ownerID && row.IsDeleted == deleted {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRemote) InsertRecord(_ context.Context, d remote.Draft) (*remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return nil, &remote.Error{Op: "insert record", Err: errors.New("boom")}
	}
	f.nextID++
	row := remote.Record{
		ID: fmt.Sprintf("r%d", f.nextID), OwnerID: d.OwnerID, Date: d.Date,
		AmountPaid: d.AmountPaid, Odometer: d.Odometer, FuelFilled: d.FuelFilled,
		Station: d.Station, SyncedAt: time.Now().UTC(), IsDeleted: d.IsDeleted,
	}
	f.rows[row.ID] = row
	f.mutations = append(f.mutations, "insert")
	return &row, nil
}

func (f *fakeRemote) UpdateRecord(_ context.Context, id string, d remote.Draft) (*remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return nil, &remote.Error{Op: "update record", Err: errors.New("boom")}
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, &remote.Error{Op: "update record", Status: 404}
	}
	row.Date, row.AmountPaid, row.Odometer = d.Date, d.AmountPaid, d.Odometer
	row.FuelFilled, row.Station = d.FuelFilled, d.Station
	row.SyncedAt = time.Now().UTC()
	f.rows[id] = row
	f.mutations = append(f.mutations, "update:"+id)
	return &row, nil
}

func (f *fakeRemote) SoftDeleteRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return &remote.Error{Op: "delete record", Err: errors.New("boom")}
	}
	row, ok := f.rows[id]
	if !ok {
		return &remote.Error{Op: "delete record", Status: 404}
	}
	row.IsDeleted = true
	f.rows[id] = row
	f.mutations = append(f.mutations, "softdelete:"+id)
	return nil
}

// seed places an existing row on the fake remote, as if another device made it.
func (f *fakeRemote) seed(fields store.RecordFields, deleted bool) remote.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	row := remote.Record{
		ID: fmt.Sprintf("r%d", f.nextID), OwnerID: remoteOwner, Date: fields.Date,
		AmountPaid: fields.AmountPaid, Odometer: fields.Odometer,
		FuelFilled: fields.FuelFilled, Station: fields.Station,
		SyncedAt: time.Now().UTC(), IsDeleted: deleted,
	}
	f.rows[row.ID] = row
	return row
}

func (f *fakeRemote) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if !row.IsDeleted {
			n++
		}
	}
	return n
}

func (f *fakeRemote) row(id string) (remote.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return row, ok
}

type fakeNet struct {
	mu     sync.Mutex
	online bool
}

func (n *fakeNet) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNet) set(online bool) {
	n.mu.Lock()
	n.online = online
	n.mu.Unlock()
}

func testEngine(t *testing.T) (*Engine, *store.DB, *fakeRemote, *fakeNet, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	owner, err := db.EnsureOwner(remoteOwner)
	if err != nil {
		t.Fatal(err)
	}

	rem := newFakeRemote()
	net := &fakeNet{online: true}
	return NewEngine(db, rem, net, nil, nil), db, rem, net, owner
}

func draft(date string, amount, odo, fuel float64, station string) store.RecordFields {
	return store.RecordFields{Date: date, AmountPaid: amount, Odometer: odo, FuelFilled: fuel, Station: station}
}

func TestCreateOfflineThenReconcile(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()
	net.set(false)

	rec, err := e.Create(ctx, draft("2026-02-18", 800, 10250, 8.5, "Shell"), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == 0 {
		t.Error("local id not assigned")
	}
	if rec.RemoteID != "" {
		t.Error("offline create must not have a remote id")
	}

	pending, err := db.PendingQueue(owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Kind != store.QueueCreate || pending[0].LocalID != rec.ID {
		t.Fatalf("queue = %+v, want one create entry for record %d", pending, rec.ID)
	}

	net.set(true)
	if err := e.FullReconcile(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	pending, _ = db.PendingQueue(owner)
	if len(pending) != 0 {
		t.Errorf("queue not empty after reconcile: %+v", pending)
	}
	got, err := db.GetByID(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RemoteID == "" || got.SyncedAt == 0 {
		t.Errorf("record not stamped after reconcile: %+v", got)
	}
	if rem.activeCount() != 1 {
		t.Errorf("remote active rows = %d, want exactly 1", rem.activeCount())
	}
	row, _ := rem.row(got.RemoteID)
	if row.AmountPaid != 800 || row.Station != "Shell" || row.Date != "2026-02-18" {
		t.Errorf("remote row fields = %+v", row)
	}
}

func TestCreateOnlineStampsRemoteID(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)

	rec, err := e.Create(context.Background(), draft("2026-03-01", 500, 11000, 6, "BP"), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	e.Flush()

	got, err := db.GetByID(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RemoteID == "" || got.SyncedAt == 0 {
		t.Errorf("record not stamped: %+v", got)
	}
	pending, _ := db.PendingQueue(owner)
	if len(pending) != 0 {
		t.Errorf("unexpected queue entries: %+v", pending)
	}
	if rem.activeCount() != 1 {
		t.Errorf("remote rows = %d, want 1", rem.activeCount())
	}
}

func TestCreateRemoteFailureQueues(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)
	rem.failInsert = true

	rec, err := e.Create(context.Background(), draft("2026-03-01", 500, 11000, 6, "BP"), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	e.Flush()

	got, _ := db.GetByID(rec.ID)
	if got.RemoteID != "" {
		t.Error("record should stay local-only after remote failure")
	}
	pending, _ := db.PendingQueue(owner)
	if len(pending) != 1 || pending[0].Kind != store.QueueCreate {
		t.Fatalf("queue = %+v, want one create entry", pending)
	}
}

// slowRemote delays inserts to verify writes resolve on local timing alone.
type slowRemote struct {
	*fakeRemote
	delay time.Duration
}

func (s *slowRemote) InsertRecord(ctx context.Context, d remote.Draft) (*remote.Record, error) {
	time.Sleep(s.delay)
	return s.fakeRemote.InsertRecord(ctx, d)
}

func TestCreateDoesNotBlockOnRemote(t *testing.T) {
	_, db, rem, net, owner := testEngine(t)
	slow := &slowRemote{fakeRemote: rem, delay: 500 * time.Millisecond}
	e := NewEngine(db, slow, net, nil, nil)

	start := time.Now()
	if _, err := e.Create(context.Background(), draft("2026-03-02", 100, 12000, 2, ""), owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Create blocked on remote: took %v", elapsed)
	}
	e.Flush()
}

func TestIdempotentPushAfterPartialDrain(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()
	net.set(false)

	rec, err := e.Create(ctx, draft("2026-04-01", 900, 13000, 9, "Esso"), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	pending, _ := db.PendingQueue(owner)
	entry := pending[0]

	net.set(true)
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if rem.activeCount() != 1 {
		t.Fatalf("remote rows = %d, want 1", rem.activeCount())
	}

	// Simulate a crash between remote insert success and entry removal:
	// the same create is replayed again.
	if err := db.Enqueue(&store.QueueEntry{
		OwnerID: owner, Kind: store.QueueCreate, LocalID: entry.LocalID, Payload: entry.Payload,
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	if rem.activeCount() != 1 {
		t.Errorf("duplicate remote row created: %d active rows", rem.activeCount())
	}
	pending, _ = db.PendingQueue(owner)
	if len(pending) != 0 {
		t.Errorf("replayed entry not removed: %+v", pending)
	}
	got, _ := db.GetByID(rec.ID)
	if got.RemoteID == "" {
		t.Error("local record not stamped by idempotent replay")
	}
}

func TestDeletionWinsOverOfflineCreate(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()

	// Another device created and then soft-deleted this exact fill.
	fields := draft("2026-05-01", 750, 14000, 7.5, "Aral")
	rem.seed(fields, true)

	net.set(false)
	rec, err := e.Create(ctx, fields, owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}

	net.set(true)
	if err := e.FullReconcile(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	if got, _ := db.GetByID(rec.ID); got != nil {
		t.Error("locally re-created record should be discarded, deletion wins")
	}
	if rem.activeCount() != 0 {
		t.Errorf("deleted record resurrected remotely: %d active rows", rem.activeCount())
	}
}

func TestDrainProcessesInOrderAndSkipsFailures(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()

	rowB := rem.seed(draft("2026-06-01", 100, 15000, 1, ""), false)
	rowC := rem.seed(draft("2026-06-02", 200, 15100, 2, ""), false)
	localB := store.FuelRecord{OwnerID: owner, RemoteID: rowB.ID, Date: rowB.Date, AmountPaid: 111, Odometer: rowB.Odometer, FuelFilled: rowB.FuelFilled, SyncedAt: 1}
	if _, err := db.Insert(&localB); err != nil {
		t.Fatal(err)
	}

	net.set(false)
	if _, err := e.Create(ctx, draft("2026-06-03", 300, 15200, 3, "A"), owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if err := e.Update(ctx, &localB, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, owner, localB.ID+1000, rowC.ID, remoteOwner); err != nil {
		t.Fatal(err)
	}

	pending, _ := db.PendingQueue(owner)
	if len(pending) != 3 {
		t.Fatalf("queue length = %d, want 3", len(pending))
	}

	net.set(true)
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	rem.mu.Lock()
	mutations := append([]string(nil), rem.mutations...)
	rem.mu.Unlock()
	want := []string{"insert", "update:" + rowB.ID, "softdelete:" + rowC.ID}
	if len(mutations) != len(want) {
		t.Fatalf("mutations = %v, want %v", mutations, want)
	}
	for i := range want {
		if mutations[i] != want[i] {
			t.Fatalf("mutation order = %v, want %v", mutations, want)
		}
	}
	pending, _ = db.PendingQueue(owner)
	if len(pending) != 0 {
		t.Errorf("queue not empty: %+v", pending)
	}
}

func TestDrainLeavesFailedEntryAndContinues(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()

	rowB := rem.seed(draft("2026-06-01", 100, 15000, 1, ""), false)
	rowC := rem.seed(draft("2026-06-02", 200, 15100, 2, ""), false)
	localB := store.FuelRecord{OwnerID: owner, RemoteID: rowB.ID, Date: rowB.Date, AmountPaid: 111, Odometer: rowB.Odometer, FuelFilled: rowB.FuelFilled, SyncedAt: 1}
	if _, err := db.Insert(&localB); err != nil {
		t.Fatal(err)
	}

	net.set(false)
	if err := e.Update(ctx, &localB, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, owner, 9999, rowC.ID, remoteOwner); err != nil {
		t.Fatal(err)
	}

	net.set(true)
	rem.failUpdate = true
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	// The failed update stays queued; the delete after it still ran.
	pending, _ := db.PendingQueue(owner)
	if len(pending) != 1 || pending[0].Kind != store.QueueUpdate {
		t.Fatalf("queue = %+v, want only the failed update", pending)
	}
	row, _ := rem.row(rowC.ID)
	if !row.IsDeleted {
		t.Error("delete entry after the failed update was not replayed")
	}
}

func TestListFallsBackToLocalOnRemoteFailure(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)

	if _, err := db.Insert(&store.FuelRecord{OwnerID: owner, Date: "2026-01-01", AmountPaid: 1, Odometer: 1, FuelFilled: 1, Station: "X"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Insert(&store.FuelRecord{OwnerID: owner, Date: "2026-01-02", AmountPaid: 2, Odometer: 2, FuelFilled: 2, Station: "Y"}); err != nil {
		t.Fatal(err)
	}

	rem.failList = true
	records, err := e.List(context.Background(), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("List() = %d records, want the 2 local ones", len(records))
	}
	if records[0].Station != "X" || records[1].Station != "Y" {
		t.Errorf("local contents changed: %+v", records)
	}
}

func TestListPullsRemoteState(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)
	ctx := context.Background()

	// A row this device has never seen, and a tombstone for one it has.
	fresh := rem.seed(draft("2026-07-01", 400, 16000, 4, "New"), false)
	gone := rem.seed(draft("2026-07-02", 500, 16100, 5, "Old"), true)
	local := store.FuelRecord{OwnerID: owner, RemoteID: gone.ID, Date: gone.Date, AmountPaid: gone.AmountPaid, Odometer: gone.Odometer, FuelFilled: gone.FuelFilled, SyncedAt: 1}
	if _, err := db.Insert(&local); err != nil {
		t.Fatal(err)
	}

	records, err := e.List(ctx, owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("List() = %d records, want 1", len(records))
	}
	if records[0].RemoteID != fresh.ID || records[0].Station != "New" {
		t.Errorf("pulled record = %+v, want the fresh remote row", records[0])
	}
}

func TestRemoteFieldsWinForLinkedRecords(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)

	row := rem.seed(draft("2026-07-03", 600, 17000, 6, "Remote Truth"), false)
	local := store.FuelRecord{OwnerID: owner, RemoteID: row.ID, Date: row.Date, AmountPaid: 1, Odometer: 1, FuelFilled: 1, Station: "Stale", SyncedAt: 1}
	if _, err := db.Insert(&local); err != nil {
		t.Fatal(err)
	}

	if _, err := e.List(context.Background(), owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetByID(local.ID)
	if got.Station != "Remote Truth" || got.AmountPaid != 600 {
		t.Errorf("remote values did not win: %+v", got)
	}
}

func TestUpdateOfUnsyncedRecordAbsorbedByPendingCreate(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()
	net.set(false)

	rec, err := e.Create(ctx, draft("2026-08-01", 100, 18000, 1, "Before"), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	rec.Station = "After"
	rec.AmountPaid = 150
	if err := e.Update(ctx, rec, remoteOwner); err != nil {
		t.Fatal(err)
	}

	// No separate update entry: the pending create replay reads fresh state.
	pending, _ := db.PendingQueue(owner)
	if len(pending) != 1 || pending[0].Kind != store.QueueCreate {
		t.Fatalf("queue = %+v, want only the create entry", pending)
	}

	net.set(true)
	if err := e.FullReconcile(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetByID(rec.ID)
	row, _ := rem.row(got.RemoteID)
	if row.Station != "After" || row.AmountPaid != 150 {
		t.Errorf("replayed create pushed stale fields: %+v", row)
	}
}

func TestUpdateRemoteFailureQueuesByRemoteID(t *testing.T) {
	e, db, rem, _, owner := testEngine(t)

	row := rem.seed(draft("2026-08-02", 100, 18100, 1, ""), false)
	rec := store.FuelRecord{OwnerID: owner, RemoteID: row.ID, Date: row.Date, AmountPaid: 120, Odometer: row.Odometer, FuelFilled: row.FuelFilled, SyncedAt: 1}
	if _, err := db.Insert(&rec); err != nil {
		t.Fatal(err)
	}

	rem.failUpdate = true
	if err := e.Update(context.Background(), &rec, remoteOwner); err != nil {
		t.Fatal(err)
	}
	e.Flush()

	pending, _ := db.PendingQueue(owner)
	if len(pending) != 1 || pending[0].Kind != store.QueueUpdate || pending[0].RemoteID != row.ID {
		t.Fatalf("queue = %+v, want one update entry keyed by %s", pending, row.ID)
	}
}

func TestDeleteOfflinePropagatesOnDrain(t *testing.T) {
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()

	row := rem.seed(draft("2026-08-03", 100, 18200, 1, ""), false)
	rec := store.FuelRecord{OwnerID: owner, RemoteID: row.ID, Date: row.Date, AmountPaid: row.AmountPaid, Odometer: row.Odometer, FuelFilled: row.FuelFilled, SyncedAt: 1}
	if _, err := db.Insert(&rec); err != nil {
		t.Fatal(err)
	}

	net.set(false)
	if err := e.Delete(ctx, owner, rec.ID, rec.RemoteID, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.GetByID(rec.ID); got != nil {
		t.Error("local record should be hard-deleted immediately")
	}

	net.set(true)
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	got, _ := rem.row(row.ID)
	if !got.IsDeleted {
		t.Error("remote row not soft-deleted after drain")
	}
}

func TestQueuedCreateSurvivesLocalDelete(t *testing.T) {
	// A record deleted before it ever synced leaves its create entry behind;
	// the replay re-creates it remotely from the enqueued payload. This is
	// the documented behavior of the replay scheme.
	e, db, rem, net, owner := testEngine(t)
	ctx := context.Background()
	net.set(false)

	rec, err := e.Create(ctx, draft("2026-08-04", 100, 18300, 1, ""), owner, remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, owner, rec.ID, "", remoteOwner); err != nil {
		t.Fatal(err)
	}

	pending, _ := db.PendingQueue(owner)
	if len(pending) != 1 || pending[0].Kind != store.QueueCreate {
		t.Fatalf("queue = %+v, want the orphaned create entry", pending)
	}

	net.set(true)
	if err := e.DrainQueue(ctx, owner, remoteOwner); err != nil {
		t.Fatal(err)
	}
	if rem.activeCount() != 1 {
		t.Errorf("remote rows = %d, want the re-created record", rem.activeCount())
	}
}

func TestClearAllPreservesOwnerMap(t *testing.T) {
	e, db, _, net, owner := testEngine(t)
	ctx := context.Background()
	net.set(false)

	if _, err := e.Create(ctx, draft("2026-09-01", 100, 19000, 1, ""), owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	if err := e.ClearAll(owner); err != nil {
		t.Fatal(err)
	}

	records, _ := db.ListByOwner(owner)
	pending, _ := db.PendingQueue(owner)
	if len(records) != 0 || len(pending) != 0 {
		t.Errorf("records=%d queue=%d after ClearAll, want 0/0", len(records), len(pending))
	}

	// Owner map survives sign-out so remote ids stay stable.
	again, err := db.EnsureOwner(remoteOwner)
	if err != nil {
		t.Fatal(err)
	}
	if again != owner {
		t.Errorf("owner id changed across sign-out: %d vs %d", again, owner)
	}
}

func TestReconcileRecordsCheckpoint(t *testing.T) {
	e, db, _, _, owner := testEngine(t)

	if err := e.FullReconcile(context.Background(), owner, remoteOwner); err != nil {
		t.Fatal(err)
	}

	val, err := NewCheckpoints(db).Get(fmt.Sprintf("last_reconcile_at.%d", owner))
	if err != nil {
		t.Fatal(err)
	}
	if val == "" {
		t.Error("reconcile checkpoint not recorded")
	}
	if _, err := time.Parse(time.RFC3339, val); err != nil {
		t.Errorf("checkpoint %q is not RFC3339: %v", val, err)
	}
}
